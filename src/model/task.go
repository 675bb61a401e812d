// Copyright (c) 2026 Khaled Abbas
//
// This source code is licensed under the Business Source License 1.1.
//
// Change Date: 4 years after the first public release of this version.
// Change License: MIT
//
// On the Change Date, this version of the code automatically converts
// to the MIT License. Prior to that date, use is subject to the
// Additional Use Grant. See the LICENSE file for details.

package model

import "time"

type RunStatus string

const (
	RunPending    RunStatus = "pending"
	RunRunning    RunStatus = "running"
	RunCompleted  RunStatus = "completed"
	RunSuperseded RunStatus = "superseded"
	RunCancelled  RunStatus = "cancelled"
	RunFailed     RunStatus = "failed"
)

// Run describes one analysis unit of work as seen by the status API.
type Run struct {
	ID        string
	Key       ResourceKey
	Submitted time.Time
	Started   *time.Time
	Finished  *time.Time
	LastError *string
	Status    RunStatus
	Offenses  int
}
