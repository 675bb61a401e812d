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

package execution

import (
	"context"
	"errors"
	"fmt"
)

// DefaultMaxBuffer caps captured stdout and stderr at 1 GiB each.
const DefaultMaxBuffer int64 = 1 << 30

var (
	// ErrOutputLimit is returned when a stream exceeds the buffer ceiling.
	ErrOutputLimit = errors.New("output exceeds buffer limit")
	// ErrNotExecutable is matched by spawn errors caused by a missing or
	// non-executable binary.
	ErrNotExecutable = errors.New("command is not executable")
	// ErrContainerNotRunning is matched when the target container is stopped.
	ErrContainerNotRunning = errors.New("container is not running")
)

// Runner executes a command synchronously, feeding input on stdin.
type Runner interface {
	Run(ctx context.Context, cmd Command, input string) Result
}

// Result is the captured outcome of one invocation.
type Result struct {
	Err      error
	ExitCode int
	Stdout   string
	Stderr   string
}

// SpawnError means the process never ran.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// ExitError means the process ran and exited with a nonzero status.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// Status is the analyzer's exit-code contract applied to a Result.
type Status int

const (
	// StatusClean is exit 0: no offenses.
	StatusClean Status = iota
	// StatusOffenses is exit 1: offenses found, possibly corrected.
	StatusOffenses
	// StatusFailed covers spawn failures, buffer overflow and every other
	// exit code.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusClean:
		return "clean"
	case StatusOffenses:
		return "offenses"
	default:
		return "failed"
	}
}

// Classify maps a Result onto the exit-code contract.
func Classify(r Result) Status {
	if r.Err == nil {
		return StatusClean
	}
	var exitErr *ExitError
	if !errors.As(r.Err, &exitErr) {
		return StatusFailed
	}
	switch exitErr.Code {
	case 0:
		return StatusClean
	case 1:
		return StatusOffenses
	default:
		return StatusFailed
	}
}

// IsSpawnFailure reports whether the command could not be started at all,
// including a wrapper reporting "command not found" with status 127.
func IsSpawnFailure(r Result) bool {
	var spawnErr *SpawnError
	if errors.As(r.Err, &spawnErr) {
		return true
	}
	var exitErr *ExitError
	return errors.As(r.Err, &exitErr) && exitErr.Code == 127
}
