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
	"os"
)

// ConfigFileExists checks the analyzer's config file where the analyzer
// will look for it: inside the container for the container shape, on the
// host otherwise.
func ConfigFileExists(ctx context.Context, runner Runner, shape Shape, path string) bool {
	if path == "" {
		return true
	}
	if c, ok := shape.(Container); ok {
		res := runner.Run(ctx, c.Exec("test", "-f", path), "")
		return res.Err == nil && res.ExitCode == 0
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
