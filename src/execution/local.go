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
	"io/fs"
	"os/exec"
	"strings"
)

// LocalRunner spawns the command on the host with os/exec.
type LocalRunner struct {
	MaxBuffer int64
}

func NewLocalRunner(maxBuffer int64) *LocalRunner {
	return &LocalRunner{MaxBuffer: maxBuffer}
}

func (r *LocalRunner) Run(ctx context.Context, command Command, input string) Result {
	if command.Name == "" {
		return Result{ExitCode: -1, Err: &SpawnError{Command: command.String(), Err: ErrNotExecutable}}
	}

	stdout := newCappedBuffer(r.MaxBuffer)
	stderr := newCappedBuffer(r.MaxBuffer)

	cmd := exec.CommandContext(ctx, command.Name, command.Args...)
	cmd.Dir = command.Dir
	cmd.Stdin = strings.NewReader(input)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return Result{ExitCode: -1, Err: &SpawnError{Command: command.String(), Err: spawnCause(err)}}
	}
	err := cmd.Wait()

	res := Result{
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}

	switch {
	case stdout.Overflowed() || stderr.Overflowed():
		res.Err = fmt.Errorf("%s: %w", command.Name, ErrOutputLimit)
	case err == nil:
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.Exited() {
			res.Err = &ExitError{Code: exitErr.ExitCode()}
		} else {
			res.Err = fmt.Errorf("%s: %w", command.Name, err)
		}
	}
	return res
}

func spawnCause(err error) error {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%w: %w", ErrNotExecutable, err)
	}
	return err
}
