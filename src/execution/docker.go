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
	"fmt"
	"io"
	"log/slog"
	"strings"

	"lintworker/src/logging"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
)

// ExecAPI is the slice of the Docker Engine client the runner needs.
// *client.Client satisfies it.
type ExecAPI interface {
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ContainerExecCreate(ctx context.Context, containerID string, options container.ExecOptions) (container.ExecCreateResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, config container.ExecStartOptions) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error)
}

// DockerRunner runs container commands through the Engine API instead of
// the docker CLI, streaming the document text on the exec's stdin.
type DockerRunner struct {
	cli       ExecAPI
	maxBuffer int64
}

func NewDockerRunner(cli ExecAPI, maxBuffer int64) *DockerRunner {
	return &DockerRunner{cli: cli, maxBuffer: maxBuffer}
}

func (d *DockerRunner) Run(ctx context.Context, cmd Command, input string) Result {
	if cmd.Exec == nil {
		return Result{ExitCode: -1, Err: &SpawnError{Command: cmd.String(), Err: fmt.Errorf("not a container command")}}
	}
	target := cmd.Exec.Container

	inspect, err := d.cli.ContainerInspect(ctx, target)
	if err != nil {
		logging.Log(fmt.Sprintf("failed to inspect container %s: %v", target, err), slog.LevelError)
		return Result{ExitCode: -1, Err: &SpawnError{Command: cmd.String(), Err: err}}
	}
	if inspect.ContainerJSONBase == nil || inspect.State == nil || !inspect.State.Running {
		return Result{ExitCode: -1, Err: &SpawnError{Command: cmd.String(), Err: fmt.Errorf("%s: %w", target, ErrContainerNotRunning)}}
	}

	execConfig := container.ExecOptions{
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          cmd.Exec.Argv,
	}
	execResp, err := d.cli.ContainerExecCreate(ctx, target, execConfig)
	if err != nil {
		logging.Log(fmt.Sprintf("failed to create exec: %v", err), slog.LevelError)
		return Result{ExitCode: -1, Err: &SpawnError{Command: cmd.String(), Err: err}}
	}

	resp, err := d.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		logging.Log(fmt.Sprintf("failed to attach to exec: %v", err), slog.LevelError)
		return Result{ExitCode: -1, Err: &SpawnError{Command: cmd.String(), Err: err}}
	}
	defer resp.Close()

	go func() {
		if _, err := io.Copy(resp.Conn, strings.NewReader(input)); err != nil {
			logging.Log(fmt.Sprintf("failed to write exec stdin: %v", err), slog.LevelWarn)
		}
		_ = resp.CloseWrite()
	}()

	stdout := newCappedBuffer(d.maxBuffer)
	stderr := newCappedBuffer(d.maxBuffer)
	done := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(stdout, stderr, resp.Reader)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return Result{ExitCode: -1, Err: ctx.Err(), Stdout: stdout.String(), Stderr: stderr.String()}
	case err := <-done:
		if stdout.Overflowed() || stderr.Overflowed() {
			return Result{ExitCode: -1, Err: fmt.Errorf("%s: %w", target, ErrOutputLimit), Stdout: stdout.String(), Stderr: stderr.String()}
		}
		if err != nil {
			logging.Log(fmt.Sprintf("error reading exec output: %v", err), slog.LevelError)
			return Result{ExitCode: -1, Err: err, Stdout: stdout.String(), Stderr: stderr.String()}
		}
	}

	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	execInspect, err := d.cli.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		logging.Log(fmt.Sprintf("failed to inspect exec: %v", err), slog.LevelError)
		res.ExitCode = -1
		res.Err = err
		return res
	}
	res.ExitCode = execInspect.ExitCode
	if execInspect.ExitCode != 0 {
		res.Err = &ExitError{Code: execInspect.ExitCode}
	}
	return res
}

// Dispatcher sends container commands to the Engine runner when one is
// configured and everything else to the local runner.
type Dispatcher struct {
	Local     Runner
	Container Runner
}

func (d *Dispatcher) Run(ctx context.Context, cmd Command, input string) Result {
	if cmd.Exec != nil && d.Container != nil {
		return d.Container.Run(ctx, cmd, input)
	}
	return d.Local.Run(ctx, cmd, input)
}
