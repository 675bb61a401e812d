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

package config

import (
	"os/exec"
	"path/filepath"
	"runtime"

	"lintworker/src/execution"
)

// Snapshot is the resolved, read-only configuration handed to each unit of
// work at submission time.
type Snapshot struct {
	Shape            execution.Shape
	ConfigFilePath   string
	OnSave           bool
	SuppressWarnings bool
	Args             execution.ArgOptions
	WorkspaceRoots   []string
	// Warnings are resolution problems to report once to the user.
	Warnings []string
}

// Resolver looks up an executable on PATH.
type Resolver func(file string) (string, error)

func binaryName() string {
	if runtime.GOOS == "windows" {
		return "rubocop.bat"
	}
	return "rubocop"
}

// Resolve picks the invocation shape. lookPath defaults to exec.LookPath.
func (c *Config) Resolve(lookPath Resolver) *Snapshot {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	snap := &Snapshot{
		ConfigFilePath:   c.ConfigFilePath,
		OnSave:           c.OnSave,
		SuppressWarnings: c.SuppressWarnings,
		Args: execution.ArgOptions{
			DisableEmptyFileCop: c.DisableEmptyFileCop,
			ExtraArgs:           append([]string(nil), c.ExtraArgs...),
		},
		WorkspaceRoots: append([]string(nil), c.WorkspaceRoots...),
	}
	snap.Shape = c.resolveShape(lookPath, &snap.Warnings)
	return snap
}

func (c *Config) resolveShape(lookPath Resolver, warnings *[]string) execution.Shape {
	docker := c.UseDocker
	if docker && c.DockerContainer == "" {
		*warnings = append(*warnings, "docker container is empty! please check RUBOCOP_DOCKER_CONTAINER")
		docker = false
	}

	if len(c.Command) > 0 {
		argv := append([]string(nil), c.Command...)
		switch {
		case docker:
			return execution.Container{Name: c.DockerContainer, Argv: argv}
		case c.UseBundler:
			return execution.Bundler{Argv: argv}
		default:
			return execution.Direct{Argv: argv}
		}
	}

	if docker {
		argv := []string{"rubocop"}
		if c.UseBundler {
			argv = []string{"bundle", "exec", "rubocop"}
		}
		return execution.Container{Name: c.DockerContainer, Argv: argv}
	}

	bin := binaryName()
	if c.ExecutePath != "" {
		return execution.Direct{Argv: []string{filepath.Join(c.ExecutePath, bin)}}
	}
	if c.UseBundler {
		return execution.Bundler{Argv: []string{"bundle", "exec", bin}}
	}
	found, err := lookPath(bin)
	if err != nil || found == "" {
		*warnings = append(*warnings, "execute path is empty! please check RUBOCOP_EXECUTE_PATH")
		return execution.Direct{Argv: []string{bin}}
	}
	return execution.Direct{Argv: []string{found}}
}
