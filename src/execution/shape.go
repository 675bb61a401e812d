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
	"strings"
)

// Command is a fully resolved process invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	// Exec is set for container invocations so a Docker Engine runner can
	// bypass the docker CLI. Name and Args still hold the CLI equivalent.
	Exec *ContainerExec
}

// ContainerExec describes a command run inside an existing container.
type ContainerExec struct {
	Container string
	Argv      []string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Shape is how the analyzer gets launched: Direct, Bundler or Container.
// The set is closed.
type Shape interface {
	// Command appends args to the shape's argv. workDir is the document's
	// working directory; shapes that do not need it ignore it.
	Command(args []string, workDir string) Command
	// String is the human readable command used in warnings.
	String() string

	isShape()
}

// Direct runs the analyzer binary itself. Argv[0] is the executable.
type Direct struct {
	Argv []string
}

// Bundler runs the analyzer through the dependency manager wrapper,
// e.g. "bundle exec rubocop", from the document's working directory.
type Bundler struct {
	Argv []string
}

// Container runs Argv inside the named, already running container.
type Container struct {
	Name string
	Argv []string
}

func (Direct) isShape()    {}
func (Bundler) isShape()   {}
func (Container) isShape() {}

func (d Direct) Command(args []string, _ string) Command {
	return Command{Name: head(d.Argv), Args: concat(tail(d.Argv), args)}
}

func (d Direct) String() string {
	return strings.Join(d.Argv, " ")
}

func (b Bundler) Command(args []string, workDir string) Command {
	return Command{Name: head(b.Argv), Args: concat(tail(b.Argv), args), Dir: workDir}
}

func (b Bundler) String() string {
	return strings.Join(b.Argv, " ")
}

func (c Container) Command(args []string, _ string) Command {
	return c.Exec(concat(c.Argv, args)...)
}

// Exec builds a command running argv in the container, without the
// analyzer prefix.
func (c Container) Exec(argv ...string) Command {
	return Command{
		Name: "docker",
		Args: concat([]string{"exec", "-i", c.Name}, argv),
		Exec: &ContainerExec{Container: c.Name, Argv: argv},
	}
}

func (c Container) String() string {
	return strings.Join(concat([]string{"docker", "exec", "-i", c.Name}, c.Argv), " ")
}

func head(argv []string) string {
	if len(argv) == 0 {
		return ""
	}
	return argv[0]
}

func tail(argv []string) []string {
	if len(argv) < 2 {
		return nil
	}
	return argv[1:]
}

func concat(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
