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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeArgs(t *testing.T) {
	tests := []struct {
		name string
		opts ArgOptions
		want []string
	}{
		{
			name: "plain",
			want: []string{"--stdin", "/w/a.rb", "--force-exclusion", "--format", "json"},
		},
		{
			name: "empty file cop disabled",
			opts: ArgOptions{DisableEmptyFileCop: true},
			want: []string{"--stdin", "/w/a.rb", "--force-exclusion", "--except", "Lint/EmptyFile", "--format", "json"},
		},
		{
			name: "extra args go last",
			opts: ArgOptions{ExtraArgs: []string{"--lint", "--display-style-guide"}},
			want: []string{"--stdin", "/w/a.rb", "--force-exclusion", "--format", "json", "--lint", "--display-style-guide"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AnalyzeArgs("/w/a.rb", tt.opts))
		})
	}
}

func TestAutocorrectArgs(t *testing.T) {
	got := AutocorrectArgs("/w/a.rb", ArgOptions{DisableEmptyFileCop: true, ExtraArgs: []string{"--lint"}})
	assert.Equal(t, []string{"--stdin", "/w/a.rb", "--force-exclusion", "--except", "Lint/EmptyFile", "--auto-correct"}, got)
	assert.NotContains(t, got, "--format")
}

func TestShapes(t *testing.T) {
	args := []string{"--stdin", "a.rb"}

	direct := Direct{Argv: []string{"/usr/bin/rubocop"}}.Command(args, "/work")
	assert.Equal(t, "/usr/bin/rubocop", direct.Name)
	assert.Equal(t, args, direct.Args)
	assert.Empty(t, direct.Dir)
	assert.Nil(t, direct.Exec)

	bundler := Bundler{Argv: []string{"bundle", "exec", "rubocop"}}.Command(args, "/work")
	assert.Equal(t, "bundle", bundler.Name)
	assert.Equal(t, []string{"exec", "rubocop", "--stdin", "a.rb"}, bundler.Args)
	assert.Equal(t, "/work", bundler.Dir)

	shape := Container{Name: "app", Argv: []string{"bundle", "exec", "rubocop"}}
	ctr := shape.Command(args, "/work")
	assert.Equal(t, "docker", ctr.Name)
	assert.Equal(t, []string{"exec", "-i", "app", "bundle", "exec", "rubocop", "--stdin", "a.rb"}, ctr.Args)
	assert.Empty(t, ctr.Dir)
	require.NotNil(t, ctr.Exec)
	assert.Equal(t, "app", ctr.Exec.Container)
	assert.Equal(t, []string{"bundle", "exec", "rubocop", "--stdin", "a.rb"}, ctr.Exec.Argv)
	assert.Equal(t, "docker exec -i app bundle exec rubocop", shape.String())
}

func TestShapeDoesNotAliasArgv(t *testing.T) {
	argv := make([]string, 1, 4)
	argv[0] = "rubocop"
	shape := Bundler{Argv: argv}
	a := shape.Command([]string{"one"}, "")
	b := shape.Command([]string{"two"}, "")
	assert.Equal(t, []string{"one"}, a.Args)
	assert.Equal(t, []string{"two"}, b.Args)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		res  Result
		want Status
	}{
		{"clean", Result{}, StatusClean},
		{"offenses", Result{Err: &ExitError{Code: 1}, ExitCode: 1}, StatusOffenses},
		{"error exit", Result{Err: &ExitError{Code: 2}, ExitCode: 2}, StatusFailed},
		{"wrapper not found", Result{Err: &ExitError{Code: 127}, ExitCode: 127}, StatusFailed},
		{"spawn", Result{Err: &SpawnError{Command: "rubocop", Err: ErrNotExecutable}, ExitCode: -1}, StatusFailed},
		{"overflow", Result{Err: ErrOutputLimit, ExitCode: 0}, StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.res))
		})
	}
}

func TestIsSpawnFailure(t *testing.T) {
	assert.True(t, IsSpawnFailure(Result{Err: &SpawnError{Err: ErrNotExecutable}}))
	assert.True(t, IsSpawnFailure(Result{Err: &ExitError{Code: 127}}))
	assert.False(t, IsSpawnFailure(Result{Err: &ExitError{Code: 2}}))
	assert.False(t, IsSpawnFailure(Result{}))
}

func TestCappedBuffer(t *testing.T) {
	b := newCappedBuffer(5)
	n, err := b.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = b.Write([]byte("defg"))
	assert.ErrorIs(t, err, ErrOutputLimit)
	assert.Equal(t, 2, n)
	assert.True(t, b.Overflowed())
	assert.Equal(t, "abcde", b.String())

	_, err = b.Write([]byte("h"))
	assert.ErrorIs(t, err, ErrOutputLimit)
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
}

func TestLocalRunner_FeedsStdin(t *testing.T) {
	requireShell(t)
	r := NewLocalRunner(0)

	res := r.Run(context.Background(), Command{Name: "/bin/sh", Args: []string{"-c", "cat; echo warn >&2"}}, "puts 1\n")
	require.NoError(t, res.Err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "puts 1\n", res.Stdout)
	assert.Equal(t, "warn\n", res.Stderr)
	assert.Equal(t, StatusClean, Classify(res))
}

func TestLocalRunner_ExitCodes(t *testing.T) {
	requireShell(t)
	r := NewLocalRunner(0)

	res := r.Run(context.Background(), Command{Name: "/bin/sh", Args: []string{"-c", "cat; exit 1"}}, "x")
	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, "x", res.Stdout)
	assert.Equal(t, StatusOffenses, Classify(res))

	res = r.Run(context.Background(), Command{Name: "/bin/sh", Args: []string{"-c", "exit 2"}}, "")
	assert.Equal(t, 2, res.ExitCode)
	var exitErr *ExitError
	require.ErrorAs(t, res.Err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
	assert.Equal(t, StatusFailed, Classify(res))
}

func TestLocalRunner_WorkingDirectory(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	res := NewLocalRunner(0).Run(context.Background(), Command{Name: "/bin/sh", Args: []string{"-c", "pwd"}, Dir: dir}, "")
	require.NoError(t, res.Err)

	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(strings.TrimSpace(res.Stdout))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLocalRunner_MissingExecutable(t *testing.T) {
	res := NewLocalRunner(0).Run(context.Background(), Command{Name: "definitely-not-a-rubocop-binary"}, "")
	var spawnErr *SpawnError
	require.ErrorAs(t, res.Err, &spawnErr)
	assert.ErrorIs(t, res.Err, ErrNotExecutable)
	assert.True(t, IsSpawnFailure(res))
	assert.Equal(t, StatusFailed, Classify(res))
}

func TestLocalRunner_OutputCeiling(t *testing.T) {
	requireShell(t)
	r := NewLocalRunner(8)
	res := r.Run(context.Background(), Command{Name: "/bin/sh", Args: []string{"-c", "echo 0123456789abcdef"}}, "")
	assert.ErrorIs(t, res.Err, ErrOutputLimit)
	assert.Equal(t, StatusFailed, Classify(res))
	assert.Len(t, res.Stdout, 8)
}

type stubRunner struct {
	calls []Command
	res   Result
}

func (s *stubRunner) Run(_ context.Context, cmd Command, _ string) Result {
	s.calls = append(s.calls, cmd)
	return s.res
}

func TestDispatcher(t *testing.T) {
	local := &stubRunner{}
	ctr := &stubRunner{}
	d := &Dispatcher{Local: local, Container: ctr}

	d.Run(context.Background(), Direct{Argv: []string{"rubocop"}}.Command(nil, ""), "")
	d.Run(context.Background(), Container{Name: "app", Argv: []string{"rubocop"}}.Command(nil, ""), "")
	assert.Len(t, local.calls, 1)
	assert.Len(t, ctr.calls, 1)

	cli := &Dispatcher{Local: local}
	cli.Run(context.Background(), Container{Name: "app", Argv: []string{"rubocop"}}.Command(nil, ""), "")
	require.Len(t, local.calls, 2)
	assert.Equal(t, "docker", local.calls[1].Name)
}

func TestConfigFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".rubocop.yml")
	require.NoError(t, os.WriteFile(path, []byte("AllCops: {}\n"), 0o644))

	direct := Direct{Argv: []string{"rubocop"}}
	assert.True(t, ConfigFileExists(context.Background(), nil, direct, ""))
	assert.True(t, ConfigFileExists(context.Background(), nil, direct, path))
	assert.False(t, ConfigFileExists(context.Background(), nil, direct, filepath.Join(dir, "missing.yml")))
	assert.False(t, ConfigFileExists(context.Background(), nil, direct, dir))

	shape := Container{Name: "app", Argv: []string{"rubocop"}}
	found := &stubRunner{}
	assert.True(t, ConfigFileExists(context.Background(), found, shape, "/app/.rubocop.yml"))
	require.Len(t, found.calls, 1)
	assert.Equal(t, []string{"test", "-f", "/app/.rubocop.yml"}, found.calls[0].Exec.Argv)

	missing := &stubRunner{res: Result{Err: &ExitError{Code: 1}, ExitCode: 1}}
	assert.False(t, ConfigFileExists(context.Background(), missing, shape, "/app/.rubocop.yml"))
}

func TestWorkDir(t *testing.T) {
	roots := []string{"/src", "/src/app", "/other"}
	assert.Equal(t, "/src/app", WorkDir("/src/app/models/user.rb", roots))
	assert.Equal(t, "/src", WorkDir("/src/lib/x.rb", roots))
	assert.Equal(t, "/elsewhere", WorkDir("/elsewhere/x.rb", roots))
	assert.Equal(t, "/src", WorkDir("/srcfoo/../src/a.rb", roots))
	assert.Equal(t, "/srcfoo", WorkDir("/srcfoo/a.rb", roots))
}

func TestSpawnErrorWrapping(t *testing.T) {
	err := &SpawnError{Command: "rubocop", Err: errors.Join(ErrNotExecutable, os.ErrNotExist)}
	assert.ErrorIs(t, err, ErrNotExecutable)
	assert.Contains(t, err.Error(), "rubocop")
}
