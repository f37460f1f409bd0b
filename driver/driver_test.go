// Copyright (c) 2024 The Falcon Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.
package driver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeRunner records every invocation and returns a scripted result per
// command name, so tests never shell out to a real nasm/gcc.
type fakeRunner struct {
	calls   []string
	args    map[string][]string
	results map[string]struct {
		code int
		out  string
		err  error
	}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{args: make(map[string][]string), results: make(map[string]struct {
		code int
		out  string
		err  error
	})}
}

func (f *fakeRunner) script(name string, code int, out string, err error) {
	f.results[name] = struct {
		code int
		out  string
		err  error
	}{code, out, err}
}

func (f *fakeRunner) Run(ctx context.Context, workDir, name string, args ...string) (int, string, error) {
	f.calls = append(f.calls, name)
	f.args[name] = args
	r, ok := f.results[name]
	if !ok {
		return 0, "", nil
	}
	return r.code, r.out, r.err
}

func TestAssembleSucceedsOnZeroExit(t *testing.T) {
	r := newFakeRunner()
	r.script("nasm", 0, "", nil)
	err := Assemble(r, "/tmp", "out.asm")
	require.NoError(t, err)
	require.Equal(t, []string{"nasm"}, r.calls)
}

func TestAssembleFailsOnNonZeroExit(t *testing.T) {
	r := newFakeRunner()
	r.script("nasm", 1, "error: bad syntax", nil)
	err := Assemble(r, "/tmp", "out.asm")
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad syntax")
}

func TestLinkPassesNoPieAndNoExecStack(t *testing.T) {
	r := newFakeRunner()
	r.script("gcc", 0, "", nil)
	err := Link(r, "/tmp", "a.out", "out.o")
	require.NoError(t, err)
	require.Equal(t, []string{"gcc"}, r.calls)
	require.Equal(t, []string{"-no-pie", "-z", "noexecstack", "-o", "a.out", "out.o"}, r.args["gcc"])
}

func TestLinkFailsOnNonZeroExit(t *testing.T) {
	r := newFakeRunner()
	r.script("gcc", 1, "undefined reference", nil)
	err := Link(r, "/tmp", "a.out", "out.o")
	require.Error(t, err)
}

// TestRunOnceDoesNotWrapNonZeroExit checks that a non-zero exit code from
// the compiled program itself is returned as ordinary data, not as a
// diag.ToolError -- spec §8's end-to-end scenarios rely on the exit code
// being read back intact.
func TestRunOnceDoesNotWrapNonZeroExit(t *testing.T) {
	r := newFakeRunner()
	r.script("./a.out", 55, "", nil)
	code, err := RunOnce(r, "/tmp", "./a.out")
	require.NoError(t, err)
	require.Equal(t, 55, code)
}

func TestRunOnceWrapsStartFailure(t *testing.T) {
	r := newFakeRunner()
	r.script("./a.out", -1, "", os.ErrNotExist)
	_, err := RunOnce(r, "/tmp", "./a.out")
	require.Error(t, err)
}

func TestNewWorkspaceCopiesSourceAndCleansUp(t *testing.T) {
	src, err := os.CreateTemp("", "irasmc-driver-test-*.ir")
	require.NoError(t, err)
	defer os.Remove(src.Name())
	_, err = src.WriteString("define fn i32 main()\n  ret i32 0\nend\n")
	require.NoError(t, err)
	require.NoError(t, src.Close())

	dir, copied, cleanup, err := NewWorkspace(src.Name())
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, filepath.Base(src.Name())), copied)

	_, statErr := os.Stat(copied)
	require.NoError(t, statErr)

	cleanup()
	_, statErr = os.Stat(dir)
	require.True(t, os.IsNotExist(statErr), "cleanup must remove the workspace directory")
}
