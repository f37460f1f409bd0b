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
//
// Package driver shells out to the system assembler and linker: a
// working directory, a couple of argv slices, and a go-the-distance-or-
// fail subprocess call, returning *diag.Error instead of printing and
// os.Exit-ing directly, and running through an injectable Runner so
// tests can exercise the assemble/link/run-once contract without
// actually invoking nasm/gcc.
package driver

import (
	"bytes"
	"context"
	"os/exec"

	"irasm/diag"
)

// Runner executes one external command in workDir and reports its
// exit code, combined output, and any error starting the process itself.
// The real implementation shells out via os/exec; tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, workDir, name string, args ...string) (exitCode int, output string, err error)
}

// execRunner is the production Runner, grounded on utils.ExecuteCmd.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, workDir, name string, args ...string) (int, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = workDir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	if err == nil {
		return 0, out.String(), nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), out.String(), nil
	}
	return -1, out.String(), err
}

// DefaultRunner is the Runner production code should use; tests inject
// their own.
var DefaultRunner Runner = execRunner{}

// Assemble shells out to `nasm -g -f elf64 <asmPath>`, producing an ELF64
// object file alongside it.
func Assemble(runner Runner, workDir, asmPath string) error {
	code, out, err := runner.Run(context.Background(), workDir, "nasm", "-g", "-f", "elf64", asmPath)
	if err != nil {
		return diag.Wrap(diag.ToolError, err, "failed to invoke nasm on %s", asmPath)
	}
	if code != 0 {
		return diag.Newf(diag.ToolError, "nasm exited %d assembling %s: %s", code, asmPath, out)
	}
	return nil
}

// Link shells out to `gcc -no-pie -z noexecstack -o target objs...`,
// producing the final ELF64 executable.
func Link(runner Runner, workDir, target string, objs ...string) error {
	args := append([]string{"-no-pie", "-z", "noexecstack", "-o", target}, objs...)
	code, out, err := runner.Run(context.Background(), workDir, "gcc", args...)
	if err != nil {
		return diag.Wrap(diag.ToolError, err, "failed to invoke gcc linking %s", target)
	}
	if code != 0 {
		return diag.Newf(diag.ToolError, "gcc exited %d linking %s: %s", code, target, out)
	}
	return nil
}

// RunOnce executes the linked binary and returns its exit code. A
// non-zero exit here is the expected, information-bearing outcome of the
// compiled program, not a tool failure, so it is never wrapped as a
// diag.ToolError.
func RunOnce(runner Runner, workDir, binaryPath string, args ...string) (int, error) {
	code, _, err := runner.Run(context.Background(), workDir, binaryPath, args...)
	if err != nil {
		return -1, diag.Wrap(diag.ToolError, err, "failed to execute %s", binaryPath)
	}
	return code, nil
}
