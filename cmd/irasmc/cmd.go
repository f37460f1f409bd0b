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
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"irasm/codegen"
	"irasm/diag"
	"irasm/driver"
	"irasm/ir"
)

// options collects the flags shared by compile and run, mirroring the
// teacher's DebugPrint*/DebugDump* constants but made runtime-configurable
// instead of compile-time booleans.
type options struct {
	emitAsm       bool
	keepWorkspace bool
	debugDump     string
	targetOS      string
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "irasmc",
		Short:         "irasmc lowers a textual IR module to a native x86-64 executable",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	opts := &options{}
	root.PersistentFlags().BoolVar(&opts.emitAsm, "emit-asm", false, "write the generated NASM source next to the source file")
	root.PersistentFlags().BoolVar(&opts.keepWorkspace, "keep-workspace", false, "do not remove the temporary build directory")
	root.PersistentFlags().StringVar(&opts.debugDump, "debug-dump", "", "dump intermediate state: ir, asm")
	root.PersistentFlags().StringVar(&opts.targetOS, "os", runtime.GOOS, "target operating system (only linux is supported)")

	root.AddCommand(newCompileCmd(opts))
	root.AddCommand(newRunCmd(opts))
	return root
}

func newLogger() *zap.SugaredLogger {
	cfg := zap.NewDevelopmentConfig()
	if os.Getenv("IRASM_DEBUG") == "" {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return l.Sugar()
}

func newCompileCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "compile <file.ir>",
		Short: "lower an IR module to a linked executable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			binary, cleanup, err := compileToExecutable(args[0], opts)
			if cleanup != nil {
				defer func() {
					if !opts.keepWorkspace {
						cleanup()
					}
				}()
			}
			if err != nil {
				return err
			}
			fmt.Println(binary)
			return nil
		},
	}
}

func newRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run <file.ir>",
		Short: "compile an IR module and immediately execute it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			binary, cleanup, err := compileToExecutable(args[0], opts)
			if cleanup != nil {
				defer func() {
					if !opts.keepWorkspace {
						cleanup()
					}
				}()
			}
			if err != nil {
				return err
			}
			code, err := driver.RunOnce(driver.DefaultRunner, filepath.Dir(binary), binary)
			if err != nil {
				return err
			}
			os.Exit(code)
			return nil
		},
	}
}

// compileToExecutable runs the full pipeline: parse, validate, write
// assembly, assemble, link. It returns the path to the linked binary
// inside the (still-open) build workspace and that workspace's cleanup
// func.
func compileToExecutable(sourcePath string, opts *options) (string, func(), error) {
	if opts.targetOS != "linux" {
		return "", nil, diag.Newf(diag.ToolError, "unsupported target os %q: this backend only emits Linux ELF64", opts.targetOS)
	}

	log := newLogger()

	workDir, copiedSource, cleanup, err := driver.NewWorkspace(sourcePath)
	if err != nil {
		return "", nil, err
	}

	f, err := os.Open(copiedSource)
	if err != nil {
		return "", cleanup, diag.Wrap(diag.ParseError, err, "failed to open %s", sourcePath)
	}
	module, err := ir.Parse(f)
	f.Close()
	if err != nil {
		return "", cleanup, err
	}
	if opts.debugDump == "ir" {
		fmt.Fprintln(os.Stderr, ir.Write(module))
	}
	if err := ir.Validate(module); err != nil {
		return "", cleanup, err
	}

	for _, fn := range module.Functions {
		codegen.EliminateDeadBlocks(fn)
	}

	asmText, err := codegen.WriteAssembly(module, log)
	if err != nil {
		return "", cleanup, err
	}
	if opts.debugDump == "asm" {
		fmt.Fprintln(os.Stderr, asmText)
	}

	libName := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	asmPath := filepath.Join(workDir, libName+".s")
	if err := os.WriteFile(asmPath, []byte(asmText), 0644); err != nil {
		return "", cleanup, diag.Wrap(diag.ToolError, err, "failed to write %s", asmPath)
	}

	if err := driver.Assemble(driver.DefaultRunner, workDir, libName+".s"); err != nil {
		return "", cleanup, err
	}

	binary := filepath.Join(workDir, libName)
	if err := driver.Link(driver.DefaultRunner, workDir, binary, libName+".o"); err != nil {
		return "", cleanup, err
	}

	if opts.emitAsm {
		dest := filepath.Join(filepath.Dir(sourcePath), libName+".s")
		_ = os.WriteFile(dest, []byte(asmText), 0644)
	}

	return binary, cleanup, nil
}
