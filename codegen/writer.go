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
// Package codegen is the assembly writer: it drives liveness+storage+
// lower+asmir over every function of a module and accumulates the final
// NASM text, plus the block-reachability DCE pass. The text is built in
// a single strings.Builder, one line per node via each node's Print
// method, from this module's register allocator and NASM output.
package codegen

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"irasm/ir"
	"irasm/lower"
)

// WriteAssembly renders module as a complete NASM source file: section
// header, global string data, extern declarations, then one label block
// per function, in that emission order. When log is non-nil it receives
// one debug entry per lowered function, with the function's name and
// block count.
func WriteAssembly(module *ir.Module, log *zap.SugaredLogger) (string, error) {
	var sb strings.Builder

	sb.WriteString("[bits 64]\n\n")

	if len(module.Globals) > 0 {
		sb.WriteString("section .global_strings\n")
		for _, g := range module.Globals {
			sb.WriteString(fmt.Sprintf("%s: db %s, 0\n", g.Name, quoteNASM(strings.TrimRight(string(g.Bytes), "\x00"))))
		}
		sb.WriteString("\n")
	}

	if len(module.Externs) > 0 {
		sb.WriteString("section .external_functions\n")
		for _, e := range module.Externs {
			sb.WriteString(fmt.Sprintf("extern %s\n", e.Name))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("section .text\n")
	for _, fn := range module.Functions {
		if err := writeFunction(&sb, module, fn, log); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}

func writeFunction(sb *strings.Builder, module *ir.Module, fn *ir.Function, log *zap.SugaredLogger) error {
	blocks, mgr, err := lower.LowerFunction(module, fn)
	if err != nil {
		return err
	}
	if log != nil {
		log.Debugw("lowered function", "function", fn.Name, "blocks", len(blocks))
	}

	frameSize := mgr.StackSize()
	saves := tamperedCalleeSaves(mgr)

	sb.WriteString(fmt.Sprintf("\nglobal %s\n", fn.Name))
	sb.WriteString(fmt.Sprintf("%s:\n", fn.Name))

	for _, b := range blocks {
		nodes := b.Nodes
		if b.Name == "__stacksave" {
			nodes = buildPrologue(frameSize, saves)
		} else {
			nodes = expandEpilogue(nodes, frameSize, saves)
		}
		sb.WriteString(fmt.Sprintf(".%s:\n", b.Name))
		for _, n := range nodes {
			sb.WriteString(n.Print())
			sb.WriteString("\n")
		}
	}
	return nil
}

// quoteNASM renders a byte string as a NASM backquoted string literal.
// Global strings can hold control bytes the lexer decoded from escapes
// (\n, \t, \0), and NASM only interprets backslash escapes inside
// backquotes; the escapes strconv.Quote produces are all accepted
// there, and a literal backquote is escaped by hand.
func quoteNASM(s string) string {
	q := strconv.Quote(s)
	return "`" + strings.ReplaceAll(q[1:len(q)-1], "`", "\\`") + "`"
}
