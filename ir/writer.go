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
package ir

import (
	"fmt"
	"strings"
)

// Write re-emits a Module as text in the textual IR grammar. Parsing the
// output of Write must reproduce an equivalent Module -- the
// "parse . emit . parse = parse" round-trip property, modulo formatting
// such as whitespace and comments.
func Write(m *Module) string {
	var sb strings.Builder
	for _, g := range m.Globals {
		fmt.Fprintf(&sb, "global_string %%%s = %q\n", g.Name, strings.TrimRight(string(g.Bytes), "\x00"))
	}
	for _, e := range m.Externs {
		fmt.Fprintf(&sb, "extern fn %s %s(%s)\n", e.ReturnSize, e.Name, joinSizes(e.Params))
	}
	for _, fn := range m.Functions {
		writeFunction(&sb, fn)
	}
	return sb.String()
}

func joinSizes(sizes []ValueSize) string {
	parts := make([]string, len(sizes))
	for i, s := range sizes {
		parts[i] = s.String()
	}
	return strings.Join(parts, ", ")
}

func writeFunction(sb *strings.Builder, fn *Function) {
	params := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = fmt.Sprintf("%s %%%s", p.Size, p.Name)
	}
	fmt.Fprintf(sb, "define fn %s %s(%s)\n", fn.ReturnSize, fn.Name, strings.Join(params, ", "))
	for _, b := range fn.Blocks {
		fmt.Fprintf(sb, ".%s:\n", b.Name)
		for _, inst := range b.Instructions {
			fmt.Fprintf(sb, "  %s\n", writeInstruction(inst))
		}
	}
	fmt.Fprintf(sb, "end\n")
}

func writeInstruction(inst Instruction) string {
	var sb strings.Builder
	if inst.Assignee != "" {
		fmt.Fprintf(&sb, "%%%s = ", inst.Assignee)
	}
	switch inst.Kind {
	case KLiteral:
		fmt.Fprintf(&sb, "literal %s", writeValue(inst.Operands[0].Value))
	case KAllocate:
		fmt.Fprintf(&sb, "allocate %d", inst.AllocateSize)
	case KStore:
		fmt.Fprintf(&sb, "store %s %s", inst.MemSize, writeOperands(inst.Operands))
	case KLoad:
		fmt.Fprintf(&sb, "load %s %s", inst.MemSize, writeOperands(inst.Operands))
	case KICmp:
		fmt.Fprintf(&sb, "icmp %s %s", inst.Predicate, writeOperands(inst.Operands))
	case KBranch:
		fmt.Fprintf(&sb, "branch .%s, .%s %s", inst.TrueLabel, inst.FalseLabel, writeOperands(inst.Operands))
	case KJmp:
		fmt.Fprintf(&sb, "jmp .%s", inst.JmpLabel)
	case KRet:
		fmt.Fprintf(&sb, "ret %s", writeOperands(inst.Operands))
	case KArithmetic:
		fmt.Fprintf(&sb, "%s %s", inst.ArithOp, writeOperands(inst.Operands))
	case KCall:
		fmt.Fprintf(&sb, "call %s %s %s", inst.Result, inst.Callee, writeOperands(inst.Operands))
	case KPhi:
		labels := make([]string, len(inst.PhiLabels))
		for i, l := range inst.PhiLabels {
			labels[i] = "." + l
		}
		fmt.Fprintf(&sb, "phi %s %s", strings.Join(labels, ", "), writeOperands(inst.Operands))
	case KSelect:
		fmt.Fprintf(&sb, "select %s", writeOperands(inst.Operands))
	case KSExt:
		fmt.Fprintf(&sb, "sext %s %s", inst.Result, writeOperands(inst.Operands))
	case KZExt:
		fmt.Fprintf(&sb, "zext %s %s", inst.Result, writeOperands(inst.Operands))
	case KGetArrayPtr:
		fmt.Fprintf(&sb, "get_array_ptr %d %s", inst.ElemSize, writeOperands(inst.Operands))
	}
	return sb.String()
}

func writeValue(v Value) string {
	if v.IsConst {
		return fmt.Sprintf("%s %d", v.Size, v.Const)
	}
	return fmt.Sprintf("%s %%%s", v.Size, v.Name)
}

func writeOperands(ops []Operand) string {
	parts := make([]string, len(ops))
	for i, o := range ops {
		parts[i] = writeValue(o.Value)
	}
	return strings.Join(parts, ", ")
}
