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
// Package asmir is the abstract assembly model: a small tagged union of
// x86-64 operands and instruction nodes, printed in NASM's Intel syntax,
// in place of an AT&T/GNU-as LIR targeting two- and three-operand forms;
// the node set here is narrower and Intel-operand-ordered (destination
// first) since NASM is the sole output format this backend targets.
package asmir

import "fmt"

// Operand is any value an instruction node can read or write.
type Operand interface {
	text() string
}

// Reg is a physical GPR at a given byte width (1, 2, 4, or 8).
type Reg struct {
	Name  string // already width-resolved, e.g. "eax", "r9b"
	Width int
}

func (o Reg) text() string { return o.Name }

// Imm is an integer literal operand.
type Imm struct {
	Value uint64
}

func (o Imm) text() string { return fmt.Sprintf("%d", o.Value) }

// sizeKeyword returns the NASM size-override keyword for a byte width, or
// "" for widths that never need one (e.g. the implicit width of a
// register destination).
func sizeKeyword(width int) string {
	switch width {
	case 1:
		return "byte"
	case 2:
		return "word"
	case 4:
		return "dword"
	case 8:
		return "qword"
	default:
		return ""
	}
}

// Mem is a complex memory operand: [Base + Scale*Index + Disp], or
// [rel Label] when Label != "" (global data references). Width selects
// the BYTE/WORD/DWORD/QWORD size-override prefix NASM requires whenever
// the operand's size can't be inferred from a register operand on the
// same instruction.
type Mem struct {
	Width int
	Base  string // register name, or "" when Label != ""
	Index string // register name, or "" when absent
	Scale int     // one of 1, 2, 4, 8 when Index != ""
	Disp  int
	Label string // global symbol name, rip-relative; mutually exclusive with Base
}

func (o Mem) text() string { return o.render(true) }

// textNoSize renders the operand without its size-override keyword, used
// when this Mem is the source operand of `lea` -- lea computes an
// address, it never dereferences, so the width keyword would be
// meaningless there.
func (o Mem) textNoSize() string { return o.render(false) }

func (o Mem) render(withSize bool) string {
	kw := ""
	if withSize {
		kw = sizeKeyword(o.Width)
		if kw != "" {
			kw += " "
		}
	}
	if o.Label != "" {
		if o.Disp != 0 {
			return fmt.Sprintf("%s[rel %s + %d]", kw, o.Label, o.Disp)
		}
		return fmt.Sprintf("%s[rel %s]", kw, o.Label)
	}
	inner := o.Base
	if o.Index != "" {
		if inner == "" {
			inner = fmt.Sprintf("%d*%s", o.Scale, o.Index)
		} else {
			inner = fmt.Sprintf("%s + %d*%s", inner, o.Scale, o.Index)
		}
	}
	if o.Disp > 0 {
		inner = fmt.Sprintf("%s + %d", inner, o.Disp)
	} else if o.Disp < 0 {
		inner = fmt.Sprintf("%s - %d", inner, -o.Disp)
	}
	return fmt.Sprintf("%s[%s]", kw, inner)
}

// Label is a bare code-section target, used by call/jmp/jcc operands
// (never size-prefixed).
type Label struct{ Name string }

func (o Label) text() string { return o.Name }
