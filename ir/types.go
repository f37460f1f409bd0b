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
// Package ir implements the textual intermediate representation consumed by
// the lowering core: sizes and values, instructions, blocks, functions and
// modules, a lexer/parser pair that reads the surface syntax, and a writer
// that re-emits a Module as text.
package ir

import "irasm/diag"

// ValueSize is one of the fixed-width integer/pointer sizes the grammar
// supports, plus two internal bookkeeping tags that never appear in
// surface syntax.
type ValueSize int

const (
	// SizeNone marks a value that carries no data (e.g. a pure-control
	// instruction's non-existent result).
	SizeNone ValueSize = iota
	SizeI1
	SizeI8
	SizeI16
	SizeI32
	SizeI64
	SizePtr
	// SizeParamDependent means "same as operands"; resolved at
	// construction time by copying the first operand's size.
	SizeParamDependent
)

func (s ValueSize) String() string {
	switch s {
	case SizeNone:
		return "void"
	case SizeI1:
		return "i1"
	case SizeI8:
		return "i8"
	case SizeI16:
		return "i16"
	case SizeI32:
		return "i32"
	case SizeI64:
		return "i64"
	case SizePtr:
		return "ptr"
	case SizeParamDependent:
		return "<param>"
	}
	return "<unknown-size>"
}

// Bytes is the storage width in bytes. ptr is always 8 bytes.
func (s ValueSize) Bytes() int {
	switch s {
	case SizeI1, SizeI8:
		return 1
	case SizeI16:
		return 2
	case SizeI32:
		return 4
	case SizeI64, SizePtr:
		return 8
	}
	return 0
}

// ParseSize maps a size token from the surface grammar to a ValueSize.
func ParseSize(tok string) (ValueSize, bool) {
	switch tok {
	case "void":
		return SizeNone, true
	case "i1":
		return SizeI1, true
	case "i8":
		return SizeI8, true
	case "i16":
		return SizeI16, true
	case "i32":
		return SizeI32, true
	case "i64":
		return SizeI64, true
	case "ptr":
		return SizePtr, true
	}
	return SizeNone, false
}

// ResolveParamDependent replaces SizeParamDependent with the size of the
// first operand. The parser does not call it: it sets a phi's result
// size from the first operand itself.
func ResolveParamDependent(want ValueSize, first ValueSize) (ValueSize, error) {
	if want != SizeParamDependent {
		return want, nil
	}
	if first == SizeNone {
		return SizeNone, diag.Newf(diag.ValidationError, "cannot resolve param-dependent size with no operands")
	}
	return first, nil
}
