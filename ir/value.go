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

import "fmt"

// Value is a tagged union: either an integer literal or a reference to
// an SSA variable. Literals carry no storage identity and are never
// addressable; variable references name at most one definition per
// function (the parser/builder is trusted to hand the core a
// well-formed SSA module -- the core does not re-verify SSA globally).
type Value struct {
	Size    ValueSize
	IsConst bool
	Const   uint64
	Name    string // valid when !IsConst
}

func Lit(size ValueSize, v uint64) Value {
	return Value{Size: size, IsConst: true, Const: v}
}

func Var(size ValueSize, name string) Value {
	return Value{Size: size, IsConst: false, Name: name}
}

func (v Value) String() string {
	if v.IsConst {
		return fmt.Sprintf("%s %d", v.Size, v.Const)
	}
	return fmt.Sprintf("%s %%%s", v.Size, v.Name)
}

// Operand bundles a Value with the liveness metadata attached by package
// liveness: whether this operand position is this variable's final use.
// LastUse is meaningless (left false) for literal operands.
type Operand struct {
	Value   Value
	LastUse bool
}

func OperandOf(v Value) Operand { return Operand{Value: v} }
