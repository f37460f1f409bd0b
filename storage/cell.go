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
package storage

import (
	"irasm/ir"
	"irasm/utils"
)

// Cell is the virtual-memory cell tagged union. Exactly one of the
// embedded kinds is meaningful per value, selected by Kind(); this
// replaces the source's dynamic-cast class hierarchy with a closed union
// dispatched by an explicit tag.
type Cell interface {
	Kind() CellKind
	Size() ir.ValueSize
}

type CellKind int

const (
	CellRegister CellKind = iota
	CellMemory
	CellGlobal
	CellFlag
	CellLiteral
)

// RegisterCell is one physical GPR. Owner is the empty string when free.
// Tampered is sticky for the function's lifetime (drives prologue/epilogue
// save-restore); Frozen is cleared after every instruction.
type RegisterCell struct {
	Reg      GPR
	size     ir.ValueSize
	Owner    string
	Tampered bool
	Frozen   bool
}

func (c *RegisterCell) Kind() CellKind   { return CellRegister }
func (c *RegisterCell) Size() ir.ValueSize { return c.size }

// MemCell is a complex x86 address: [base + scale*index + disp], with
// base/index either a physical register or absent. A pure stack slot
// has Base == BaseRBP, no Index, and a negative Disp.
type MemCell struct {
	size  ir.ValueSize
	Base  BaseKind
	Reg   GPR // meaningful when Base == BaseReg
	Index *GPR
	Scale int // one of 1,2,4,8 when Index != nil
	Disp  int
}

type BaseKind int

const (
	BaseRBP BaseKind = iota
	BaseReg
)

func (c *MemCell) Kind() CellKind   { return CellMemory }
func (c *MemCell) Size() ir.ValueSize { return c.size }

// WithSize returns a copy of c addressing the same location at a
// different dereference width -- used when a pointer's own cell (always
// size ptr) is dereferenced at the pointee's declared size for store/
// load.
func (c *MemCell) WithSize(size ir.ValueSize) *MemCell {
	cp := *c
	cp.size = size
	return &cp
}

// Offset returns a copy of c with its displacement shifted by delta --
// used by get_array_ptr when folding a constant index into a stack-slot
// base's existing displacement.
func (c *MemCell) Offset(delta int) *MemCell {
	cp := *c
	cp.Disp += delta
	return &cp
}

// NewRegisterAddress builds the address cell `[reg + disp]` at the given
// dereference size, for pointer values currently held in a register
// rather than expressed as a foldable stack/array address expression.
func NewRegisterAddress(size ir.ValueSize, reg GPR, disp int) *MemCell {
	return &MemCell{size: size, Base: BaseReg, Reg: reg, Disp: disp}
}

// NewComplexAddress builds the general `[base + scale*index + disp]`
// address cell used by get_array_ptr's dynamic-index case. index may be
// nil for an unscaled address; a non-nil index's scale must be one x86's
// SIB byte can actually encode.
func NewComplexAddress(size ir.ValueSize, base GPR, index *GPR, scale, disp int) *MemCell {
	if index != nil {
		utils.Assert(scale == 1 || scale == 2 || scale == 4 || scale == 8, "invalid lea/address scale %d", scale)
	}
	return &MemCell{size: size, Base: BaseReg, Reg: base, Index: index, Scale: scale, Disp: disp}
}

// GlobalCell names a data-section label; always ptr-sized.
type GlobalCell struct{ Name string }

func (c *GlobalCell) Kind() CellKind     { return CellGlobal }
func (c *GlobalCell) Size() ir.ValueSize { return ir.SizePtr }

// FlagCell is the pseudo-value produced by icmp: it carries a predicate
// and cannot be the source/dest of an ordinary data move. It is consumed
// only by branch, select, and zext-from-i1.
type FlagCell struct{ Predicate ir.ICmpPredicate }

func (c *FlagCell) Kind() CellKind     { return CellFlag }
func (c *FlagCell) Size() ir.ValueSize { return ir.SizeI1 }

// LiteralCell is a constant; never addressable.
type LiteralCell struct {
	size  ir.ValueSize
	Value uint64
}

func (c *LiteralCell) Kind() CellKind     { return CellLiteral }
func (c *LiteralCell) Size() ir.ValueSize { return c.size }

func NewLiteralCell(size ir.ValueSize, v uint64) *LiteralCell {
	return &LiteralCell{size: size, Value: v}
}

func NewGlobalCell(name string) *GlobalCell { return &GlobalCell{Name: name} }
