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
// Package storage implements the virtual-memory cell model and the
// per-function storage manager: the abstraction that stands between IR
// variable names and the physical registers/stack slots/globals/
// pseudo-values that actually hold their values during lowering.
package storage

import (
	"irasm/diag"
	"irasm/ir"
)

// EmitKind is the one abstract instruction the storage manager needs the
// lowerer to materialize on its behalf: a plain data move (register,
// register->stack, or stack->register), used only by eviction (the
// spill rule) and by EnsureInRegister, and never by ordinary lowering
// rules, which build their own asmir nodes directly.
type EmitKind int

const (
	EmitMov EmitKind = iota
)

// Emit describes one instruction the manager needs materialized. The
// lowerer supplies a callback translating these into asmir nodes, which
// keeps package storage free of any dependency on the abstract assembly
// model (a plain ownership/allocation bookkeeper, not a code emitter).
type Emit struct {
	Kind EmitKind
	Dst  Cell
	Src  Cell
}

// Manager owns one function's worth of storage bookkeeping: the register
// bank, the current name->cell mapping, and two staging lists:
// pendingDrop and temp register claims.
type Manager struct {
	registers        [numGPR]*RegisterCell
	nameMap          map[string]Cell
	pendingDrop      []string
	tempClaims       []GPR
	currentStackSize int

	// EmitFn receives every instruction the manager must synthesize
	// (spill moves and EnsureInRegister reloads). The lowerer sets this once per
	// function to append the resulting node to the block being lowered.
	EmitFn func(Emit)
}

func NewManager() *Manager {
	m := &Manager{nameMap: make(map[string]Cell)}
	for i := range m.registers {
		m.registers[i] = &RegisterCell{Reg: GPR(i)}
	}
	return m
}

func (m *Manager) emit(e Emit) {
	if m.EmitFn != nil {
		m.EmitFn(e)
	}
}

// StackSize is the frame size accumulated so far; the "frame closure"
// invariant requires this equal the literal after `sub rsp,` in the
// printed prologue once lowering of the function is complete.
func (m *Manager) StackSize() int { return m.currentStackSize }

// Register returns the bank entry for r, for callers (the prologue/
// epilogue emitter) that need to inspect Tampered bits after lowering.
func (m *Manager) Register(r GPR) *RegisterCell { return m.registers[r] }

// ---------------------------------------------------------------------
// Name map operations

func (m *Manager) MapValue(name string, cell Cell) {
	m.nameMap[name] = cell
	if rc, ok := cell.(*RegisterCell); ok {
		rc.Owner = name
	}
}

// RemapValue moves name to point at a different cell, clearing ownership
// on whatever register cell previously held it.
func (m *Manager) RemapValue(name string, cell Cell) {
	if old, ok := m.nameMap[name]; ok {
		if rc, ok := old.(*RegisterCell); ok && rc.Owner == name {
			rc.Owner = ""
		}
	}
	m.MapValue(name, cell)
}

func (m *Manager) HasValue(name string) bool {
	_, ok := m.nameMap[name]
	return ok
}

// DropOwnership releases a register's claim on name without erasing the
// name->cell entry -- the cell may still be read until Erase is called.
func (m *Manager) DropOwnership(name string) {
	if cell, ok := m.nameMap[name]; ok {
		if rc, ok := cell.(*RegisterCell); ok && rc.Owner == name {
			rc.Owner = ""
		}
	}
}

// Erase removes name from the name map entirely.
func (m *Manager) Erase(name string) {
	delete(m.nameMap, name)
}

// QueueDrop marks name for release at a point the caller decides --
// either "now" (reassignable-on-drop) or "after lowering", by calling
// ReleasePendingDrops at the right moment.
func (m *Manager) QueueDrop(name string) {
	m.pendingDrop = append(m.pendingDrop, name)
}

// DropQueuedNow releases ownership immediately for every queued name
// (used by the reassignable-on-drop path).
func (m *Manager) DropQueuedNow() {
	for _, n := range m.pendingDrop {
		m.DropOwnership(n)
	}
}

// ReleasePendingDrops erases every queued name from the name map and
// clears the staging list.
func (m *Manager) ReleasePendingDrops() {
	for _, n := range m.pendingDrop {
		m.DropOwnership(n)
		m.Erase(n)
	}
	m.pendingDrop = m.pendingDrop[:0]
}

// ---------------------------------------------------------------------
// Value reference resolution (get(value))

// Get resolves an ir.Value to its current storage cell, or a literal
// pseudo-cell for constants.
func (m *Manager) Get(v ir.Value) (Cell, error) {
	if v.IsConst {
		return NewLiteralCell(v.Size, v.Const), nil
	}
	cell, ok := m.nameMap[v.Name]
	if !ok {
		return nil, diag.Newf(diag.ValidationError, "undefined variable %%%s", v.Name)
	}
	return cell, nil
}

// ---------------------------------------------------------------------
// Register bank operations

// GetRegister grabs a specific physical register, marks it tampered and
// frozen for the duration of the current instruction, sets its size, and
// returns it. If the register is currently owned by a live variable,
// that variable is evicted first.
func (m *Manager) GetRegister(r GPR, size ir.ValueSize) (*RegisterCell, error) {
	rc := m.registers[r]
	if rc.Owner != "" {
		if err := m.evict(r); err != nil {
			return nil, err
		}
	}
	rc.size = size
	rc.Tampered = true
	rc.Frozen = true
	return rc, nil
}

// FindRegister returns the first free, non-parameter, non-reserved GPR,
// or nil if none is free.
func (m *Manager) FindRegister(size ir.ValueSize) *RegisterCell {
	for i := 0; i < int(numGPR); i++ {
		rc := m.registers[i]
		if rc.Owner == "" && !rc.Frozen && !IsParamReg(rc.Reg) {
			rc.size = size
			rc.Tampered = true
			rc.Frozen = true
			return rc
		}
	}
	return nil
}

// ForceFindRegister is FindRegister or, failing that, evicts the first
// non-frozen register's contents to make room (the spill rule).
func (m *Manager) ForceFindRegister(size ir.ValueSize) (*RegisterCell, error) {
	if rc := m.FindRegister(size); rc != nil {
		return rc, nil
	}
	for i := 0; i < int(numGPR); i++ {
		rc := m.registers[i]
		if rc.Frozen || IsParamReg(rc.Reg) {
			continue
		}
		if err := m.evict(GPR(i)); err != nil {
			return nil, err
		}
		rc.size = size
		rc.Tampered = true
		rc.Frozen = true
		return rc, nil
	}
	return nil, diag.Newf(diag.LoweringError, "no free or non-frozen register available for a required temporary")
}

// ClaimTempRegister grabs a register under a synthetic "__temp..." name
// so subsequent lookups in the same instruction can find it, and queues
// it for release at instruction end ("temp register claims").
func (m *Manager) ClaimTempRegister(rc *RegisterCell, tempName string) {
	m.MapValue(tempName, rc)
	m.tempClaims = append(m.tempClaims, rc.Reg)
}

// ReleaseTempClaims clears ownership of every register claimed under a
// synthetic temp name during this instruction and clears every
// register's Frozen bit ("after every instruction, all frozen bits are
// cleared").
func (m *Manager) ReleaseTempClaims() {
	for _, r := range m.tempClaims {
		m.registers[r].Owner = ""
	}
	m.tempClaims = m.tempClaims[:0]
	for _, rc := range m.registers {
		rc.Frozen = false
	}
}

// evict vacates register r, which is owned by some live name X: a fresh
// cell is found for X (another register, or a new stack slot) and a move
// from r to that cell is queued via EmitFn (the eviction rule). The
// stack grows monotonically; there are no explicit spill slots to
// reclaim.
func (m *Manager) evict(r GPR) error {
	rc := m.registers[r]
	name := rc.Owner
	size := rc.size

	var dst Cell
	if alt := m.findRegisterExcluding(size, r); alt != nil {
		dst = alt
	} else {
		dst = m.stackAllocate(size)
	}
	m.emit(Emit{Kind: EmitMov, Dst: dst, Src: rc})
	rc.Owner = ""
	m.RemapValue(name, dst)
	return nil
}

func (m *Manager) findRegisterExcluding(size ir.ValueSize, exclude GPR) *RegisterCell {
	for i := 0; i < int(numGPR); i++ {
		if GPR(i) == exclude {
			continue
		}
		rc := m.registers[i]
		if rc.Owner == "" && !rc.Frozen && !IsParamReg(rc.Reg) {
			rc.size = size
			rc.Tampered = true
			rc.Frozen = true
			return rc
		}
	}
	return nil
}

// stackAllocate reserves size.Bytes() more of function-lifetime stack and
// returns a memory-address cell at the resulting rbp-relative offset. The
// offset convention is rbp-negative throughout.
func (m *Manager) stackAllocate(size ir.ValueSize) *MemCell {
	width := size.Bytes()
	if width == 0 {
		width = 8
	}
	m.currentStackSize += width
	return &MemCell{size: size, Base: BaseRBP, Disp: -m.currentStackSize}
}

// Allocate implements the `allocate N` instruction: reserve N bytes of
// function-lifetime stack and return a ptr-sized cell at the resulting
// offset. Unlike stackAllocate's spill slots, this cell's lifetime is
// the whole function, not just until the next drop.
func (m *Manager) Allocate(n int) *MemCell {
	m.currentStackSize += n
	return &MemCell{size: ir.SizePtr, Base: BaseRBP, Disp: -m.currentStackSize}
}

// EnsureInRegister guarantees that the cell currently backing name lives
// in a register, emitting a move if necessary, and returns that register
// cell. Used before lowering rules that require a register operand.
func (m *Manager) EnsureInRegister(name string) (*RegisterCell, error) {
	cell, ok := m.nameMap[name]
	if !ok {
		return nil, diag.Newf(diag.ValidationError, "undefined variable %%%s", name)
	}
	if rc, ok := cell.(*RegisterCell); ok {
		return rc, nil
	}
	dst, err := m.ForceFindRegister(cell.Size())
	if err != nil {
		return nil, err
	}
	m.emit(Emit{Kind: EmitMov, Dst: dst, Src: cell})
	m.RemapValue(name, dst)
	return dst, nil
}
