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
	"testing"

	"github.com/stretchr/testify/require"

	"irasm/ir"
)

func TestMapValueSetsOwner(t *testing.T) {
	m := NewManager()
	rc, err := m.GetRegister(RAX, ir.SizeI32)
	require.NoError(t, err)
	m.MapValue("a", rc)
	require.Equal(t, "a", rc.Owner)

	cell, err := m.Get(ir.Var(ir.SizeI32, "a"))
	require.NoError(t, err)
	require.Same(t, rc, cell)
}

func TestRemapValueClearsPreviousOwner(t *testing.T) {
	m := NewManager()
	rc, err := m.GetRegister(RAX, ir.SizeI32)
	require.NoError(t, err)
	m.MapValue("a", rc)

	slot := m.stackAllocate(ir.SizeI32)
	m.RemapValue("a", slot)
	require.Equal(t, "", rc.Owner, "evicted register must release ownership")

	cell, err := m.Get(ir.Var(ir.SizeI32, "a"))
	require.NoError(t, err)
	require.Same(t, slot, cell)
}

// TestRegisterOwnershipInjective checks that no two live names ever alias
// the same register cell: every FindRegister call that succeeds must
// hand back a distinct, currently-unowned bank entry.
func TestRegisterOwnershipInjective(t *testing.T) {
	m := NewManager()
	seen := map[GPR]string{}
	names := []string{"a", "b", "c", "d"}
	for _, n := range names {
		rc := m.FindRegister(ir.SizeI32)
		require.NotNil(t, rc, "register bank exhausted prematurely")
		if owner, ok := seen[rc.Reg]; ok {
			t.Fatalf("register %s handed out twice: first to %s, now to %s", rc.Reg, owner, n)
		}
		seen[rc.Reg] = n
		m.MapValue(n, rc)
		m.ReleaseTempClaims() // clears Frozen so the next FindRegister can see past registers not yet claimed
	}
}

func TestGetRegisterEvictsCurrentOwner(t *testing.T) {
	var emitted []Emit
	m := NewManager()
	m.EmitFn = func(e Emit) { emitted = append(emitted, e) }

	rc, err := m.GetRegister(RBX, ir.SizeI32)
	require.NoError(t, err)
	m.MapValue("a", rc)

	_, err = m.GetRegister(RBX, ir.SizeI32)
	require.NoError(t, err)

	require.Len(t, emitted, 1)
	require.Equal(t, EmitMov, emitted[0].Kind)
	require.Equal(t, "", rc.Owner, "RBX must no longer be owned by the evicted name")

	cell, err := m.Get(ir.Var(ir.SizeI32, "a"))
	require.NoError(t, err)
	require.NotSame(t, rc, cell, "evicted value must no longer live in the reclaimed register")
}

func TestForceFindRegisterSpillsWhenBankFull(t *testing.T) {
	m := NewManager()
	// Exhaust every non-param register.
	var claimed []*RegisterCell
	for {
		rc := m.FindRegister(ir.SizeI32)
		if rc == nil {
			break
		}
		claimed = append(claimed, rc)
		m.MapValue("v", rc) // repeatedly overwritten; only registers matter here
	}
	require.NotEmpty(t, claimed)

	for i, rc := range claimed {
		rc.Frozen = false
		m.MapValue(ownerName(i), rc)
	}

	var emitted []Emit
	m.EmitFn = func(e Emit) { emitted = append(emitted, e) }
	rc, err := m.ForceFindRegister(ir.SizeI32)
	require.NoError(t, err)
	require.NotNil(t, rc)
	require.Len(t, emitted, 1, "spilling into a full bank must emit exactly one eviction move")
}

func ownerName(i int) string {
	return string(rune('a' + i))
}

func TestAllocateGrowsStackMonotonically(t *testing.T) {
	m := NewManager()
	c1 := m.Allocate(4)
	c2 := m.Allocate(8)
	require.Equal(t, -4, c1.Disp)
	require.Equal(t, -12, c2.Disp)
	require.Equal(t, 12, m.StackSize())
}

func TestEnsureInRegisterMovesStackValueIntoRegister(t *testing.T) {
	var emitted []Emit
	m := NewManager()
	m.EmitFn = func(e Emit) { emitted = append(emitted, e) }

	slot := m.stackAllocate(ir.SizeI32)
	m.MapValue("a", slot)

	rc, err := m.EnsureInRegister("a")
	require.NoError(t, err)
	require.Equal(t, CellRegister, rc.Kind())
	require.Len(t, emitted, 1)
	require.Equal(t, EmitMov, emitted[0].Kind)

	cell, err := m.Get(ir.Var(ir.SizeI32, "a"))
	require.NoError(t, err)
	require.Same(t, rc, cell)
}

func TestEnsureInRegisterIsNoopWhenAlreadyInRegister(t *testing.T) {
	m := NewManager()
	rc, err := m.GetRegister(RAX, ir.SizeI32)
	require.NoError(t, err)
	m.MapValue("a", rc)
	m.ReleaseTempClaims()

	var emitted []Emit
	m.EmitFn = func(e Emit) { emitted = append(emitted, e) }

	got, err := m.EnsureInRegister("a")
	require.NoError(t, err)
	require.Same(t, rc, got)
	require.Empty(t, emitted)
}

func TestQueueDropThenReleaseErasesName(t *testing.T) {
	m := NewManager()
	rc, err := m.GetRegister(RAX, ir.SizeI32)
	require.NoError(t, err)
	m.MapValue("a", rc)

	m.QueueDrop("a")
	require.True(t, m.HasValue("a"), "queueing must not erase immediately")

	m.ReleasePendingDrops()
	require.False(t, m.HasValue("a"))
	require.Equal(t, "", rc.Owner)
}

func TestIsParamRegCoversAllSixArgumentRegisters(t *testing.T) {
	for _, r := range ParamRegs {
		require.True(t, IsParamReg(r))
	}
	require.False(t, IsParamReg(RAX))
}

func TestGetRejectsUndefinedVariable(t *testing.T) {
	m := NewManager()
	_, err := m.Get(ir.Var(ir.SizeI32, "nope"))
	require.Error(t, err)
}

func TestGetReturnsLiteralCellForConstants(t *testing.T) {
	m := NewManager()
	cell, err := m.Get(ir.Lit(ir.SizeI32, 7))
	require.NoError(t, err)
	require.Equal(t, CellLiteral, cell.Kind())
	lc, ok := cell.(*LiteralCell)
	require.True(t, ok)
	require.Equal(t, uint64(7), lc.Value)
}
