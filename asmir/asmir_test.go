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
package asmir

import (
	"testing"

	"github.com/stretchr/testify/require"

	"irasm/ir"
)

func TestNewMovSuppressesSelfMove(t *testing.T) {
	rax := Reg{Name: "eax", Width: 4}
	require.Nil(t, NewMov(rax, rax))
}

func TestNewMovSuppressesSelfAddressedMemory(t *testing.T) {
	m := Mem{Width: 4, Base: "rbp", Disp: -8}
	require.Nil(t, NewMov(m, m))
}

func TestNewMovRewritesZeroImmediateToXor(t *testing.T) {
	rax := Reg{Name: "eax", Width: 4}
	n := NewMov(rax, Imm{Value: 0})
	arith, ok := n.(ArithNode)
	require.True(t, ok, "mov reg, 0 must lower to an ArithNode")
	require.Equal(t, ArithXor, arith.Op)
	require.Equal(t, "    xor eax, eax", arith.Print())
}

func TestNewMovDoesNotRewriteZeroImmediateIntoMemory(t *testing.T) {
	m := Mem{Width: 4, Base: "rbp", Disp: -8}
	n := NewMov(m, Imm{Value: 0})
	_, isMov := n.(MovNode)
	require.True(t, isMov, "mov [mem], 0 must stay a plain mov -- xor cannot target memory")
}

func TestNewMovOrdinaryCase(t *testing.T) {
	dst := Reg{Name: "eax", Width: 4}
	src := Reg{Name: "ebx", Width: 4}
	n := NewMov(dst, src)
	mv, ok := n.(MovNode)
	require.True(t, ok)
	require.Equal(t, "    mov eax, ebx", mv.Print())
}

func TestMemRenderDropsSizeKeywordForLea(t *testing.T) {
	m := Mem{Width: 4, Base: "rbp", Disp: -16}
	require.Equal(t, "dword [rbp - 16]", m.text())
	require.Equal(t, "[rbp - 16]", m.textNoSize())
}

func TestMemRenderRipRelativeLabel(t *testing.T) {
	m := Mem{Width: 8, Label: "str0"}
	require.Equal(t, "qword [rel str0]", m.text())
}

func TestMemRenderComplexAddress(t *testing.T) {
	m := Mem{Width: 4, Base: "rax", Index: "rbx", Scale: 4, Disp: 8}
	require.Equal(t, "dword [rax + 4*rbx + 8]", m.text())
}

func TestCondFromPredicateMapsAllSignedComparisons(t *testing.T) {
	cases := map[ir.ICmpPredicate]Cond{
		ir.ICmpEQ:  CondE,
		ir.ICmpNE:  CondNE,
		ir.ICmpSLT: CondL,
		ir.ICmpSLE: CondLE,
		ir.ICmpSGT: CondG,
		ir.ICmpSGE: CondGE,
	}
	for pred, want := range cases {
		require.Equal(t, want, CondFromPredicate(pred))
	}
}

// TestCMovPrintsDestinationFirst pins the Intel operand order this package
// commits to, distinguishing it from the teacher's AT&T-ordered LIR.
func TestCMovPrintsDestinationFirst(t *testing.T) {
	n := CMovNode{Cond: CondG, Dst: Reg{Name: "eax", Width: 4}, Src: Reg{Name: "ebx", Width: 4}}
	require.Equal(t, "    cmovg eax, ebx", n.Print())
}

func TestMovSXPicksWideMnemonicFor32To64(t *testing.T) {
	n := MovSXNode{Dst: Reg{Name: "rax", Width: 8}, Src: Reg{Name: "eax", Width: 4}, Wide: true}
	require.Equal(t, "    movsxd rax, eax", n.Print())
}

func TestMovSXPicksNarrowMnemonicForByteSource(t *testing.T) {
	n := MovSXNode{Dst: Reg{Name: "eax", Width: 4}, Src: Reg{Name: "al", Width: 1}, Wide: false}
	require.Equal(t, "    movsx eax, al", n.Print())
}
