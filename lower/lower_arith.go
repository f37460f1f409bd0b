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
package lower

import (
	"irasm/asmir"
	"irasm/ir"
	"irasm/storage"
)

// lowerArithmetic implements the arithmetic lowering rule: put the lhs in
// the destination register (its own register when this instruction is
// its last use, otherwise a fresh register it is copied into, so a
// still-live lhs keeps its value), then emit a two-operand instruction
// against the rhs. Division and modulo route
// through the rax:rdx/idiv sequence instead, since x86 has no two-operand
// divide.
func (fc *funcCtx) lowerArithmetic(inst ir.Instruction) (storage.Cell, error) {
	lhsVal := inst.Operands[0].Value
	rhsVal := inst.Operands[1].Value
	size := inst.Result

	if inst.ArithOp == ir.ArithDiv || inst.ArithOp == ir.ArithMod {
		return fc.lowerDivMod(inst.ArithOp, lhsVal, rhsVal, size)
	}

	lhsCell, err := fc.mgr.Get(lhsVal)
	if err != nil {
		return nil, err
	}

	var dst *storage.RegisterCell
	if rc, ok := lhsCell.(*storage.RegisterCell); ok && inst.Operands[0].LastUse {
		dst = rc
		dst.Frozen = true
	} else {
		dst, err = fc.mgr.ForceFindRegister(size)
		if err != nil {
			return nil, err
		}
		fc.emit(asmir.NewMov(toOperand(dst), toOperand(lhsCell)))
	}

	rhsCell, err := fc.mgr.Get(rhsVal)
	if err != nil {
		return nil, err
	}
	rhsOp := toOperand(rhsCell)

	op := arithOpOf(inst.ArithOp)
	if op == asmir.ArithMul {
		// x86's two-operand imul r, r/m has no immediate form; an
		// immediate rhs must be materialized into a register first.
		if _, isImm := rhsOp.(asmir.Imm); isImm {
			tmp, err := fc.mgr.ForceFindRegister(size)
			if err != nil {
				return nil, err
			}
			fc.emit(asmir.NewMov(toOperand(tmp), rhsOp))
			rhsOp = toOperand(tmp)
			tmp.Frozen = false
		}
	}

	fc.emit(asmir.ArithNode{Op: op, Dst: toOperand(dst), Src: rhsOp})
	return dst, nil
}

func arithOpOf(op ir.ArithOp) asmir.ArithOp {
	switch op {
	case ir.ArithAdd:
		return asmir.ArithAdd
	case ir.ArithSub:
		return asmir.ArithSub
	case ir.ArithMul:
		return asmir.ArithMul
	default:
		return asmir.ArithAdd
	}
}

// lowerDivMod implements the rax:rdx/idiv sequence the System V-flavored
// x86 divide instruction requires. rax and rdx are acquired first (which
// evicts and remaps any prior owners) so that subsequent lookups of lhs
// and rhs see their post-eviction locations rather than stale cells.
func (fc *funcCtx) lowerDivMod(op ir.ArithOp, lhsVal, rhsVal ir.Value, size ir.ValueSize) (storage.Cell, error) {
	raxCell, err := fc.mgr.GetRegister(storage.RAX, size)
	if err != nil {
		return nil, err
	}
	rdxCell, err := fc.mgr.GetRegister(storage.RDX, size)
	if err != nil {
		return nil, err
	}

	lhsCell, err := fc.mgr.Get(lhsVal)
	if err != nil {
		return nil, err
	}
	fc.emit(asmir.NewMov(toOperand(raxCell), toOperand(lhsCell)))

	width := size.Bytes()
	if width == 8 {
		fc.emit(asmir.CqoNode{})
	} else {
		fc.emit(asmir.CdqNode{})
	}

	rhsCell, err := fc.mgr.Get(rhsVal)
	if err != nil {
		return nil, err
	}
	rhsOp := toOperand(rhsCell)
	if _, isImm := rhsOp.(asmir.Imm); isImm {
		tmp, err := fc.mgr.ForceFindRegister(size)
		if err != nil {
			return nil, err
		}
		fc.emit(asmir.NewMov(toOperand(tmp), rhsOp))
		rhsOp = toOperand(tmp)
		tmp.Frozen = false
	}

	fc.emit(asmir.IDivNode{Src: rhsOp})
	if op == ir.ArithDiv {
		return raxCell, nil
	}
	return rdxCell, nil
}
