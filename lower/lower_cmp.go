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
	"irasm/diag"
	"irasm/ir"
	"irasm/storage"
)

func memBoth(a, b asmir.Operand) bool {
	_, am := a.(asmir.Mem)
	_, bm := b.(asmir.Mem)
	return am && bm
}

// lowerICmp emits `cmp lhs, rhs` and returns a flag pseudo-cell carrying
// the predicate; the comparison itself is never materialized into real
// storage until something (branch, select, zext i1) consumes the flag.
func (fc *funcCtx) lowerICmp(inst ir.Instruction) (storage.Cell, error) {
	lhsCell, err := fc.mgr.Get(inst.Operands[0].Value)
	if err != nil {
		return nil, err
	}
	rhsCell, err := fc.mgr.Get(inst.Operands[1].Value)
	if err != nil {
		return nil, err
	}
	lhsOp := toOperand(lhsCell)
	rhsOp := toOperand(rhsCell)

	if memBoth(lhsOp, rhsOp) {
		rc, err := fc.mgr.ForceFindRegister(inst.Operands[0].Value.Size)
		if err != nil {
			return nil, err
		}
		fc.emit(asmir.NewMov(toOperand(rc), lhsOp))
		lhsOp = toOperand(rc)
		rc.Frozen = false
	}

	fc.emit(asmir.CmpNode{A: lhsOp, B: rhsOp})
	return &storage.FlagCell{Predicate: inst.Predicate}, nil
}

// lowerSelect implements the select lowering rule: an arithmetic-select
// fast path when both arms are literals a fixed distance apart that fits
// an x86 lea scale, otherwise a general cmov.
func (fc *funcCtx) lowerSelect(inst ir.Instruction) (storage.Cell, error) {
	condCell, err := fc.mgr.Get(inst.Operands[0].Value)
	if err != nil {
		return nil, err
	}
	flag, ok := condCell.(*storage.FlagCell)
	if !ok {
		return nil, diag.Newf(diag.LoweringError, "select condition is not a preceding icmp result")
	}

	aVal := inst.Operands[1].Value
	bVal := inst.Operands[2].Value
	size := inst.Result

	if aVal.IsConst && bVal.IsConst {
		cell, ok, err := fc.trySelectFastPath(flag.Predicate, aVal.Const, bVal.Const, size)
		if err != nil {
			return nil, err
		}
		if ok {
			return cell, nil
		}
	}
	return fc.lowerSelectGeneral(flag.Predicate, aVal, bVal, size)
}

// trySelectFastPath is the arithmetic-select path: it only fires when
// |a - b| is one of the four scale factors x86 lea actually supports
// (1, 2, 4, 8); any other distance falls back to the general cmov path
// below rather than emitting an invalid scale.
func (fc *funcCtx) trySelectFastPath(pred ir.ICmpPredicate, a, b uint64, size ir.ValueSize) (storage.Cell, bool, error) {
	var lower, diff uint64
	invert := false
	if a <= b {
		lower, diff = a, b-a
		invert = true
	} else {
		lower, diff = b, a-b
	}
	if diff != 1 && diff != 2 && diff != 4 && diff != 8 {
		return nil, false, nil
	}

	cond := pred
	if invert {
		cond = pred.Invert()
	}

	rc, err := fc.mgr.ForceFindRegister(size)
	if err != nil {
		return nil, false, err
	}
	// setcc must read the icmp's flags before anything can clobber them,
	// so it comes first; movzx then clears the rest of the register.
	fc.emit(asmir.SetCCNode{Cond: asmir.CondFromPredicate(cond), Dst: asmir.Reg{Name: rc.Reg.SizedName(1), Width: 1}})
	fc.emit(asmir.MovZXNode{Dst: asmir.Reg{Name: rc.Reg.SizedName(4), Width: 4}, Src: asmir.Reg{Name: rc.Reg.SizedName(1), Width: 1}})
	fc.emit(asmir.LeaNode{
		Dst: toOperand(rc),
		Src: asmir.Mem{Index: rc.Reg.String(), Scale: int(diff), Disp: int(lower)},
	})
	return rc, true, nil
}

// lowerSelectGeneral is the cmov fallback for a select whose arms aren't
// both constant. Its moves are plain movs: NewMov would turn a zero
// immediate into xor, which overwrites the flags the cmov reads.
func (fc *funcCtx) lowerSelectGeneral(pred ir.ICmpPredicate, aVal, bVal ir.Value, size ir.ValueSize) (storage.Cell, error) {
	bCell, err := fc.mgr.Get(bVal)
	if err != nil {
		return nil, err
	}
	rc, err := fc.mgr.ForceFindRegister(size)
	if err != nil {
		return nil, err
	}
	fc.emit(asmir.MovNode{Dst: toOperand(rc), Src: toOperand(bCell)})

	aCell, err := fc.mgr.Get(aVal)
	if err != nil {
		return nil, err
	}
	aOp := toOperand(aCell)
	// cmov has no immediate-source form, regardless of whether the
	// immediate came from a literal operand token or a name bound to one.
	if _, isImm := aOp.(asmir.Imm); isImm {
		tmp, err := fc.mgr.ForceFindRegister(size)
		if err != nil {
			return nil, err
		}
		fc.emit(asmir.MovNode{Dst: toOperand(tmp), Src: aOp})
		aOp = toOperand(tmp)
		tmp.Frozen = false
	}
	fc.emit(asmir.CMovNode{Cond: asmir.CondFromPredicate(pred), Dst: toOperand(rc), Src: aOp})
	return rc, nil
}
