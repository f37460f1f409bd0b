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

// lowerZExt widens a value to newSize. A literal operand -- whether the
// instruction's own token is a literal, or it names a variable that
// resolves to one -- keeps its bit pattern and just gets a wider size
// tag; an i1 flag source is materialized via setcc into the low byte
// followed by movzx (nothing runs between the flags and the setcc, so
// they are still the icmp's); everything else is a
// movzx, except the 32-to-64 case, where a plain mov into the 32-bit
// sub-register already zero-extends the upper half on x86-64.
func (fc *funcCtx) lowerZExt(inst ir.Instruction) (storage.Cell, error) {
	val := inst.Operands[0].Value
	newSize := inst.Result

	cell, err := fc.mgr.Get(val)
	if err != nil {
		return nil, err
	}

	if lit, ok := cell.(*storage.LiteralCell); ok {
		return storage.NewLiteralCell(newSize, lit.Value), nil
	}

	if flag, ok := cell.(*storage.FlagCell); ok {
		rc, err := fc.mgr.ForceFindRegister(newSize)
		if err != nil {
			return nil, err
		}
		fc.emit(asmir.SetCCNode{Cond: asmir.CondFromPredicate(flag.Predicate), Dst: asmir.Reg{Name: rc.Reg.SizedName(1), Width: 1}})
		fc.emit(asmir.MovZXNode{Dst: asmir.Reg{Name: rc.Reg.SizedName(4), Width: 4}, Src: asmir.Reg{Name: rc.Reg.SizedName(1), Width: 1}})
		return rc, nil
	}

	rc, err := fc.mgr.ForceFindRegister(newSize)
	if err != nil {
		return nil, err
	}
	if val.Size.Bytes() == 4 && newSize.Bytes() == 8 {
		fc.emit(asmir.NewMov(asmir.Reg{Name: rc.Reg.SizedName(4), Width: 4}, toOperand(cell)))
	} else {
		fc.emit(asmir.MovZXNode{Dst: toOperand(rc), Src: toOperand(cell)})
	}
	return rc, nil
}

// lowerSExt widens a value to newSize with sign extension. A literal
// operand -- whether the instruction's own token is a literal, or it
// names a variable that resolves to one -- keeps its bit pattern
// (already stored two's-complement at full width by the parser);
// everything else is movsx/movsxd.
func (fc *funcCtx) lowerSExt(inst ir.Instruction) (storage.Cell, error) {
	val := inst.Operands[0].Value
	newSize := inst.Result

	cell, err := fc.mgr.Get(val)
	if err != nil {
		return nil, err
	}
	if lit, ok := cell.(*storage.LiteralCell); ok {
		return storage.NewLiteralCell(newSize, lit.Value), nil
	}
	rc, err := fc.mgr.ForceFindRegister(newSize)
	if err != nil {
		return nil, err
	}
	wide := val.Size.Bytes() == 4 && newSize.Bytes() == 8
	fc.emit(asmir.MovSXNode{Dst: toOperand(rc), Src: toOperand(cell), Wide: wide})
	return rc, nil
}
