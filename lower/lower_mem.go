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

// lowerLiteral returns a literal pseudo-cell; no instructions emitted.
func (fc *funcCtx) lowerLiteral(inst ir.Instruction) (storage.Cell, error) {
	v := inst.Operands[0].Value
	return storage.NewLiteralCell(v.Size, v.Const), nil
}

// lowerAllocate reserves N bytes of function-lifetime stack and returns
// the resulting address cell. After its last use the assignee is erased
// from the name map like any other value, but that only ends the *name*
// -- the underlying stack bytes are never reclaimed.
func (fc *funcCtx) lowerAllocate(inst ir.Instruction) (storage.Cell, error) {
	return fc.mgr.Allocate(inst.AllocateSize), nil
}

// addressOperand resolves ptrVal's current storage cell into the
// dereference address of size `size`: a register holding a raw address
// becomes `[reg]`, a foldable stack/array address cell is reused at the
// new size, and a global label becomes a rip-relative reference.
func (fc *funcCtx) addressOperand(ptrVal ir.Value, size ir.ValueSize) (asmir.Operand, error) {
	cell, err := fc.mgr.Get(ptrVal)
	if err != nil {
		return nil, err
	}
	switch v := cell.(type) {
	case *storage.MemCell:
		return toOperand(v.WithSize(size)), nil
	case *storage.RegisterCell:
		return toOperand(storage.NewRegisterAddress(size, v.Reg, 0)), nil
	case *storage.GlobalCell:
		return asmir.Mem{Width: size.Bytes(), Label: v.Name}, nil
	default:
		return nil, diag.Newf(diag.LoweringError, "value %%%s is not a valid pointer", ptrVal.Name)
	}
}

// lowerStore emits `mov [addr], src`. If both the resolved
// address and the source value are memory operands, the source is first
// materialized into a scratch register, since x86 forbids a
// memory-to-memory mov.
func (fc *funcCtx) lowerStore(inst ir.Instruction) (storage.Cell, error) {
	addrOp, err := fc.addressOperand(inst.Operands[0].Value, inst.MemSize)
	if err != nil {
		return nil, err
	}
	srcCell, err := fc.mgr.Get(inst.Operands[1].Value)
	if err != nil {
		return nil, err
	}
	srcOp := toOperand(srcCell)

	_, addrIsMem := addrOp.(asmir.Mem)
	_, srcIsMem := srcOp.(asmir.Mem)
	if addrIsMem && srcIsMem {
		rc, err := fc.mgr.ForceFindRegister(inst.MemSize)
		if err != nil {
			return nil, err
		}
		fc.emit(asmir.NewMov(toOperand(rc), srcOp))
		srcOp = toOperand(rc)
		rc.Frozen = false
	}

	fc.emit(asmir.NewMov(addrOp, srcOp))
	return nil, nil
}

// lowerLoad allocates a register destination and emits `mov dest, [addr]`.
func (fc *funcCtx) lowerLoad(inst ir.Instruction) (storage.Cell, error) {
	addrOp, err := fc.addressOperand(inst.Operands[0].Value, inst.MemSize)
	if err != nil {
		return nil, err
	}
	rc, err := fc.mgr.ForceFindRegister(inst.MemSize)
	if err != nil {
		return nil, err
	}
	fc.emit(asmir.NewMov(toOperand(rc), addrOp))
	return rc, nil
}

// lowerGetArrayPtr implements the indexed-address rule: stack slots
// carry an already-negative Disp, and a constant index L is folded in as
// `Disp -= L*elemSize`.
func (fc *funcCtx) lowerGetArrayPtr(inst ir.Instruction) (storage.Cell, error) {
	baseVal := inst.Operands[0].Value
	idxVal := inst.Operands[1].Value
	elemSize := inst.ElemSize

	baseCell, err := fc.mgr.Get(baseVal)
	if err != nil {
		return nil, err
	}

	if idxVal.IsConst {
		l := int(idxVal.Const)
		switch v := baseCell.(type) {
		case *storage.RegisterCell:
			return storage.NewRegisterAddress(ir.SizePtr, v.Reg, l*elemSize), nil
		case *storage.MemCell:
			return v.Offset(-l * elemSize).WithSize(ir.SizePtr), nil
		default:
			return nil, diag.Newf(diag.LoweringError, "get_array_ptr base is not addressable")
		}
	}

	if baseVal.IsConst || idxVal.IsConst {
		return nil, diag.Newf(diag.LoweringError, "get_array_ptr base must be a variable")
	}
	baseReg, err := fc.mgr.EnsureInRegister(baseVal.Name)
	if err != nil {
		return nil, err
	}
	idxReg, err := fc.mgr.EnsureInRegister(idxVal.Name)
	if err != nil {
		return nil, err
	}

	if elemSize == 1 || elemSize == 2 || elemSize == 4 || elemSize == 8 {
		idx := idxReg.Reg
		return storage.NewComplexAddress(ir.SizePtr, baseReg.Reg, &idx, elemSize, 0), nil
	}

	fc.emit(asmir.ArithNode{Op: asmir.ArithMul, Dst: toOperand(idxReg), Src: asmir.Imm{Value: uint64(elemSize)}})
	idx := idxReg.Reg
	return storage.NewComplexAddress(ir.SizePtr, baseReg.Reg, &idx, 1, 0), nil
}
