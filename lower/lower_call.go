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

// lowerCall implements the call lowering rule. Each argument is placed
// into its System V argument register (all six are available; a call
// passing a seventh is rejected with a LoweringError); rax is always
// zeroed ahead of the call for variadic C callees (printf and friends),
// and the return value comes back in rax at the callee's declared
// return size.
func (fc *funcCtx) lowerCall(inst ir.Instruction) (storage.Cell, error) {
	if len(inst.Operands) > len(storage.ParamRegs) {
		return nil, diag.Newf(diag.LoweringError,
			"call to %s passes %d scalar arguments, but only %d argument registers are supported",
			inst.Callee, len(inst.Operands), len(storage.ParamRegs))
	}
	for i, op := range inst.Operands {
		preg := storage.ParamRegs[i]
		val := op.Value

		cell, err := fc.mgr.Get(val)
		if err != nil {
			return nil, err
		}

		if val.Size == ir.SizePtr {
			handled, err := fc.tryCallPtrArg(preg, cell)
			if err != nil {
				return nil, err
			}
			if handled {
				continue
			}
		}

		if rc, ok := cell.(*storage.RegisterCell); ok && rc.Reg == preg {
			if op.LastUse {
				fc.mgr.DropOwnership(val.Name)
			} else if _, err := fc.mgr.GetRegister(preg, val.Size); err != nil {
				return nil, err
			}
			continue
		}

		rc, err := fc.mgr.GetRegister(preg, val.Size)
		if err != nil {
			return nil, err
		}
		fc.emit(asmir.NewMov(toOperand(rc), toOperand(cell)))
	}

	raxCell, err := fc.mgr.GetRegister(storage.RAX, ir.SizeI64)
	if err != nil {
		return nil, err
	}
	fc.emit(asmir.NewMov(toOperand(raxCell), asmir.Imm{Value: 0}))
	fc.emit(asmir.CallNode{Callee: inst.Callee})

	if inst.Result == ir.SizeNone {
		return nil, nil
	}
	retCell, err := fc.mgr.GetRegister(storage.RAX, inst.Result)
	if err != nil {
		return nil, err
	}
	return retCell, nil
}

// tryCallPtrArg handles the "argument is a pointer to a foldable address
// expression" case: the address is computed directly into the argument
// register via lea rather than first materializing the pointer value
// and copying it.
func (fc *funcCtx) tryCallPtrArg(preg storage.GPR, cell storage.Cell) (bool, error) {
	switch v := cell.(type) {
	case *storage.MemCell:
		rc, err := fc.mgr.GetRegister(preg, ir.SizePtr)
		if err != nil {
			return false, err
		}
		fc.emit(asmir.LeaNode{Dst: toOperand(rc), Src: toOperand(v).(asmir.Mem)})
		return true, nil
	case *storage.GlobalCell:
		rc, err := fc.mgr.GetRegister(preg, ir.SizePtr)
		if err != nil {
			return false, err
		}
		fc.emit(asmir.LeaNode{Dst: toOperand(rc), Src: asmir.Mem{Label: v.Name}})
		return true, nil
	default:
		return false, nil
	}
}

// lowerRet implements the ret lowering rule; the callee-save pop/leave
// sequence is expanded later, at assembly-writing time, once every
// register's final Tampered state for the function is known (see
// codegen.WriteAssembly).
func (fc *funcCtx) lowerRet(inst ir.Instruction) error {
	if len(inst.Operands) == 1 {
		val := inst.Operands[0].Value
		cell, err := fc.mgr.Get(val)
		if err != nil {
			return err
		}
		raxCell, err := fc.mgr.GetRegister(storage.RAX, val.Size)
		if err != nil {
			return err
		}
		fc.emit(asmir.NewMov(toOperand(raxCell), toOperand(cell)))
	}
	fc.emit(asmir.RetNode{})
	return nil
}
