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

import "irasm/diag"

// Validate performs the structural checks that raise an "IR validation
// error": operand-count mismatches, phi label/operand count mismatch,
// and return-size agreement. It does not re-verify global SSA dominance
// -- that is the textual reader's responsibility before the module ever
// reaches this package.
func Validate(m *Module) error {
	for _, fn := range m.Functions {
		if err := validateFunction(fn); err != nil {
			return err
		}
	}
	return nil
}

func validateFunction(fn *Function) error {
	if len(fn.Blocks) == 0 {
		return diag.Newf(diag.ValidationError, "function %q has no blocks", fn.Name)
	}
	blockNames := make(map[string]bool, len(fn.Blocks))
	for _, b := range fn.Blocks {
		blockNames[b.Name] = true
	}
	for _, b := range fn.Blocks {
		for i, inst := range b.Instructions {
			if err := validateInstruction(fn, b, i, inst, blockNames); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateInstruction(fn *Function, b *Block, idx int, inst Instruction, blockNames map[string]bool) error {
	where := func(f string, args ...interface{}) error {
		return diag.Newf(diag.ValidationError, "%s.%s[%d] (%s): "+f, append([]interface{}{fn.Name, b.Name, idx, inst.Kind}, args...)...)
	}

	switch inst.Kind {
	case KLiteral:
		if len(inst.Operands) != 1 || !inst.Operands[0].Value.IsConst {
			return where("literal takes exactly one constant operand")
		}
	case KAllocate:
		if len(inst.Operands) != 0 {
			return where("allocate takes no operands")
		}
		if inst.AllocateSize <= 0 {
			return where("allocate size must be positive")
		}
	case KStore:
		if len(inst.Operands) != 2 {
			return where("store requires exactly 2 operands (ptr, value), got %d", len(inst.Operands))
		}
		if inst.Operands[0].Value.Size != SizePtr {
			return where("store destination must be ptr")
		}
		if inst.Operands[1].Value.Size != inst.MemSize {
			return where("store value size %s does not match declared size %s", inst.Operands[1].Value.Size, inst.MemSize)
		}
	case KLoad:
		if len(inst.Operands) != 1 {
			return where("load requires exactly 1 operand, got %d", len(inst.Operands))
		}
		if inst.Operands[0].Value.Size != SizePtr {
			return where("load source must be ptr")
		}
		if inst.Result != inst.MemSize {
			return where("load result size must equal declared size")
		}
	case KICmp:
		if len(inst.Operands) != 2 {
			return where("icmp requires exactly 2 operands, got %d", len(inst.Operands))
		}
		if inst.Operands[0].Value.Size != inst.Operands[1].Value.Size {
			return where("icmp operands must have equal size")
		}
		if inst.Result != SizeI1 {
			return where("icmp result must be i1")
		}
	case KBranch:
		if len(inst.Operands) != 1 {
			return where("branch requires exactly 1 operand (i1 flag), got %d", len(inst.Operands))
		}
		if inst.Operands[0].Value.Size != SizeI1 {
			return where("branch operand must be i1")
		}
		if !blockNames[inst.TrueLabel] || !blockNames[inst.FalseLabel] {
			return where("branch target is not a block in this function")
		}
	case KJmp:
		if len(inst.Operands) != 0 {
			return where("jmp takes no operands")
		}
		if !blockNames[inst.JmpLabel] {
			return where("jmp target is not a block in this function")
		}
	case KRet:
		if len(inst.Operands) > 1 {
			return where("ret takes 0 or 1 operands, got %d", len(inst.Operands))
		}
		if fn.ReturnSize == SizeNone {
			if len(inst.Operands) != 0 {
				return where("returning a value from a void function")
			}
		} else {
			if len(inst.Operands) != 1 {
				return where("non-void function must return a value")
			}
			if inst.Operands[0].Value.Size != fn.ReturnSize {
				return where("return value size %s does not match declared return size %s", inst.Operands[0].Value.Size, fn.ReturnSize)
			}
		}
	case KArithmetic:
		if len(inst.Operands) != 2 {
			return where("arithmetic requires exactly 2 operands, got %d", len(inst.Operands))
		}
		if inst.Operands[0].Value.Size != inst.Operands[1].Value.Size {
			return where("arithmetic operands must have equal size")
		}
	case KCall:
		// The operand count is not checked against the callee's declared
		// arity here; lowering rejects a call with more arguments than
		// there are argument registers.
	case KPhi:
		if len(inst.PhiLabels) != len(inst.Operands) {
			return where("phi has %d labels but %d operands", len(inst.PhiLabels), len(inst.Operands))
		}
		preds := b.predecessorNames(fn)
		if len(inst.PhiLabels) != len(preds) {
			return where("phi has %d labels but block has %d predecessors", len(inst.PhiLabels), len(preds))
		}
		predSet := make(map[string]bool, len(preds))
		for _, p := range preds {
			predSet[p] = true
		}
		for _, l := range inst.PhiLabels {
			if !predSet[l] {
				return where("phi label %q is not a predecessor of this block", l)
			}
		}
	case KSelect:
		if len(inst.Operands) != 3 {
			return where("select requires exactly 3 operands (cond, a, b), got %d", len(inst.Operands))
		}
		if inst.Operands[0].Value.Size != SizeI1 {
			return where("select condition must be i1")
		}
		if inst.Operands[1].Value.Size != inst.Operands[2].Value.Size {
			return where("select arms must have equal size")
		}
	case KSExt, KZExt:
		if len(inst.Operands) != 1 {
			return where("%s requires exactly 1 operand, got %d", inst.Kind, len(inst.Operands))
		}
		if inst.Result <= inst.Operands[0].Value.Size {
			return where("%s destination size must strictly exceed source size", inst.Kind)
		}
	case KGetArrayPtr:
		if len(inst.Operands) != 2 {
			return where("get_array_ptr requires exactly 2 operands (ptr, index), got %d", len(inst.Operands))
		}
		if inst.Operands[0].Value.Size != SizePtr {
			return where("get_array_ptr base must be ptr")
		}
		if inst.Result != SizePtr {
			return where("get_array_ptr result must be ptr")
		}
		if inst.ElemSize <= 0 {
			return where("get_array_ptr element size must be positive")
		}
	}
	return nil
}

// predecessorNames returns, for a block containing a phi, the set of
// predecessor block names as inferred from every jmp/branch that targets
// it elsewhere in fn. This is recomputed on demand rather than cached,
// since validation runs once before lowering.
func (b *Block) predecessorNames(fn *Function) []string {
	var preds []string
	for _, other := range fn.Blocks {
		if len(other.Instructions) == 0 {
			continue
		}
		last := other.Instructions[len(other.Instructions)-1]
		switch last.Kind {
		case KJmp:
			if last.JmpLabel == b.Name {
				preds = append(preds, other.Name)
			}
		case KBranch:
			if last.TrueLabel == b.Name || last.FalseLabel == b.Name {
				preds = append(preds, other.Name)
			}
		}
	}
	return preds
}
