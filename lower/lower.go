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
// Package lower implements the per-instruction lowering policy: one file
// per instruction family (lower_mem.go, lower_cmp.go, lower_arith.go,
// lower_call.go, lower_cast.go), all driven by the six-step policy in
// LowerInstruction below. phi has no lowering rule of its own -- it is
// never dispatched through LowerInstruction at all, since its operands
// read from predecessor blocks rather than the current instruction
// stream; prepassPhis and lowerTerminator below implement its two-phase
// materialization directly in this file. Structured the way a
// lower_x86.go-style LIR builder does -- one method per SSA op family,
// dispatched from a single top-level LowerFunction entry point -- but
// generalized from AT&T-syntax LIR construction to the asmir/NASM model
// and from a machine SSA op set to this IR's fifteen instruction kinds.
package lower

import (
	"fmt"

	"irasm/asmir"
	"irasm/diag"
	"irasm/ir"
	"irasm/liveness"
	"irasm/storage"
)

// OutBlock is one lowered basic block: a name and its linear sequence of
// abstract assembly nodes. Trampoline blocks synthesized for phi
// materialization are OutBlocks like any other.
type OutBlock struct {
	Name  string
	Nodes []asmir.Node
}

// edgeWrite is one phi materialization obligation: on the control-flow
// edge into block To, write Val into Dst before control transfers. The
// edge's source block is the key it is filed under in edgesByFrom.
type edgeWrite struct {
	To  string
	Dst storage.Cell
	Val ir.Value
}

// funcCtx is the per-function lowering state threaded through every
// lower_*.go file in this package.
type funcCtx struct {
	mgr    *storage.Manager
	fn     *ir.Function
	module *ir.Module

	out         []*OutBlock
	cur         *OutBlock
	edgesByFrom map[string][]edgeWrite

	tempCounter int
}

func (fc *funcCtx) emit(n asmir.Node) {
	if n == nil {
		return
	}
	fc.cur.Nodes = append(fc.cur.Nodes, n)
}

func (fc *funcCtx) tempName() string {
	fc.tempCounter++
	return fmt.Sprintf("__temp%d", fc.tempCounter)
}

// LowerFunction runs liveness analysis and the full lowering policy over
// fn, returning its blocks (including the synthetic __stacksave entry
// and any phi trampolines) and the storage manager that owns its
// register/stack bookkeeping (the assembly writer reads Manager.StackSize
// and each register's Tampered bit from it for the prologue/epilogue).
func LowerFunction(module *ir.Module, fn *ir.Function) ([]*OutBlock, *storage.Manager, error) {
	liveness.Analyze(fn)

	mgr := storage.NewManager()
	fc := &funcCtx{mgr: mgr, fn: fn, module: module, edgesByFrom: make(map[string][]edgeWrite)}
	mgr.EmitFn = fc.emitStorageNode

	if err := bindParams(mgr, fn); err != nil {
		return nil, nil, err
	}
	if err := fc.prepassPhis(); err != nil {
		return nil, nil, err
	}

	fc.out = []*OutBlock{{Name: "__stacksave"}}
	for _, b := range fn.Blocks {
		fc.cur = &OutBlock{Name: b.Name}
		if err := fc.lowerBlockBody(b); err != nil {
			return nil, nil, err
		}
		fc.out = append(fc.out, fc.cur)
	}
	return fc.out, mgr, nil
}

// bindParams maps each declared parameter to its System V argument
// register. All six integer argument registers are exposed; a seventh
// scalar argument is rejected rather than silently spilled.
func bindParams(mgr *storage.Manager, fn *ir.Function) error {
	if len(fn.Params) > len(storage.ParamRegs) {
		return diag.Newf(diag.LoweringError,
			"function %s declares %d scalar parameters, but only %d argument registers are supported",
			fn.Name, len(fn.Params), len(storage.ParamRegs))
	}
	for i, p := range fn.Params {
		reg := storage.ParamRegs[i]
		rc, err := mgr.GetRegister(reg, p.Size)
		if err != nil {
			return err
		}
		rc.Frozen = false
		mgr.MapValue(p.Name, rc)
	}
	return nil
}

// prepassPhis allocates a permanent stack slot for every phi's result
// before any block body is lowered (so ordinary instructions anywhere in
// the function that reference a phi's assignee resolve correctly), and
// records the per-predecessor-edge write obligations consumed later by
// lowerTerminator.
func (fc *funcCtx) prepassPhis() error {
	for _, b := range fc.fn.Blocks {
		for _, inst := range b.Instructions {
			if inst.Kind != ir.KPhi {
				continue
			}
			dst := fc.mgr.Allocate(inst.Result.Bytes()).WithSize(inst.Result)
			if inst.Assignee != "" {
				fc.mgr.MapValue(inst.Assignee, dst)
			}
			for i, label := range inst.PhiLabels {
				fc.edgesByFrom[label] = append(fc.edgesByFrom[label], edgeWrite{
					To:  b.Name,
					Dst: dst,
					Val: inst.Operands[i].Value,
				})
			}
		}
	}
	return nil
}

// lowerBlockBody lowers every non-phi instruction of b into fc.cur,
// special-casing jmp/branch as terminators that must also discharge any
// phi edge-writes outgoing from b (the phi splicing rule).
func (fc *funcCtx) lowerBlockBody(b *ir.Block) error {
	for _, inst := range b.Instructions {
		switch inst.Kind {
		case ir.KPhi:
			continue // fully handled by prepassPhis + lowerTerminator
		case ir.KJmp, ir.KBranch:
			if err := fc.lowerTerminator(b.Name, inst); err != nil {
				return err
			}
		default:
			if err := fc.LowerInstruction(inst); err != nil {
				return err
			}
		}
	}
	return nil
}

// reassignableOnDrop reports whether an operand at its last use may have
// its ownership released before the instruction's kind-specific rule
// runs. True for everything except call/arithmetic/select, whose
// destination register must stay intact until the opcode executes.
func reassignableOnDrop(k ir.Kind) bool {
	switch k {
	case ir.KCall, ir.KArithmetic, ir.KSelect:
		return false
	default:
		return true
	}
}

// LowerInstruction executes the six-step lowering policy for a single
// non-terminator, non-phi instruction.
func (fc *funcCtx) LowerInstruction(inst ir.Instruction) error {
	reassignable := reassignableOnDrop(inst.Kind)

	if reassignable {
		for _, op := range inst.Operands {
			if op.LastUse && !op.Value.IsConst {
				fc.mgr.DropOwnership(op.Value.Name)
			}
		}
	}

	dst, err := fc.lowerKind(inst)
	if err != nil {
		return err
	}

	fc.mgr.ReleaseTempClaims()

	if !reassignable {
		for _, op := range inst.Operands {
			if op.LastUse && !op.Value.IsConst {
				fc.mgr.DropOwnership(op.Value.Name)
				fc.mgr.Erase(op.Value.Name)
			}
		}
	} else {
		for _, op := range inst.Operands {
			if op.LastUse && !op.Value.IsConst {
				fc.mgr.Erase(op.Value.Name)
			}
		}
	}

	if inst.Assignee != "" && dst != nil {
		fc.mgr.MapValue(inst.Assignee, dst)
	}
	return nil
}

func (fc *funcCtx) lowerKind(inst ir.Instruction) (storage.Cell, error) {
	switch inst.Kind {
	case ir.KLiteral:
		return fc.lowerLiteral(inst)
	case ir.KAllocate:
		return fc.lowerAllocate(inst)
	case ir.KStore:
		return fc.lowerStore(inst)
	case ir.KLoad:
		return fc.lowerLoad(inst)
	case ir.KGetArrayPtr:
		return fc.lowerGetArrayPtr(inst)
	case ir.KICmp:
		return fc.lowerICmp(inst)
	case ir.KSelect:
		return fc.lowerSelect(inst)
	case ir.KArithmetic:
		return fc.lowerArithmetic(inst)
	case ir.KCall:
		return fc.lowerCall(inst)
	case ir.KRet:
		return nil, fc.lowerRet(inst)
	case ir.KSExt:
		return fc.lowerSExt(inst)
	case ir.KZExt:
		return fc.lowerZExt(inst)
	default:
		return nil, diag.Newf(diag.LoweringError, "unhandled instruction kind %s", inst.Kind)
	}
}

// emitStorageNode translates a storage.Emit (an eviction spill move or an
// EnsureInRegister reload) into an asmir node, routing through lea rather than mov
// whenever the source is a global label (a bare data move can't express
// "address of a symbol"; only lea can).
func (fc *funcCtx) emitStorageNode(e storage.Emit) {
	switch e.Kind {
	case storage.EmitMov:
		if g, ok := e.Src.(*storage.GlobalCell); ok {
			fc.emit(asmir.LeaNode{Dst: toOperand(e.Dst), Src: asmir.Mem{Label: g.Name}})
			return
		}
		fc.emit(asmir.NewMov(toOperand(e.Dst), toOperand(e.Src)))
	}
}

// lowerTerminator lowers a jmp or branch instruction, first splicing in
// any phi edge-writes outgoing from block `from`. A conditional branch
// whose true edge carries a phi write is rewritten to jump through a
// synthetic trampoline block, since the writes can't be placed ahead of
// the `jcc` itself without also executing on the false edge.
func (fc *funcCtx) lowerTerminator(from string, inst ir.Instruction) error {
	switch inst.Kind {
	case ir.KJmp:
		if err := fc.spliceEdge(from, inst.JmpLabel); err != nil {
			return err
		}
		fc.emit(asmir.JmpNode{Target: "." + inst.JmpLabel})
		return nil

	case ir.KBranch:
		cell, err := fc.mgr.Get(inst.Operands[0].Value)
		if err != nil {
			return err
		}
		flag, ok := cell.(*storage.FlagCell)
		if !ok {
			return diag.Newf(diag.LoweringError, "branch operand is not a preceding icmp result")
		}
		cond := asmir.CondFromPredicate(flag.Predicate)

		trueWrites := fc.edgesFor(from, inst.TrueLabel)
		if len(trueWrites) > 0 {
			tramp := fc.newTrampoline(from, inst.TrueLabel, trueWrites)
			fc.emit(asmir.CondJmpNode{Cond: cond, Target: "." + tramp})
		} else {
			fc.emit(asmir.CondJmpNode{Cond: cond, Target: "." + inst.TrueLabel})
		}

		if err := fc.spliceEdge(from, inst.FalseLabel); err != nil {
			return err
		}
		fc.emit(asmir.JmpNode{Target: "." + inst.FalseLabel})
		return nil
	}
	return diag.Newf(diag.LoweringError, "not a terminator: %s", inst.Kind)
}

// edgesFor returns (without removing) the edge writes from block `from`
// whose target is `to`.
func (fc *funcCtx) edgesFor(from, to string) []edgeWrite {
	var out []edgeWrite
	for _, w := range fc.edgesByFrom[from] {
		if w.To == to {
			out = append(out, w)
		}
	}
	return out
}

// spliceEdge emits, in fc.cur, the mov for every edge write from `from`
// to `to`. Used for the unconditional-jmp case and the branch's false
// edge, both of which can receive the writes in place ahead of the jump.
func (fc *funcCtx) spliceEdge(from, to string) error {
	for _, w := range fc.edgesFor(from, to) {
		src, err := fc.mgr.Get(w.Val)
		if err != nil {
			return err
		}
		fc.emitMove(w.Dst, src)
	}
	return nil
}

// newTrampoline creates and appends a new block containing the writes
// for the from->to edge followed by an unconditional jump to `to`,
// returning its name.
func (fc *funcCtx) newTrampoline(from, to string, writes []edgeWrite) string {
	name := fmt.Sprintf("__%s_phi_%s", from, to)
	tramp := &OutBlock{Name: name}
	saved := fc.cur
	fc.cur = tramp
	for _, w := range writes {
		src, err := fc.mgr.Get(w.Val)
		if err != nil {
			continue
		}
		fc.emitMove(w.Dst, src)
	}
	fc.emit(asmir.JmpNode{Target: "." + to})
	fc.cur = saved
	fc.out = append(fc.out, tramp)
	return name
}

// emitMove appends a mov (or lea, for global-label sources) from src
// into dst, used directly by phi splicing which writes to a fixed
// destination cell rather than asking the storage manager to pick one.
func (fc *funcCtx) emitMove(dst, src storage.Cell) {
	if g, ok := src.(*storage.GlobalCell); ok {
		fc.emit(asmir.LeaNode{Dst: toOperand(dst), Src: asmir.Mem{Label: g.Name}})
		return
	}
	fc.emit(asmir.NewMov(toOperand(dst), toOperand(src)))
}
