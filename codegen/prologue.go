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
package codegen

import (
	"irasm/asmir"
	"irasm/storage"
)

// tamperedCalleeSaves returns, in ascending register-index order, every
// callee-saved register the storage manager marked tampered during
// lowering -- the set that must be pushed in the prologue and popped in
// every epilogue. rax's bank index is never considered here, since rax
// is not callee-saved regardless of its own tampered state.
func tamperedCalleeSaves(mgr *storage.Manager) []storage.GPR {
	var regs []storage.GPR
	for i := storage.GPR(0); i < storage.GPR(storage.NumGPR); i++ {
		if !storage.IsCalleeSaved(i) {
			continue
		}
		if mgr.Register(i).Tampered {
			regs = append(regs, i)
		}
	}
	return regs
}

// buildPrologue renders the synthetic __stacksave block's contents: the
// frame setup, if any, followed by one push per tampered callee-saved
// register.
func buildPrologue(frameSize int, saves []storage.GPR) []asmir.Node {
	var nodes []asmir.Node
	if frameSize > 0 {
		nodes = append(nodes,
			asmir.PushNode{Reg: asmir.Reg{Name: "rbp", Width: 8}},
			asmir.MovNode{Dst: asmir.Reg{Name: "rbp", Width: 8}, Src: asmir.Reg{Name: "rsp", Width: 8}},
			asmir.ArithNode{Op: asmir.ArithSub, Dst: asmir.Reg{Name: "rsp", Width: 8}, Src: asmir.Imm{Value: uint64(frameSize)}},
		)
	}
	for _, r := range saves {
		nodes = append(nodes, asmir.PushNode{Reg: asmir.Reg{Name: r.SizedName(8), Width: 8}})
	}
	return nodes
}

// expandEpilogue replaces every RetNode in nodes with the matching
// pop-in-reverse / leave / ret sequence. A function can have more than
// one ret instruction (one per exit block), and each gets its own full
// epilogue expansion.
func expandEpilogue(nodes []asmir.Node, frameSize int, saves []storage.GPR) []asmir.Node {
	out := make([]asmir.Node, 0, len(nodes))
	for _, n := range nodes {
		if _, ok := n.(asmir.RetNode); !ok {
			out = append(out, n)
			continue
		}
		for i := len(saves) - 1; i >= 0; i-- {
			out = append(out, asmir.PopNode{Reg: asmir.Reg{Name: saves[i].SizedName(8), Width: 8}})
		}
		if frameSize > 0 {
			out = append(out, asmir.RawNode{Text: "leave"})
		}
		out = append(out, asmir.RetNode{})
	}
	return out
}
