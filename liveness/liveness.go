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
// Package liveness implements the two-pass last-use analysis: a scan
// pass recording each variable's most recent using instruction in
// program order, and a mark pass flipping Operand.LastUse where an
// operand's instruction is that recorded instruction. This is
// deliberately intra-procedural and intra-linear -- it computes no
// block-level live-in/live-out sets, since phi materialization (package
// lower) is the only cross-block consumer of liveness and it forces its
// own materialization at join points regardless.
package liveness

import "irasm/ir"

// key identifies one instruction's position for the scan pass.
type key struct {
	block *ir.Block
	index int
}

// Analyze mutates fn's instructions in place, setting Operands[i].LastUse
// for every operand whose variable is not referenced again later in the
// function.
func Analyze(fn *ir.Function) {
	lastUse := make(map[string]key)

	// Scan pass: walk blocks in declaration order, instructions in
	// program order. An assignee counts as a use of itself, so that a
	// self-assigned-but-unused result is still tracked (this keeps the
	// storage manager's tampered-bit accounting honest even when a
	// result is never read again).
	for _, b := range fn.Blocks {
		for idx, inst := range b.Instructions {
			if inst.Assignee != "" {
				lastUse[inst.Assignee] = key{b, idx}
			}
			for _, op := range inst.Operands {
				if op.Value.IsConst {
					continue
				}
				lastUse[op.Value.Name] = key{b, idx}
			}
		}
	}

	// Mark pass: an operand is the final use of its variable exactly
	// when the recorded last-use instruction for that name is this one.
	for _, b := range fn.Blocks {
		for idx := range b.Instructions {
			inst := &b.Instructions[idx]
			for i := range inst.Operands {
				op := &inst.Operands[i]
				if op.Value.IsConst {
					continue
				}
				if k, ok := lastUse[op.Value.Name]; ok && k.block == b && k.index == idx {
					op.LastUse = true
				}
			}
		}
	}
}
