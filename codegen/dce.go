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
	mapset "github.com/deckarep/golang-set/v2"

	"irasm/ir"
)

// EliminateDeadBlocks removes unreachable blocks: a block survives only
// if it is the entry block or is named by some jmp/branch/phi target
// somewhere in the function. This is a pure name-reachability
// computation -- no control-flow graph is built -- so a set of block
// names is all the bookkeeping it needs, generalized from "reachable via
// Succs" to "named by a target", and built on
// github.com/deckarep/golang-set/v2 rather than a hand-rolled
// map[string]bool since the only operation performed on it is set
// membership.
func EliminateDeadBlocks(fn *ir.Function) {
	if len(fn.Blocks) == 0 {
		return
	}
	live := mapset.NewSet[string]()
	live.Add(fn.Blocks[0].Name)

	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions {
			switch inst.Kind {
			case ir.KJmp:
				live.Add(inst.JmpLabel)
			case ir.KBranch:
				live.Add(inst.TrueLabel)
				live.Add(inst.FalseLabel)
			case ir.KPhi:
				for _, l := range inst.PhiLabels {
					live.Add(l)
				}
			}
		}
	}

	kept := fn.Blocks[:0]
	for _, b := range fn.Blocks {
		if live.Contains(b.Name) {
			kept = append(kept, b)
		}
	}
	fn.Blocks = kept
}
