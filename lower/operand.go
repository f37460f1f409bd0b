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
	"irasm/storage"
)

// toOperand converts a resolved storage cell into the abstract assembly
// operand that names its current physical location. Flag pseudo-cells
// have no operand representation -- they are only ever consumed
// structurally (by branch, select, zext) via a type switch on the Cell
// itself, never materialized into an instruction operand.
func toOperand(c storage.Cell) asmir.Operand {
	switch v := c.(type) {
	case *storage.RegisterCell:
		width := v.Size().Bytes()
		if width == 0 {
			width = 8
		}
		return asmir.Reg{Name: v.Reg.SizedName(width), Width: width}
	case *storage.MemCell:
		width := v.Size().Bytes()
		m := asmir.Mem{Width: width, Disp: v.Disp, Scale: v.Scale}
		if v.Base == storage.BaseReg {
			m.Base = v.Reg.String()
		} else {
			m.Base = "rbp"
		}
		if v.Index != nil {
			m.Index = v.Index.String()
		}
		return m
	case *storage.GlobalCell:
		return asmir.Mem{Width: 8, Label: v.Name}
	case *storage.LiteralCell:
		return asmir.Imm{Value: v.Value}
	default:
		return asmir.Imm{Value: 0}
	}
}
