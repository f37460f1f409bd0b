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
package storage

// GPR names the fourteen general-purpose registers available for
// allocation. rbp and rsp are excluded from the allocatable bank -- they
// are reserved for frame management and kept out of this numbering
// entirely.
type GPR int

const (
	RAX GPR = iota
	RBX
	RCX
	RDX
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	numGPR
)

// NumGPR is the size of the allocatable register bank, exposed for callers
// outside package storage (the prologue/epilogue emitter in codegen) that
// need to scan every bank entry.
const NumGPR = int(numGPR)

func (r GPR) String() string {
	return [numGPR]string{
		"rax", "rbx", "rcx", "rdx", "rsi", "rdi",
		"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
	}[r]
}

// SizedName returns this register's name at the given byte width, e.g.
// RAX.SizedName(4) == "eax", RCX.SizedName(1) == "cl".
func (r GPR) SizedName(width int) string {
	q := [numGPR]string{"rax", "rbx", "rcx", "rdx", "rsi", "rdi", "r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15"}
	d := [numGPR]string{"eax", "ebx", "ecx", "edx", "esi", "edi", "r8d", "r9d", "r10d", "r11d", "r12d", "r13d", "r14d", "r15d"}
	w := [numGPR]string{"ax", "bx", "cx", "dx", "si", "di", "r8w", "r9w", "r10w", "r11w", "r12w", "r13w", "r14w", "r15w"}
	b := [numGPR]string{"al", "bl", "cl", "dl", "sil", "dil", "r8b", "r9b", "r10b", "r11b", "r12b", "r13b", "r14b", "r15b"}
	switch width {
	case 1:
		return b[r]
	case 2:
		return w[r]
	case 4:
		return d[r]
	default:
		return q[r]
	}
}

// ParamRegs is the System V AMD64 integer argument register order (spec
// §4.4, resolving open question 3: all six are exposed, not just the
// first three).
var ParamRegs = [6]GPR{RDI, RSI, RDX, RCX, R8, R9}

// calleeSaved lists the registers the System V ABI requires a callee to
// preserve. rbx/r12-r15 in the real ABI; rbp is handled separately by the
// prologue/epilogue frame sequence and is never part of the allocatable
// bank, so it does not appear here.
var calleeSaved = [5]GPR{RBX, R12, R13, R14, R15}

func IsCalleeSaved(r GPR) bool {
	for _, c := range calleeSaved {
		if c == r {
			return true
		}
	}
	return false
}

// IsParamReg reports whether r is one of the six argument registers --
// find_register must skip these to avoid clobbering not-yet-consumed
// arguments.
func IsParamReg(r GPR) bool {
	for _, p := range ParamRegs {
		if p == r {
			return true
		}
	}
	return false
}
