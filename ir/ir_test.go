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

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func parseFixture(t *testing.T, name string) *Module {
	t.Helper()
	f, err := os.Open(filepath.Join("..", "testdata", name))
	require.NoError(t, err)
	defer f.Close()
	m, err := Parse(f)
	require.NoError(t, err)
	return m
}

func TestParseFixturesValidate(t *testing.T) {
	for _, name := range []string{
		"arith_select_test.ir",
		"select_test.ir",
		"fibonacci.ir",
		"pointer_test.ir",
		"dce_test.ir",
		"identity_test.ir",
	} {
		t.Run(name, func(t *testing.T) {
			m := parseFixture(t, name)
			require.NoError(t, Validate(m))
		})
	}
}

func TestFibonacciShape(t *testing.T) {
	m := parseFixture(t, "fibonacci.ir")
	fib := m.Function("fib")
	require.NotNil(t, fib)
	require.Len(t, fib.Params, 1)
	merge := fib.Block("merge")
	require.NotNil(t, merge)
	require.Len(t, merge.Instructions, 2) // phi, ret
	require.Equal(t, KPhi, merge.Instructions[0].Kind)
	require.Equal(t, []string{"base", "rec"}, merge.Instructions[0].PhiLabels)
}

// TestRoundTrip exercises spec §8's "parse . emit . parse = parse"
// property: re-parsing a written module must reproduce the same
// instruction stream, modulo formatting.
func TestRoundTrip(t *testing.T) {
	for _, name := range []string{"fibonacci.ir", "pointer_test.ir", "identity_test.ir"} {
		t.Run(name, func(t *testing.T) {
			m1 := parseFixture(t, name)
			text := Write(m1)
			m2, err := Parse(strings.NewReader(text))
			require.NoError(t, err)
			require.Equal(t, len(m1.Functions), len(m2.Functions))
			for i, fn1 := range m1.Functions {
				fn2 := m2.Functions[i]
				require.Equal(t, fn1.Name, fn2.Name)
				require.Equal(t, len(fn1.Blocks), len(fn2.Blocks))
				for j, b1 := range fn1.Blocks {
					b2 := fn2.Blocks[j]
					require.Equal(t, len(b1.Instructions), len(b2.Instructions))
					for k, inst1 := range b1.Instructions {
						require.Equal(t, inst1.Kind, b2.Instructions[k].Kind)
					}
				}
			}
		})
	}
}

func TestValidateRejectsOperandCountMismatch(t *testing.T) {
	m := &Module{Functions: []*Function{{
		Name:       "f",
		ReturnSize: SizeI32,
		Blocks: []*Block{{Name: "entry", Instructions: []Instruction{
			{Kind: KStore, Operands: []Operand{OperandOf(Var(SizePtr, "p"))}, MemSize: SizeI32},
		}}},
	}}}
	err := Validate(m)
	require.Error(t, err)
}

func TestValidateRejectsSExtNarrowing(t *testing.T) {
	m := &Module{Functions: []*Function{{
		Name:       "f",
		ReturnSize: SizeNone,
		Blocks: []*Block{{Name: "entry", Instructions: []Instruction{
			{Kind: KSExt, Operands: []Operand{OperandOf(Var(SizeI32, "x"))}, Result: SizeI8},
			{Kind: KRet},
		}}},
	}}}
	require.Error(t, Validate(m))
}

func TestSizeBytes(t *testing.T) {
	require.Equal(t, 1, SizeI1.Bytes())
	require.Equal(t, 1, SizeI8.Bytes())
	require.Equal(t, 2, SizeI16.Bytes())
	require.Equal(t, 4, SizeI32.Bytes())
	require.Equal(t, 8, SizeI64.Bytes())
	require.Equal(t, 8, SizePtr.Bytes())
}

func TestResolveParamDependent(t *testing.T) {
	sz, err := ResolveParamDependent(SizeParamDependent, SizeI32)
	require.NoError(t, err)
	require.Equal(t, SizeI32, sz)

	_, err = ResolveParamDependent(SizeParamDependent, SizeNone)
	require.Error(t, err)
}
