// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package mc5_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/s7pextract/lib/s7p/mc5"
)

// fakeDecls is a DeclSource backed by plain maps, for tests.
type fakeDecls struct {
	fb  map[uint32]string
	sfb map[uint32]string
	udt map[uint32]string
}

func (d fakeDecls) FB(n uint32) (string, bool)  { s, ok := d.fb[n]; return s, ok }
func (d fakeDecls) SFB(n uint32) (string, bool) { s, ok := d.sfb[n]; return s, ok }
func (d fakeDecls) UDT(n uint32) (string, bool) { s, ok := d.udt[n]; return s, ok }

func symbolTuples(block mc5.Block) [][4]string {
	out := make([][4]string, len(block.Symbols))
	for i, s := range block.Symbols {
		out[i] = [4]string{s.Name, s.Code, s.Datatype, s.Comment}
	}
	return out
}

func TestMinimalScalarLayout(t *testing.T) {
	t.Parallel()
	dbs := []mc5.DB{{Number: 1, MC5Code: `VAR a: BOOL; b: BOOL; c: INT; END_VAR`}}
	blocks, warnings := mc5.ParseDBs(dbs, fakeDecls{})
	require.Empty(t, warnings)
	require.Len(t, blocks, 1)
	assert.Equal(t, [][4]string{
		{"a", "DB1:0.0", "BOOL", "Var"},
		{"b", "DB1:0.1", "BOOL", "Var"},
		{"c", "DB1:2.0", "INT", "Var"},
	}, symbolTuples(blocks[0]))
}

func TestPrimitiveArray(t *testing.T) {
	t.Parallel()
	dbs := []mc5.DB{{Number: 2, MC5Code: `VAR arr: ARRAY [1..3] OF DINT; END_VAR`}}
	blocks, warnings := mc5.ParseDBs(dbs, fakeDecls{})
	require.Empty(t, warnings)
	require.Len(t, blocks, 1)
	assert.Equal(t, [][4]string{
		{"arr", "DB2:0.0", "ARRAY [1..3] OF DINT", "Var"},
	}, symbolTuples(blocks[0]))
}

func TestStructOfStruct(t *testing.T) {
	t.Parallel()
	dbs := []mc5.DB{{Number: 3, MC5Code: `VAR s: STRUCT x: BOOL; y: STRUCT a: INT; b: INT; END_STRUCT; END_STRUCT; END_VAR`}}
	blocks, warnings := mc5.ParseDBs(dbs, fakeDecls{})
	require.Empty(t, warnings)
	require.Len(t, blocks, 1)
	assert.Equal(t, [][4]string{
		{"s.x", "DB3:0.0", "BOOL", "Struct"},
		{"s.y.a", "DB3:2.0", "INT", "Struct"},
		{"s.y.b", "DB3:4.0", "INT", "Struct"},
	}, symbolTuples(blocks[0]))
}

func TestArrayOfUDT(t *testing.T) {
	t.Parallel()
	decls := fakeDecls{udt: map[uint32]string{
		10: `STRUCT p: INT; q: BOOL; END_STRUCT`,
	}}
	dbs := []mc5.DB{{Number: 4, MC5Code: `VAR t: ARRAY [0..1] OF UDT 10; END_VAR`}}
	blocks, warnings := mc5.ParseDBs(dbs, decls)
	require.Empty(t, warnings)
	require.Len(t, blocks, 1)
	assert.Equal(t, [][4]string{
		{"t[0].p", "DB4:0.0", "INT", "Struct"},
		{"t[0].q", "DB4:2.0", "BOOL", "Struct"},
		{"t[1].p", "DB4:4.0", "INT", "Struct"},
		{"t[1].q", "DB4:6.0", "BOOL", "Struct"},
	}, symbolTuples(blocks[0]))
}

func TestBoolArray2D(t *testing.T) {
	t.Parallel()
	dbs := []mc5.DB{{Number: 5, MC5Code: `VAR m: ARRAY [1..2, 1..8] OF BOOL; END_VAR`}}
	blocks, warnings := mc5.ParseDBs(dbs, fakeDecls{})
	require.Empty(t, warnings)
	require.Len(t, blocks, 1)
	assert.Equal(t, [][4]string{
		{"m", "DB5:0.0", "ARRAY [1..2, 1..8] OF BOOL", "Var"},
	}, symbolTuples(blocks[0]))
}

// TestBoolArrayAfterLeadingBool pins down §4.5.3's "align_up(16) before,
// align_up(16) after" framing applying to BOOL arrays same as any other
// array: a leading BOOL must not leave m packed at a sub-bit offset, and
// the scalar that follows must not start mid-byte either.
func TestBoolArrayAfterLeadingBool(t *testing.T) {
	t.Parallel()
	dbs := []mc5.DB{{Number: 10, MC5Code: `VAR a: BOOL; m: ARRAY [1..2] OF BOOL; c: INT; END_VAR`}}
	blocks, warnings := mc5.ParseDBs(dbs, fakeDecls{})
	require.Empty(t, warnings)
	require.Len(t, blocks, 1)
	assert.Equal(t, [][4]string{
		{"a", "DB10:0.0", "BOOL", "Var"},
		{"m", "DB10:2.0", "ARRAY [1..2] OF BOOL", "Var"},
		{"c", "DB10:4.0", "INT", "Var"},
	}, symbolTuples(blocks[0]))
}

func TestFBIndirectedDB(t *testing.T) {
	t.Parallel()
	decls := fakeDecls{fb: map[uint32]string{
		3: `VAR_INPUT in1: REAL; END_VAR VAR_OUTPUT out1: BOOL; END_VAR`,
	}}
	dbs := []mc5.DB{{Number: 6, MC5Code: "", DBRefBlob: "FB3", HasDBRef: true}}
	blocks, warnings := mc5.ParseDBs(dbs, decls)
	require.Empty(t, warnings)
	require.Len(t, blocks, 1)
	assert.Equal(t, [][4]string{
		{"in1", "DB6:0.0", "REAL", "In"},
		{"out1", "DB6:4.0", "BOOL", "Out"},
	}, symbolTuples(blocks[0]))
}

func TestMissingFBIsWarningNotFatal(t *testing.T) {
	t.Parallel()
	dbs := []mc5.DB{{Number: 7, MC5Code: "", DBRefBlob: "FB99", HasDBRef: true}}
	blocks, warnings := mc5.ParseDBs(dbs, fakeDecls{})
	assert.Empty(t, blocks)
	require.Len(t, warnings, 1)
	assert.Equal(t, uint32(7), warnings[0].DBNumber)
}

func TestVarTempTerminatesDeclaration(t *testing.T) {
	t.Parallel()
	dbs := []mc5.DB{{Number: 8, MC5Code: `VAR a: INT; END_VAR VAR_TEMP t: INT; END_VAR VAR b: INT; END_VAR`}}
	blocks, warnings := mc5.ParseDBs(dbs, fakeDecls{})
	require.Empty(t, warnings)
	require.Len(t, blocks, 1)
	assert.Equal(t, [][4]string{
		{"a", "DB8:0.0", "INT", "Var"},
	}, symbolTuples(blocks[0]))
}

func TestReentrantBlockRefIsWarning(t *testing.T) {
	t.Parallel()
	decls := fakeDecls{fb: map[uint32]string{
		1: `VAR x: FB 1; END_VAR`,
	}}
	dbs := []mc5.DB{{Number: 9, MC5Code: `VAR y: FB 1; END_VAR`}}
	blocks, warnings := mc5.ParseDBs(dbs, decls)
	assert.Empty(t, blocks)
	require.Len(t, warnings, 1)
}
