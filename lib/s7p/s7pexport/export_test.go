// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package s7pexport_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/s7pextract/lib/s7p"
	"git.lukeshu.com/s7pextract/lib/s7p/s7pexport"
)

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	devices := []s7p.DeviceSymbolInfo{
		{
			Name: "S7-300: Line1 -> CPU1 -> Program1",
			Blocks: []s7p.Block{
				{
					Name: "Symbol List",
					Symbols: []s7p.Symbol{
						{Name: "Motor_Run", Code: "I 0.0", Datatype: "BOOL", Comment: "start; stop interlock"},
						{Name: `Quoted "Name"`, Code: "M 1.0", Datatype: "BOOL", Comment: ""},
					},
				},
				{
					Name: "DB7 (Motor_Status)",
					Symbols: []s7p.Symbol{
						{Name: "a", Code: "DB7:0.0", Datatype: "BOOL", Comment: "Var"},
					},
				},
			},
		},
		{
			Name:   "S7-400: Line2 -> CPU2 -> Program2",
			Blocks: []s7p.Block{{Name: "Symbol List"}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, s7pexport.WriteDelimited(&buf, devices))

	got, err := s7pexport.ReadDelimited(&buf)
	require.NoError(t, err)

	require.Len(t, got, len(devices))
	for i := range devices {
		assert.Equal(t, devices[i].Name, got[i].Name)
		require.Len(t, got[i].Blocks, len(devices[i].Blocks))
		for j := range devices[i].Blocks {
			assert.Equal(t, devices[i].Blocks[j].Name, got[i].Blocks[j].Name)
			assert.Equal(t, devices[i].Blocks[j].Symbols, got[i].Blocks[j].Symbols)
		}
	}
}
