// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package s7p_test

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/s7pextract/lib/s7p"
)

// dbfField describes one fixed-width character field for buildDBF.
type dbfField struct {
	name  string
	width int
}

func buildDBF(t *testing.T, dir, name string, fields []dbfField, rows [][]string) {
	t.Helper()

	recordSize := 1
	for _, f := range fields {
		recordSize += f.width
	}

	var buf []byte
	hdr := make([]byte, 32)
	hdr[0] = 0x03
	n := uint32(len(rows))
	binary.LittleEndian.PutUint32(hdr[4:8], n)
	headerSize := uint16(32 + 32*len(fields) + 1)
	binary.LittleEndian.PutUint16(hdr[8:10], headerSize)
	binary.LittleEndian.PutUint16(hdr[10:12], uint16(recordSize))
	buf = append(buf, hdr...)

	for _, f := range fields {
		fd := make([]byte, 32)
		copy(fd[0:11], f.name)
		fd[11] = 'C'
		fd[16] = byte(f.width)
		buf = append(buf, fd...)
	}
	buf = append(buf, 0x0d)

	for _, row := range rows {
		rec := make([]byte, recordSize)
		rec[0] = ' '
		off := 1
		for i, f := range row {
			width := fields[i].width
			padded := make([]byte, width)
			for j := range padded {
				padded[j] = ' '
			}
			copy(padded, f)
			copy(rec[off:off+width], padded)
			off += width
		}
		buf = append(buf, rec...)
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, name), buf, 0o644))
}

func buildLnk(t *testing.T, dir string, subblockListID, symbolListID uint32) {
	t.Helper()
	buf := make([]byte, 512)
	binary.LittleEndian.PutUint32(buf[0:4], 0x00116001)
	binary.LittleEndian.PutUint32(buf[4:8], subblockListID)
	binary.LittleEndian.PutUint32(buf[8:12], 0x00113001)
	binary.LittleEndian.PutUint32(buf[12:16], symbolListID)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "linkhrs.lnk"), buf, 0o644))
}

// TestParseEndToEnd builds a minimal project folder exercising all
// four joined phases (C2-C5) and checks the merged per-device result.
func TestParseEndToEnd(t *testing.T) {
	t.Parallel()
	root := t.TempDir()

	hrsDir := filepath.Join(root, "hrs")
	require.NoError(t, os.MkdirAll(hrsDir, 0o755))
	buildDBF(t, hrsDir, "S7RESOFF.DBF",
		[]dbfField{{"ID", 4}, {"OBJTYP", 7}, {"NAME", 12}, {"RSRVD4_L", 6}},
		[][]string{{"1001", "16", "Program1", "0"}},
	)
	buildLnk(t, hrsDir, 42, 99)

	ydbsDir := filepath.Join(root, "YDBs")
	require.NoError(t, os.MkdirAll(ydbsDir, 0o755))
	buildDBF(t, ydbsDir, "SYMLISTS.DBF",
		[]dbfField{{"_ID", 4}, {"_DBPATH", 6}},
		[][]string{{"99", "SYM1"}},
	)
	sym1Dir := filepath.Join(ydbsDir, "SYM1")
	require.NoError(t, os.MkdirAll(sym1Dir, 0o755))
	buildDBF(t, sym1Dir, "SYMLIST.DBF",
		[]dbfField{{"_SKZ", 10}, {"_OPIEC", 8}, {"_DATATYP", 6}, {"_COMMENT", 10}},
		[][]string{
			{"Motor_Run", "I 0.0", "BOOL", "start"},
			{"Motor_Status", "DB1", "", ""},
		},
	)

	ombstxDir := filepath.Join(root, "ombstx", "offline")
	require.NoError(t, os.MkdirAll(ombstxDir, 0o755))
	buildDBF(t, ombstxDir, "BSTCNTOF.DBF",
		[]dbfField{{"ID", 4}},
		[][]string{{"42"}},
	)
	listDir := filepath.Join(ombstxDir, fmt.Sprintf("%08x", 42))
	require.NoError(t, os.MkdirAll(listDir, 0o755))
	code := "VAR a: BOOL; b: INT; END_VAR"
	buildDBF(t, listDir, "SUBBLK.DBF",
		[]dbfField{{"SUBBLKTYP", 5}, {"BLKNUMBER", 4}, {"MC5LEN", 4}, {"MC5CODE", len(code)}},
		[][]string{{"00006", "1", fmt.Sprintf("%d", len(code)), code}},
	)

	devices, err := s7p.Parse(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, devices, 1)

	device := devices[0]
	assert.Equal(t, "Program1", device.Name)
	assert.Empty(t, device.Warnings)
	require.Len(t, device.Blocks, 2)

	assert.Equal(t, "Symbol List", device.Blocks[0].Name)
	require.Len(t, device.Blocks[0].Symbols, 1)
	assert.Equal(t, "Motor_Run", device.Blocks[0].Symbols[0].Name)
	assert.Equal(t, "Motor_Status", device.DBNames[1])

	assert.Equal(t, "DB1 (Motor_Status)", device.Blocks[1].Name)
	require.Len(t, device.Blocks[1].Symbols, 2)
	assert.Equal(t, "a", device.Blocks[1].Symbols[0].Name)
	assert.Equal(t, "DB1:0.0", device.Blocks[1].Symbols[0].Code)
	assert.Equal(t, "b", device.Blocks[1].Symbols[1].Name)
	assert.Equal(t, "DB1:2.0", device.Blocks[1].Symbols[1].Code)
}

func TestParseConcurrentMatchesParse(t *testing.T) {
	t.Parallel()
	root := t.TempDir()

	hrsDir := filepath.Join(root, "hrs")
	require.NoError(t, os.MkdirAll(hrsDir, 0o755))
	buildDBF(t, hrsDir, "S7RESOFF.DBF",
		[]dbfField{{"ID", 4}, {"OBJTYP", 7}, {"NAME", 12}, {"RSRVD4_L", 6}},
		[][]string{{"1001", "16", "Program1", "0"}},
	)
	buildLnk(t, hrsDir, 42, 99)

	ydbsDir := filepath.Join(root, "YDBs")
	require.NoError(t, os.MkdirAll(ydbsDir, 0o755))
	buildDBF(t, ydbsDir, "SYMLISTS.DBF",
		[]dbfField{{"_ID", 4}, {"_DBPATH", 6}},
		[][]string{{"99", "SYM1"}},
	)
	sym1Dir := filepath.Join(ydbsDir, "SYM1")
	require.NoError(t, os.MkdirAll(sym1Dir, 0o755))
	buildDBF(t, sym1Dir, "SYMLIST.DBF",
		[]dbfField{{"_SKZ", 10}, {"_OPIEC", 8}, {"_DATATYP", 6}, {"_COMMENT", 10}},
		nil,
	)

	ombstxDir := filepath.Join(root, "ombstx", "offline")
	require.NoError(t, os.MkdirAll(ombstxDir, 0o755))
	buildDBF(t, ombstxDir, "BSTCNTOF.DBF",
		[]dbfField{{"ID", 4}},
		[][]string{{"42"}},
	)
	listDir := filepath.Join(ombstxDir, fmt.Sprintf("%08x", 42))
	require.NoError(t, os.MkdirAll(listDir, 0o755))
	code1 := "VAR a: INT; END_VAR"
	code2 := "VAR b: BOOL; END_VAR"
	buildDBF(t, listDir, "SUBBLK.DBF",
		[]dbfField{{"SUBBLKTYP", 5}, {"BLKNUMBER", 4}, {"MC5LEN", 4}, {"MC5CODE", 20}},
		[][]string{
			{"00006", "1", fmt.Sprintf("%d", len(code1)), code1},
			{"00006", "2", fmt.Sprintf("%d", len(code2)), code2},
		},
	)

	sequential, err := s7p.Parse(context.Background(), root)
	require.NoError(t, err)
	concurrent, err := s7p.ParseConcurrent(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, sequential, concurrent)
}
