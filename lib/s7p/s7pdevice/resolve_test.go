// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package s7pdevice_test

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/s7pextract/lib/s7p/s7pdevice"
)

// dbfField describes one fixed-width character field for buildDBF.
type dbfField struct {
	name  string
	width int
}

// buildDBF writes a minimal dBASE III table with the given fields and
// rows (each row a slice of already-right-sized field values) to dir/name.
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

// buildLnk writes a linkhrs.lnk file with one 512-byte window at
// offset 0 containing both sentinels followed by their list IDs.
func buildLnk(t *testing.T, dir string) {
	t.Helper()
	buf := make([]byte, 512)
	binary.LittleEndian.PutUint32(buf[0:4], 0x00116001)
	binary.LittleEndian.PutUint32(buf[4:8], 42) // subblock list ID
	binary.LittleEndian.PutUint32(buf[8:12], 0x00113001)
	binary.LittleEndian.PutUint32(buf[12:16], 99) // symbol list ID
	require.NoError(t, os.WriteFile(filepath.Join(dir, "linkhrs.lnk"), buf, 0o644))
}

func TestResolveWithoutHOmSave7(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	hrsDir := filepath.Join(root, "hrs")
	require.NoError(t, os.MkdirAll(hrsDir, 0o755))

	buildDBF(t, hrsDir, "S7RESOFF.DBF",
		[]dbfField{{"ID", 4}, {"OBJTYP", 7}, {"NAME", 12}, {"RSRVD4_L", 6}},
		[][]string{{"1001", "16", "Program1", "0"}},
	)
	buildLnk(t, hrsDir)

	devices, err := s7pdevice.Resolve(root)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "Program1", devices[0].Name)
	assert.True(t, devices[0].SubblockListID.OK)
	assert.Equal(t, uint32(42), devices[0].SubblockListID.Val)
	assert.True(t, devices[0].SymbolListID.OK)
	assert.Equal(t, uint32(99), devices[0].SymbolListID.Val)
}

func TestResolveWithStationAndDevice(t *testing.T) {
	t.Parallel()
	root := t.TempDir()

	stationDir := filepath.Join(root, "hOmSave7", "s7hstatx")
	require.NoError(t, os.MkdirAll(stationDir, 0o755))
	buildDBF(t, stationDir, "HOBJECT1.DBF",
		[]dbfField{{"ID", 4}, {"OBJTYP", 7}, {"NAME", 12}},
		[][]string{{"501", "1314969", "Line1"}},
	)
	buildDBF(t, stationDir, "HRELATI1.DBF",
		[]dbfField{{"SOBJID", 4}, {"SOBJTYP", 7}, {"TOBJID", 4}, {"TOBJTYP", 7}, {"RELID", 8}},
		[][]string{{"501", "1314969", "777", "16", "1315838"}},
	)

	familyDir := filepath.Join(root, "hOmSave7", "S7HK31AX")
	require.NoError(t, os.MkdirAll(familyDir, 0o755))
	buildDBF(t, familyDir, "HOBJECT1.DBF",
		[]dbfField{{"ID", 4}, {"OBJTYP", 7}, {"NAME", 12}},
		[][]string{{"777", "16", "CPU1"}},
	)
	buildDBF(t, familyDir, "HRELATI1.DBF",
		[]dbfField{{"SOBJID", 4}, {"SOBJTYP", 7}, {"TOBJID", 4}, {"TOBJTYP", 7}, {"RELID", 8}},
		[][]string{{"777", "16", "1001", "16", "16"}},
	)

	hrsDir := filepath.Join(root, "hrs")
	require.NoError(t, os.MkdirAll(hrsDir, 0o755))
	buildDBF(t, hrsDir, "S7RESOFF.DBF",
		[]dbfField{{"ID", 4}, {"OBJTYP", 7}, {"NAME", 12}, {"RSRVD4_L", 6}},
		[][]string{{"1001", "16", "Program1", "0"}},
	)
	buildLnk(t, hrsDir)

	devices, err := s7pdevice.Resolve(root)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "S7-300: Line1 -> CPU1 -> Program1", devices[0].Name)
}

func TestResolveNonNumericOffsetIsFatal(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	hrsDir := filepath.Join(root, "hrs")
	require.NoError(t, os.MkdirAll(hrsDir, 0o755))

	buildDBF(t, hrsDir, "S7RESOFF.DBF",
		[]dbfField{{"ID", 4}, {"OBJTYP", 7}, {"NAME", 12}, {"RSRVD4_L", 6}},
		[][]string{{"1001", "16", "Program1", "xx"}},
	)
	buildLnk(t, hrsDir)

	_, err := s7pdevice.Resolve(root)
	assert.Error(t, err)
}
