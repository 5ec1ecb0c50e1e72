// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package dbf_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/s7pextract/lib/dbf"
)

// buildTable assembles a minimal dBASE III table with two character
// fields ("NAME" width 8, "NOTE" width 4) and the given rows (each
// row a pair of already-padded field values); an optional deleted
// row is injected between the given rows to exercise the skip path.
func buildTable(t *testing.T, rows [][2]string) string {
	t.Helper()

	const recordSize = 1 + 8 + 4 // status byte + NAME + NOTE

	var buf []byte
	hdr := make([]byte, 32)
	hdr[0] = 0x03
	// record count: every physical record slot, live or deleted (the
	// header count doesn't distinguish the two).
	n := uint32(len(rows))
	if len(rows) > 1 {
		n++ // the deleted filler record injected below
	}
	hdr[4] = byte(n)
	hdr[5] = byte(n >> 8)
	hdr[6] = byte(n >> 16)
	hdr[7] = byte(n >> 24)
	headerSize := uint16(32 + 32*2 + 1)
	hdr[8] = byte(headerSize)
	hdr[9] = byte(headerSize >> 8)
	hdr[10] = byte(recordSize)
	hdr[11] = byte(recordSize >> 8)
	buf = append(buf, hdr...)

	field := func(name string, length byte) []byte {
		fd := make([]byte, 32)
		copy(fd[0:11], name)
		fd[11] = 'C'
		fd[16] = length
		return fd
	}
	buf = append(buf, field("NAME", 8)...)
	buf = append(buf, field("NOTE", 4)...)
	buf = append(buf, 0x0d)

	for i, row := range rows {
		if i == 1 {
			// Inject a deleted record between the first and second
			// live rows to exercise the skip-over-deleted path.
			del := make([]byte, recordSize)
			del[0] = '*'
			for j := range del[1:] {
				del[1+j] = 'X'
			}
			buf = append(buf, del...)
		}
		rec := make([]byte, recordSize)
		rec[0] = ' '
		name := []byte(row[0])
		note := []byte(row[1])
		copy(rec[1:9], padRight(name, 8))
		copy(rec[9:13], padRight(note, 4))
		buf = append(buf, rec...)
	}

	path := filepath.Join(t.TempDir(), "TEST.DBF")
	require.NoError(t, os.WriteFile(path, buf, 0o644))
	return path
}

func padRight(b []byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = ' '
	}
	copy(out, b)
	return out
}

func TestReadRecords(t *testing.T) {
	t.Parallel()
	path := buildTable(t, [][2]string{
		{"ALPHA", "one"},
		{"BETA", "two"},
		{"GAMMA", "three"},
	})

	r, err := dbf.Open(path)
	require.NoError(t, err)
	defer r.Close()

	nameIdx, err := r.FieldIndex("NAME")
	require.NoError(t, err)
	noteIdx, err := r.FieldIndex("NOTE")
	require.NoError(t, err)

	var got [][2]string
	for {
		rec, err := r.NextRecord()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, [2]string{rec[nameIdx], rec[noteIdx]})
	}

	assert.Equal(t, [][2]string{
		{"ALPHA", "one"},
		{"BETA", "two"},
		{"GAMMA", "thre"}, // truncated to the 4-byte NOTE field
	}, got)
}

// TestReadRecordsStopsAtEOFMarker exercises a table whose header
// overstates its record count by one (a real-world NumRecords can be
// stale or simply wrong) and whose data section is terminated by the
// single 0x1A byte dBASE III writes after the last record. NextRecord
// must treat the short read on that extra, promised-but-absent record
// as a clean end of table, not a truncated-record error.
func TestReadRecordsStopsAtEOFMarker(t *testing.T) {
	t.Parallel()

	const recordSize = 1 + 8 + 4 // status byte + NAME + NOTE
	hdr := make([]byte, 32)
	hdr[0] = 0x03
	hdr[4] = 2 // header claims two records; only one is actually stored
	headerSize := uint16(32 + 32*2 + 1)
	hdr[8] = byte(headerSize)
	hdr[9] = byte(headerSize >> 8)
	hdr[10] = byte(recordSize)
	hdr[11] = byte(recordSize >> 8)

	field := func(name string, length byte) []byte {
		fd := make([]byte, 32)
		copy(fd[0:11], name)
		fd[11] = 'C'
		fd[16] = length
		return fd
	}

	var buf []byte
	buf = append(buf, hdr...)
	buf = append(buf, field("NAME", 8)...)
	buf = append(buf, field("NOTE", 4)...)
	buf = append(buf, 0x0d)

	rec := make([]byte, recordSize)
	rec[0] = ' '
	copy(rec[1:9], padRight([]byte("SOLO"), 8))
	copy(rec[9:13], padRight([]byte("x"), 4))
	buf = append(buf, rec...)
	buf = append(buf, endOfFileMarkerByte)

	path := filepath.Join(t.TempDir(), "EOF.DBF")
	require.NoError(t, os.WriteFile(path, buf, 0o644))

	r, err := dbf.Open(path)
	require.NoError(t, err)
	defer r.Close()

	nameIdx, err := r.FieldIndex("NAME")
	require.NoError(t, err)

	rec1, err := r.NextRecord()
	require.NoError(t, err)
	assert.Equal(t, "SOLO", rec1[nameIdx])

	_, err = r.NextRecord()
	assert.ErrorIs(t, err, io.EOF)
}

const endOfFileMarkerByte = 0x1A

func TestFieldIndexMissing(t *testing.T) {
	t.Parallel()
	path := buildTable(t, [][2]string{{"A", "b"}})
	r, err := dbf.Open(path)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.FieldIndex("NOPE")
	assert.Error(t, err)
	var fme *dbf.FieldMissingError
	assert.ErrorAs(t, err, &fme)
}

func TestDecodeWindows1252(t *testing.T) {
	t.Parallel()
	// 0xe4 in Windows-1252 is "ä".
	assert.Equal(t, "Mädchen", dbf.DecodeWindows1252("M\xe4dchen"))
	assert.Equal(t, "plain", dbf.DecodeWindows1252("plain"))
}
