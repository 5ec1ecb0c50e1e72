// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package s7pdevice

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"git.lukeshu.com/s7pextract/lib/binstruct"
	"git.lukeshu.com/s7pextract/lib/containers"
	"git.lukeshu.com/s7pextract/lib/diskio"
)

// lnkWindowSize is the size, in bytes, of the linkhrs.lnk window read
// at the byte offset given by a S7RESOFF.DBF row's RSRVD4_L column:
// 128 little-endian uint32 words.
const lnkWindowSize = 512

// sentSubblockList and sentSymbolList are the two 4-byte sentinel
// values searched for in a linkhrs.lnk window; the word immediately
// following a sentinel (if found) is the corresponding list ID.
const (
	sentSubblockList uint32 = 0x00116001
	sentSymbolList   uint32 = 0x00113001
)

type lnkAddr int64

// lnkFile wraps an open linkhrs.lnk for positional reads.
type lnkFile struct {
	f *diskio.OSFile[lnkAddr]
}

func openLnk(path string) (*lnkFile, error) {
	osf, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("linkhrs.lnk: %w", err)
	}
	return &lnkFile{f: &diskio.OSFile[lnkAddr]{File: osf}}, nil
}

func (l *lnkFile) Close() error {
	return l.f.Close()
}

// readListIDs reads the 512-byte window at offset and returns the
// subblock-list and symbol-list IDs found immediately after the two
// sentinel words, per §4.2.4. A missing sentinel yields an
// unset Optional, not an error.
func (l *lnkFile) readListIDs(offset int64) (subblockListID, symbolListID containers.Optional[uint32], err error) {
	buf := make([]byte, lnkWindowSize)
	if _, err := l.f.ReadAt(buf, lnkAddr(offset)); err != nil {
		return subblockListID, symbolListID, fmt.Errorf("reading window at offset %d: %w", offset, err)
	}

	var words [lnkWindowSize / 4]uint32
	if _, err := binstruct.Unmarshal(buf, &words); err != nil {
		return subblockListID, symbolListID, fmt.Errorf("decoding window at offset %d: %w", offset, err)
	}

	subblockListID = findSentinelWord(buf, words[:], sentSubblockList)
	symbolListID = findSentinelWord(buf, words[:], sentSymbolList)
	return subblockListID, symbolListID, nil
}

// findSentinelWord scans the raw window bytes for the little-endian
// encoding of sentinel, using diskio.FindAll (a KMP search over a
// byte stream), and returns the word
// immediately following the first match, read out of the pre-decoded
// words slice.
func findSentinelWord(raw []byte, words []uint32, sentinel uint32) containers.Optional[uint32] {
	var pattern [4]byte
	binary.LittleEndian.PutUint32(pattern[:], sentinel)

	matches, err := diskio.FindAll(bytes.NewReader(raw), pattern[:])
	if err != nil || len(matches) == 0 {
		return containers.Optional[uint32]{}
	}
	// matches[0] is a byte offset; the sentinel is word-aligned in
	// practice, but fall back to a byte-level read of the next 4
	// bytes to tolerate an unaligned match.
	wordIdx := int(matches[0]) / 4
	if int(matches[0])%4 == 0 && wordIdx+1 < len(words) {
		return containers.Optional[uint32]{OK: true, Val: words[wordIdx+1]}
	}
	next := int(matches[0]) + 4
	if next+4 > len(raw) {
		return containers.Optional[uint32]{}
	}
	return containers.Optional[uint32]{OK: true, Val: binary.LittleEndian.Uint32(raw[next : next+4])}
}
