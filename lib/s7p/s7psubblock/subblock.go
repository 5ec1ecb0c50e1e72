// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package s7psubblock reads a STEP 7 project's subblock lists
// (ombstx): per-device collections of DB/FB/SFB/UDT declaration
// blobs, partitioned by subblock type and keyed by block number.
package s7psubblock

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"git.lukeshu.com/s7pextract/lib/dbf"
)

// Kind is one of the five subblock partitions named in SUBBLKTYP.
type Kind int

const (
	KindDB Kind = iota
	KindDBRef
	KindFB
	KindSFB
	KindUDT
)

// subblkTypeToKind maps SUBBLKTYP's raw string values to their
// partition.
var subblkTypeToKind = map[string]Kind{
	"00001": KindUDT,
	"00004": KindFB,
	"00006": KindDB,
	"00009": KindSFB,
	"00066": KindDBRef,
}

// Maps is the five-way partition of one subblock list's declaration
// text, keyed by block number within each kind.
type Maps struct {
	DB    map[uint32]string
	DBRef map[uint32]string
	FB    map[uint32]string
	SFB   map[uint32]string
	UDT   map[uint32]string
}

func newMaps() Maps {
	return Maps{
		DB:    make(map[uint32]string),
		DBRef: make(map[uint32]string),
		FB:    make(map[uint32]string),
		SFB:   make(map[uint32]string),
		UDT:   make(map[uint32]string),
	}
}

func (m Maps) byKind(k Kind) map[uint32]string {
	switch k {
	case KindDB:
		return m.DB
	case KindDBRef:
		return m.DBRef
	case KindFB:
		return m.FB
	case KindSFB:
		return m.SFB
	case KindUDT:
		return m.UDT
	default:
		return nil
	}
}

// ListPath returns the canonical ombstx path for the given
// subblock_list_id: offline/<id as 8-digit lowercase hex>/SUBBLK.DBF.
func ListPath(folder string, subblockListID uint32) string {
	return filepath.Join(folder, "ombstx", "offline", fmt.Sprintf("%08x", subblockListID), "SUBBLK.DBF")
}

// ParseLists reads ombstx/offline/BSTCNTOF.DBF and, for each row whose
// ID matches a known subblock_list_id, its SUBBLK.DBF, returning one
// Maps per matched subblock_list_id. Rows with no matching device are
// silently skipped (orphan subblock lists are expected).
func ParseLists(folder string, knownSubblockListIDs map[uint32]bool) (map[uint32]Maps, error) {
	path := filepath.Join(folder, "ombstx", "offline", "BSTCNTOF.DBF")
	r, err := dbf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("s7psubblock: %w", err)
	}
	defer r.Close()

	idIdx, err := r.FieldIndex("ID")
	if err != nil {
		return nil, fmt.Errorf("s7psubblock: %s: %w", path, err)
	}

	out := make(map[uint32]Maps)
	for {
		rec, err := r.NextRecord()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("s7psubblock: %s: %w", path, err)
		}

		id, err := strconv.ParseUint(strings.TrimSpace(rec[idIdx]), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("s7psubblock: %s: row has non-numeric ID %q: %w", path, rec[idIdx], err)
		}
		subblockListID := uint32(id)
		if !knownSubblockListIDs[subblockListID] {
			continue
		}

		m, err := readSubblockList(ListPath(folder, subblockListID))
		if err != nil {
			return nil, err
		}
		out[subblockListID] = m
	}
	return out, nil
}

func readSubblockList(path string) (Maps, error) {
	m := newMaps()

	r, err := dbf.Open(path)
	if err != nil {
		return m, fmt.Errorf("s7psubblock: %w", err)
	}
	defer r.Close()

	typIdx, err := r.FieldIndex("SUBBLKTYP")
	if err != nil {
		return m, fmt.Errorf("s7psubblock: %s: %w", path, err)
	}
	numIdx, err := r.FieldIndex("BLKNUMBER")
	if err != nil {
		return m, fmt.Errorf("s7psubblock: %s: %w", path, err)
	}
	lenIdx, err := r.FieldIndex("MC5LEN")
	if err != nil {
		return m, fmt.Errorf("s7psubblock: %s: %w", path, err)
	}
	codeIdx, err := r.FieldIndex("MC5CODE")
	if err != nil {
		return m, fmt.Errorf("s7psubblock: %s: %w", path, err)
	}

	for {
		rec, err := r.NextRecord()
		if err == io.EOF {
			break
		}
		if err != nil {
			return m, fmt.Errorf("s7psubblock: %s: %w", path, err)
		}

		kind, ok := subblkTypeToKind[strings.TrimSpace(rec[typIdx])]
		if !ok {
			continue
		}
		blkNum, err := strconv.ParseUint(strings.TrimSpace(rec[numIdx]), 10, 32)
		if err != nil {
			return m, fmt.Errorf("s7psubblock: %s: row has non-numeric BLKNUMBER %q: %w", path, rec[numIdx], err)
		}
		mc5len, err := strconv.Atoi(strings.TrimSpace(rec[lenIdx]))
		if err != nil {
			return m, fmt.Errorf("s7psubblock: %s: row has non-numeric MC5LEN %q: %w", path, rec[lenIdx], err)
		}
		code := rec[codeIdx]
		if mc5len < len(code) {
			code = code[:mc5len]
		}

		dest := m.byKind(kind)
		dest[uint32(blkNum)] = code
	}
	return m, nil
}
