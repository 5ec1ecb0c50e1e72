// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package s7psymlist reads a STEP 7 project's symbol lists (YDBs): the
// flat table of global I/M/Q symbols per device, plus any human-given
// DB names harvested along the way.
package s7psymlist

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"git.lukeshu.com/s7pextract/lib/dbf"
)

// Symbol is one flat global (I/M/Q) row from a device's SYMLIST.DBF.
// DB-name rows go to DeviceSymbolInfo.DBNames instead.
type Symbol struct {
	Name     string
	Code     string
	Datatype string
	Comment  string
}

// Block is a named, ordered sequence of symbols.
type Block struct {
	Name    string
	Symbols []Symbol
}

// DeviceSymbolInfo is this package's per-device result. Package s7p
// copies it into s7p.DeviceSymbolInfo and appends the MC5-derived
// blocks and warnings there; Warnings is never set by this package.
type DeviceSymbolInfo struct {
	Name     string
	Blocks   []Block
	DBNames  map[uint32]string
	Warnings []string
}

// DeviceID is the subset of s7pdevice.DeviceIDInfo this package needs;
// expressed as its own interface-free struct so that this package
// does not import s7pdevice.
type DeviceID struct {
	Name           string
	SymbolListID   uint32
	HasSymbolList  bool
	SubblockListID uint32
	HasSubblock    bool
}

// MissingDeviceError is returned when a SYMLISTS.DBF row's _ID does
// not match any known device's symbol_list_id.
type MissingDeviceError struct {
	SymlistID uint32
}

func (e *MissingDeviceError) Error() string {
	return fmt.Sprintf("s7psymlist: no device has symbol_list_id %d", e.SymlistID)
}

// Parse reads YDBs/SYMLISTS.DBF and, for each row, the device's own
// YDBs/<dbpath>/SYMLIST.DBF, returning one DeviceSymbolInfo per row in
// SYMLISTS.DBF enumeration order.
func Parse(folder string, deviceIDs []DeviceID) ([]DeviceSymbolInfo, error) {
	path := filepath.Join(folder, "YDBs", "SYMLISTS.DBF")
	r, err := dbf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("s7psymlist: %w", err)
	}
	defer r.Close()

	idIdx, err := r.FieldIndex("_ID")
	if err != nil {
		return nil, fmt.Errorf("s7psymlist: %s: %w", path, err)
	}
	pathIdx, err := r.FieldIndex("_DBPATH")
	if err != nil {
		return nil, fmt.Errorf("s7psymlist: %s: %w", path, err)
	}

	var out []DeviceSymbolInfo
	for {
		rec, err := r.NextRecord()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("s7psymlist: %s: %w", path, err)
		}

		symlistID, err := strconv.ParseUint(strings.TrimSpace(rec[idIdx]), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("s7psymlist: %s: row has non-numeric _ID %q: %w", path, rec[idIdx], err)
		}

		device, ok := findBySymlistID(deviceIDs, uint32(symlistID))
		if !ok {
			return nil, fmt.Errorf("s7psymlist: %w", &MissingDeviceError{SymlistID: uint32(symlistID)})
		}

		info := DeviceSymbolInfo{
			Name:    device.Name,
			Blocks:  []Block{{Name: "Symbol List"}},
			DBNames: make(map[uint32]string),
		}

		dbPath := filepath.Join(folder, "YDBs", rec[pathIdx], "SYMLIST.DBF")
		if err := readSymlist(dbPath, &info); err != nil {
			return nil, err
		}

		out = append(out, info)
	}
	return out, nil
}

func findBySymlistID(devices []DeviceID, id uint32) (DeviceID, bool) {
	for _, d := range devices {
		if d.HasSymbolList && d.SymbolListID == id {
			return d, true
		}
	}
	return DeviceID{}, false
}

func readSymlist(path string, info *DeviceSymbolInfo) error {
	r, err := dbf.Open(path)
	if err != nil {
		return fmt.Errorf("s7psymlist: %w", err)
	}
	defer r.Close()

	skzIdx, err := r.FieldIndex("_SKZ")
	if err != nil {
		return fmt.Errorf("s7psymlist: %s: %w", path, err)
	}
	opiecIdx, err := r.FieldIndex("_OPIEC")
	if err != nil {
		return fmt.Errorf("s7psymlist: %s: %w", path, err)
	}
	typIdx, err := r.FieldIndex("_DATATYP")
	if err != nil {
		return fmt.Errorf("s7psymlist: %s: %w", path, err)
	}
	commentIdx, err := r.FieldIndex("_COMMENT")
	if err != nil {
		return fmt.Errorf("s7psymlist: %s: %w", path, err)
	}

	for {
		rec, err := r.NextRecord()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("s7psymlist: %s: %w", path, err)
		}

		name := dbf.DecodeWindows1252(rec[skzIdx])
		opiec := strings.TrimSpace(rec[opiecIdx])
		datatype := rec[typIdx]
		comment := dbf.DecodeWindows1252(rec[commentIdx])

		if opiec == "" {
			continue
		}
		switch opiec[0] {
		case 'I', 'M', 'Q':
			info.Blocks[0].Symbols = append(info.Blocks[0].Symbols, Symbol{
				Name:     name,
				Code:     opiec,
				Datatype: datatype,
				Comment:  comment,
			})
		default:
			if strings.HasPrefix(opiec, "DB") {
				if n, err := strconv.ParseUint(opiec[2:], 10, 32); err == nil {
					info.DBNames[uint32(n)] = name
				}
			}
		}
	}
	return nil
}
