// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package s7p is the top-level orchestrator (C6): it drives the
// device-identity resolver, the symbol-list parser, the subblock-list
// loader, and the MC5 layout engine over one STEP 7 project folder
// and merges their output into a per-device symbol tree.
package s7p

import (
	"context"
	"fmt"

	"github.com/datawire/dlib/dlog"

	"git.lukeshu.com/s7pextract/lib/maps"
	"git.lukeshu.com/s7pextract/lib/s7p/mc5"
	"git.lukeshu.com/s7pextract/lib/s7p/s7pdevice"
	"git.lukeshu.com/s7pextract/lib/s7p/s7psubblock"
	"git.lukeshu.com/s7pextract/lib/s7p/s7psymlist"
)

// Symbol is one emitted variable: an absolute address, its declared
// data type, and its comment.
type Symbol struct {
	Name     string
	Code     string
	Datatype string
	Comment  string
}

// Block is a named, ordered sequence of symbols: either the device's
// flat "Symbol List", or one DB's MC5-derived declarations.
type Block struct {
	Name    string
	Symbols []Symbol
}

// DeviceSymbolInfo is the final, per-device result: its identity
// (station-type: station-name -> device-name -> program-name), its
// blocks in discovery order, any human-given DB names, and any
// non-fatal warnings collected while parsing it.
type DeviceSymbolInfo struct {
	Name     string
	Blocks   []Block
	DBNames  map[uint32]string
	Warnings []string
}

// MissingDeviceError is returned when C4 cannot find the
// DeviceSymbolInfo matching a subblock list's owning device.
type MissingDeviceError struct {
	DeviceName string
}

func (e *MissingDeviceError) Error() string {
	return fmt.Sprintf("s7p: no device symbol info for device %q", e.DeviceName)
}

// Parse runs the full pipeline over the project at folder: C2 → C3 →
// C4 → C5, merging each device's blocks and warnings. It returns an
// ordered slice of DeviceSymbolInfo in the order devices are
// enumerated by YDBs/SYMLISTS.DBF. Each device's DBs are parsed
// sequentially in ascending db_number order, per §5's default
// single-threaded model.
func Parse(ctx context.Context, folder string) ([]DeviceSymbolInfo, error) {
	return parse(ctx, folder, mc5.ParseDBs)
}

// ParseConcurrent is Parse, but parses each device's DBs concurrently
// (one goroutine per DB) via mc5.ParseDBsConcurrent. §5 permits this
// as long as block and warning ordering is preserved, which it is.
func ParseConcurrent(ctx context.Context, folder string) ([]DeviceSymbolInfo, error) {
	return parse(ctx, folder, mc5.ParseDBsConcurrent)
}

func parse(ctx context.Context, folder string, parseDBs func([]mc5.DB, mc5.DeclSource) ([]mc5.Block, []mc5.Warning)) ([]DeviceSymbolInfo, error) {
	deviceIDs, err := s7pdevice.Resolve(folder)
	if err != nil {
		return nil, fmt.Errorf("s7p: %w", err)
	}

	symDeviceIDs := make([]s7psymlist.DeviceID, len(deviceIDs))
	for i, d := range deviceIDs {
		symDeviceIDs[i] = s7psymlist.DeviceID{
			Name:           d.Name,
			SymbolListID:   d.SymbolListID.Val,
			HasSymbolList:  d.SymbolListID.OK,
			SubblockListID: d.SubblockListID.Val,
			HasSubblock:    d.SubblockListID.OK,
		}
	}

	symInfos, err := s7psymlist.Parse(folder, symDeviceIDs)
	if err != nil {
		return nil, fmt.Errorf("s7p: %w", err)
	}

	devices := make([]DeviceSymbolInfo, len(symInfos))
	byName := make(map[string]*DeviceSymbolInfo, len(symInfos))
	for i, si := range symInfos {
		blocks := make([]Block, len(si.Blocks))
		for j, b := range si.Blocks {
			symbols := make([]Symbol, len(b.Symbols))
			for k, s := range b.Symbols {
				symbols[k] = Symbol{Name: s.Name, Code: s.Code, Datatype: s.Datatype, Comment: s.Comment}
			}
			blocks[j] = Block{Name: b.Name, Symbols: symbols}
		}
		devices[i] = DeviceSymbolInfo{
			Name:    si.Name,
			Blocks:  blocks,
			DBNames: si.DBNames,
		}
		byName[si.Name] = &devices[i]
	}

	knownSubblockListIDs := make(map[uint32]bool)
	deviceNameBySubblockListID := make(map[uint32]string)
	for _, d := range deviceIDs {
		if d.SubblockListID.OK {
			knownSubblockListIDs[d.SubblockListID.Val] = true
			deviceNameBySubblockListID[d.SubblockListID.Val] = d.Name
		}
	}

	subblockMaps, err := s7psubblock.ParseLists(folder, knownSubblockListIDs)
	if err != nil {
		return nil, fmt.Errorf("s7p: %w", err)
	}

	for _, subblockListID := range maps.SortedKeys(subblockMaps) {
		blkMaps := subblockMaps[subblockListID]
		deviceName, ok := deviceNameBySubblockListID[subblockListID]
		if !ok {
			dlog.Debugf(ctx, "skipping orphan subblock list %d (no device references it)", subblockListID)
			continue
		}
		device, ok := byName[deviceName]
		if !ok {
			return nil, fmt.Errorf("s7p: %w", &MissingDeviceError{DeviceName: deviceName})
		}

		var dbs []mc5.DB
		for _, n := range maps.SortedKeys(blkMaps.DB) {
			dbRefBlob, hasRef := blkMaps.DBRef[n]
			dbs = append(dbs, mc5.DB{
				Number:    n,
				MC5Code:   blkMaps.DB[n],
				DBRefBlob: dbRefBlob,
				HasDBRef:  hasRef,
				DBName:    device.DBNames[n],
			})
		}

		blocks, warnings := parseDBs(dbs, subblockDecls{blkMaps})
		for _, b := range blocks {
			symbols := make([]Symbol, len(b.Symbols))
			for k, s := range b.Symbols {
				symbols[k] = Symbol{Name: s.Name, Code: s.Code, Datatype: s.Datatype, Comment: s.Comment}
			}
			device.Blocks = append(device.Blocks, Block{Name: b.Name, Symbols: symbols})
		}
		for _, w := range warnings {
			device.Warnings = append(device.Warnings, w.Error())
		}
	}

	return devices, nil
}

// subblockDecls adapts one subblock list's Maps to mc5.DeclSource.
type subblockDecls struct {
	m s7psubblock.Maps
}

func (d subblockDecls) FB(n uint32) (string, bool)  { s, ok := d.m.FB[n]; return s, ok }
func (d subblockDecls) SFB(n uint32) (string, bool) { s, ok := d.m.SFB[n]; return s, ok }
func (d subblockDecls) UDT(n uint32) (string, bool) { s, ok := d.m.UDT[n]; return s, ok }
