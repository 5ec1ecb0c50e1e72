// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package s7pdevice correlates a STEP 7 project's station, device,
// and program tables (plus the linkhrs.lnk binary index) into a flat
// list of devices, each carrying the subblock-list and symbol-list
// IDs that the rest of the s7p pipeline joins against.
package s7pdevice

import (
	"git.lukeshu.com/s7pextract/lib/containers"
)

// DeviceIDInfo is the intermediate result of resolving a project's
// station/device/program graph: a device name and the two list IDs
// (subblock list, symbol list) needed to find its declarations. It is
// not exported beyond the s7p pipeline.
type DeviceIDInfo struct {
	Name           string
	SubblockListID containers.Optional[uint32]
	SymbolListID   containers.Optional[uint32]
}

// objKey is a (ID, OBJTYP) pair, the join key used throughout the
// hOmSave7 station/device/relation tables.
type objKey struct {
	id  string
	typ string
}

// stationFamilies maps the HOBJECT1.DBF OBJTYP values that denote a
// station to the human-readable model family named in that station's
// synthesized name.
var stationFamilies = map[string]string{
	"1314969": "S7-300",
	"1314970": "S7-400",
	"1315650": "S7-400H",
	"1315651": "S7-PC",
}

const (
	relIDStationToDevice = "1315838"
	relIDDeviceToProgram = "16"
)

// cpuFamilyTables are the hOmSave7 subdirectories that each carry a
// HOBJECT1.DBF/HRELATI1.DBF pair for one CPU family.
var cpuFamilyTables = []string{"S7HK31AX", "S7HK41AX"}
