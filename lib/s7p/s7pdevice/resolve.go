// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package s7pdevice

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"git.lukeshu.com/s7pextract/lib/dbf"
)

// Resolve walks the station/device/program graph of the project at
// folder and returns one DeviceIDInfo per hrs/S7RESOFF.DBF row.
func Resolve(folder string) ([]DeviceIDInfo, error) {
	// Stage 1+2+3: build a map from a program's (ID, OBJTYP) key to
	// the fully-qualified "station -> device" name prefix that
	// precedes it. If hOmSave7 is absent entirely, this map stays
	// empty and every program keeps just its own name.
	programParents, err := resolveProgramParents(folder)
	if err != nil {
		return nil, err
	}

	// Stage 4: hrs/S7RESOFF.DBF + hrs/linkhrs.lnk.
	return resolvePrograms(folder, programParents)
}

// resolveProgramParents implements stages 1-3 of §4.2: stations,
// station->device relations, and device->program relations, across
// both CPU-family table pairs. Returns nil (not an error) if the
// hOmSave7 tree is missing.
func resolveProgramParents(folder string) (map[objKey]string, error) {
	stationDir := filepath.Join(folder, "hOmSave7", "s7hstatx")
	if _, err := os.Stat(filepath.Join(stationDir, "HOBJECT1.DBF")); os.IsNotExist(err) {
		return nil, nil
	}

	stations, err := readStations(stationDir)
	if err != nil {
		return nil, err
	}
	stationRelations, err := readRelations(stationDir, relIDStationToDevice, func(k objKey) (string, bool) {
		name, ok := stations[k]
		return name, ok
	})
	if err != nil {
		return nil, err
	}

	programParents := make(map[objKey]string)
	for _, family := range cpuFamilyTables {
		familyDir := filepath.Join(folder, "hOmSave7", family)
		if _, err := os.Stat(filepath.Join(familyDir, "HOBJECT1.DBF")); os.IsNotExist(err) {
			continue
		}
		devices, err := readDevices(familyDir, stationRelations)
		if err != nil {
			return nil, err
		}
		deviceRelations, err := readRelations(familyDir, relIDDeviceToProgram, func(k objKey) (string, bool) {
			name, ok := devices[k]
			return name, ok
		})
		if err != nil {
			return nil, err
		}
		for k, name := range deviceRelations {
			programParents[k] = name
		}
	}
	return programParents, nil
}

// readStations implements §4.2 stage 1.
func readStations(dir string) (map[objKey]string, error) {
	path := filepath.Join(dir, "HOBJECT1.DBF")
	r, err := dbf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("s7pdevice: %w", err)
	}
	defer r.Close()

	idIdx, err := r.FieldIndex("ID")
	if err != nil {
		return nil, fmt.Errorf("s7pdevice: %s: %w", path, err)
	}
	typIdx, err := r.FieldIndex("OBJTYP")
	if err != nil {
		return nil, fmt.Errorf("s7pdevice: %s: %w", path, err)
	}
	nameIdx, err := r.FieldIndex("NAME")
	if err != nil {
		return nil, fmt.Errorf("s7pdevice: %s: %w", path, err)
	}

	out := make(map[objKey]string)
	for {
		rec, err := readRecordOrEOF(r)
		if err != nil {
			return nil, fmt.Errorf("s7pdevice: %s: %w", path, err)
		}
		if rec == nil {
			break
		}
		family, ok := stationFamilies[rec[typIdx]]
		if !ok {
			continue
		}
		key := objKey{id: rec[idIdx], typ: rec[typIdx]}
		out[key] = family + ": " + dbf.DecodeWindows1252(rec[nameIdx])
	}
	return out, nil
}

// readDevices implements the HOBJECT1.DBF half of §4.2 stage 3: keep
// rows whose (ID, OBJTYP) matches an entry in parents, and extend its
// name with " -> <NAME>".
func readDevices(dir string, parents map[objKey]string) (map[objKey]string, error) {
	path := filepath.Join(dir, "HOBJECT1.DBF")
	r, err := dbf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("s7pdevice: %w", err)
	}
	defer r.Close()

	idIdx, err := r.FieldIndex("ID")
	if err != nil {
		return nil, fmt.Errorf("s7pdevice: %s: %w", path, err)
	}
	typIdx, err := r.FieldIndex("OBJTYP")
	if err != nil {
		return nil, fmt.Errorf("s7pdevice: %s: %w", path, err)
	}
	nameIdx, err := r.FieldIndex("NAME")
	if err != nil {
		return nil, fmt.Errorf("s7pdevice: %s: %w", path, err)
	}

	out := make(map[objKey]string)
	for {
		rec, err := readRecordOrEOF(r)
		if err != nil {
			return nil, fmt.Errorf("s7pdevice: %s: %w", path, err)
		}
		if rec == nil {
			break
		}
		key := objKey{id: rec[idIdx], typ: rec[typIdx]}
		parentName, ok := parents[key]
		if !ok {
			continue
		}
		out[key] = parentName + " -> " + dbf.DecodeWindows1252(rec[nameIdx])
	}
	return out, nil
}

// readRelations implements the HRELATI1.DBF half of §4.2 stages 2 and
// 3: keep rows with the given RELID whose (SOBJID, SOBJTYP) resolves
// via lookup, and return a map keyed by the relation's (TOBJID,
// TOBJTYP) target carrying the looked-up name forward.
func readRelations(dir, relID string, lookup func(objKey) (string, bool)) (map[objKey]string, error) {
	path := filepath.Join(dir, "HRELATI1.DBF")
	r, err := dbf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("s7pdevice: %w", err)
	}
	defer r.Close()

	sObjIDIdx, err := r.FieldIndex("SOBJID")
	if err != nil {
		return nil, fmt.Errorf("s7pdevice: %s: %w", path, err)
	}
	sObjTypIdx, err := r.FieldIndex("SOBJTYP")
	if err != nil {
		return nil, fmt.Errorf("s7pdevice: %s: %w", path, err)
	}
	tObjIDIdx, err := r.FieldIndex("TOBJID")
	if err != nil {
		return nil, fmt.Errorf("s7pdevice: %s: %w", path, err)
	}
	tObjTypIdx, err := r.FieldIndex("TOBJTYP")
	if err != nil {
		return nil, fmt.Errorf("s7pdevice: %s: %w", path, err)
	}
	relIDIdx, err := r.FieldIndex("RELID")
	if err != nil {
		return nil, fmt.Errorf("s7pdevice: %s: %w", path, err)
	}

	out := make(map[objKey]string)
	for {
		rec, err := readRecordOrEOF(r)
		if err != nil {
			return nil, fmt.Errorf("s7pdevice: %s: %w", path, err)
		}
		if rec == nil {
			break
		}
		if rec[relIDIdx] != relID {
			continue
		}
		sourceKey := objKey{id: rec[sObjIDIdx], typ: rec[sObjTypIdx]}
		name, ok := lookup(sourceKey)
		if !ok {
			continue
		}
		targetKey := objKey{id: rec[tObjIDIdx], typ: rec[tObjTypIdx]}
		out[targetKey] = name
	}
	return out, nil
}

// resolvePrograms implements §4.2 stage 4.
func resolvePrograms(folder string, programParents map[objKey]string) ([]DeviceIDInfo, error) {
	path := filepath.Join(folder, "hrs", "S7RESOFF.DBF")
	r, err := dbf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("s7pdevice: %w", err)
	}
	defer r.Close()

	idIdx, err := r.FieldIndex("ID")
	if err != nil {
		return nil, fmt.Errorf("s7pdevice: %s: %w", path, err)
	}
	typIdx, err := r.FieldIndex("OBJTYP")
	if err != nil {
		return nil, fmt.Errorf("s7pdevice: %s: %w", path, err)
	}
	nameIdx, err := r.FieldIndex("NAME")
	if err != nil {
		return nil, fmt.Errorf("s7pdevice: %s: %w", path, err)
	}
	offsetIdx, err := r.FieldIndex("RSRVD4_L")
	if err != nil {
		return nil, fmt.Errorf("s7pdevice: %s: %w", path, err)
	}

	lnkPath := filepath.Join(folder, "hrs", "linkhrs.lnk")
	lnk, err := openLnk(lnkPath)
	if err != nil {
		return nil, fmt.Errorf("s7pdevice: %w", err)
	}
	defer lnk.Close()

	var out []DeviceIDInfo
	for {
		rec, err := readRecordOrEOF(r)
		if err != nil {
			return nil, fmt.Errorf("s7pdevice: %s: %w", path, err)
		}
		if rec == nil {
			break
		}

		programName := dbf.DecodeWindows1252(rec[nameIdx])
		fullName := programName
		key := objKey{id: rec[idIdx], typ: rec[typIdx]}
		if parentName, ok := programParents[key]; ok {
			fullName = parentName + " -> " + programName
		}

		offset, err := strconv.ParseInt(rec[offsetIdx], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("s7pdevice: %s: row %q: RSRVD4_L is not numeric: %w", path, rec[nameIdx], err)
		}

		subblockListID, symbolListID, err := lnk.readListIDs(offset)
		if err != nil {
			return nil, fmt.Errorf("s7pdevice: %s: %w", lnkPath, err)
		}

		out = append(out, DeviceIDInfo{
			Name:           fullName,
			SubblockListID: subblockListID,
			SymbolListID:   symbolListID,
		})
	}
	return out, nil
}

// readRecordOrEOF adapts dbf.Reader.NextRecord's io.EOF sentinel into
// a (nil, nil) stop condition, so callers can range without importing
// io just for the sentinel check.
func readRecordOrEOF(r *dbf.Reader) ([]string, error) {
	rec, err := r.NextRecord()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}
