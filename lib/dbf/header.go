// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package dbf reads dBASE III-family ".DBF" tables: a 32-byte file
// header, a run of 32-byte field descriptors terminated by 0x0D, and
// then fixed-length records each prefixed by a one-byte
// live/deleted marker.
package dbf

import (
	"fmt"

	"git.lukeshu.com/s7pextract/lib/binstruct"
)

// fileHeader is the fixed 32-byte dBASE III header.
type fileHeader struct {
	Version       uint8    `bin:"off=0x00,siz=1"`
	LastUpdateYY  uint8    `bin:"off=0x01,siz=1"`
	LastUpdateMM  uint8    `bin:"off=0x02,siz=1"`
	LastUpdateDD  uint8    `bin:"off=0x03,siz=1"`
	NumRecords    uint32   `bin:"off=0x04,siz=4"`
	HeaderSize    uint16   `bin:"off=0x08,siz=2"`
	RecordSize    uint16   `bin:"off=0x0a,siz=2"`
	Reserved      [20]byte `bin:"off=0x0c,siz=20"`
	binstruct.End `bin:"off=0x20"`
}

const fieldDescriptorTerminator = 0x0d

// fieldDescriptor is one 32-byte field descriptor entry following the
// file header.
type fieldDescriptor struct {
	Name          [11]byte `bin:"off=0x00,siz=11"`
	Type          uint8    `bin:"off=0x0b,siz=1"`
	DataAddress   uint32   `bin:"off=0x0c,siz=4"`
	Length        uint8    `bin:"off=0x10,siz=1"`
	DecimalCount  uint8    `bin:"off=0x11,siz=1"`
	Reserved      [14]byte `bin:"off=0x12,siz=14"`
	binstruct.End `bin:"off=0x20"`
}

func (fd fieldDescriptor) name() string {
	n := 0
	for n < len(fd.Name) && fd.Name[n] != 0 {
		n++
	}
	return string(fd.Name[:n])
}

// HeaderError is returned for a malformed file header or field
// descriptor table.
type HeaderError struct {
	Path string
	Err  error
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("dbf: %s: malformed header: %v", e.Path, e.Err)
}
func (e *HeaderError) Unwrap() error { return e.Err }
