// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package dbf

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"git.lukeshu.com/s7pextract/lib/binstruct"
)

const (
	liveMarker    = ' '
	deletedMarker = '*'

	// endOfFileMarker is the single 0x1A byte dBASE III writes after
	// the last record, in place of a well-formed status byte.
	endOfFileMarker = 0x1A
)

// FieldMissingError is returned by Reader.FieldIndex when the table
// has no field with the requested name.
type FieldMissingError struct {
	Path  string
	Field string
}

func (e *FieldMissingError) Error() string {
	return fmt.Sprintf("dbf: %s: no such field %q", e.Path, e.Field)
}

// Reader streams records from an open dBASE III table.
type Reader struct {
	path       string
	file       *os.File
	r          *bufio.Reader
	fields     []fieldDescriptor
	fieldIndex map[string]int
	recordSize int
	numRecords uint32
	read       uint32
}

// Open opens the dBASE III table at path and reads its header and
// field descriptors, leaving the stream positioned at the first
// record.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := bufio.NewReader(f)

	var hdr fileHeader
	hdrBuf := make([]byte, binstruct.StaticSize(hdr))
	if _, err := io.ReadFull(r, hdrBuf); err != nil {
		_ = f.Close()
		return nil, &HeaderError{Path: path, Err: err}
	}
	if _, err := binstruct.Unmarshal(hdrBuf, &hdr); err != nil {
		_ = f.Close()
		return nil, &HeaderError{Path: path, Err: err}
	}

	ret := &Reader{
		path:       path,
		file:       f,
		r:          r,
		fieldIndex: make(map[string]int),
		recordSize: int(hdr.RecordSize),
		numRecords: hdr.NumRecords,
	}

	var fdBuf fieldDescriptor
	fdSize := binstruct.StaticSize(fdBuf)
	buf := make([]byte, fdSize)
	for {
		first, err := r.Peek(1)
		if err != nil {
			_ = f.Close()
			return nil, &HeaderError{Path: path, Err: err}
		}
		if first[0] == fieldDescriptorTerminator {
			_, _ = r.Discard(1)
			break
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			_ = f.Close()
			return nil, &HeaderError{Path: path, Err: err}
		}
		var fd fieldDescriptor
		if _, err := binstruct.Unmarshal(buf, &fd); err != nil {
			_ = f.Close()
			return nil, &HeaderError{Path: path, Err: err}
		}
		ret.fieldIndex[fd.name()] = len(ret.fields)
		ret.fields = append(ret.fields, fd)
	}

	return ret, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// FieldIndex returns the positional index of the named field.
func (r *Reader) FieldIndex(name string) (int, error) {
	idx, ok := r.fieldIndex[name]
	if !ok {
		return 0, &FieldMissingError{Path: r.path, Field: name}
	}
	return idx, nil
}

// NextRecord reads the next live record, skipping over any deleted
// records, and returns its fields as trimmed strings in field-descriptor
// order. It returns io.EOF once the table is exhausted.
//
// Field values are trimmed of leading and trailing ASCII spaces; the
// raw 8-bit bytes are otherwise preserved verbatim (no charset
// conversion, no numeric parsing — that is left to the caller).
func (r *Reader) NextRecord() ([]string, error) {
	buf := make([]byte, r.recordSize)
	for {
		if r.read >= r.numRecords {
			return nil, io.EOF
		}
		n, err := io.ReadFull(r.r, buf)
		if err == io.EOF || (err == io.ErrUnexpectedEOF && (n == 0 || buf[0] == endOfFileMarker)) {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("dbf: %s: truncated record: %w", r.path, err)
		}
		r.read++
		if buf[0] == deletedMarker {
			continue
		}
		if buf[0] != liveMarker {
			return nil, fmt.Errorf("dbf: %s: record has unrecognized status byte %#x", r.path, buf[0])
		}
		return r.splitRecord(buf[1:]), nil
	}
}

func (r *Reader) splitRecord(dat []byte) []string {
	out := make([]string, len(r.fields))
	off := 0
	for i, fd := range r.fields {
		length := int(fd.Length)
		end := off + length
		if end > len(dat) {
			end = len(dat)
		}
		out[i] = trimASCIISpace(string(dat[off:end]))
		off += length
	}
	return out
}

func trimASCIISpace(s string) string {
	start := 0
	for start < len(s) && s[start] == ' ' {
		start++
	}
	end := len(s)
	for end > start && s[end-1] == ' ' {
		end--
	}
	return s[start:end]
}
