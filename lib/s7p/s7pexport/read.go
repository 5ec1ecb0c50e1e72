// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package s7pexport

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"git.lukeshu.com/s7pextract/lib/s7p"
)

// ReadDelimited parses text written by WriteDelimited back into
// devices and their blocks. It exists only to drive the round-trip
// testable property; nothing in cmd/s7pextract reads this format
// back in.
func ReadDelimited(r io.Reader) ([]s7p.DeviceSymbolInfo, error) {
	scanner := bufio.NewScanner(r)
	var devices []s7p.DeviceSymbolInfo
	var curBlock *s7p.Block
	var wantHeader bool

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "[[") && strings.HasSuffix(line, "]]"):
			name, err := unquoteField(line[2 : len(line)-2])
			if err != nil {
				return nil, fmt.Errorf("s7pexport: device header %q: %w", line, err)
			}
			devices = append(devices, s7p.DeviceSymbolInfo{Name: name})
			curBlock = nil
			wantHeader = false
		case strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]"):
			if len(devices) == 0 {
				return nil, fmt.Errorf("s7pexport: block header %q before any device header", line)
			}
			name, err := unquoteField(line[1 : len(line)-1])
			if err != nil {
				return nil, fmt.Errorf("s7pexport: block header %q: %w", line, err)
			}
			dev := &devices[len(devices)-1]
			dev.Blocks = append(dev.Blocks, s7p.Block{Name: name})
			curBlock = &dev.Blocks[len(dev.Blocks)-1]
			wantHeader = true
		default:
			if curBlock == nil {
				return nil, fmt.Errorf("s7pexport: row %q before any block header", line)
			}
			fields, err := splitRow(line)
			if err != nil {
				return nil, fmt.Errorf("s7pexport: row %q: %w", line, err)
			}
			if wantHeader {
				wantHeader = false
				continue
			}
			if len(fields) != 4 {
				return nil, fmt.Errorf("s7pexport: row %q: want 4 fields, got %d", line, len(fields))
			}
			curBlock.Symbols = append(curBlock.Symbols, s7p.Symbol{
				Name:     fields[0],
				Code:     fields[1],
				Datatype: fields[2],
				Comment:  fields[3],
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("s7pexport: %w", err)
	}
	return devices, nil
}

func splitRow(line string) ([]string, error) {
	var fields []string
	var cur strings.Builder
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case byte(delimiter):
			fields = append(fields, cur.String())
			cur.Reset()
		case '"':
			end := findClosingQuote(line, i)
			if end < 0 {
				return nil, fmt.Errorf("unterminated quoted field")
			}
			val, err := unquoteField(line[i : end+1])
			if err != nil {
				return nil, err
			}
			cur.WriteString(val)
			i = end
		default:
			cur.WriteByte(line[i])
		}
	}
	fields = append(fields, cur.String())
	return fields, nil
}

func findClosingQuote(s string, start int) int {
	for i := start + 1; i < len(s); i++ {
		if s[i] == '\\' {
			i++
			continue
		}
		if s[i] == '"' {
			return i
		}
	}
	return -1
}

func unquoteField(s string) (string, error) {
	if !strings.HasPrefix(s, `"`) {
		return s, nil
	}
	return strconv.Unquote(s)
}
