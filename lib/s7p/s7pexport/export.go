// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package s7pexport writes a parsed project's symbol tree as delimited
// text, matching the row layout of the original S7-Project-Explorer's
// CSV exporter: one row per symbol, grouped block-by-block under a
// bracketed header, separated by blank lines.
package s7pexport

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"git.lukeshu.com/s7pextract/lib/s7p"
)

const delimiter = ';'

// WriteDelimited writes devices as delimited text to w: each device
// under a "[[device name]]" header, each of its blocks under a nested
// "[block name]" header, and one "Name;Address;Type;Comment" row per
// symbol. Fields are double-quoted only when they contain the
// delimiter, a quote, or a newline.
func WriteDelimited(w io.Writer, devices []s7p.DeviceSymbolInfo) error {
	bw := bufio.NewWriter(w)
	for i, device := range devices {
		if i > 0 {
			if _, err := fmt.Fprintln(bw); err != nil {
				return fmt.Errorf("s7pexport: %w", err)
			}
		}
		if _, err := fmt.Fprintf(bw, "[[%s]]\n", quoteField(device.Name)); err != nil {
			return fmt.Errorf("s7pexport: %w", err)
		}
		for _, block := range device.Blocks {
			if _, err := fmt.Fprintln(bw); err != nil {
				return fmt.Errorf("s7pexport: %w", err)
			}
			if _, err := fmt.Fprintf(bw, "[%s]\n", quoteField(block.Name)); err != nil {
				return fmt.Errorf("s7pexport: %w", err)
			}
			if err := writeRow(bw, "Name", "Address", "Type", "Comment"); err != nil {
				return err
			}
			for _, sym := range block.Symbols {
				if err := writeRow(bw, sym.Name, sym.Code, sym.Datatype, sym.Comment); err != nil {
					return err
				}
			}
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("s7pexport: %w", err)
	}
	return nil
}

func writeRow(bw *bufio.Writer, fields ...string) error {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = quoteField(f)
	}
	if _, err := fmt.Fprintln(bw, strings.Join(quoted, string(delimiter))); err != nil {
		return fmt.Errorf("s7pexport: %w", err)
	}
	return nil
}

func quoteField(s string) string {
	if !strings.ContainsAny(s, string(delimiter)+`"`+"\n") {
		return s
	}
	return strconv.Quote(s)
}
