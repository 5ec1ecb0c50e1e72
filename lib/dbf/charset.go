// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package dbf

import "golang.org/x/text/encoding/charmap"

// DecodeWindows1252 converts a raw dBASE field value (as returned by
// Reader.NextRecord, one byte per Windows-1252 code point) to UTF-8.
// Callers apply this only to fields that are meant for human eyes
// (names, comments); address codes and numeric fields are pure ASCII
// and never need it.
func DecodeWindows1252(s string) string {
	if isASCII(s) {
		return s
	}
	out, err := charmap.Windows1252.NewDecoder().String(s)
	if err != nil {
		return s
	}
	return out
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
