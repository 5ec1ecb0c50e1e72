// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package mc5

// primitiveInfo describes one primitive type's entry alignment (in
// bits) and per-element size (in bits), per §4.5.3.
type primitiveInfo struct {
	alignBits int
	sizeBits  int
}

var primitives = map[string]primitiveInfo{
	"BOOL": {alignBits: 0, sizeBits: 1},

	"BYTE": {alignBits: 8, sizeBits: 8},
	"CHAR": {alignBits: 8, sizeBits: 8},

	"INT":      {alignBits: 16, sizeBits: 16},
	"WORD":     {alignBits: 16, sizeBits: 16},
	"COUNTER":  {alignBits: 16, sizeBits: 16},
	"DATE":     {alignBits: 16, sizeBits: 16},
	"TIMER":    {alignBits: 16, sizeBits: 16},
	"S5TIME":   {alignBits: 16, sizeBits: 16},
	"BLOCK_DB": {alignBits: 16, sizeBits: 16},
	"BLOCK_FB": {alignBits: 16, sizeBits: 16},
	"BLOCK_FC": {alignBits: 16, sizeBits: 16},
	"BLOCK_SDB": {alignBits: 16, sizeBits: 16},

	"DINT":        {alignBits: 16, sizeBits: 32},
	"DWORD":       {alignBits: 16, sizeBits: 32},
	"REAL":        {alignBits: 16, sizeBits: 32},
	"TIME":        {alignBits: 16, sizeBits: 32},
	"TIME_OF_DAY": {alignBits: 16, sizeBits: 32},

	"POINTER": {alignBits: 16, sizeBits: 48},

	"DATE_AND_TIME": {alignBits: 16, sizeBits: 64},

	"ANY": {alignBits: 16, sizeBits: 80},
}

// maxArrayDims is the maximum number of array dimensions (§4.5.3).
const maxArrayDims = 6

// minIndex/maxIndex bound a valid array index (§4.5.5).
const (
	minIndex = -32768
	maxIndex = 32767
)

func alignUp(bit, n int) int {
	if n <= 0 {
		return bit
	}
	return ((bit + n - 1) / n) * n
}
