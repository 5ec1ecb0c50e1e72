// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package mc5

// typeKind discriminates the shapes a type_ref can take (§4.5.2).
type typeKind int

const (
	kindPrimitive typeKind = iota
	kindString
	kindArray
	kindStruct
	kindBlockRef
)

// astType is the parsed (but not yet laid-out) shape of a type_ref.
type astType struct {
	kind typeKind

	primitive string // kindPrimitive

	stringLen int // kindString

	dims [][2]int // kindArray: inclusive [lo, hi] per dimension
	elem *astType // kindArray

	structVars []astVar // kindStruct

	blockKind string // kindBlockRef: "FB", "SFB", "UDT"
	blockNum  uint32 // kindBlockRef

	comment string // trailing "// ..." comment harvested after this variable's declaration
}

// astVar is one parsed "name : type_ref ;" entry.
type astVar struct {
	name string
	typ  astType
}

// astSection is one parsed VAR_INPUT/VAR_OUTPUT/VAR_IN_OUT/VAR/STRUCT
// block; commentTag is the §4.5.2 prefix its direct variables carry.
type astSection struct {
	commentTag string
	vars       []astVar
}

// astDecl is a fully tokenized declaration: a DB's own text, or the
// text of an FB/SFB/UDT it (transitively) references. VAR_TEMP and
// anything after it is already dropped by the time this is built.
type astDecl struct {
	sections []astSection
}
