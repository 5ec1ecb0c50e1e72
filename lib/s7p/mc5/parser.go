// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package mc5

import (
	"fmt"
	"strconv"
	"strings"

	"git.lukeshu.com/s7pextract/lib/dbf"
)

// delims is the delimiter set used throughout declaration parsing
// (§4.5.1). "." is included so that ".." array-range separators lex
// as two single-character tokens, per the doubled ".." ".." in the
// dim grammar.
const delims = "[],:;.{}"

// sectionTags maps a section keyword to the comment prefix its direct
// variables carry (§4.5.2).
var sectionTags = map[string]string{
	"VAR_INPUT":  "In",
	"VAR_OUTPUT": "Out",
	"VAR_IN_OUT": "InOut",
	"VAR":        "Var",
}

// parseDeclarationText tokenizes an entire MC5 declaration, per
// §4.5.2. VAR_TEMP terminates parsing of the whole declaration, not
// just the current section (§9).
func parseDeclarationText(text string) (*astDecl, error) {
	lex := newLexer(text)
	decl := &astDecl{}
	for {
		tok, ok := lex.next(delims, false)
		if !ok {
			return decl, nil
		}
		if tok == "VAR_TEMP" {
			return decl, nil
		}
		if tok == "STRUCT" {
			// A bare UDT's declaration text is just its STRUCT body,
			// with no enclosing VAR_* section.
			vars, err := parseVarList(lex, "END_STRUCT")
			if err != nil {
				return nil, err
			}
			decl.sections = append(decl.sections, astSection{commentTag: "Struct", vars: vars})
			continue
		}

		tag, isSection := sectionTags[tok]
		if !isSection {
			return nil, fmt.Errorf("mc5: unexpected top-level token %q", tok)
		}
		vars, err := parseVarList(lex, "END_VAR")
		if err != nil {
			return nil, err
		}
		decl.sections = append(decl.sections, astSection{commentTag: tag, vars: vars})
	}
}

// parseVarList parses a varlist up to (and including) its closing
// "END_VAR"/"END_STRUCT", consuming a trailing ";" after "END_STRUCT"
// if present (§4.5.2's section_kw closer grammar).
func parseVarList(lex *lexer, endKw string) ([]astVar, error) {
	var vars []astVar
	for {
		tok, ok := lex.next(delims, false)
		if !ok {
			return nil, fmt.Errorf("mc5: unexpected end of input in var list (expected %q)", endKw)
		}
		if tok == endKw {
			if endKw == "END_STRUCT" {
				mark := lex.mark()
				semi, ok2 := lex.next(delims, false)
				if !(ok2 && semi == ";") {
					lex.reset(mark)
				}
			}
			return vars, nil
		}

		name := tok

		// optional attr_list "{ ... }"
		mark := lex.mark()
		t2, ok2 := lex.next(delims, false)
		if ok2 && t2 == "{" {
			if err := skipAttrList(lex); err != nil {
				return nil, err
			}
		} else {
			lex.reset(mark)
		}

		colon, ok3 := lex.next(delims, false)
		if !(ok3 && colon == ":") {
			return nil, fmt.Errorf("mc5: variable %q: expected ':', got %q", name, colon)
		}

		typ, err := parseTypeRef(lex)
		if err != nil {
			return nil, fmt.Errorf("mc5: variable %q: %w", name, err)
		}

		if typ.kind != kindStruct {
			semi, ok4 := lex.next(delims, false)
			if !(ok4 && semi == ";") {
				return nil, fmt.Errorf("mc5: variable %q: expected ';', got %q", name, semi)
			}
		}

		typ.comment = harvestComment(lex)
		vars = append(vars, astVar{name: name, typ: typ})
	}
}

func skipAttrList(lex *lexer) error {
	depth := 1
	for depth > 0 {
		tok, ok := lex.next("{}", false)
		if !ok {
			return fmt.Errorf("mc5: unterminated attribute list")
		}
		switch tok {
		case "{":
			depth++
		case "}":
			depth--
		}
	}
	return nil
}

// parseTypeRef parses a type_ref per §4.5.2. For kindStruct, this
// consumes the type's own trailing "END_STRUCT" ";" — callers must
// not additionally require a variable-level ";" for struct types.
func parseTypeRef(lex *lexer) (astType, error) {
	tok, ok := lex.next(delims, false)
	if !ok {
		return astType{}, fmt.Errorf("mc5: unexpected end of input in type reference")
	}

	switch tok {
	case "ARRAY":
		return parseArrayType(lex)
	case "STRUCT":
		vars, err := parseVarList(lex, "END_STRUCT")
		if err != nil {
			return astType{}, err
		}
		return astType{kind: kindStruct, structVars: vars}, nil
	case "STRING":
		if t, ok := lex.next(delims, false); !(ok && t == "[") {
			return astType{}, fmt.Errorf("mc5: STRING: expected '[', got %q", t)
		}
		n, err := parseDecimalToken(lex)
		if err != nil {
			return astType{}, fmt.Errorf("mc5: STRING: %w", err)
		}
		if t, ok := lex.next(delims, false); !(ok && t == "]") {
			return astType{}, fmt.Errorf("mc5: STRING: expected ']', got %q", t)
		}
		return astType{kind: kindString, stringLen: n}, nil
	case "FB", "SFB", "UDT":
		numTok, ok := lex.next(delims, false)
		if !ok {
			return astType{}, fmt.Errorf("mc5: %s: expected block number", tok)
		}
		n, err := strconv.ParseUint(numTok, 10, 32)
		if err != nil {
			return astType{}, fmt.Errorf("mc5: %s: invalid block number %q: %w", tok, numTok, err)
		}
		return astType{kind: kindBlockRef, blockKind: tok, blockNum: uint32(n)}, nil
	default:
		if _, ok := primitives[tok]; ok {
			return astType{kind: kindPrimitive, primitive: tok}, nil
		}
		return astType{}, fmt.Errorf("mc5: unknown data type %q", tok)
	}
}

func parseArrayType(lex *lexer) (astType, error) {
	if t, ok := lex.next(delims, false); !(ok && t == "[") {
		return astType{}, fmt.Errorf("mc5: ARRAY: expected '[', got %q", t)
	}

	var dims [][2]int
	for {
		lo, err := parseSignedDecimalToken(lex)
		if err != nil {
			return astType{}, fmt.Errorf("mc5: ARRAY: %w", err)
		}
		if t, ok := lex.next(delims, false); !(ok && t == ".") {
			return astType{}, fmt.Errorf("mc5: ARRAY: expected '.', got %q", t)
		}
		if t, ok := lex.next(delims, false); !(ok && t == ".") {
			return astType{}, fmt.Errorf("mc5: ARRAY: expected '.', got %q", t)
		}
		hi, err := parseSignedDecimalToken(lex)
		if err != nil {
			return astType{}, fmt.Errorf("mc5: ARRAY: %w", err)
		}
		if hi < lo {
			return astType{}, fmt.Errorf("mc5: ARRAY: dimension [%d..%d] has end < start", lo, hi)
		}
		dims = append(dims, [2]int{lo, hi})

		tok, ok := lex.next(delims, false)
		if !ok {
			return astType{}, fmt.Errorf("mc5: ARRAY: unexpected end of input in dimension list")
		}
		if tok == "," {
			continue
		}
		if tok == "]" {
			break
		}
		return astType{}, fmt.Errorf("mc5: ARRAY: expected ',' or ']', got %q", tok)
	}
	if len(dims) > maxArrayDims {
		return astType{}, fmt.Errorf("mc5: ARRAY: %d dimensions exceeds the maximum of %d", len(dims), maxArrayDims)
	}

	ofTok, ok := lex.next(delims, false)
	if !(ok && ofTok == "OF") {
		return astType{}, fmt.Errorf("mc5: ARRAY: expected 'OF', got %q", ofTok)
	}
	elem, err := parseTypeRef(lex)
	if err != nil {
		return astType{}, err
	}
	return astType{kind: kindArray, dims: dims, elem: &elem}, nil
}

func parseDecimalToken(lex *lexer) (int, error) {
	tok, ok := lex.next(delims, false)
	if !ok {
		return 0, fmt.Errorf("expected a decimal number, got end of input")
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0, fmt.Errorf("expected a decimal number, got %q", tok)
	}
	return n, nil
}

func parseSignedDecimalToken(lex *lexer) (int, error) {
	n, err := parseDecimalToken(lex)
	if err != nil {
		return 0, err
	}
	if n < minIndex || n > maxIndex {
		return 0, fmt.Errorf("array index %d out of range [%d..%d]", n, minIndex, maxIndex)
	}
	return n, nil
}

// harvestComment speculatively consumes trailing "// ..." comments
// immediately following a variable's declaration, per §4.5.4: only
// the last one is kept, and a non-comment token is pushed back.
func harvestComment(lex *lexer) string {
	var last string
	for {
		mark := lex.mark()
		tok, ok := lex.next(delims, true)
		if !ok {
			break
		}
		if isComment(tok) {
			last = tok
			continue
		}
		lex.reset(mark)
		break
	}
	if last == "" {
		return ""
	}
	body := strings.TrimSpace(strings.TrimPrefix(last, "//"))
	return dbf.DecodeWindows1252(body)
}
