// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package mc5

import (
	"fmt"
	"strconv"
	"strings"

	"git.lukeshu.com/s7pextract/lib/containers"
)

// layoutCtx is the explicit, mutable parse context shared by a DB's
// top-level layout pass and every block-ref sub-parse it recurses
// into (§9 "shared mutable counter"): the bit-address counter and the
// in-flight symbol list are threaded through by pointer, never as
// ambient state.
type layoutCtx struct {
	dbNumber uint32
	bit      int
	symbols  []Symbol
	decls    DeclSource
	cache    *declCache
	seen     containers.Set[string]
}

func newLayoutCtx(dbNumber uint32, decls DeclSource, cache *declCache) *layoutCtx {
	return &layoutCtx{
		dbNumber: dbNumber,
		decls:    decls,
		cache:    cache,
		seen:     containers.NewSet[string](),
	}
}

func (ctx *layoutCtx) emit(name, datatype, tag, trailing string) {
	comment := tag
	if trailing != "" {
		comment = comment + "; " + trailing
	}
	ctx.symbols = append(ctx.symbols, Symbol{
		Name:     name,
		Code:     fmt.Sprintf("DB%d:%d.%d", ctx.dbNumber, ctx.bit/8, ctx.bit%8),
		Datatype: datatype,
		Comment:  comment,
	})
}

// layoutSections lays out a sequence of sections under the given name
// prefix. topLevel controls whether the post-section align_up(16)
// applies (§4.5.2); it does not for a struct's own nested varlist
// (§9 open question).
func layoutSections(ctx *layoutCtx, sections []astSection, prefix string, topLevel bool) error {
	for _, sec := range sections {
		for _, v := range sec.vars {
			if err := layoutVar(ctx, v, prefix, sec.commentTag); err != nil {
				return err
			}
		}
		if topLevel {
			ctx.bit = alignUp(ctx.bit, 16)
		}
	}
	return nil
}

func layoutVar(ctx *layoutCtx, v astVar, prefix, tag string) error {
	return layoutType(ctx, &v.typ, prefix+v.name, tag)
}

func layoutType(ctx *layoutCtx, t *astType, name, tag string) error {
	switch t.kind {
	case kindPrimitive:
		info, ok := primitives[t.primitive]
		if !ok {
			return fmt.Errorf("mc5: %q: unknown primitive type %q", name, t.primitive)
		}
		ctx.bit = alignUp(ctx.bit, info.alignBits)
		ctx.emit(name, t.primitive, tag, t.comment)
		ctx.bit += info.sizeBits
		return nil
	case kindString:
		ctx.bit = alignUp(ctx.bit, 16)
		ctx.emit(name, fmt.Sprintf("STRING [%d]", t.stringLen), tag, t.comment)
		ctx.bit += (2 + t.stringLen) * 8
		return nil
	case kindArray:
		return layoutArray(ctx, t, name, tag)
	case kindStruct:
		return layoutSections(ctx, []astSection{{commentTag: "Struct", vars: t.structVars}}, name+".", false)
	case kindBlockRef:
		return layoutBlockRef(ctx, t, name, tag)
	default:
		return fmt.Errorf("mc5: %q: unhandled type kind", name)
	}
}

func isComplexType(t *astType) bool {
	return t.kind == kindStruct || t.kind == kindBlockRef
}

func isBoolType(t *astType) bool {
	return t.kind == kindPrimitive && t.primitive == "BOOL"
}

func layoutArray(ctx *layoutCtx, t *astType, name, tag string) error {
	if isBoolType(t.elem) {
		return layoutBoolArray(ctx, t, name, tag)
	}

	dimsStr := formatDims(t.dims)
	elemTypeName := typeName(t.elem)

	if isComplexType(t.elem) {
		ctx.bit = alignUp(ctx.bit, 16)
		for _, idx := range cartesianIndices(t.dims) {
			idxName := fmt.Sprintf("%s[%s]", name, joinInts(idx))
			if err := layoutType(ctx, t.elem, idxName, tag); err != nil {
				return err
			}
		}
		ctx.bit = alignUp(ctx.bit, 16)
		return nil
	}

	// Primitive/string array: emitted as a single symbol over the
	// whole array (§4.5.4), but still laid out element-by-element
	// so that STRING's per-element re-alignment is reproduced
	// exactly.
	ctx.bit = alignUp(ctx.bit, 16)
	base := ctx.bit
	n := elementCount(t.dims)
	switch t.elem.kind {
	case kindString:
		for i := 0; i < n; i++ {
			ctx.bit = alignUp(ctx.bit, 16)
			ctx.bit += (2 + t.elem.stringLen) * 8
		}
	case kindPrimitive:
		info, ok := primitives[t.elem.primitive]
		if !ok {
			return fmt.Errorf("mc5: %q: unknown primitive element type %q", name, t.elem.primitive)
		}
		ctx.bit += n * info.sizeBits
	default:
		return fmt.Errorf("mc5: %q: unsupported array element type", name)
	}
	ctx.bit = alignUp(ctx.bit, 16)

	savedBit := ctx.bit
	ctx.bit = base
	ctx.emit(name, fmt.Sprintf("ARRAY [%s] OF %s", dimsStr, elemTypeName), tag, t.comment)
	ctx.bit = savedBit
	return nil
}

func layoutBoolArray(ctx *layoutCtx, t *astType, name, tag string) error {
	// Like any other array (§4.5.3), a BOOL array is framed by
	// align_up(16) before and after; only the per-element packing
	// inside is BOOL-specific (each trailing dimension's run packs to
	// single bits, re-aligning to 8 between outer-index groups).
	ctx.bit = alignUp(ctx.bit, 16)
	base := ctx.bit
	dimsStr := formatDims(t.dims)

	if len(t.dims) == 1 {
		length := t.dims[0][1] - t.dims[0][0] + 1
		ctx.bit += length
	} else {
		lastLen := t.dims[len(t.dims)-1][1] - t.dims[len(t.dims)-1][0] + 1
		p := 1
		for _, d := range t.dims[:len(t.dims)-1] {
			p *= d[1] - d[0] + 1
		}
		bit := ctx.bit
		for i := 0; i < p; i++ {
			bit = alignUp(bit, 8)
			bit += lastLen
		}
		ctx.bit = bit
	}
	ctx.bit = alignUp(ctx.bit, 16)

	savedBit := ctx.bit
	ctx.bit = base
	ctx.emit(name, fmt.Sprintf("ARRAY [%s] OF BOOL", dimsStr), tag, t.comment)
	ctx.bit = savedBit
	return nil
}

func layoutBlockRef(ctx *layoutCtx, t *astType, name, tag string) error {
	key := t.blockKind + ":" + strconv.FormatUint(uint64(t.blockNum), 10)
	if ctx.seen.Has(key) {
		return fmt.Errorf("mc5: %q: reentrant reference to %s %d", name, t.blockKind, t.blockNum)
	}

	var text string
	var ok bool
	switch t.blockKind {
	case "FB":
		text, ok = ctx.decls.FB(t.blockNum)
	case "SFB":
		text, ok = ctx.decls.SFB(t.blockNum)
	case "UDT":
		text, ok = ctx.decls.UDT(t.blockNum)
	}
	if !ok {
		return fmt.Errorf("mc5: %q: %s %d not found", name, t.blockKind, t.blockNum)
	}

	decl, err := ctx.cache.get(key, text)
	if err != nil {
		return fmt.Errorf("mc5: %q: parsing %s %d: %w", name, t.blockKind, t.blockNum, err)
	}

	ctx.bit = alignUp(ctx.bit, 16)
	ctx.seen.Insert(key)
	err = layoutSections(ctx, decl.sections, name+".", true)
	ctx.seen.Delete(key)
	return err
}

func elementCount(dims [][2]int) int {
	n := 1
	for _, d := range dims {
		n *= d[1] - d[0] + 1
	}
	return n
}

func cartesianIndices(dims [][2]int) [][]int {
	if len(dims) == 0 {
		return nil
	}
	out := [][]int{{}}
	for _, d := range dims {
		var next [][]int
		for _, prefix := range out {
			for v := d[0]; v <= d[1]; v++ {
				idx := append(append([]int{}, prefix...), v)
				next = append(next, idx)
			}
		}
		out = next
	}
	return out
}

func formatDims(dims [][2]int) string {
	parts := make([]string, len(dims))
	for i, d := range dims {
		parts[i] = fmt.Sprintf("%d..%d", d[0], d[1])
	}
	return strings.Join(parts, ", ")
}

func joinInts(idx []int) string {
	parts := make([]string, len(idx))
	for i, v := range idx {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func typeName(t *astType) string {
	switch t.kind {
	case kindPrimitive:
		return t.primitive
	case kindString:
		return fmt.Sprintf("STRING [%d]", t.stringLen)
	case kindBlockRef:
		return fmt.Sprintf("%s %d", t.blockKind, t.blockNum)
	case kindStruct:
		return "STRUCT"
	case kindArray:
		return fmt.Sprintf("ARRAY [%s] OF %s", formatDims(t.dims), typeName(t.elem))
	default:
		return "?"
	}
}
