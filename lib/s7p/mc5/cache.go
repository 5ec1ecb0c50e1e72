// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package mc5

import (
	"context"
	"sync"

	"git.lukeshu.com/s7pextract/lib/caching"
	"git.lukeshu.com/s7pextract/lib/containers"
)

// declCacheCapacity bounds the number of distinct declaration texts
// (DBs plus referenced FB/SFB/UDTs) memoized per ParseDBs call. A
// single STEP 7 project's subblock list rarely carries more than a
// few hundred distinct blocks; pick a capacity generous enough that
// eviction never forces a reparse within one run.
const declCacheCapacity = 4096

// textCacheCapacity bounds the process-wide, cross-call memoization of
// parsed declaration texts below. An FB or UDT shared by many devices
// in the same project (or across repeated Parse calls against the
// same project, e.g. in a long-running service) is byte-identical
// every time it's referenced, so tokenizing it once per process is
// enough.
const textCacheCapacity = 1024

// textCache memoizes the parse of a declaration's exact source text
// across ParseDBs/ParseDBsConcurrent calls, process-wide. It sits in
// front of each call's own declCache: a hit here skips tokenizing
// entirely, rather than merely skipping a repeat within one call.
var textCache = containers.NewLRUCache[string, textCacheEntry](textCacheCapacity)

type textCacheEntry struct {
	decl *astDecl
	err  error
}

// cacheEntry holds the lazily-computed parse of one declaration text,
// keyed by "DB:<n>", "FB:<n>", "SFB:<n>", or "UDT:<n>".
type cacheEntry struct {
	text   string
	parsed bool
	decl   *astDecl
	err    error
}

// declCache memoizes the tokenized form of a declaration text so that
// an FB or UDT referenced by many DBs is only ever tokenized once per
// ParseDBs call. mu serializes get(), since pinning an entry does not
// stop two goroutines from filling the same entry at once.
type declCache struct {
	mu    sync.Mutex
	cache caching.Cache[string, cacheEntry]
}

func newDeclCache() *declCache {
	src := caching.FuncSource[string, cacheEntry](func(_ context.Context, _ string, v *cacheEntry) {
		// Load only clears the slot (which may have held another key
		// before an eviction): get() always supplies the text itself
		// (the caller already resolved it via DeclSource), so the
		// actual parse happens in get() after Acquire returns the slot.
		*v = cacheEntry{}
	})
	return &declCache{cache: caching.NewARCache[string, cacheEntry](declCacheCapacity, src)}
}

func (c *declCache) get(key, text string) (*astDecl, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := c.cache.Acquire(context.Background(), key)
	defer c.cache.Release(key)
	if !entry.parsed {
		entry.text = text
		if hit, ok := textCache.Get(text); ok {
			entry.decl, entry.err = hit.decl, hit.err
		} else {
			entry.decl, entry.err = parseDeclarationText(text)
			textCache.Add(text, textCacheEntry{decl: entry.decl, err: entry.err})
		}
		entry.parsed = true
	}
	return entry.decl, entry.err
}
