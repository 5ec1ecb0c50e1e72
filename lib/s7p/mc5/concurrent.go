// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package mc5

import (
	"sort"
	"sync"

	"git.lukeshu.com/go/typedsync"
)

// dbResult is one DB's outcome, collected across goroutines and
// replayed back in ascending db_number order.
type dbResult struct {
	block *Block
	warn  *Warning
}

// ParseDBsConcurrent is ParseDBs, but parses every DB on its own
// goroutine (§5 permits parallelizing across DBs as long as per-device
// block and warning ordering is preserved). A typedsync.Map collects
// each goroutine's result keyed by db_number so that, once every
// goroutine has finished, results are replayed in the same ascending
// order ParseDBs itself uses.
func ParseDBsConcurrent(dbs []DB, decls DeclSource) ([]Block, []Warning) {
	sort.Slice(dbs, func(i, j int) bool { return dbs[i].Number < dbs[j].Number })

	cache := newDeclCache()

	var results typedsync.Map[uint32, dbResult]
	var wg sync.WaitGroup
	for _, db := range dbs {
		db := db
		wg.Add(1)
		go func() {
			defer wg.Done()
			block, warn := parseOneDB(db, decls, cache)
			results.Store(db.Number, dbResult{block: block, warn: warn})
		}()
	}
	wg.Wait()

	var blocks []Block
	var warnings []Warning
	for _, db := range dbs {
		res, _ := results.Load(db.Number)
		switch {
		case res.warn != nil:
			warnings = append(warnings, *res.warn)
		case res.block != nil:
			blocks = append(blocks, *res.block)
		}
	}
	return blocks, warnings
}
