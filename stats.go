// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package lsmtree

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
)

// Stats is a snapshot of a tree's counters, keyed by name.
type Stats map[string]int64

// String returns an abbreviated string with the values in this
// snapshot sorted by key.
func (s Stats) String() string {
	var keys []string
	for key := range s {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for i, key := range keys {
		keys[i] = fmt.Sprintf("%s:%d", key, s[key])
	}
	return strings.Join(keys, " ")
}

// Counters are updated atomically; they are not protected by the
// tree's lock.
type counters struct {
	inserts           int64
	upserts           int64
	rangeReplacements int64
	commits           int64
	commitFailures    int64
	committedItems    int64
	committedBytes    int64
	conflicts         int64
	finds             int64
	filterSkips       int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		"inserts":            atomic.LoadInt64(&c.inserts),
		"upserts":            atomic.LoadInt64(&c.upserts),
		"range-replacements": atomic.LoadInt64(&c.rangeReplacements),
		"commits":            atomic.LoadInt64(&c.commits),
		"commit-failures":    atomic.LoadInt64(&c.commitFailures),
		"committed-items":    atomic.LoadInt64(&c.committedItems),
		"committed-bytes":    atomic.LoadInt64(&c.committedBytes),
		"conflicts":          atomic.LoadInt64(&c.conflicts),
		"finds":              atomic.LoadInt64(&c.finds),
		"filter-skips":       atomic.LoadInt64(&c.filterSkips),
	}
}
