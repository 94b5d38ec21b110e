// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package lsmtree

import (
	"context"
	"sync/atomic"

	"github.com/grailbio/lsmtree/layer"
	"github.com/grailbio/lsmtree/merge"
)

// An Iterator traverses a snapshot of a tree in key order. The
// iterator holds references to the layers in its snapshot, so the
// items it returns remain valid until the iterator is closed, even
// if the tree has since compacted those layers away. Long-lived
// iterators thus pin stale layers in memory.
//
// Iterators are not safe for concurrent use.
type Iterator[K layer.Key[K], V any] struct {
	refs     []*layerRef[K, V]
	merger   *merge.Merger[K, V]
	counters *counters
}

// Seek positions the iterator at the first item admitted by the
// provided bound. Seek may only move the iterator forward.
func (it *Iterator[K, V]) Seek(ctx context.Context, bound layer.Bound[K]) error {
	return it.merger.Seek(ctx, bound)
}

// Advance moves the iterator to the next item. An unpositioned
// iterator is moved to the first item.
func (it *Iterator[K, V]) Advance(ctx context.Context) error {
	return it.merger.Advance(ctx)
}

// AdvanceTo moves the iterator to the first item whose key is not
// less than key.
func (it *Iterator[K, V]) AdvanceTo(ctx context.Context, key K) error {
	return it.merger.AdvanceTo(ctx, key)
}

// Get returns the iterator's current item, and false if the
// iterator is unpositioned or exhausted. The returned reference is
// valid until the iterator is closed.
func (it *Iterator[K, V]) Get() (layer.ItemRef[K, V], bool) {
	return it.merger.Get()
}

// Close releases the iterator's snapshot. Items returned by the
// iterator must not be used after Close.
func (it *Iterator[K, V]) Close() {
	if it.refs == nil {
		return
	}
	atomic.AddInt64(&it.counters.conflicts, int64(it.merger.Conflicts()))
	releaseAll(it.refs)
	it.refs = nil
}
