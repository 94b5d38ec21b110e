// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package memlayer implements the mutable layer of an LSM tree: a
// concurrent, in-memory sorted set of items that absorbs all new
// writes. The layer is a skip list guarded by its own reader/writer
// lock, so that it may be mutated while iterators obtained from it
// (and held by in-flight tree iterators) are still in use.
//
// Iterators over a layer are not snapshots: they observe mutations
// that happen after they were created, but every item they return is
// observed in its entirety.
package memlayer

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/grailbio/lsmtree/layer"
)

// Layer is a mutable layer.
type Layer[K layer.Key[K], V any] struct {
	mu   sync.RWMutex
	list *skiplist[K, V]
}

// New returns a new, empty mutable layer.
func New[K layer.Key[K], V any]() *Layer[K, V] {
	return &Layer[K, V]{list: newSkiplist[K, V](time.Now().UnixNano())}
}

// Insert inserts an item whose key is known not to be present in
// the layer, for example a freshly allocated identifier. Inserting
// a key that is already present replaces its item.
func (l *Layer[K, V]) Insert(item layer.Item[K, V]) {
	l.mu.Lock()
	l.list.put(&item)
	l.mu.Unlock()
}

// ReplaceOrInsert inserts the item, replacing the item with an equal
// key, if any.
func (l *Layer[K, V]) ReplaceOrInsert(item layer.Item[K, V]) {
	l.mu.Lock()
	l.list.put(&item)
	l.mu.Unlock()
}

// ReplaceRange inserts the item and then erases every item in the
// layer whose key is admitted by layer.Included(lower) and orders
// before item.Key. If fn is non-nil, it is called for each item
// before it is erased. Items in other layers are unaffected.
//
// The layer is held exclusively while fn runs; fn must not call
// back into the layer except through the iterator it is given.
func (l *Layer[K, V]) ReplaceRange(item layer.Item[K, V], lower K, fn layer.RangeFunc[K, V]) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.list.put(&item)
	it := &mutableIter[K, V]{list: l.list}
	it.cur = l.list.seek(layer.Included(lower))
	for {
		existing, ok := it.Get()
		if !ok || existing.Key.Compare(item.Key) >= 0 {
			break
		}
		if fn != nil {
			fn(it, existing)
		}
		it.Erase()
	}
}

// Len returns the number of items in the layer.
func (l *Layer[K, V]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.list.len
}

// Dump writes the layer's items, one per line, to w.
func (l *Layer[K, V]) Dump(w io.Writer) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for n := l.list.head.next[0]; n != nil; n = n.next[0] {
		if _, err := fmt.Fprintln(w, n.item.Load()); err != nil {
			return err
		}
	}
	return nil
}

// Iter implements layer.Layer.
func (l *Layer[K, V]) Iter() layer.Iterator[K, V] {
	return &iterator[K, V]{layer: l}
}

type iterator[K layer.Key[K], V any] struct {
	layer      *Layer[K, V]
	positioned bool
	cur        *node[K, V]
	item       *layer.Item[K, V]
}

func (it *iterator[K, V]) set(n *node[K, V]) {
	it.positioned = true
	it.cur = n
	if n != nil {
		it.item = n.item.Load()
	} else {
		it.item = nil
	}
}

// Seek implements layer.Iterator.
func (it *iterator[K, V]) Seek(_ context.Context, bound layer.Bound[K]) error {
	it.layer.mu.RLock()
	it.set(it.layer.list.seek(bound))
	it.layer.mu.RUnlock()
	return nil
}

// Advance implements layer.Iterator.
func (it *iterator[K, V]) Advance(_ context.Context) error {
	it.layer.mu.RLock()
	defer it.layer.mu.RUnlock()
	switch {
	case !it.positioned:
		it.set(nextLive(&it.layer.list.head))
	case it.cur != nil:
		it.set(nextLive(it.cur))
	}
	return nil
}

// DiscardOrAdvance implements layer.Iterator. Discarded items are
// left in place: only range replacements remove items from the
// mutable layer.
func (it *iterator[K, V]) DiscardOrAdvance(ctx context.Context) error {
	return it.Advance(ctx)
}

// Get implements layer.Iterator.
func (it *iterator[K, V]) Get() (layer.ItemRef[K, V], bool) {
	if it.item == nil {
		return layer.ItemRef[K, V]{}, false
	}
	return it.item.Ref(), true
}

// MutableIter is the iterator handed to range callbacks. The layer
// lock is held by the range replacement for the iterator's entire
// lifetime.
type mutableIter[K layer.Key[K], V any] struct {
	list *skiplist[K, V]
	cur  *node[K, V]
}

func (it *mutableIter[K, V]) Get() (layer.ItemRef[K, V], bool) {
	if it.cur == nil {
		return layer.ItemRef[K, V]{}, false
	}
	return it.cur.item.Load().Ref(), true
}

func (it *mutableIter[K, V]) Advance() {
	if it.cur != nil {
		it.cur = nextLive(it.cur)
	}
}

func (it *mutableIter[K, V]) Erase() {
	if it.cur == nil {
		return
	}
	n := it.cur
	it.list.erase(n)
	it.cur = nextLive(n)
}

func (it *mutableIter[K, V]) InsertBefore(item layer.Item[K, V]) {
	it.list.put(&item)
}
