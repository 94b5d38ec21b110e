// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package merge implements the merging of sorted layer iterators.
// A Merger combines a set of iterators, ordered by descending
// priority, into a single ordered iterator. Items that share a key
// across iterators are resolved by a caller-supplied Func.
package merge

import (
	"container/heap"
	"context"

	"github.com/grailbio/base/must"
	"github.com/grailbio/lsmtree/layer"
)

// Action tells a Merger how to move a source iterator past an item
// that took part in a collision.
type Action int

const (
	// Advance moves the source to its next item.
	Advance Action = iota
	// Discard moves the source to its next item, signalling that the
	// item has been dropped from visibility.
	Discard
)

func (a Action) String() string {
	switch a {
	case Advance:
		return "advance"
	case Discard:
		return "discard"
	default:
		return "unknown"
	}
}

// Resolution is the outcome of a collision.
type Resolution[K, V any] struct {
	// Item is the item that is surfaced for the colliding key.
	Item layer.ItemRef[K, V]
	// Omit indicates that no item is surfaced for the key.
	Omit bool
	// Actions holds one action per colliding item. If Actions is
	// nil, the first source is advanced and the rest are discarded.
	Actions []Action
}

// Func resolves a collision. It is given the colliding items in
// priority order, most authoritative first. The references are
// valid until the Merger is next moved.
type Func[K, V any] func(items []layer.ItemRef[K, V]) Resolution[K, V]

// PreferFirst resolves collisions in favor of the most
// authoritative item.
func PreferFirst[K, V any](items []layer.ItemRef[K, V]) Resolution[K, V] {
	return Resolution[K, V]{Item: items[0]}
}

type source[K, V any] struct {
	index int
	item  layer.ItemRef[K, V]
}

type pending struct {
	index  int
	action Action
}

// A Merger merges a set of iterators. Sources are moved lazily: the
// sources that contributed to the current item are only moved on
// the next call to Advance, so that the current item remains valid
// until then. A Merger is itself a layer.Iterator. A Merger makes a
// single forward pass; seeking backwards is not supported.
type Merger[K layer.Key[K], V any] struct {
	fn    Func[K, V]
	iters []layer.Iterator[K, V]

	heap    sourceHeap[K, V]
	pending []pending
	started bool

	cur   layer.ItemRef[K, V]
	valid bool

	items []layer.ItemRef[K, V]

	conflicts, discards int
}

// New returns a new Merger over the provided iterators. Iterators
// are given in priority order: iters[0] is the most authoritative.
// The iterators must be unpositioned.
func New[K layer.Key[K], V any](fn Func[K, V], iters ...layer.Iterator[K, V]) *Merger[K, V] {
	return &Merger[K, V]{fn: fn, iters: iters}
}

// Seek implements layer.Iterator. Every source is sought to the
// bound.
func (m *Merger[K, V]) Seek(ctx context.Context, bound layer.Bound[K]) error {
	m.started = true
	m.pending = m.pending[:0]
	for _, it := range m.iters {
		if err := it.Seek(ctx, bound); err != nil {
			return err
		}
	}
	m.rebuild()
	return m.resolve(ctx)
}

// Advance implements layer.Iterator.
func (m *Merger[K, V]) Advance(ctx context.Context) error {
	if !m.started {
		m.started = true
		for _, it := range m.iters {
			if err := it.Advance(ctx); err != nil {
				return err
			}
		}
		m.rebuild()
		return m.resolve(ctx)
	}
	if err := m.flush(ctx); err != nil {
		return err
	}
	return m.resolve(ctx)
}

// DiscardOrAdvance implements layer.Iterator. Every source that
// contributed to the current item is discarded.
func (m *Merger[K, V]) DiscardOrAdvance(ctx context.Context) error {
	if !m.started {
		return m.Advance(ctx)
	}
	for i := range m.pending {
		m.pending[i].action = Discard
	}
	return m.Advance(ctx)
}

// AdvanceTo advances the merger to the first item whose key is not
// less than key. The result is the same as calling Advance until
// that item is reached, but lagging sources are sought directly.
func (m *Merger[K, V]) AdvanceTo(ctx context.Context, key K) error {
	if m.started && m.valid && m.cur.Key.Compare(key) >= 0 {
		return nil
	}
	if !m.started {
		m.started = true
		for _, it := range m.iters {
			if err := seekTo(ctx, it, key); err != nil {
				return err
			}
		}
		m.rebuild()
		return m.resolve(ctx)
	}
	if err := m.flush(ctx); err != nil {
		return err
	}
	for _, it := range m.iters {
		ref, ok := it.Get()
		if !ok || ref.Key.Compare(key) >= 0 {
			continue
		}
		if err := seekTo(ctx, it, key); err != nil {
			return err
		}
	}
	m.rebuild()
	return m.resolve(ctx)
}

// seekTo positions it at its first item not less than key. The
// lower-bound seek may land before key, so the iterator is then
// stepped forward under the total order.
func seekTo[K layer.Key[K], V any](ctx context.Context, it layer.Iterator[K, V], key K) error {
	if err := it.Seek(ctx, layer.Included(key)); err != nil {
		return err
	}
	for {
		ref, ok := it.Get()
		if !ok || ref.Key.Compare(key) >= 0 {
			return nil
		}
		if err := it.Advance(ctx); err != nil {
			return err
		}
	}
}

// Get implements layer.Iterator.
func (m *Merger[K, V]) Get() (layer.ItemRef[K, V], bool) {
	return m.cur, m.valid
}

// Conflicts returns the number of times the merger's Func has been
// invoked.
func (m *Merger[K, V]) Conflicts() int { return m.conflicts }

// Discards returns the number of source items that were discarded.
func (m *Merger[K, V]) Discards() int { return m.discards }

// Rebuild reinitializes the heap from the current position of each
// source.
func (m *Merger[K, V]) rebuild() {
	m.heap = m.heap[:0]
	for i, it := range m.iters {
		if ref, ok := it.Get(); ok {
			m.heap = append(m.heap, source[K, V]{i, ref})
		}
	}
	heap.Init(&m.heap)
}

// Flush moves the sources that contributed to the current item and
// returns them to the heap.
func (m *Merger[K, V]) flush(ctx context.Context) error {
	for len(m.pending) > 0 {
		p := m.pending[0]
		it := m.iters[p.index]
		var err error
		switch p.action {
		case Discard:
			m.discards++
			err = it.DiscardOrAdvance(ctx)
		default:
			err = it.Advance(ctx)
		}
		if err != nil {
			return err
		}
		m.pending = m.pending[1:]
		if ref, ok := it.Get(); ok {
			heap.Push(&m.heap, source[K, V]{p.index, ref})
		}
	}
	return nil
}

// Resolve computes the current item from the heap.
func (m *Merger[K, V]) resolve(ctx context.Context) error {
	for {
		m.cur, m.valid = layer.ItemRef[K, V]{}, false
		if len(m.heap) == 0 {
			return nil
		}
		// Gather every source positioned at the minimum key. The heap
		// breaks ties by priority, so the sources are gathered in
		// priority order.
		first := heap.Pop(&m.heap).(source[K, V])
		m.pending = append(m.pending[:0], pending{first.index, Advance})
		if len(m.heap) == 0 || m.heap[0].item.Key.Compare(first.item.Key) != 0 {
			m.cur, m.valid = first.item, true
			return nil
		}
		m.items = append(m.items[:0], first.item)
		for len(m.heap) > 0 && m.heap[0].item.Key.Compare(first.item.Key) == 0 {
			src := heap.Pop(&m.heap).(source[K, V])
			m.items = append(m.items, src.item)
			m.pending = append(m.pending, pending{src.index, Discard})
		}
		m.conflicts++
		res := m.fn(m.items)
		if res.Actions != nil {
			must.Truef(len(res.Actions) == len(m.items),
				"merge: resolution has %d actions for %d items", len(res.Actions), len(m.items))
			for i, action := range res.Actions {
				m.pending[i].action = action
			}
		}
		if !res.Omit {
			m.cur, m.valid = res.Item, true
			return nil
		}
		if err := m.flush(ctx); err != nil {
			return err
		}
	}
}

type sourceHeap[K layer.Key[K], V any] []source[K, V]

func (h sourceHeap[K, V]) Len() int { return len(h) }

func (h sourceHeap[K, V]) Less(i, j int) bool {
	if c := h[i].item.Key.Compare(h[j].item.Key); c != 0 {
		return c < 0
	}
	return h[i].index < h[j].index
}

func (h sourceHeap[K, V]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *sourceHeap[K, V]) Push(x interface{}) {
	*h = append(*h, x.(source[K, V]))
}

func (h *sourceHeap[K, V]) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
