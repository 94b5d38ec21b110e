// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package memlayer

import (
	"math/rand"
	"sync/atomic"

	"github.com/grailbio/lsmtree/layer"
)

const (
	maxHeight = 16
	// Each level holds roughly 1/branching of the nodes of the level
	// below it.
	branching = 4
)

// A node is a skip list node. The node's item is replaced
// atomically, so that readers observe either the old or the new
// item. The node's forward links are guarded by the layer's lock.
type node[K layer.Key[K], V any] struct {
	item atomic.Pointer[layer.Item[K, V]]
	next []*node[K, V]
	// Erased is set when the node is unlinked. Erased nodes keep
	// their forward links so that iterators parked on them can
	// continue.
	erased bool
}

func (n *node[K, V]) key() K {
	return n.item.Load().Key
}

// A skiplist is a sorted list of unique keys. Skiplist is not
// synchronized: callers must hold the layer lock.
type skiplist[K layer.Key[K], V any] struct {
	head   node[K, V]
	height int
	len    int
	rand   *rand.Rand
}

func newSkiplist[K layer.Key[K], V any](seed int64) *skiplist[K, V] {
	s := &skiplist[K, V]{height: 1, rand: rand.New(rand.NewSource(seed))}
	s.head.next = make([]*node[K, V], maxHeight)
	return s
}

func (s *skiplist[K, V]) randomHeight() int {
	h := 1
	for h < maxHeight && s.rand.Intn(branching) == 0 {
		h++
	}
	return h
}

// FindGreaterOrEqual returns the first node whose key is not less
// than key, filling prev (if non-nil) with the rightmost node at
// each level whose key is less than key.
func (s *skiplist[K, V]) findGreaterOrEqual(key K, prev []*node[K, V]) *node[K, V] {
	x := &s.head
	for level := s.height - 1; level >= 0; level-- {
		for next := x.next[level]; next != nil && next.key().Compare(key) < 0; next = x.next[level] {
			x = next
		}
		if prev != nil {
			prev[level] = x
		}
	}
	return x.next[0]
}

// Seek returns the first node admitted by the bound. Because the
// admitted keys form a suffix of the list, the search descends
// exactly like a key lookup.
func (s *skiplist[K, V]) seek(bound layer.Bound[K]) *node[K, V] {
	x := &s.head
	for level := s.height - 1; level >= 0; level-- {
		for next := x.next[level]; next != nil && !bound.Admits(next.key()); next = x.next[level] {
			x = next
		}
	}
	return x.next[0]
}

// Put inserts the item, replacing the item of an existing node with
// an equal key. Put returns the node holding the item.
func (s *skiplist[K, V]) put(item *layer.Item[K, V]) *node[K, V] {
	var prev [maxHeight]*node[K, V]
	if n := s.findGreaterOrEqual(item.Key, prev[:]); n != nil && n.key().Compare(item.Key) == 0 {
		n.item.Store(item)
		return n
	}
	h := s.randomHeight()
	if h > s.height {
		for level := s.height; level < h; level++ {
			prev[level] = &s.head
		}
		s.height = h
	}
	n := &node[K, V]{next: make([]*node[K, V], h)}
	n.item.Store(item)
	for level := 0; level < h; level++ {
		n.next[level] = prev[level].next[level]
		prev[level].next[level] = n
	}
	s.len++
	return n
}

// Erase unlinks the node n from the list.
func (s *skiplist[K, V]) erase(n *node[K, V]) {
	var prev [maxHeight]*node[K, V]
	s.findGreaterOrEqual(n.key(), prev[:])
	for level := 0; level < len(n.next); level++ {
		if prev[level].next[level] == n {
			prev[level].next[level] = n.next[level]
		}
	}
	for s.height > 1 && s.head.next[s.height-1] == nil {
		s.height--
	}
	n.erased = true
	s.len--
}

// NextLive returns the first live node following n.
func nextLive[K layer.Key[K], V any](n *node[K, V]) *node[K, V] {
	n = n.next[0]
	for n != nil && n.erased {
		n = n.next[0]
	}
	return n
}
