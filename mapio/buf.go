// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package mapio

import (
	"sort"

	"github.com/grailbio/lsmtree/layer"
)

// A Buf is an unordered write buffer for layers. It holds items in
// memory; these are then sorted and written to a layer. When the
// same key is appended more than once, the last item appended wins.
type Buf[K layer.Key[K], V any] struct {
	items []layer.Item[K, V]
}

// Append appends the given item to the buffer.
func (b *Buf[K, V]) Append(item layer.Item[K, V]) {
	b.items = append(b.items, item)
}

// Len implements sort.Interface
func (b *Buf[K, V]) Len() int { return len(b.items) }

// Less implements sort.Interface
func (b *Buf[K, V]) Less(i, j int) bool { return b.items[i].Key.Compare(b.items[j].Key) < 0 }

// Swap implements sort.Interface
func (b *Buf[K, V]) Swap(i, j int) { b.items[i], b.items[j] = b.items[j], b.items[i] }

// WriteTo sorts and then writes all of the items in this buffer to
// the provided writer. WriteTo does not close the writer.
func (b *Buf[K, V]) WriteTo(w *Writer[K, V]) error {
	sort.Stable(b)
	for i := range b.items {
		if i+1 < len(b.items) && b.items[i].Key.Compare(b.items[i+1].Key) == 0 {
			continue
		}
		if err := w.Append(b.items[i].Ref()); err != nil {
			return err
		}
	}
	return nil
}
