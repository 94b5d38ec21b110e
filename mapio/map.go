// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package mapio

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/lsmtree/layer"
	"github.com/grailbio/lsmtree/store"
)

// Layer is a read-only, sorted layer backed by a store handle. The
// on-disk layout of layers is described by the package
// documentation. A Layer keeps its index (and filter) in memory and
// reads data blocks on demand.
type Layer[K layer.Key[K], V any] struct {
	name string

	mu sync.Mutex
	r  store.Reader

	index  []indexEntry[K]
	filter *filter
	n      int
}

// Open opens the layer stored in the provided handle.
func Open[K layer.Key[K], V any](ctx context.Context, h store.Handle) (*Layer[K, V], error) {
	r, err := h.Open(ctx)
	if err != nil {
		return nil, err
	}
	l := &Layer[K, V]{name: h.Name(), r: r}
	if err := l.init(); err != nil {
		if closeErr := r.Close(ctx); closeErr != nil {
			err = errors.E(err, fmt.Sprintf("close: %v", closeErr))
		}
		return nil, errors.E(fmt.Sprintf("mapio: open %s", l.name), err)
	}
	return l, nil
}

func (l *Layer[K, V]) init() error {
	if _, err := l.r.Seek(-layerTrailerSize, io.SeekEnd); err != nil {
		return err
	}
	trailer := make([]byte, layerTrailerSize)
	if _, err := io.ReadFull(l.r, trailer); err != nil {
		return err
	}
	magic := order.Uint64(trailer[len(trailer)-8:])
	if magic != layerTrailerMagic {
		return errors.E(errors.Invalid, "wrong magic")
	}
	filterAddr, _ := getBlockAddr(trailer)
	indexAddr, _ := getBlockAddr(trailer[maxBlockAddrSize:])
	var idx index[K]
	if err := l.readBlock(indexAddr, indexBlock, &idx); err != nil {
		return err
	}
	l.index = idx.Entries
	for _, e := range l.index {
		l.n += e.N
	}
	if filterAddr != (blockAddr{}) {
		l.filter = new(filter)
		if err := l.readBlock(filterAddr, filterBlock, l.filter); err != nil {
			return err
		}
	}
	return nil
}

func (l *Layer[K, V]) readBlock(addr blockAddr, typ blockType, v interface{}) error {
	p := make([]byte, addr.len)
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.r.Seek(int64(addr.off), io.SeekStart); err != nil {
		return err
	}
	if _, err := io.ReadFull(l.r, p); err != nil {
		return err
	}
	return decodeBlock(p, typ, v)
}

// Name returns the name of the handle from which the layer was
// opened.
func (l *Layer[K, V]) Name() string { return l.name }

// Len returns the number of items in the layer.
func (l *Layer[K, V]) Len() int { return l.n }

// NumBlocks returns the number of data blocks in the layer.
func (l *Layer[K, V]) NumBlocks() int { return len(l.index) }

// MayContain tells whether an item with the provided key may be
// present in the layer. A false result is definitive.
func (l *Layer[K, V]) MayContain(key K) bool {
	if l.filter == nil {
		return true
	}
	h, ok := keyHash(key)
	if !ok {
		return true
	}
	return l.filter.mayContain(h)
}

// Close releases the layer's handle. Iterators must not be used
// after the layer is closed.
func (l *Layer[K, V]) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.r == nil {
		return nil
	}
	err := l.r.Close(context.Background())
	l.r = nil
	return err
}

// Iter implements layer.Layer.
func (l *Layer[K, V]) Iter() layer.Iterator[K, V] {
	return &iterator[K, V]{layer: l, block: -1}
}

// Iterator implements ordered iteration over a layer. An iterator
// holds one decoded block at a time.
type iterator[K layer.Key[K], V any] struct {
	layer *Layer[K, V]
	// Block is the index of the loaded block; -1 if the iterator is
	// unpositioned, len(index) if it is exhausted.
	block int
	items []layer.Item[K, V]
	pos   int
}

func (it *iterator[K, V]) load(block int) error {
	it.block, it.items, it.pos = block, nil, 0
	if block >= len(it.layer.index) {
		return nil
	}
	e := it.layer.index[block]
	var items []layer.Item[K, V]
	if err := it.layer.readBlock(blockAddr{e.Off, e.Len}, dataBlock, &items); err != nil {
		it.block = len(it.layer.index)
		return errors.E(fmt.Sprintf("mapio: %s: read block %d", it.layer.name, block), err)
	}
	if len(items) != e.N {
		it.block = len(it.layer.index)
		return errors.E(errors.Integrity, fmt.Sprintf("mapio: %s: block %d: expected %d items, got %d", it.layer.name, block, e.N, len(items)))
	}
	it.items = items
	return nil
}

// Seek implements layer.Iterator. Seek binary searches the index for
// the first block whose last key is admitted by the bound, and then
// binary searches that block.
func (it *iterator[K, V]) Seek(_ context.Context, bound layer.Bound[K]) error {
	index := it.layer.index
	block := sort.Search(len(index), func(i int) bool {
		return bound.Admits(index[i].Last)
	})
	if block != it.block || it.items == nil {
		if err := it.load(block); err != nil {
			return err
		}
	}
	it.pos = sort.Search(len(it.items), func(i int) bool {
		return bound.Admits(it.items[i].Key)
	})
	return nil
}

// Advance implements layer.Iterator.
func (it *iterator[K, V]) Advance(_ context.Context) error {
	switch {
	case it.block < 0:
		return it.load(0)
	case it.block >= len(it.layer.index):
		return nil
	}
	it.pos++
	if it.pos < len(it.items) {
		return nil
	}
	return it.load(it.block + 1)
}

// DiscardOrAdvance implements layer.Iterator. Persistent layers are
// immutable, so discarded items are simply skipped.
func (it *iterator[K, V]) DiscardOrAdvance(ctx context.Context) error {
	return it.Advance(ctx)
}

// Get implements layer.Iterator.
func (it *iterator[K, V]) Get() (layer.ItemRef[K, V], bool) {
	if it.pos >= len(it.items) {
		return layer.ItemRef[K, V]{}, false
	}
	return it.items[it.pos].Ref(), true
}
