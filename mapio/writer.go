// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package mapio

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/grailbio/lsmtree/layer"
)

const (
	maxBlockAddrSize = binary.MaxVarintLen64 + // offset
		binary.MaxVarintLen64 // len

	layerTrailerSize = maxBlockAddrSize + // filter block (padded)
		maxBlockAddrSize + // index address (padded)
		8 // magic

	layerTrailerMagic = 0xf6e1d3b8a8c4e2a1
)

type blockAddr struct {
	off uint64
	len uint64
}

func putBlockAddr(p []byte, b blockAddr) int {
	off := binary.PutUvarint(p, b.off)
	return off + binary.PutUvarint(p[off:], b.len)
}

func getBlockAddr(p []byte) (b blockAddr, n int) {
	var m int
	b.off, n = binary.Uvarint(p)
	b.len, m = binary.Uvarint(p[n:])
	n += m
	return
}

// An indexEntry locates a data block.
type indexEntry[K any] struct {
	// Last is the last key in the block.
	Last K
	// Off and Len are the block's address.
	Off, Len uint64
	// N is the number of items in the block.
	N int
}

type index[K any] struct {
	Entries []indexEntry[K]
}

const (
	// DefaultBlockItems is the default number of items per block.
	DefaultBlockItems = 512
	// DefaultBloomBitsPerKey is the default bloom filter density.
	DefaultBloomBitsPerKey = 10
)

type writeOptions struct {
	blockItems      int
	bloomBitsPerKey int
}

// WriteOption represents a tunable writer parameter.
type WriteOption func(*writeOptions)

// BlockItems sets the number of items in each of the writer's
// blocks. The default is 512.
func BlockItems(n int) WriteOption {
	return func(o *writeOptions) {
		o.blockItems = n
	}
}

// BloomBitsPerKey sets the density of the layer's bloom filter. A
// value of zero disables the filter. The default is 10 bits per
// key, which yields a false positive rate of about 1%.
func BloomBitsPerKey(n int) WriteOption {
	return func(o *writeOptions) {
		o.bloomBitsPerKey = n
	}
}

// A Writer appends items to a layer. Items must be appended in key
// order.
type Writer[K layer.Key[K], V any] struct {
	w      io.Writer
	opts   writeOptions
	items  []layer.Item[K, V]
	index  index[K]
	filter *filterBuilder
	buf    bytes.Buffer

	last    K
	hasLast bool

	n   int
	off int
}

// NewWriter returns a new Writer that writes a layer to the provided
// io.Writer.
func NewWriter[K layer.Key[K], V any](w io.Writer, opts ...WriteOption) *Writer[K, V] {
	wr := &Writer[K, V]{
		w: w,
		opts: writeOptions{
			blockItems:      DefaultBlockItems,
			bloomBitsPerKey: DefaultBloomBitsPerKey,
		},
	}
	for _, opt := range opts {
		opt(&wr.opts)
	}
	if wr.opts.blockItems < 1 {
		wr.opts.blockItems = 1
	}
	if wr.opts.bloomBitsPerKey > 0 {
		wr.filter = new(filterBuilder)
	}
	wr.items = make([]layer.Item[K, V], 0, wr.opts.blockItems)
	return wr
}

// Append appends an item to the layer. Items must be provided in
// non-decreasing key order, or else Append panics.
func (w *Writer[K, V]) Append(item layer.ItemRef[K, V]) error {
	if w.hasLast && w.last.Compare(item.Key) > 0 {
		panic("mapio: items appended out of order")
	}
	w.last, w.hasLast = item.Key, true
	w.items = append(w.items, *item.Item)
	if w.filter != nil && !w.filter.add(item.Key) {
		// The key type has no binary encoding.
		w.filter = nil
	}
	w.n++
	if len(w.items) >= w.opts.blockItems {
		return w.Flush()
	}
	return nil
}

// Flush writes the buffered items as a new block. It forces the
// creation of a new block, and overrides the Writer's block size
// parameter. Flush does nothing if no items are buffered.
func (w *Writer[K, V]) Flush() error {
	if len(w.items) == 0 {
		return nil
	}
	addr, err := w.writeBlock(dataBlock, w.items)
	if err != nil {
		return err
	}
	w.index.Entries = append(w.index.Entries, indexEntry[K]{
		Last: w.items[len(w.items)-1].Key,
		Off:  addr.off,
		Len:  addr.len,
		N:    len(w.items),
	})
	// The encoded block owns copies of the items; zero the buffer so
	// that it doesn't retain them.
	var zero layer.Item[K, V]
	for i := range w.items {
		w.items[i] = zero
	}
	w.items = w.items[:0]
	return nil
}

func (w *Writer[K, V]) writeBlock(typ blockType, v interface{}) (blockAddr, error) {
	if err := encodeBlock(&w.buf, typ, v); err != nil {
		return blockAddr{}, err
	}
	n, err := w.w.Write(w.buf.Bytes())
	if err != nil {
		return blockAddr{}, err
	}
	addr := blockAddr{uint64(w.off), uint64(n)}
	w.off += n
	return addr, nil
}

// Close flushes the last block of the writer and writes the layer's
// filter, index, and trailer. After successful close, the layer is
// ready to be opened.
func (w *Writer[K, V]) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}
	var filterAddr blockAddr
	if w.filter != nil && w.n > 0 {
		var err error
		filterAddr, err = w.writeBlock(filterBlock, w.filter.build(w.opts.bloomBitsPerKey))
		if err != nil {
			return err
		}
	}
	indexAddr, err := w.writeBlock(indexBlock, w.index)
	if err != nil {
		return err
	}
	trailer := make([]byte, layerTrailerSize)
	putBlockAddr(trailer, filterAddr)
	putBlockAddr(trailer[maxBlockAddrSize:], indexAddr)
	order.PutUint64(trailer[len(trailer)-8:], layerTrailerMagic)
	n, err := w.w.Write(trailer)
	w.off += n
	return err
}

// Len returns the number of items appended to the writer.
func (w *Writer[K, V]) Len() int { return w.n }

// Size returns the number of bytes written so far.
func (w *Writer[K, V]) Size() int { return w.off }
