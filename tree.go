// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package lsmtree

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/grailbio/base/data"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/lsmtree/layer"
	"github.com/grailbio/lsmtree/mapio"
	"github.com/grailbio/lsmtree/memlayer"
	"github.com/grailbio/lsmtree/merge"
	"github.com/grailbio/lsmtree/store"
	"golang.org/x/sync/errgroup"
)

// A Tree is a log-structured merge tree. Its state is a mutable
// layer, which absorbs writes, and a list of persisted layers,
// ordered newest first. Trees are safe for concurrent use.
type Tree[K layer.Key[K], V any] struct {
	fn   merge.Func[K, V]
	opts Options

	// CommitMu serializes commits and layer replacements, so that
	// the persisted layers installed by one are not overwritten by
	// another that started earlier.
	commitMu sync.Mutex

	// Mu guards the layer state. Mutations hold the read side while
	// they call into the mutable layer, which synchronizes itself;
	// the state is swapped only while the write side is held.
	mu         sync.RWMutex
	mutable    *memlayer.Layer[K, V]
	mutableRef *layerRef[K, V]
	persisted  []*layerRef[K, V]

	counters counters
}

// New returns a new, empty tree that resolves conflicting items with
// the provided function.
func New[K layer.Key[K], V any](fn merge.Func[K, V], opts ...Option) *Tree[K, V] {
	t := &Tree[K, V]{fn: fn, opts: DefaultOptions}
	for _, opt := range opts {
		opt(&t.opts)
	}
	t.mutable = memlayer.New[K, V]()
	t.mutableRef = newRef[K, V](t.mutable)
	return t
}

// Open returns a new tree whose persisted layers are read from the
// provided handles, ordered newest first.
func Open[K layer.Key[K], V any](ctx context.Context, fn merge.Func[K, V], handles []store.Handle, opts ...Option) (*Tree[K, V], error) {
	t := New(fn, opts...)
	if err := t.SetLayers(ctx, handles); err != nil {
		return nil, err
	}
	return t, nil
}

// SetLayers opens the layers in the provided handles, ordered newest
// first, and replaces the tree's persisted layers with them. The
// mutable layer is left untouched. Layers are opened concurrently;
// if any fails to open, the tree is unchanged.
func (t *Tree[K, V]) SetLayers(ctx context.Context, handles []store.Handle) error {
	layers := make([]*mapio.Layer[K, V], len(handles))
	g, ctx := errgroup.WithContext(ctx)
	for i := range handles {
		i := i
		g.Go(func() error {
			var err error
			layers[i], err = mapio.Open[K, V](ctx, handles[i])
			return err
		})
	}
	if err := g.Wait(); err != nil {
		for _, l := range layers {
			if l == nil {
				continue
			}
			if err := l.Close(); err != nil {
				log.Error.Printf("lsmtree: close %s: %v", l.Name(), err)
			}
		}
		return err
	}
	refs := make([]*layerRef[K, V], len(layers))
	for i := range layers {
		refs[i] = newRef[K, V](layers[i])
	}
	t.commitMu.Lock()
	defer t.commitMu.Unlock()
	t.mu.Lock()
	old := t.persisted
	t.persisted = refs
	t.mu.Unlock()
	releaseAll(old)
	return nil
}

// Insert inserts an item whose key is not yet present in the tree's
// mutable layer. If it is, the existing item is replaced.
func (t *Tree[K, V]) Insert(item layer.Item[K, V]) {
	t.mu.RLock()
	t.mutable.Insert(item)
	t.mu.RUnlock()
	atomic.AddInt64(&t.counters.inserts, 1)
}

// ReplaceOrInsert inserts the item into the tree, replacing any item
// with the same key in the mutable layer. Items with the same key
// in persisted layers are resolved by the tree's merge function.
func (t *Tree[K, V]) ReplaceOrInsert(item layer.Item[K, V]) {
	t.mu.RLock()
	t.mutable.ReplaceOrInsert(item)
	t.mu.RUnlock()
	atomic.AddInt64(&t.counters.upserts, 1)
}

// ReplaceRange inserts the item and removes from the mutable layer
// every item whose key lies in [lower, item.Key). The function fn is
// called with each item before it is removed, and may insert what
// remains of it. Items in persisted layers are not affected; they
// must be filtered out by the tree's merge function.
func (t *Tree[K, V]) ReplaceRange(item layer.Item[K, V], lower K, fn layer.RangeFunc[K, V]) {
	t.mu.RLock()
	t.mutable.ReplaceRange(item, lower, fn)
	t.mu.RUnlock()
	atomic.AddInt64(&t.counters.rangeReplacements, 1)
}

// Commit compacts the tree: the mutable layer and all of the
// persisted layers are merged into a single layer, which is written
// to the provided handle and then replaces them. Writers are not
// blocked by Commit: the mutable layer is replaced by a fresh one
// before the merged layer is written.
//
// If Commit fails, the tree keeps the snapshotted mutable layer as
// its newest persisted layer, so no data is lost, and a later
// commit writes the same items again. If the failure happens before
// the layer is committed, the handle is discarded; otherwise it holds
// a layer that is not part of the tree. Either way, a retry must use
// a fresh handle.
func (t *Tree[K, V]) Commit(ctx context.Context, h store.Handle) error {
	t.commitMu.Lock()
	defer t.commitMu.Unlock()

	t.mu.Lock()
	snapshot := make([]*layerRef[K, V], 0, 1+len(t.persisted))
	snapshot = append(snapshot, t.mutableRef)
	snapshot = append(snapshot, t.persisted...)
	t.mutable = memlayer.New[K, V]()
	t.mutableRef = newRef[K, V](t.mutable)
	// The tree's references to the snapshotted layers carry over to
	// the new persisted list.
	t.persisted = snapshot
	for _, r := range snapshot {
		r.acquire()
	}
	t.mu.Unlock()
	defer releaseAll(snapshot)

	l, err := t.write(ctx, h, snapshot)
	if err != nil {
		atomic.AddInt64(&t.counters.commitFailures, 1)
		return errors.E(fmt.Sprintf("lsmtree: commit %s", h.Name()), err)
	}

	t.mu.Lock()
	old := t.persisted
	t.persisted = []*layerRef[K, V]{newRef[K, V](l)}
	t.mu.Unlock()
	releaseAll(old)
	atomic.AddInt64(&t.counters.commits, 1)
	return nil
}

// Write merges the layers in the snapshot into a new layer written
// to handle h, and then opens it.
func (t *Tree[K, V]) write(ctx context.Context, h store.Handle, snapshot []*layerRef[K, V]) (*mapio.Layer[K, V], error) {
	wc, err := h.Create(ctx)
	if err != nil {
		return nil, err
	}
	iters := make([]layer.Iterator[K, V], len(snapshot))
	for i := range snapshot {
		iters[i] = snapshot[i].Iter()
	}
	var (
		m = merge.New(t.fn, iters...)
		w = mapio.NewWriter[K, V](wc, t.opts.writeOptions()...)
	)
	err = func() error {
		for {
			if err := m.Advance(ctx); err != nil {
				return err
			}
			ref, ok := m.Get()
			if !ok {
				return nil
			}
			if err := w.Append(ref); err != nil {
				return err
			}
		}
	}()
	if err == nil {
		err = w.Close()
	}
	if err != nil {
		if discardErr := wc.Discard(ctx); discardErr != nil {
			log.Error.Printf("lsmtree: discard %s: %v", h.Name(), discardErr)
		}
		return nil, err
	}
	if err := wc.Commit(ctx); err != nil {
		return nil, err
	}
	atomic.AddInt64(&t.counters.conflicts, int64(m.Conflicts()))
	atomic.AddInt64(&t.counters.committedItems, int64(w.Len()))
	atomic.AddInt64(&t.counters.committedBytes, int64(w.Size()))
	log.Debug.Printf("lsmtree: committed %d items (%s) from %d layers to %s; %d conflicts",
		w.Len(), data.Size(w.Size()), len(snapshot), h.Name(), m.Conflicts())
	l, err := mapio.Open[K, V](ctx, h)
	if err != nil {
		log.Error.Printf("lsmtree: layer %s was committed but could not be opened; it is not part of the tree: %v", h.Name(), err)
		return nil, err
	}
	return l, nil
}

// Snapshot returns references to the tree's current layers, in
// priority order. The caller must release them.
func (t *Tree[K, V]) snapshot() []*layerRef[K, V] {
	t.mu.RLock()
	defer t.mu.RUnlock()
	refs := make([]*layerRef[K, V], 0, 1+len(t.persisted))
	refs = append(refs, t.mutableRef.acquire())
	for _, r := range t.persisted {
		refs = append(refs, r.acquire())
	}
	return refs
}

func (t *Tree[K, V]) iter(refs []*layerRef[K, V], extra []layer.Layer[K, V]) *Iterator[K, V] {
	iters := make([]layer.Iterator[K, V], 0, len(extra)+len(refs))
	for _, l := range extra {
		iters = append(iters, l.Iter())
	}
	for _, r := range refs {
		iters = append(iters, r.Iter())
	}
	return &Iterator[K, V]{
		refs:     refs,
		merger:   merge.New(t.fn, iters...),
		counters: &t.counters,
	}
}

// Iter returns an iterator over the tree's current items, positioned
// at the first item. The iterator must be closed after use.
func (t *Tree[K, V]) Iter(ctx context.Context) (*Iterator[K, V], error) {
	return t.RangeFrom(ctx, layer.Unbounded[K]())
}

// RangeFrom returns an iterator over the tree's current items,
// positioned at the first item admitted by the provided bound. The
// iterator must be closed after use.
func (t *Tree[K, V]) RangeFrom(ctx context.Context, bound layer.Bound[K]) (*Iterator[K, V], error) {
	it := t.iter(t.snapshot(), nil)
	if err := it.Seek(ctx, bound); err != nil {
		it.Close()
		return nil, err
	}
	return it, nil
}

// IterWithLayers returns an unpositioned iterator over the tree's
// current items merged with the provided layers. The extra layers
// outrank all of the tree's layers, in the order given. They are
// not owned by the iterator, and must remain valid until the
// iterator is closed.
func (t *Tree[K, V]) IterWithLayers(extra ...layer.Layer[K, V]) *Iterator[K, V] {
	return t.iter(t.snapshot(), extra)
}

// Find returns the item with the provided key, if it is present in
// the tree. The returned item is owned by the caller. Persisted
// layers whose filters exclude the key are not consulted.
func (t *Tree[K, V]) Find(ctx context.Context, key K) (layer.Item[K, V], bool, error) {
	atomic.AddInt64(&t.counters.finds, 1)
	refs := t.snapshot()
	defer releaseAll(refs)
	iters := make([]layer.Iterator[K, V], 0, len(refs))
	for _, r := range refs {
		if f, ok := r.Layer.(interface{ MayContain(K) bool }); ok && !f.MayContain(key) {
			atomic.AddInt64(&t.counters.filterSkips, 1)
			continue
		}
		iters = append(iters, r.Iter())
	}
	m := merge.New(t.fn, iters...)
	if err := m.AdvanceTo(ctx, key); err != nil {
		return layer.Item[K, V]{}, false, err
	}
	atomic.AddInt64(&t.counters.conflicts, int64(m.Conflicts()))
	ref, ok := m.Get()
	if !ok || ref.Key.Compare(key) != 0 {
		return layer.Item[K, V]{}, false, nil
	}
	return ref.Clone(), true, nil
}

// DumpMutableLayer writes a listing of the mutable layer's items to
// w.
func (t *Tree[K, V]) DumpMutableLayer(w io.Writer) error {
	t.mu.RLock()
	mutable := t.mutable
	t.mu.RUnlock()
	return mutable.Dump(w)
}

// Stats returns a snapshot of the tree's counters, together with
// the current shape of the tree.
func (t *Tree[K, V]) Stats() Stats {
	stats := t.counters.snapshot()
	t.mu.RLock()
	stats["persisted-layers"] = int64(len(t.persisted))
	stats["mutable-items"] = int64(t.mutable.Len())
	t.mu.RUnlock()
	return stats
}

// Close releases the tree's layers. Persisted layers are closed once
// every iterator that refers to them has been closed. The tree must
// not be used after Close.
func (t *Tree[K, V]) Close() {
	t.commitMu.Lock()
	defer t.commitMu.Unlock()
	t.mu.Lock()
	refs := append([]*layerRef[K, V]{t.mutableRef}, t.persisted...)
	t.mutableRef, t.persisted = nil, nil
	t.mu.Unlock()
	releaseAll(refs)
}
