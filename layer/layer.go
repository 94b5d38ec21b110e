// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package layer

import "context"

// A Layer is an immutable, sorted set of items, deduplicated within
// itself. The mutable layer is the one exception to immutability:
// it is mutated only through its own synchronized methods.
type Layer[K Key[K], V any] interface {
	// Iter returns a new, unpositioned iterator over the layer.
	// Seek or Advance must be called before the first call to Get.
	Iter() Iterator[K, V]
}

// An Iterator traverses a layer in key order. Iterators are not
// safe for concurrent use.
type Iterator[K Key[K], V any] interface {
	// Seek positions the iterator at the first item admitted by
	// the provided bound.
	Seek(ctx context.Context, bound Bound[K]) error
	// Advance moves the iterator to the next item. An unpositioned
	// iterator is moved to the first item. When no more items are
	// available, Advance returns nil and Get reports false.
	Advance(ctx context.Context) error
	// Get returns the current item without consuming it. Get returns
	// false if the iterator is unpositioned or exhausted. The
	// returned reference is valid until the iterator is next moved.
	Get() (ItemRef[K, V], bool)
	// DiscardOrAdvance behaves like Advance, but signals that the
	// current item is being dropped from visibility.
	DiscardOrAdvance(ctx context.Context) error
}

// A MutableIterator is an iterator over the mutable layer that may
// modify the layer in place. Mutable iterators are only handed to
// range callbacks, which run while the layer is held exclusively;
// they must not call back into the layer.
type MutableIterator[K Key[K], V any] interface {
	// Get returns the current item.
	Get() (ItemRef[K, V], bool)
	// Advance moves to the next item.
	Advance()
	// Erase removes the current item from the layer and positions
	// the iterator at the item that followed it.
	Erase()
	// InsertBefore inserts the item ahead of the current position.
	// The item's key must order before the current item and after
	// the item that precedes it.
	InsertBefore(item Item[K, V])
}

// A RangeFunc is invoked by a range replacement for each item that
// is about to be erased. It may insert remnants of the item (for
// example, the non-overlapping part of a partially covered extent)
// through it.InsertBefore.
type RangeFunc[K Key[K], V any] func(it MutableIterator[K, V], existing ItemRef[K, V])
