// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package layer

import "fmt"

// Key is the constraint satisfied by tree keys.
type Key[K any] interface {
	// Compare returns a negative number, zero, or a positive number
	// when the key is less than, equal to, or greater than other
	// under the key's total order.
	Compare(other K) int
	// CompareLower compares the key against the lower bound
	// represented by other. A negative result means the key lies
	// entirely before the point where other begins.
	CompareLower(other K) int
}

// A Cloner can produce a deep copy of itself. Keys and values that
// share memory (slices, maps, pointers) should implement Cloner so
// that Item.Clone and ItemRef.Clone return fully owned copies.
type Cloner[T any] interface {
	Clone() T
}

// An Item is an owned key-value pair.
type Item[K, V any] struct {
	Key   K
	Value V
}

// MakeItem returns a new item with the provided key and value.
func MakeItem[K, V any](key K, value V) Item[K, V] {
	return Item[K, V]{Key: key, Value: value}
}

// Clone returns a copy of the item. The key and value are deep
// copied if they implement Cloner.
func (i Item[K, V]) Clone() Item[K, V] {
	return Item[K, V]{Key: clone(i.Key), Value: clone(i.Value)}
}

// Ref returns a reference to the item.
func (i *Item[K, V]) Ref() ItemRef[K, V] {
	return ItemRef[K, V]{i}
}

func (i Item[K, V]) String() string {
	return fmt.Sprintf("%v: %v", i.Key, i.Value)
}

// An ItemRef is a borrowed key-value pair. It refers to an item
// owned by the layer or merger that produced it, and is valid only
// until that producer is advanced. Callers that need the item
// beyond that point must Clone it.
type ItemRef[K, V any] struct {
	*Item[K, V]
}

// Clone returns an owned copy of the referenced item.
func (r ItemRef[K, V]) Clone() Item[K, V] {
	return r.Item.Clone()
}

func clone[T any](v T) T {
	if c, ok := any(v).(Cloner[T]); ok {
		return c.Clone()
	}
	return v
}
