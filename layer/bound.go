// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package layer

import "fmt"

type boundKind int

const (
	unbounded boundKind = iota
	included
	excluded
)

// A Bound constrains where a seek positions an iterator. Bounds are
// evaluated under the key's lower-bound comparison.
type Bound[K Key[K]] struct {
	kind boundKind
	key  K
}

// Unbounded returns a bound that admits every key; seeking to it
// positions an iterator at its first item.
func Unbounded[K Key[K]]() Bound[K] {
	return Bound[K]{}
}

// Included returns a bound that admits every key x for which
// x.CompareLower(key) >= 0.
func Included[K Key[K]](key K) Bound[K] {
	return Bound[K]{kind: included, key: key}
}

// Excluded returns a bound that admits every key x for which
// x.CompareLower(key) > 0.
func Excluded[K Key[K]](key K) Bound[K] {
	return Bound[K]{kind: excluded, key: key}
}

// Admits tells whether key k satisfies the bound. For any layer,
// the admitted keys form a suffix of the layer.
func (b Bound[K]) Admits(k K) bool {
	switch b.kind {
	case included:
		return k.CompareLower(b.key) >= 0
	case excluded:
		return k.CompareLower(b.key) > 0
	default:
		return true
	}
}

func (b Bound[K]) String() string {
	switch b.kind {
	case included:
		return fmt.Sprintf("[%v", b.key)
	case excluded:
		return fmt.Sprintf("(%v", b.key)
	default:
		return "unbounded"
	}
}
