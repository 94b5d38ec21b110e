// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package layer defines the data model shared by all parts of the
// LSM tree: keys, items, bounds, and the Layer and Iterator
// interfaces through which in-memory and on-disk layers are treated
// uniformly as sorted, iterable sets of items.
//
// A layer is sorted by its key's total order (Key.Compare) and holds
// at most one item per key. Seeks are evaluated under the key's
// lower-bound comparison (Key.CompareLower), which lets range-like
// keys (for example, extents) be located by the point at which they
// begin. For every target t, the items x for which
// x.CompareLower(t) >= 0 must form a suffix of the layer, and that
// suffix must include every item x for which x.Compare(t) >= 0.
package layer
