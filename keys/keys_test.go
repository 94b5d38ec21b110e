// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package keys

import (
	"sort"
	"testing"

	"github.com/grailbio/lsmtree/layer"
)

func TestInt(t *testing.T) {
	for _, c := range []struct {
		a, b Int
		want int
	}{
		{1, 2, -1},
		{2, 1, 1},
		{5, 5, 0},
	} {
		if got := c.a.Compare(c.b); got != c.want {
			t.Errorf("%d.Compare(%d): got %v, want %v", c.a, c.b, got, c.want)
		}
		if got := c.a.CompareLower(c.b); got != c.want {
			t.Errorf("%d.CompareLower(%d): got %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestExtentLowerBound(t *testing.T) {
	extents := []Extent{{0, 10}, {10, 20}, {20, 25}, {30, 40}}
	sort.Slice(extents, func(i, j int) bool { return extents[i].Compare(extents[j]) < 0 })
	for _, c := range []struct {
		offset uint64
		want   int
	}{
		{0, 0},
		{9, 0},
		{10, 1},
		{24, 2},
		{25, 3},
		{39, 3},
		{40, 4},
	} {
		bound := layer.Included(Extent{c.offset, c.offset + 1})
		got := sort.Search(len(extents), func(i int) bool { return bound.Admits(extents[i]) })
		if got != c.want {
			t.Errorf("offset %d: got %v, want %v", c.offset, got, c.want)
		}
	}
}

func TestExtentOverlaps(t *testing.T) {
	a := Extent{0, 10}
	if !a.Overlaps(Extent{9, 12}) {
		t.Error("expected overlap")
	}
	if a.Overlaps(Extent{10, 12}) {
		t.Error("unexpected overlap")
	}
}

func TestExtentLowerBoundEdges(t *testing.T) {
	const max = ^uint64(0)
	for _, c := range []struct {
		bound layer.Bound[Extent]
		key   Extent
		want  bool
	}{
		{layer.Included(Extent{max, max}), Extent{0, 1}, false},
		{layer.Included(Extent{max - 1, max}), Extent{max - 1, max}, true},
		{layer.Included(Extent{5, 5}), Extent{5, 5}, true},
		{layer.Included(Extent{5, 5}), Extent{0, 5}, false},
		{layer.Included(Extent{5, 6}), Extent{5, 5}, true},
		{layer.Included(Extent{5, 6}), Extent{4, 6}, true},
		{layer.Excluded(Extent{5, 6}), Extent{4, 6}, false},
		{layer.Excluded(Extent{5, 6}), Extent{4, 7}, true},
	} {
		if got, want := c.bound.Admits(c.key), c.want; got != want {
			t.Errorf("%v admits %v: got %v, want %v", c.bound, c.key, got, want)
		}
	}
}

// Every key that orders at or after the bound's key must be
// admitted, and the admitted keys must form a suffix.
func TestExtentLowerBoundSuffix(t *testing.T) {
	var extents []Extent
	for start := uint64(0); start < 8; start++ {
		for end := start; end < 8; end++ {
			extents = append(extents, Extent{start, end})
		}
	}
	sort.Slice(extents, func(i, j int) bool { return extents[i].Compare(extents[j]) < 0 })
	for _, target := range extents {
		for _, bound := range []layer.Bound[Extent]{layer.Included(target), layer.Excluded(target)} {
			admitted := false
			for _, e := range extents {
				ok := bound.Admits(e)
				if admitted && !ok {
					t.Errorf("%v: admitted keys are not a suffix at %v", bound, e)
				}
				admitted = admitted || ok
			}
		}
		for _, e := range extents {
			if e.Compare(target) >= 0 && !layer.Included(target).Admits(e) {
				t.Errorf("%v: key %v not admitted", layer.Included(target), e)
			}
		}
	}
}
