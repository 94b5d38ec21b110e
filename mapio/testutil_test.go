// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package mapio

import (
	"context"
	"math/rand"
	"sort"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/grailbio/lsmtree/keys"
	"github.com/grailbio/lsmtree/layer"
	"github.com/grailbio/lsmtree/store"
)

type item = layer.Item[keys.Int, string]

// makeItems returns n items with unique, sorted keys and fuzzed
// values.
func makeItems(n int) []item {
	fz := fuzz.NewWithSeed(1)
	seen := make(map[keys.Int]bool)
	items := make([]item, 0, n)
	for len(items) < n {
		var (
			k uint64
			v string
		)
		fz.Fuzz(&k)
		fz.Fuzz(&v)
		if seen[keys.Int(k)] {
			continue
		}
		seen[keys.Int(k)] = true
		items = append(items, item{Key: keys.Int(k), Value: v})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
	return items
}

func writeLayer(t *testing.T, h store.Handle, items []item, opts ...WriteOption) *Layer[keys.Int, string] {
	t.Helper()
	ctx := context.Background()
	wc, err := h.Create(ctx)
	if err != nil {
		t.Fatal(err)
	}
	w := NewWriter[keys.Int, string](wc, opts...)
	for i := range items {
		if err := w.Append(items[i].Ref()); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := wc.Commit(ctx); err != nil {
		t.Fatal(err)
	}
	l, err := Open[keys.Int, string](ctx, h)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func scanAll(t *testing.T, it layer.Iterator[keys.Int, string]) []item {
	t.Helper()
	ctx := context.Background()
	var items []item
	for {
		if err := it.Advance(ctx); err != nil {
			t.Fatal(err)
		}
		ref, ok := it.Get()
		if !ok {
			return items
		}
		items = append(items, ref.Clone())
	}
}

func testLayer(t *testing.T, items []item, l layer.Layer[keys.Int, string]) {
	t.Helper()
	ctx := context.Background()

	scanned := scanAll(t, l.Iter())
	if got, want := len(scanned), len(items); got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range scanned {
		if scanned[i] != items[i] {
			t.Errorf("scan: item %d does not match", i)
		}
	}

	// Look up keys but in a random order, reusing an iterator.
	it := l.Iter()
	for n, i := range rand.Perm(len(items)) {
		if err := it.Seek(ctx, layer.Included(items[i].Key)); err != nil {
			t.Fatal(err)
		}
		ref, ok := it.Get()
		if !ok || *ref.Item != items[i] {
			t.Errorf("%d: seek: item %d does not match", n, i)
		}
		if i > 0 && items[i].Key > items[i-1].Key+1 {
			// Seek between keys.
			if err := it.Seek(ctx, layer.Included(items[i].Key-1)); err != nil {
				t.Fatal(err)
			}
			if ref, ok := it.Get(); !ok || *ref.Item != items[i] {
				t.Errorf("%d: seek between: item %d does not match", n, i)
			}
		}
		if err := it.Seek(ctx, layer.Excluded(items[i].Key)); err != nil {
			t.Fatal(err)
		}
		ref, ok = it.Get()
		if i == len(items)-1 {
			if ok {
				t.Errorf("%d: seek past last: got %v", n, ref)
			}
		} else if !ok || *ref.Item != items[i+1] {
			t.Errorf("%d: seek excluded: item %d does not match", n, i)
		}
	}

	lastKey := items[len(items)-1].Key
	if lastKey < keys.Int(^uint64(0)) {
		if err := it.Seek(ctx, layer.Included(lastKey+1)); err != nil {
			t.Fatal(err)
		}
		if _, ok := it.Get(); ok {
			t.Error("scanned bigger key")
		}
	}
}
