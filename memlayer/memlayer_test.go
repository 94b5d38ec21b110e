// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package memlayer

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"sort"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/grailbio/lsmtree/keys"
	"github.com/grailbio/lsmtree/layer"
	"golang.org/x/sync/errgroup"
)

type item = layer.Item[keys.Int, string]

func scan(t *testing.T, it layer.Iterator[keys.Int, string]) []item {
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

func fill(l *Layer[keys.Int, string], ks ...keys.Int) {
	for _, k := range ks {
		l.Insert(layer.MakeItem(k, fmt.Sprint(k)))
	}
}

func TestReplaceOrInsert(t *testing.T) {
	const N = 5000
	var (
		fz   = fuzz.NewWithSeed(1)
		l    = New[keys.Int, string]()
		want = make(map[keys.Int]string)
	)
	for i := 0; i < N; i++ {
		var (
			k keys.Int
			v string
		)
		fz.Fuzz(&v)
		k = keys.Int(rand.Intn(N / 2))
		l.ReplaceOrInsert(layer.MakeItem(k, v))
		want[k] = v
	}
	items := scan(t, l.Iter())
	if got, want := len(items), len(want); got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := l.Len(), len(want); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if !sort.SliceIsSorted(items, func(i, j int) bool { return items[i].Key < items[j].Key }) {
		t.Error("items not sorted")
	}
	for i, item := range items {
		if i > 0 && items[i-1].Key == item.Key {
			t.Errorf("duplicate key %v", item.Key)
		}
		if got, want := item.Value, want[item.Key]; got != want {
			t.Errorf("key %v: got %q, want %q", item.Key, got, want)
		}
	}
}

func TestReplaceOrInsertIdempotent(t *testing.T) {
	l := New[keys.Int, string]()
	fill(l, 1, 2, 3)
	l.ReplaceOrInsert(layer.MakeItem(keys.Int(2), "x"))
	l.ReplaceOrInsert(layer.MakeItem(keys.Int(2), "x"))
	items := scan(t, l.Iter())
	want := []item{{1, "1"}, {2, "x"}, {3, "3"}}
	if got := fmt.Sprint(items); got != fmt.Sprint(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestSeek(t *testing.T) {
	ctx := context.Background()
	l := New[keys.Int, string]()
	fill(l, 10, 20, 30, 40)
	for _, c := range []struct {
		bound layer.Bound[keys.Int]
		want  keys.Int
		ok    bool
	}{
		{layer.Unbounded[keys.Int](), 10, true},
		{layer.Included(keys.Int(20)), 20, true},
		{layer.Included(keys.Int(21)), 30, true},
		{layer.Excluded(keys.Int(20)), 30, true},
		{layer.Included(keys.Int(40)), 40, true},
		{layer.Excluded(keys.Int(40)), 0, false},
	} {
		it := l.Iter()
		if err := it.Seek(ctx, c.bound); err != nil {
			t.Fatal(err)
		}
		ref, ok := it.Get()
		if got, want := ok, c.ok; got != want {
			t.Errorf("%v: got %v, want %v", c.bound, got, want)
			continue
		}
		if ok && ref.Key != c.want {
			t.Errorf("%v: got %v, want %v", c.bound, ref.Key, c.want)
		}
	}
}

func TestUnpositioned(t *testing.T) {
	l := New[keys.Int, string]()
	fill(l, 1)
	if _, ok := l.Iter().Get(); ok {
		t.Error("unpositioned iterator returned an item")
	}
}

func TestReplaceRange(t *testing.T) {
	l := New[keys.Int, string]()
	fill(l, 1, 2, 3, 4, 5, 6)
	var removed []keys.Int
	l.ReplaceRange(layer.MakeItem(keys.Int(5), "x"), keys.Int(2), func(it layer.MutableIterator[keys.Int, string], existing layer.ItemRef[keys.Int, string]) {
		removed = append(removed, existing.Key)
	})
	if got, want := fmt.Sprint(removed), "[2 3 4]"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	want := []item{{1, "1"}, {5, "x"}, {6, "6"}}
	if got := scan(t, l.Iter()); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := l.Len(), 3; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestReplaceRangeSplit(t *testing.T) {
	ctx := context.Background()
	l := New[keys.Extent, string]()
	l.Insert(layer.MakeItem(keys.Extent{Start: 0, End: 10}, "a"))
	l.Insert(layer.MakeItem(keys.Extent{Start: 10, End: 20}, "b"))
	repl := keys.Extent{Start: 5, End: 15}
	l.ReplaceRange(layer.MakeItem(repl, "c"), keys.Extent{Start: repl.Start, End: repl.Start + 1},
		func(it layer.MutableIterator[keys.Extent, string], existing layer.ItemRef[keys.Extent, string]) {
			if existing.Key.Start < repl.Start {
				it.InsertBefore(layer.MakeItem(keys.Extent{Start: existing.Key.Start, End: repl.Start}, existing.Value))
			}
		})
	it := l.Iter()
	var got []string
	for {
		if err := it.Advance(ctx); err != nil {
			t.Fatal(err)
		}
		ref, ok := it.Get()
		if !ok {
			break
		}
		got = append(got, ref.String())
	}
	if got, want := fmt.Sprint(got), "[[0,5): a [5,15): c [10,20): b]"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestIteratorSurvivesErase(t *testing.T) {
	ctx := context.Background()
	l := New[keys.Int, string]()
	fill(l, 1, 2, 3, 4, 5, 6, 7)
	it := l.Iter()
	if err := it.Seek(ctx, layer.Included(keys.Int(3))); err != nil {
		t.Fatal(err)
	}
	l.ReplaceRange(layer.MakeItem(keys.Int(6), "x"), keys.Int(3), nil)
	ref, ok := it.Get()
	if !ok || ref.Key != 3 || ref.Value != "3" {
		t.Fatalf("got %v, want 3: 3", ref)
	}
	if err := it.Advance(ctx); err != nil {
		t.Fatal(err)
	}
	ref, ok = it.Get()
	if !ok || ref.Key != 6 || ref.Value != "x" {
		t.Errorf("got %v, want 6: x", ref)
	}
}

func TestReplaceKeepsBorrowedItem(t *testing.T) {
	ctx := context.Background()
	l := New[keys.Int, string]()
	fill(l, 1)
	it := l.Iter()
	if err := it.Advance(ctx); err != nil {
		t.Fatal(err)
	}
	l.ReplaceOrInsert(layer.MakeItem(keys.Int(1), "new"))
	ref, _ := it.Get()
	if got, want := ref.Value, "1"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDump(t *testing.T) {
	l := New[keys.Int, string]()
	fill(l, 2, 1)
	var b bytes.Buffer
	if err := l.Dump(&b); err != nil {
		t.Fatal(err)
	}
	if got, want := b.String(), "1: 1\n2: 2\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestConcurrent(t *testing.T) {
	const (
		N       = 2000
		writers = 4
		readers = 4
	)
	l := New[keys.Int, string]()
	var g errgroup.Group
	for w := 0; w < writers; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < N; i++ {
				k := keys.Int(i*writers + w)
				l.ReplaceOrInsert(layer.MakeItem(k, fmt.Sprint(k)))
				if i%100 == 99 {
					l.ReplaceRange(layer.MakeItem(k, "r"), k-50, nil)
				}
			}
			return nil
		})
	}
	for r := 0; r < readers; r++ {
		g.Go(func() error {
			ctx := context.Background()
			for i := 0; i < 20; i++ {
				it := l.Iter()
				last := keys.Int(0)
				first := true
				for {
					if err := it.Advance(ctx); err != nil {
						return err
					}
					ref, ok := it.Get()
					if !ok {
						break
					}
					if !first && ref.Key <= last {
						return fmt.Errorf("out of order: %v after %v", ref.Key, last)
					}
					first, last = false, ref.Key
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}
