// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package mapio

import (
	"context"
	"math/rand"
	"testing"

	"github.com/grailbio/lsmtree/keys"
	"github.com/grailbio/lsmtree/store"
)

func TestBuf(t *testing.T) {
	const N = 1000
	ctx := context.Background()
	items := makeItems(N)
	shuffled := append([]item{}, items...)
	// Shuffle to make sure the buffer sorts properly.
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	var buf Buf[keys.Int, string]
	// A stale version of the first item, superseded below.
	buf.Append(item{Key: items[0].Key, Value: "stale"})
	for _, e := range shuffled {
		buf.Append(e)
	}
	h := store.NewMemory().Handle("buf")
	wc, err := h.Create(ctx)
	if err != nil {
		t.Fatal(err)
	}
	w := NewWriter[keys.Int, string](wc, BlockItems(64))
	if err := buf.WriteTo(w); err != nil {
		t.Fatal(err)
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
	defer l.Close()
	testLayer(t, items, l)
}
