// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*
Package lsmtree implements a log-structured merge tree: a key-value
store in which writes are absorbed by an in-memory mutable layer and
periodically compacted, together with every previously persisted
layer, into a single durable layer.

A Tree is parameterized by its key and value types. Keys implement
layer.Key, which supplies both a total order and a lower-bound
comparison; the latter lets range-like keys (such as keys.Extent) be
located by the point at which they begin. Values may be of any type
that is serializable with encoding/gob.

Reads merge the mutable layer with the persisted layers. When the
same key is present in more than one layer, the tree's merge.Func
decides which item is visible. Layers are ordered by priority: the
mutable layer outranks every persisted layer, and persisted layers
are ordered newest first.

	tree := lsmtree.New[keys.Int, string](merge.PreferFirst[keys.Int, string])
	tree.Insert(layer.MakeItem(keys.Int(1), "a"))
	if err := tree.Commit(ctx, store.NewFiles("s3://bucket/tree").Handle("layer-1")); err != nil {
		log.Fatal(err)
	}
	it, err := tree.Iter(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer it.Close()
	for ref, ok := it.Get(); ok; ref, ok = it.Get() {
		fmt.Println(ref)
		if err := it.Advance(ctx); err != nil {
			log.Fatal(err)
		}
	}

Commit never blocks writers: the mutable layer is swapped out for a
fresh one before the compaction's I/O begins. Iterators hold
references to the layers they were created over, so they remain
valid across concurrent commits.
*/
package lsmtree
