// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package lsmtree

import (
	"io"
	"sync/atomic"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
	"github.com/grailbio/lsmtree/layer"
)

// A layerRef is a reference-counted layer. The tree holds one
// reference to each layer in its state, and each iterator holds one
// reference to each layer in its snapshot. Layers that implement
// io.Closer are closed when their last reference is released.
type layerRef[K layer.Key[K], V any] struct {
	layer.Layer[K, V]
	refs int32
}

func newRef[K layer.Key[K], V any](l layer.Layer[K, V]) *layerRef[K, V] {
	return &layerRef[K, V]{Layer: l, refs: 1}
}

func (r *layerRef[K, V]) acquire() *layerRef[K, V] {
	n := atomic.AddInt32(&r.refs, 1)
	must.Truef(n > 1, "lsmtree: acquire of released layer")
	return r
}

func (r *layerRef[K, V]) release() {
	n := atomic.AddInt32(&r.refs, -1)
	must.Truef(n >= 0, "lsmtree: layer released too many times")
	if n > 0 {
		return
	}
	c, ok := r.Layer.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		log.Error.Printf("lsmtree: close layer: %v", err)
	}
}

func releaseAll[K layer.Key[K], V any](refs []*layerRef[K, V]) {
	for _, r := range refs {
		r.release()
	}
}
