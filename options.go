// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package lsmtree

import (
	"github.com/grailbio/base/config"
	"github.com/grailbio/lsmtree/mapio"
)

func init() {
	config.Register("lsmtree", func(constr *config.Constructor) {
		opts := DefaultOptions
		constr.IntVar(&opts.BlockItems, "block-items", DefaultOptions.BlockItems,
			"number of items in each block of a persisted layer")
		constr.IntVar(&opts.BloomBitsPerKey, "bloom-bits-per-key", DefaultOptions.BloomBitsPerKey,
			"bloom filter density of persisted layers; 0 disables filters")
		constr.Doc = "lsmtree configures the layers written by LSM tree commits"
		constr.New = func() (interface{}, error) {
			return opts, nil
		}
	})
}

// Options holds the tunables of a Tree. Options may be provisioned
// through the "lsmtree" instance of package
// github.com/grailbio/base/config:
//
//	var opts lsmtree.Options
//	config.Must("lsmtree", &opts)
//	tree := lsmtree.New(fn, lsmtree.WithOptions(opts))
type Options struct {
	// BlockItems is the number of items in each block of a
	// persisted layer.
	BlockItems int
	// BloomBitsPerKey is the density of the bloom filters written
	// with persisted layers. Zero disables filters.
	BloomBitsPerKey int
}

// DefaultOptions are the options used by trees unless overridden.
var DefaultOptions = Options{
	BlockItems:      mapio.DefaultBlockItems,
	BloomBitsPerKey: mapio.DefaultBloomBitsPerKey,
}

func (o Options) writeOptions() []mapio.WriteOption {
	return []mapio.WriteOption{
		mapio.BlockItems(o.BlockItems),
		mapio.BloomBitsPerKey(o.BloomBitsPerKey),
	}
}

// An Option configures a Tree.
type Option func(o *Options)

// WithOptions replaces all of the tree's options.
func WithOptions(opts Options) Option {
	return func(o *Options) {
		*o = opts
	}
}

// BlockItems configures the number of items in each block of the
// layers written by commits.
func BlockItems(n int) Option {
	if n <= 0 {
		panic("lsmtree.BlockItems: n <= 0")
	}
	return func(o *Options) {
		o.BlockItems = n
	}
}

// BloomBitsPerKey configures the density of the bloom filters of the
// layers written by commits. Zero disables filters.
func BloomBitsPerKey(n int) Option {
	if n < 0 {
		panic("lsmtree.BloomBitsPerKey: n < 0")
	}
	return func(o *Options) {
		o.BloomBitsPerKey = n
	}
}
