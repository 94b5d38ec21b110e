// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package mapio

import (
	"encoding"

	"github.com/spaolacci/murmur3"
)

const filterSeed = 0xbc9f1d34

// A filter is a bloom filter over binary-encoded keys. Probes use
// double hashing as in LevelDB's bloom filter: a single 32-bit
// murmur3 hash is rotated to derive the probe sequence.
type filter struct {
	Bits []byte
	K    int
}

func keyHash(key interface{}) (uint32, bool) {
	m, ok := key.(encoding.BinaryMarshaler)
	if !ok {
		return 0, false
	}
	p, err := m.MarshalBinary()
	if err != nil {
		return 0, false
	}
	d := murmur3.New32WithSeed(filterSeed)
	d.Write(p)
	return d.Sum32(), true
}

// MayContain tells whether the key with hash h may be present in the
// filter.
func (f *filter) mayContain(h uint32) bool {
	nbits := uint32(len(f.Bits) * 8)
	if nbits == 0 {
		return false
	}
	delta := h>>17 | h<<15
	for j := 0; j < f.K; j++ {
		pos := h % nbits
		if f.Bits[pos/8]&(1<<(pos%8)) == 0 {
			return false
		}
		h += delta
	}
	return true
}

type filterBuilder struct {
	hashes []uint32
}

// Add adds the key to the filter. Add returns false if the key
// cannot be encoded.
func (b *filterBuilder) add(key interface{}) bool {
	h, ok := keyHash(key)
	if !ok {
		return false
	}
	b.hashes = append(b.hashes, h)
	return true
}

func (b *filterBuilder) build(bitsPerKey int) *filter {
	// ln(2) * bitsPerKey probes minimizes the false positive rate.
	k := bitsPerKey * 69 / 100
	if k < 1 {
		k = 1
	} else if k > 30 {
		k = 30
	}
	nbits := len(b.hashes) * bitsPerKey
	if nbits < 64 {
		nbits = 64
	}
	f := &filter{Bits: make([]byte, (nbits+7)/8), K: k}
	nbits = len(f.Bits) * 8
	for _, h := range b.hashes {
		delta := h>>17 | h<<15
		for j := 0; j < k; j++ {
			pos := h % uint32(nbits)
			f.Bits[pos/8] |= 1 << (pos % 8)
			h += delta
		}
	}
	return f
}
