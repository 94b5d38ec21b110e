// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package keys provides ready-made key types for LSM trees: point
// keys, whose lower-bound comparison coincides with their total
// order, and extent keys, which are located by the offset at which
// they end.
package keys

import (
	"encoding/binary"
	"fmt"
)

// Int is a point key.
type Int uint64

// Compare implements layer.Key.
func (k Int) Compare(other Int) int {
	switch {
	case k < other:
		return -1
	case k > other:
		return 1
	default:
		return 0
	}
}

// CompareLower implements layer.Key.
func (k Int) CompareLower(other Int) int {
	return k.Compare(other)
}

// MarshalBinary encodes the key as 8 big-endian bytes.
func (k Int) MarshalBinary() ([]byte, error) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(k))
	return b[:], nil
}

// UnmarshalBinary decodes a key encoded by MarshalBinary.
func (k *Int) UnmarshalBinary(p []byte) error {
	if len(p) != 8 {
		return fmt.Errorf("keys: invalid encoded Int of length %d", len(p))
	}
	*k = Int(binary.BigEndian.Uint64(p))
	return nil
}

// Extent is the half-open byte range [Start, End). Extents are
// ordered by End, then Start, so that a lower-bound seek for offset
// o finds the first extent that ends after o.
type Extent struct {
	Start, End uint64
}

// Compare implements layer.Key.
func (e Extent) Compare(other Extent) int {
	if c := Int(e.End).Compare(Int(other.End)); c != 0 {
		return c
	}
	return Int(e.Start).Compare(Int(other.Start))
}

// CompareLower implements layer.Key. The extent is compared against
// the first byte of other: it is "before" other if it ends at or
// before other.Start, and at other if its last byte is other.Start.
// An empty extent positioned at other.Start is also at other.
func (e Extent) CompareLower(other Extent) int {
	switch {
	case e.End > other.Start:
		if e.End-1 == other.Start {
			return 0
		}
		return 1
	case e.End == other.Start && e.Start == e.End:
		return 0
	default:
		return -1
	}
}

// Overlaps tells whether the extents share at least one byte.
func (e Extent) Overlaps(other Extent) bool {
	return e.Start < other.End && other.Start < e.End
}

// MarshalBinary encodes the extent as 16 big-endian bytes.
func (e Extent) MarshalBinary() ([]byte, error) {
	var b [16]byte
	binary.BigEndian.PutUint64(b[:8], e.Start)
	binary.BigEndian.PutUint64(b[8:], e.End)
	return b[:], nil
}

// UnmarshalBinary decodes an extent encoded by MarshalBinary.
func (e *Extent) UnmarshalBinary(p []byte) error {
	if len(p) != 16 {
		return fmt.Errorf("keys: invalid encoded Extent of length %d", len(p))
	}
	e.Start = binary.BigEndian.Uint64(p[:8])
	e.End = binary.BigEndian.Uint64(p[8:])
	return nil
}

func (e Extent) String() string {
	return fmt.Sprintf("[%d,%d)", e.Start, e.End)
}
