// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package mapio

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"hash/crc32"
	"strings"

	"github.com/grailbio/base/errors"
)

const blockTrailerSize = 1 + // block type
	4 // crc32 (IEEE) checksum of contents

var order = binary.LittleEndian

type blockType uint8

const (
	dataBlock blockType = iota
	indexBlock
	filterBlock
)

func (t blockType) String() string {
	switch t {
	case dataBlock:
		return "data"
	case indexBlock:
		return "index"
	case filterBlock:
		return "filter"
	default:
		return fmt.Sprintf("blockType(%d)", t)
	}
}

// EncodeBlock resets b and encodes the payload v into it, followed
// by the block trailer.
func encodeBlock(b *bytes.Buffer, typ blockType, v interface{}) error {
	b.Reset()
	if err := gob.NewEncoder(b).Encode(v); err != nil {
		// Payloads contain user-defined types. We pessimistically
		// attribute any errors that appear to come from gob as being
		// related to the inability to encode these types.
		if strings.HasPrefix(err.Error(), "gob: ") {
			err = errors.E(errors.Fatal, err)
		}
		return err
	}
	b.WriteByte(byte(typ))
	var p [4]byte
	order.PutUint32(p[:], crc32.ChecksumIEEE(b.Bytes()))
	b.Write(p[:])
	return nil
}

// DecodeBlock verifies the block p and decodes its payload into v.
// DecodeBlock returns an error if the block is malformed or
// corrupted.
func decodeBlock(p []byte, typ blockType, v interface{}) error {
	if len(p) < blockTrailerSize {
		return errors.E(errors.Invalid, "invalid block: too small")
	}
	off := len(p) - 4
	if got, want := crc32.ChecksumIEEE(p[:off]), order.Uint32(p[off:]); got != want {
		return errors.E(errors.Integrity, fmt.Errorf("invalid checksum: expected %x, got %x", want, got))
	}
	off--
	if btype := blockType(p[off]); btype != typ {
		return errors.E(errors.Invalid, fmt.Sprintf("invalid block type %s, expected %s", btype, typ))
	}
	return gob.NewDecoder(bytes.NewReader(p[:off])).Decode(v)
}
