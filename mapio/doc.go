// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*
	Package mapio implements the persistent layer of an LSM tree: a
	sorted, read-only map of items stored in a write-once handle,
	similar to the SSTable data structure used in Bigtable [1],
	Cassandra [2], and others. Layers are produced by a Writer, which
	expects items to be appended in key order. Buf provides a means
	of buffering items to be sorted before they are appended to a
	Writer.

	A layer's on-disk layout loosely follows that of LevelDB [3]. Each
	layer is a sequence of blocks; each block comprises a gob-encoded
	payload followed by a trailer:

		block := payload blockTrailer
		payload := gob(...)            // depends on block type
		blockTrailer :=
			type:      uint8           // block type
			crc32:     uint32          // IEEE crc32 of payload and type

	Data blocks hold up to BlockItems (default 512) items; their
	payload is the gob encoding of the items, in key order. Keys are
	application types with no byte-order guarantee, so blocks are
	decoded whole and searched in memory.

	A layer is a sequence of data blocks, followed by an optional
	filter block, followed by an index block, followed by a trailer.

		layer := block(data)* block(filter)? block(index) layerTrailer
		layerTrailer :=
			meta:   blockAddr[20]  // zero-padded address of the filter block (or zero)
			index:  blockAddr[20]  // zero-padded address of index
			magic:  uint64         // magic (0xf6e1d3b8a8c4e2a1)
		blockAddr :=
			offset: uvarint        // offset of block in layer
			len:    uvarint        // length of block

	The index block contains one entry for each data block: each
	entry holds the last key in that block, the block's address, and
	its item count. The reader keeps the index in memory and binary
	searches it to find the single block that can contain a sought
	key, then binary searches that block.

	The filter block is a bloom filter over the binary encoding of the
	layer's keys. It is written only if the key type implements
	encoding.BinaryMarshaler.

	[1] https://static.googleusercontent.com/media/research.google.com/en//archive/bigtable-osdi06.pdf
	[2] https://www.cs.cornell.edu/projects/ladis2009/papers/lakshman-ladis2009.pdf
	[3] https://github.com/google/leveldb
*/
package mapio
