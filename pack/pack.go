// Copyright (c) 2025 Soreepeong
// SPDX-License-Identifier: MIT

package pack

import (
	"github.com/Soreepeong/xivres-sub000/packed"
	"github.com/Soreepeong/xivres-sub000/sqpack"
)

// chunkSize is the decompressed size every block is split into before the
// last, possibly-shorter chunk, §4.6 "Block sizing policy": "split payload
// into 16000-byte decompressed chunks".
const chunkSize = sqpack.MaxBlockDecompressedSize

// chunkBounds returns the [start, end) decompressed byte range of chunk i
// of total, given the full decompressed length.
func chunkBounds(total int64, i int) (start, end int64) {
	start = int64(i) * chunkSize
	end = start + chunkSize
	if end > total {
		end = total
	}
	return start, end
}

// chunkCount returns how many chunkSize-or-shorter chunks total splits
// into. A zero-length source still yields exactly one (empty) chunk, so
// every entry type has at least one block to describe in its locator.
func chunkCount(total int64) int {
	if total == 0 {
		return 1
	}
	n := int(total / chunkSize)
	if total%chunkSize != 0 {
		n++
	}
	return n
}

// rawBlockFootprint is the 128-byte-aligned on-disk size of a block whose
// payload of size n is stored uncompressed (no DEFLATE attempted or it
// didn't help).
func rawBlockFootprint(n int64) int64 {
	return sqpack.AlignToSpaceUnit(int64(packed.BlockHeaderSize) + n)
}

// encodeBlock serializes one packed block: its 16-byte header plus
// payload, padded to the 128-byte alignment unit, §4.6/§4.7. useCompressed
// selects between the DEFLATE payload (when it was smaller than raw) and
// the raw payload with the RawMarker sentinel.
func encodeBlock(raw, compressed []byte, useCompressed bool) []byte {
	var payload []byte
	var h packed.BlockHeader
	if useCompressed {
		payload = compressed
		h = packed.BlockHeader{Version: 0, CompressedSize: uint32(len(compressed)), DecompressedSize: uint32(len(raw))}
	} else {
		payload = raw
		h = packed.BlockHeader{Version: 0, CompressedSize: packed.RawMarker, DecompressedSize: uint32(len(raw))}
	}
	header := packed.EncodeBlockHeader(h)
	footprint := sqpack.AlignToSpaceUnit(int64(len(header) + len(payload)))
	out := make([]byte, footprint)
	copy(out, header)
	copy(out[len(header):], payload)
	return out
}

// blockFootprint returns the aligned on-disk size of the block
// encodeBlock(raw, compressed, useCompressed) would produce, without
// materializing it.
func blockFootprint(rawLen, compressedLen int, useCompressed bool) int64 {
	payloadLen := rawLen
	if useCompressed {
		payloadLen = compressedLen
	}
	return sqpack.AlignToSpaceUnit(int64(packed.BlockHeaderSize) + int64(payloadLen))
}

// chooseCompressed reports whether the compressed form of raw should be
// kept, §4.7 step 2: "if the compressed output
// is smaller than the raw, keeps it flagged as compressed; otherwise keeps
// the raw bytes flagged as uncompressed."
func chooseCompressed(raw, compressed []byte) bool {
	return len(compressed) < len(raw)
}
