// Copyright (c) 2025 Soreepeong
// SPDX-License-Identifier: MIT

package packed

import (
	"github.com/Soreepeong/xivres-sub000/errs"
	"github.com/Soreepeong/xivres-sub000/internal/deflate"
	"github.com/Soreepeong/xivres-sub000/sqpack"
	"github.com/Soreepeong/xivres-sub000/stream"
)

// blockScratchSize is the common block decoder's scratch buffer size,
// §4.5 "Common block decoder": "a reusable object owning a 16 KiB scratch
// buffer and an inflater".
const blockScratchSize = 16 * 1024

// blockDesc locates one packed block: its byte offset within the backing
// stream and its place in the logical stream. Fill reads the block header
// whenever LogicalSize is 0 or the block overlaps the requested range;
// KnownSize is not consulted.
type blockDesc struct {
	StreamOffset    int64
	KnownSize       int64 // on-disk size if known; unused by Fill
	LogicalOffset   int64 // offset of this block's decompressed bytes within the logical stream
	LogicalSize     int64 // decompressed size of this block, once known (0 before decode if unknown)
}

// blockDecoder iterates a sequence of blocks, feeding the ones that
// intersect [reqOffset, reqOffset+len(dst)) through a shared inflater into
// dst, and zero-filling any logical gap the blocks don't cover.
type blockDecoder struct {
	src  stream.Stream
	inf  *deflate.Inflater
	buf  [blockScratchSize]byte
}

func newBlockDecoder(src stream.Stream) *blockDecoder {
	return &blockDecoder{src: src, inf: deflate.NewInflater()}
}

// Fill decodes into dst starting at logical offset reqOffset, consulting
// blocks in ascending logical order. Blocks must be given in ascending
// LogicalOffset order (out-of-order blocks are a CorruptEntry).
func (d *blockDecoder) Fill(dst []byte, reqOffset int64, blocks []blockDesc) error {
	reqEnd := reqOffset + int64(len(dst))
	lastLogicalEnd := int64(-1)

	for _, b := range blocks {
		if b.LogicalOffset < lastLogicalEnd {
			return errs.NewCorruptEntry(b.StreamOffset, "blocks out of order")
		}

		blockLogicalSize := b.LogicalSize
		bh, headerSize := BlockHeader{}, int64(0)
		needsHeader := blockLogicalSize == 0
		if needsHeader || b.LogicalOffset+blockLogicalSize > reqOffset {
			var err error
			bh, err = ReadBlockHeader(d.src, b.StreamOffset)
			if err != nil {
				return errs.NewCorruptEntry(b.StreamOffset, "truncated block header")
			}
			headerSize = BlockHeaderSize
			if blockLogicalSize == 0 {
				blockLogicalSize = int64(bh.DecompressedSize)
			}
		}

		blockLogicalEnd := b.LogicalOffset + blockLogicalSize

		// Zero-fill any gap between the previous block's end and this
		// block's start that overlaps the requested range.
		if lastLogicalEnd >= 0 && b.LogicalOffset > lastLogicalEnd {
			zeroFill(dst, reqOffset, reqEnd, lastLogicalEnd, b.LogicalOffset)
		}
		lastLogicalEnd = blockLogicalEnd

		if blockLogicalEnd <= reqOffset || b.LogicalOffset >= reqEnd {
			continue // entirely before or after the requested range
		}

		payloadOff := b.StreamOffset + headerSize
		var decoded []byte
		if bh.IsRaw() {
			if int64(bh.DecompressedSize) > blockScratchSize {
				return errs.NewCorruptEntry(b.StreamOffset, "raw block exceeds scratch buffer")
			}
			decoded = d.buf[:bh.DecompressedSize]
			if err := stream.ReadFull(d.src, decoded, payloadOff); err != nil {
				return errs.NewCorruptEntry(b.StreamOffset, "truncated raw block payload")
			}
		} else {
			if int64(bh.CompressedSize) > blockScratchSize {
				return errs.NewCorruptEntry(b.StreamOffset, "compressed block exceeds scratch buffer")
			}
			compressed := d.buf[:bh.CompressedSize]
			if err := stream.ReadFull(d.src, compressed, payloadOff); err != nil {
				return errs.NewCorruptEntry(b.StreamOffset, "truncated compressed block payload")
			}
			out, err := d.inf.InflateToBuffer(compressed)
			if err != nil {
				return errs.NewCorruptEntry(b.StreamOffset, "inflate failed: "+err.Error())
			}
			if int64(len(out)) != blockLogicalSize {
				return errs.NewCorruptEntry(b.StreamOffset, "inflater produced size disagreeing with declared decompressed size")
			}
			decoded = out
		}

		copyOverlap(dst, reqOffset, reqEnd, decoded, b.LogicalOffset, blockLogicalEnd)
	}

	if reqEnd > lastLogicalEnd {
		zeroFill(dst, reqOffset, reqEnd, lastLogicalEnd, reqEnd)
	}

	return nil
}

// zeroFill zeroes the portion of dst covered by the logical range
// [gapStart, gapEnd) intersected with [reqOffset, reqEnd).
func zeroFill(dst []byte, reqOffset, reqEnd, gapStart, gapEnd int64) {
	lo := max64(gapStart, reqOffset)
	hi := min64(gapEnd, reqEnd)
	if hi <= lo {
		return
	}
	for i := lo; i < hi; i++ {
		dst[i-reqOffset] = 0
	}
}

// copyOverlap copies the portion of decoded (spanning logical
// [blockStart, blockEnd)) that falls within [reqOffset, reqEnd) into dst.
func copyOverlap(dst []byte, reqOffset, reqEnd int64, decoded []byte, blockStart, blockEnd int64) {
	lo := max64(blockStart, reqOffset)
	hi := min64(blockEnd, reqEnd)
	if hi <= lo {
		return
	}
	copy(dst[lo-reqOffset:hi-reqOffset], decoded[lo-blockStart:hi-blockStart])
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// alignBlockFootprint returns the 128-byte-aligned on-disk footprint of a
// block given its header+payload size, §4.6 "Block sizing policy".
func alignBlockFootprint(headerPlusPayload int64) int64 {
	return sqpack.AlignToSpaceUnit(headerPlusPayload)
}
