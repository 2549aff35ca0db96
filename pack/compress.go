// Copyright (c) 2025 Soreepeong
// SPDX-License-Identifier: MIT

package pack

import (
	"context"
	"encoding/binary"

	"github.com/Soreepeong/xivres-sub000/errs"
	"github.com/Soreepeong/xivres-sub000/internal/deflate"
	"github.com/Soreepeong/xivres-sub000/packed"
	"github.com/Soreepeong/xivres-sub000/sqpack"
	"github.com/Soreepeong/xivres-sub000/stream"
	"github.com/Soreepeong/xivres-sub000/workerpool"
)

// The compressing packers are the eager counterpart to this package's
// passthrough variants, §4.7: every chunk is DEFLATE-attempted across a
// workerpool.Pool, kept compressed only if smaller than raw, and the whole
// packed entry is materialized into one stream.MemoryStream rather than
// spliced lazily. A cancelled pool surfaces errs.CompressionCancelled from
// whichever chunk observed it.

func cancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func sumInt64(vs []int64) int64 {
	var s int64
	for _, v := range vs {
		s += v
	}
	return s
}

// trimTrailingZeros returns how many leading bytes of raw remain after
// stripping a trailing run of zero bytes, §4.7 "trims the trailing
// zero-byte tail of each mipmap before compressing it" — the decoder
// zero-fills the gap back up to the mipmap's natural size on the way out
// (blockDecoder.Fill's gap handling).
func trimTrailingZeros(raw []byte) int {
	n := len(raw)
	for n > 0 && raw[n-1] == 0 {
		n--
	}
	return n
}

// NewEmptyCompressing DEFLATE-packs the whole of src as a single block,
// the compressing counterpart to NewEmptyPassthrough, matching
// placeholderUnpacker's "obfuscated resource" branch: one block whose
// declared decompressed size covers the entire entry.
func NewEmptyCompressing(level int, src stream.Stream) (stream.Stream, error) {
	total := src.Size()
	raw := make([]byte, total)
	if err := stream.ReadFull(src, raw, 0); err != nil {
		return nil, err
	}
	defl := deflate.NewDeflater(level)
	compressed, err := defl.Deflate(raw)
	if err != nil {
		return nil, err
	}
	block := encodeBlock(raw, compressed, chooseCompressed(raw, compressed))

	footprint := sqpack.AlignToSpaceUnit(int64(packed.EntryHeaderSize) + int64(len(block)))
	h := packed.EntryHeader{
		HeaderSize:          packed.EntryHeaderSize,
		Type:                packed.EntryTypeEmpty,
		DecompressedSize:    uint32(total),
		BlockBufferSize:     uint32(footprint / 128),
		SpaceUsed:           uint32(footprint / 128),
		BlockCountOrVersion: uint32(total) + 1, // > DecompressedSize selects the deflate branch
	}

	buf := make([]byte, footprint)
	copy(buf, packed.EncodeEntryHeader(h))
	copy(buf[packed.EntryHeaderSize:], block)
	return stream.NewMemoryStream(buf), nil
}

// NewStandardCompressing splits src into 16000-byte chunks and DEFLATEs
// each across pool, the compressing counterpart to NewStandardPassthrough.
func NewStandardCompressing(pool *workerpool.Pool, level int, src stream.Stream) (stream.Stream, error) {
	rawLen := src.Size()
	n := chunkCount(rawLen)

	waiter := workerpool.NewWaiter[[]byte](pool)
	decompLens := make([]int64, n)
	for i := 0; i < n; i++ {
		start, end := chunkBounds(rawLen, i)
		decompLens[i] = end - start
		chunkLen := end - start
		waiter.Submit(i, func(ctx context.Context) ([]byte, error) {
			if cancelled(ctx) {
				return nil, errs.CompressionCancelled
			}
			raw := make([]byte, chunkLen)
			if err := stream.ReadFull(src, raw, start); err != nil {
				return nil, err
			}
			defl := deflate.NewDeflater(level)
			compressed, err := defl.Deflate(raw)
			if err != nil {
				return nil, err
			}
			return encodeBlock(raw, compressed, chooseCompressed(raw, compressed)), nil
		})
	}
	blocks, err := waiter.Collect(n)
	if err != nil {
		return nil, err
	}

	locator := make([]byte, n*standardLocatorEntrySize)
	var running int64
	for i, b := range blocks {
		rec := locator[i*standardLocatorEntrySize:]
		binary.LittleEndian.PutUint32(rec[0:], uint32(running))
		binary.LittleEndian.PutUint32(rec[4:], uint32(len(b)))
		binary.LittleEndian.PutUint32(rec[8:], uint32(decompLens[i]))
		running += int64(len(b))
	}

	payloadStart := int64(packed.EntryHeaderSize) + int64(len(locator))
	footprint := sqpack.AlignToSpaceUnit(payloadStart + running)
	h := packed.EntryHeader{
		HeaderSize:          packed.EntryHeaderSize,
		Type:                packed.EntryTypeStandard,
		DecompressedSize:    uint32(rawLen),
		BlockBufferSize:     uint32(footprint / 128),
		SpaceUsed:           uint32(footprint / 128),
		BlockCountOrVersion: uint32(n),
	}

	buf := make([]byte, footprint)
	copy(buf, packed.EncodeEntryHeader(h))
	copy(buf[packed.EntryHeaderSize:], locator)
	off := payloadStart
	for _, b := range blocks {
		copy(buf[off:], b)
		off += int64(len(b))
	}
	return stream.NewMemoryStream(buf), nil
}

// NewTextureCompressing is the compressing counterpart to
// NewTexturePassthrough: the head region is still copied verbatim, but
// each mipmap's trailing zero tail is trimmed before DEFLATE is attempted
// on what remains, §4.7.
func NewTextureCompressing(pool *workerpool.Pool, level int, src stream.Stream, headLen int64, mipNaturalSizes []int64) (stream.Stream, error) {
	headLenAligned := sqpack.AlignToSpaceUnit(headLen)
	count := len(mipNaturalSizes)

	type mipResult struct {
		block     []byte
		decompLen int64
	}

	srcOffsets := make([]int64, count)
	off := headLen
	for i, natural := range mipNaturalSizes {
		srcOffsets[i] = off
		off += natural
	}

	waiter := workerpool.NewWaiter[mipResult](pool)
	for i, natural := range mipNaturalSizes {
		srcOff := srcOffsets[i]
		waiter.Submit(i, func(ctx context.Context) (mipResult, error) {
			if cancelled(ctx) {
				return mipResult{}, errs.CompressionCancelled
			}
			raw := make([]byte, natural)
			if err := stream.ReadFull(src, raw, srcOff); err != nil {
				return mipResult{}, err
			}
			trimmed := trimTrailingZeros(raw)
			payload := raw[:trimmed]
			defl := deflate.NewDeflater(level)
			compressed, err := defl.Deflate(payload)
			if err != nil {
				return mipResult{}, err
			}
			block := encodeBlock(payload, compressed, chooseCompressed(payload, compressed))
			return mipResult{block: block, decompLen: int64(trimmed)}, nil
		})
	}
	mips, err := waiter.Collect(count)
	if err != nil {
		return nil, err
	}

	locator := make([]byte, count*textureLocatorEntrySize)
	var running int64
	for i, m := range mips {
		rec := locator[i*textureLocatorEntrySize:]
		binary.LittleEndian.PutUint32(rec[0:], uint32(running))
		binary.LittleEndian.PutUint32(rec[4:], uint32(m.decompLen))
		binary.LittleEndian.PutUint32(rec[8:], uint32(mipNaturalSizes[i]))
		running += int64(len(m.block))
	}

	payloadStart := int64(packed.EntryHeaderSize) + headLenAligned + int64(len(locator))
	footprint := sqpack.AlignToSpaceUnit(payloadStart + running)
	decompSize := headLenAligned + sumInt64(mipNaturalSizes)
	h := packed.EntryHeader{
		HeaderSize:          packed.EntryHeaderSize,
		Type:                packed.EntryTypeTexture,
		DecompressedSize:    uint32(decompSize),
		BlockBufferSize:     uint32(headLenAligned / 128),
		SpaceUsed:           uint32(footprint / 128),
		BlockCountOrVersion: uint32(count),
	}

	buf := make([]byte, footprint)
	copy(buf, packed.EncodeEntryHeader(h))
	if err := stream.ReadFull(src, buf[packed.EntryHeaderSize:int64(packed.EntryHeaderSize)+headLen], 0); err != nil {
		return nil, err
	}
	copy(buf[int64(packed.EntryHeaderSize)+headLenAligned:], locator)
	bodyOff := payloadStart
	for _, m := range mips {
		copy(buf[bodyOff:], m.block)
		bodyOff += int64(len(m.block))
	}
	return stream.NewMemoryStream(buf), nil
}

// modelSetOffset resolves a synthesized model header's declared offset for
// sets that carry one (every set but stack/runtime, which have none).
func modelSetOffset(h packed.ModelHeader, set int) uint32 {
	switch set {
	case packed.ModelSetStack, packed.ModelSetRuntime:
		return 0
	default:
		rem := set - 2
		lod := rem / 3
		switch rem % 3 {
		case 0:
			return h.VertexOffset[lod]
		case 1:
			return h.EdgeOffset[lod]
		default:
			return h.IndexOffset[lod]
		}
	}
}

// NewModelCompressing is the compressing counterpart to
// NewModelPassthrough. It assumes, like the source this is grounded on,
// that the header's per-set offsets are laid out in strictly ascending,
// contiguous set order; a header that disagrees (one set's declared
// offset doesn't line up with the previous sets' cumulative size) is
// rejected with BadData rather than silently mis-chunked, §9.
func NewModelCompressing(pool *workerpool.Pool, level int, src stream.Stream) (stream.Stream, error) {
	headBuf := make([]byte, packed.ModelHeaderSize)
	if err := stream.ReadFull(src, headBuf, 0); err != nil {
		return nil, err
	}
	mh := packed.DecodeModelHeader(headBuf)

	expected := int64(packed.ModelHeaderSize)
	for set := 0; set < packed.ModelSetCount; set++ {
		size := int64(modelSetSize(mh, set))
		if set >= 2 {
			if off := int64(modelSetOffset(mh, set)); off != expected {
				return nil, errs.NewBadDataf("model set %d offset %d disagrees with expected %d: sets must be contiguously ordered", set, off, expected)
			}
		}
		expected += size
	}

	type chunkPlan struct {
		srcOff, length int64
	}

	var loc packed.ModelLocator
	loc.VertexDeclarationCount = mh.VertexDeclarationCount
	loc.MaterialCount = mh.MaterialCount
	loc.LodCount = mh.LodCount
	loc.EnableIndexBufferStreaming = mh.EnableIndexBufferStreaming
	loc.EnableEdgeGeometry = mh.EnableEdgeGeometry
	loc.Padding = mh.Padding

	var plan []chunkPlan
	logicalOffset := int64(packed.ModelHeaderSize)
	for set := 0; set < packed.ModelSetCount; set++ {
		size := int64(modelSetSize(mh, set))
		loc.FirstBlockIndices[set] = uint16(len(plan))
		n := 0
		if size > 0 {
			n = chunkCount(size)
		}
		loc.BlockCounts[set] = uint16(n)
		for i := 0; i < n; i++ {
			start, end := chunkBounds(size, i)
			plan = append(plan, chunkPlan{srcOff: logicalOffset + start, length: end - start})
		}
		logicalOffset += size
	}

	waiter := workerpool.NewWaiter[[]byte](pool)
	for i, c := range plan {
		waiter.Submit(i, func(ctx context.Context) ([]byte, error) {
			if cancelled(ctx) {
				return nil, errs.CompressionCancelled
			}
			raw := make([]byte, c.length)
			if err := stream.ReadFull(src, raw, c.srcOff); err != nil {
				return nil, err
			}
			defl := deflate.NewDeflater(level)
			compressed, err := defl.Deflate(raw)
			if err != nil {
				return nil, err
			}
			return encodeBlock(raw, compressed, chooseCompressed(raw, compressed)), nil
		})
	}
	blocks, err := waiter.Collect(len(plan))
	if err != nil {
		return nil, err
	}

	sizeTable := make([]byte, len(blocks)*2)
	var running int64
	for i, b := range blocks {
		binary.LittleEndian.PutUint16(sizeTable[i*2:], uint16(len(b)))
		running += int64(len(b))
	}

	locatorBytes := packed.EncodeModelLocator(loc)
	headerPrefixLen := int64(packed.EntryHeaderSize) + int64(packed.ModelLocatorSize) + int64(len(sizeTable))
	footprint := sqpack.AlignToSpaceUnit(headerPrefixLen + running)
	h := packed.EntryHeader{
		HeaderSize:          uint32(headerPrefixLen),
		Type:                packed.EntryTypeModel,
		DecompressedSize:    uint32(logicalOffset),
		BlockBufferSize:     uint32(footprint / 128),
		SpaceUsed:           uint32(footprint / 128),
		BlockCountOrVersion: mh.Version,
	}

	buf := make([]byte, footprint)
	copy(buf, packed.EncodeEntryHeader(h))
	copy(buf[packed.EntryHeaderSize:], locatorBytes)
	copy(buf[int64(packed.EntryHeaderSize)+int64(packed.ModelLocatorSize):], sizeTable)
	bodyOff := headerPrefixLen
	for _, b := range blocks {
		copy(buf[bodyOff:], b)
		bodyOff += int64(len(b))
	}
	return stream.NewMemoryStream(buf), nil
}
