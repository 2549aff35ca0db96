// Copyright (c) 2025 Soreepeong
// SPDX-License-Identifier: MIT

package pack

import (
	"encoding/binary"
	"sync"

	"github.com/Soreepeong/xivres-sub000/packed"
	"github.com/Soreepeong/xivres-sub000/sqpack"
	"github.com/Soreepeong/xivres-sub000/stream"
)

// Passthrough is a packed entry built lazily from a raw decoded source,
// §4.6: "claims the source stream is already raw decoded content and
// synthesizes packed-entry metadata without compressing. It is lazy: a
// size() call triggers a one-time scan." The scan runs at most once,
// guarded by a once-init cell rather than the source's flag-plus-mutex
// pattern, §9 "Lazy initialization under a mutex with a sentinel."
type Passthrough struct {
	build func() (*spliceStream, error)

	once    sync.Once
	spliced *spliceStream
	err     error
}

var _ stream.Stream = (*Passthrough)(nil)

func newPassthrough(build func() (*spliceStream, error)) *Passthrough {
	return &Passthrough{build: build}
}

func (p *Passthrough) ensure() error {
	p.once.Do(func() {
		p.spliced, p.err = p.build()
	})
	return p.err
}

// Size triggers the one-time layout scan if it hasn't run yet.
func (p *Passthrough) Size() int64 {
	if err := p.ensure(); err != nil {
		return 0
	}
	return p.spliced.Size()
}

func (p *Passthrough) ReadAt(buf []byte, off int64) (int, error) {
	if err := p.ensure(); err != nil {
		return 0, err
	}
	return p.spliced.ReadAt(buf, off)
}

func (p *Passthrough) View(off, length int64) stream.Stream {
	if err := p.ensure(); err != nil {
		return stream.NewMemoryStream(nil)
	}
	return p.spliced.View(off, length)
}

// NewEmptyPassthrough builds a placeholder/empty packed entry that stores
// src's bytes verbatim after the 24-byte entry header, §4.5 "Empty/
// placeholder unpacker" else-branch (decompressed size >= the block-count
// field, here always set to 0).
func NewEmptyPassthrough(src stream.Stream) *Passthrough {
	return newPassthrough(func() (*spliceStream, error) {
		rawLen := src.Size()
		footprint := sqpack.AlignToSpaceUnit(int64(packed.EntryHeaderSize) + rawLen)
		h := packed.EntryHeader{
			HeaderSize:          packed.EntryHeaderSize,
			Type:                packed.EntryTypeEmpty,
			DecompressedSize:    uint32(rawLen),
			BlockBufferSize:     uint32(footprint / 128),
			SpaceUsed:           uint32(footprint / 128),
			BlockCountOrVersion: 0,
		}
		segs := []segment{literalSegment(packed.EncodeEntryHeader(h)), sourceSegment(src, 0, rawLen)}
		if pad := footprint - int64(packed.EntryHeaderSize) - rawLen; pad > 0 {
			segs = append(segs, zeroSegment(pad))
		}
		return newSpliceStream(segs), nil
	})
}

// standardLocatorEntrySize mirrors packed.standardLocatorEntrySize (the
// unexported layout constant the standard unpacker reads): offset, aligned
// block footprint, decompressed size, each a uint32.
const standardLocatorEntrySize = 4 + 4 + 4

// NewStandardPassthrough builds a standard packed entry by splitting src
// into 16000-byte raw (uncompressed) chunks, §4.5/§4.6.
func NewStandardPassthrough(src stream.Stream) *Passthrough {
	return newPassthrough(func() (*spliceStream, error) {
		rawLen := src.Size()
		n := chunkCount(rawLen)

		locator := make([]byte, n*standardLocatorEntrySize)
		var bodySegs []segment
		var running int64
		for i := 0; i < n; i++ {
			start, end := chunkBounds(rawLen, i)
			chunkLen := end - start
			footprint := rawBlockFootprint(chunkLen)

			rec := locator[i*standardLocatorEntrySize:]
			binary.LittleEndian.PutUint32(rec[0:], uint32(running))
			binary.LittleEndian.PutUint32(rec[4:], uint32(footprint))
			binary.LittleEndian.PutUint32(rec[8:], uint32(chunkLen))

			bh := packed.BlockHeader{CompressedSize: packed.RawMarker, DecompressedSize: uint32(chunkLen)}
			bodySegs = append(bodySegs, literalSegment(packed.EncodeBlockHeader(bh)))
			bodySegs = append(bodySegs, sourceSegment(src, start, chunkLen))
			if pad := footprint - int64(packed.BlockHeaderSize) - chunkLen; pad > 0 {
				bodySegs = append(bodySegs, zeroSegment(pad))
			}
			running += footprint
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
		segs := append([]segment{literalSegment(packed.EncodeEntryHeader(h)), literalSegment(locator)}, bodySegs...)
		if pad := footprint - payloadStart - running; pad > 0 {
			segs = append(segs, zeroSegment(pad))
		}
		return newSpliceStream(segs), nil
	})
}

// textureLocatorEntrySize mirrors packed.textureLocatorEntrySize: stream
// offset, decompressed size, natural size, each a uint32.
const textureLocatorEntrySize = 4 + 4 + 4

// NewTexturePassthrough builds a texture packed entry. headLen is the
// verbatim texture header's byte length (rounded up to the 128-byte unit
// the packed-entry header's BlockBufferSize field encodes it as);
// mipNaturalSizes gives each mipmap's natural (uncompressed) byte count in
// order, matching the boundaries already present in src — the texture
// header's own internal field layout (width/height/format) is opaque to
// this codec, §4.5 "the texture header ... is served as a contiguous head
// region" without this module interpreting its contents, so the caller
// supplies the boundaries a real texture-format parser would derive.
func NewTexturePassthrough(src stream.Stream, headLen int64, mipNaturalSizes []int64) *Passthrough {
	return newPassthrough(func() (*spliceStream, error) {
		headLenAligned := sqpack.AlignToSpaceUnit(headLen)
		count := len(mipNaturalSizes)
		locator := make([]byte, count*textureLocatorEntrySize)

		var bodySegs []segment
		var running int64
		var srcOff = headLen
		for i, natural := range mipNaturalSizes {
			footprint := rawBlockFootprint(natural)

			rec := locator[i*textureLocatorEntrySize:]
			binary.LittleEndian.PutUint32(rec[0:], uint32(running))
			binary.LittleEndian.PutUint32(rec[4:], uint32(natural))
			binary.LittleEndian.PutUint32(rec[8:], uint32(natural))

			bh := packed.BlockHeader{CompressedSize: packed.RawMarker, DecompressedSize: uint32(natural)}
			bodySegs = append(bodySegs, literalSegment(packed.EncodeBlockHeader(bh)))
			bodySegs = append(bodySegs, sourceSegment(src, srcOff, natural))
			if pad := footprint - int64(packed.BlockHeaderSize) - natural; pad > 0 {
				bodySegs = append(bodySegs, zeroSegment(pad))
			}
			running += footprint
			srcOff += natural
		}

		payloadStart := int64(packed.EntryHeaderSize) + headLenAligned + int64(len(locator))
		footprint := sqpack.AlignToSpaceUnit(payloadStart + running)
		decompSize := headLenAligned + (srcOff - headLen)
		h := packed.EntryHeader{
			HeaderSize:          packed.EntryHeaderSize,
			Type:                packed.EntryTypeTexture,
			DecompressedSize:    uint32(decompSize),
			BlockBufferSize:     uint32(headLenAligned / 128),
			SpaceUsed:           uint32(footprint / 128),
			BlockCountOrVersion: uint32(count),
		}

		segs := []segment{literalSegment(packed.EncodeEntryHeader(h)), sourceSegment(src, 0, headLen)}
		if pad := headLenAligned - headLen; pad > 0 {
			segs = append(segs, zeroSegment(pad))
		}
		segs = append(segs, literalSegment(locator))
		segs = append(segs, bodySegs...)
		if pad := footprint - payloadStart - running; pad > 0 {
			segs = append(segs, zeroSegment(pad))
		}
		return newSpliceStream(segs), nil
	})
}

// modelSetSize resolves one of the 11 model sets' decompressed byte count
// out of a synthesized model header, the inverse of how newModelUnpacker
// computed those sizes.
func modelSetSize(h packed.ModelHeader, set int) uint32 {
	switch set {
	case packed.ModelSetStack:
		return h.StackSize
	case packed.ModelSetRuntime:
		return h.RuntimeSize
	default:
		rem := set - 2
		lod := rem / 3
		switch rem % 3 {
		case 0:
			return h.VertexSize[lod]
		case 1:
			return h.EdgeSize[lod]
		default:
			return h.IndexSize[lod]
		}
	}
}

// NewModelPassthrough builds a model packed entry from src, which must be
// exactly the byte stream a model unpacker would produce: the synthesized
// model header followed by each of the 11 sets' bytes in set order
// (stack, runtime, then per-LOD vertex/edge-geometry/index triples),
// §4.5 "Model unpacker". Each set is independently split into 16000-byte
// chunks so no block straddles a set boundary, preserving the
// FirstBlockIndex/BlockCount grouping a matching unpacker recovers.
func NewModelPassthrough(src stream.Stream) *Passthrough {
	return newPassthrough(func() (*spliceStream, error) {
		headBuf := make([]byte, packed.ModelHeaderSize)
		if err := stream.ReadFull(src, headBuf, 0); err != nil {
			return nil, err
		}
		mh := packed.DecodeModelHeader(headBuf)

		var loc packed.ModelLocator
		loc.VertexDeclarationCount = mh.VertexDeclarationCount
		loc.MaterialCount = mh.MaterialCount
		loc.LodCount = mh.LodCount
		loc.EnableIndexBufferStreaming = mh.EnableIndexBufferStreaming
		loc.EnableEdgeGeometry = mh.EnableEdgeGeometry
		loc.Padding = mh.Padding

		var bodySegs []segment
		var blockSizes []uint16
		var running int64
		logicalOffset := int64(packed.ModelHeaderSize)
		blockCount := 0

		for set := 0; set < packed.ModelSetCount; set++ {
			size := int64(modelSetSize(mh, set))
			loc.FirstBlockIndices[set] = uint16(blockCount)
			n := 0
			if size > 0 {
				n = chunkCount(size)
			}
			loc.BlockCounts[set] = uint16(n)

			for i := 0; i < n; i++ {
				start, end := chunkBounds(size, i)
				chunkLen := end - start
				footprint := rawBlockFootprint(chunkLen)

				bh := packed.BlockHeader{CompressedSize: packed.RawMarker, DecompressedSize: uint32(chunkLen)}
				bodySegs = append(bodySegs, literalSegment(packed.EncodeBlockHeader(bh)))
				bodySegs = append(bodySegs, sourceSegment(src, logicalOffset+start, chunkLen))
				if pad := footprint - int64(packed.BlockHeaderSize) - chunkLen; pad > 0 {
					bodySegs = append(bodySegs, zeroSegment(pad))
				}
				blockSizes = append(blockSizes, uint16(footprint))
				running += footprint
				blockCount++
			}
			logicalOffset += size
		}

		locatorBytes := packed.EncodeModelLocator(loc)
		sizeTable := make([]byte, blockCount*2)
		for i, sz := range blockSizes {
			binary.LittleEndian.PutUint16(sizeTable[i*2:], sz)
		}

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

		segs := []segment{literalSegment(packed.EncodeEntryHeader(h)), literalSegment(locatorBytes), literalSegment(sizeTable)}
		segs = append(segs, bodySegs...)
		if pad := footprint - headerPrefixLen - running; pad > 0 {
			segs = append(segs, zeroSegment(pad))
		}
		return newSpliceStream(segs), nil
	})
}
