// Copyright (c) 2025 Soreepeong
// SPDX-License-Identifier: MIT

package packed

import (
	"encoding/binary"
	"sort"

	"github.com/Soreepeong/xivres-sub000/errs"
	"github.com/Soreepeong/xivres-sub000/stream"
)

// ModelSetCount is the 11 logical sets a model entry's blocks are grouped
// into, §3 "Packed entry": stack, runtime, and three LOD triples of
// (vertex, edge-geometry, index).
const ModelSetCount = 11

const (
	ModelSetStack   = 0
	ModelSetRuntime = 1
)

func ModelSetVertex(lod int) int { return 2 + lod*3 }
func ModelSetEdge(lod int) int   { return 3 + lod*3 }
func ModelSetIndex(lod int) int  { return 4 + lod*3 }

// ModelLocatorSize is the on-disk size of the model_block_locator this
// format is grounded on: six small fields plus two 11-entry uint16 arrays,
// per original_source/xivres/impl/unpacked_stream.model.cpp (FirstBlockIndices,
// BlockCount, VertexDeclarationCount, MaterialCount, LodCount,
// EnableIndexBufferStreaming, EnableEdgeGeometry, Padding).
const ModelLocatorSize = 2 + 2 + 1 + 1 + 1 + 1 + ModelSetCount*2 + ModelSetCount*2

type ModelLocator struct {
	VertexDeclarationCount     uint16
	MaterialCount              uint16
	LodCount                   uint8
	EnableIndexBufferStreaming uint8
	EnableEdgeGeometry         uint8
	Padding                    uint8
	FirstBlockIndices          [ModelSetCount]uint16
	BlockCounts                [ModelSetCount]uint16
}

func ReadModelLocator(data []byte) ModelLocator {
	var l ModelLocator
	l.VertexDeclarationCount = binary.LittleEndian.Uint16(data[0:])
	l.MaterialCount = binary.LittleEndian.Uint16(data[2:])
	l.LodCount = data[4]
	l.EnableIndexBufferStreaming = data[5]
	l.EnableEdgeGeometry = data[6]
	l.Padding = data[7]
	off := 8
	for i := 0; i < ModelSetCount; i++ {
		l.FirstBlockIndices[i] = binary.LittleEndian.Uint16(data[off+i*2:])
	}
	off += ModelSetCount * 2
	for i := 0; i < ModelSetCount; i++ {
		l.BlockCounts[i] = binary.LittleEndian.Uint16(data[off+i*2:])
	}
	return l
}

func EncodeModelLocator(l ModelLocator) []byte {
	buf := make([]byte, ModelLocatorSize)
	binary.LittleEndian.PutUint16(buf[0:], l.VertexDeclarationCount)
	binary.LittleEndian.PutUint16(buf[2:], l.MaterialCount)
	buf[4] = l.LodCount
	buf[5] = l.EnableIndexBufferStreaming
	buf[6] = l.EnableEdgeGeometry
	buf[7] = l.Padding
	off := 8
	for i := 0; i < ModelSetCount; i++ {
		binary.LittleEndian.PutUint16(buf[off+i*2:], l.FirstBlockIndices[i])
	}
	off += ModelSetCount * 2
	for i := 0; i < ModelSetCount; i++ {
		binary.LittleEndian.PutUint16(buf[off+i*2:], l.BlockCounts[i])
	}
	return buf
}

// modelHeaderSize is the synthesized model header's on-disk size served as
// the decoded stream's head region: a version/flags prologue plus
// per-LOD size and offset tables. EdgeSize/EdgeOffset are carried so a
// compressing packer can recover this unpacker's exact set boundaries when
// re-packing previously-unpacked bytes, even though they are not part of
// the original format's model::header (§9 "model round-trip" testable
// property requires a byte-exact unpack -> pack -> unpack cycle).
const modelHeaderSize = 4 + 4 + 4 + 3*4 + 3*4 + 3*4 + 3*4 + 3*4 + 3*4 + 2 + 2 + 1 + 1 + 1 + 1

// ModelHeader is the decoded model header this unpacker synthesizes from
// the packed locator, §4.5 "Model unpacker": "version + declaration/
// material/LOD counts + streaming flags", plus per-set sizes and the
// vertex/index offsets patched to point at the decoded block stream.
type ModelHeader struct {
	Version                    uint32
	StackSize, RuntimeSize     uint32
	VertexSize, IndexSize      [3]uint32
	EdgeSize                   [3]uint32
	VertexOffset, IndexOffset  [3]uint32
	EdgeOffset                 [3]uint32
	VertexDeclarationCount     uint16
	MaterialCount              uint16
	LodCount                   uint8
	EnableIndexBufferStreaming uint8
	EnableEdgeGeometry         uint8
	Padding                    uint8
}

func encodeModelHeader(h ModelHeader) []byte {
	buf := make([]byte, modelHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:], h.Version)
	binary.LittleEndian.PutUint32(buf[4:], h.StackSize)
	binary.LittleEndian.PutUint32(buf[8:], h.RuntimeSize)
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint32(buf[12+i*4:], h.VertexSize[i])
	}
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint32(buf[24+i*4:], h.IndexSize[i])
	}
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint32(buf[36+i*4:], h.EdgeSize[i])
	}
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint32(buf[48+i*4:], h.VertexOffset[i])
	}
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint32(buf[60+i*4:], h.IndexOffset[i])
	}
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint32(buf[72+i*4:], h.EdgeOffset[i])
	}
	binary.LittleEndian.PutUint16(buf[84:], h.VertexDeclarationCount)
	binary.LittleEndian.PutUint16(buf[86:], h.MaterialCount)
	buf[88] = h.LodCount
	buf[89] = h.EnableIndexBufferStreaming
	buf[90] = h.EnableEdgeGeometry
	buf[91] = h.Padding
	return buf
}

// decodeModelHeader parses a synthesized model header back out of raw
// bytes, the inverse of encodeModelHeader. Used by the model compressing
// packer to recover set boundaries when re-packing previously-unpacked
// bytes.
func decodeModelHeader(data []byte) ModelHeader {
	var h ModelHeader
	h.Version = binary.LittleEndian.Uint32(data[0:])
	h.StackSize = binary.LittleEndian.Uint32(data[4:])
	h.RuntimeSize = binary.LittleEndian.Uint32(data[8:])
	for i := 0; i < 3; i++ {
		h.VertexSize[i] = binary.LittleEndian.Uint32(data[12+i*4:])
	}
	for i := 0; i < 3; i++ {
		h.IndexSize[i] = binary.LittleEndian.Uint32(data[24+i*4:])
	}
	for i := 0; i < 3; i++ {
		h.EdgeSize[i] = binary.LittleEndian.Uint32(data[36+i*4:])
	}
	for i := 0; i < 3; i++ {
		h.VertexOffset[i] = binary.LittleEndian.Uint32(data[48+i*4:])
	}
	for i := 0; i < 3; i++ {
		h.IndexOffset[i] = binary.LittleEndian.Uint32(data[60+i*4:])
	}
	for i := 0; i < 3; i++ {
		h.EdgeOffset[i] = binary.LittleEndian.Uint32(data[72+i*4:])
	}
	h.VertexDeclarationCount = binary.LittleEndian.Uint16(data[84:])
	h.MaterialCount = binary.LittleEndian.Uint16(data[86:])
	h.LodCount = data[88]
	h.EnableIndexBufferStreaming = data[89]
	h.EnableEdgeGeometry = data[90]
	h.Padding = data[91]
	return h
}

// ModelHeaderSize exposes modelHeaderSize to the pack package.
const ModelHeaderSize = modelHeaderSize

// DecodeModelHeader exposes decodeModelHeader to the pack package.
func DecodeModelHeader(data []byte) ModelHeader { return decodeModelHeader(data) }

// modelBlockInfo is one block of a model entry's flat, file-order block
// list, with its cumulative decompressed RequestOffset precomputed.
type modelBlockInfo struct {
	StreamOffset      int64
	PaddedSize        int64
	RequestOffset     int64
	DecompressedSize  int64
}

type modelUnpacker struct {
	src    stream.Stream
	decomp int64
	head   []byte
	blocks []modelBlockInfo
	dec    *blockDecoder
}

var _ stream.Stream = (*modelUnpacker)(nil)

func newModelUnpacker(v stream.Stream, h EntryHeader) (stream.Stream, error) {
	locatorData := make([]byte, ModelLocatorSize)
	if err := stream.ReadFull(v, locatorData, EntryHeaderSize); err != nil {
		return nil, errs.NewCorruptEntry(EntryHeaderSize, "truncated model locator")
	}
	loc := ReadModelLocator(locatorData)

	lastSet := ModelSetIndex(2)
	blockCount := int(loc.FirstBlockIndices[lastSet]) + int(loc.BlockCounts[lastSet])

	sizesOffset := int64(EntryHeaderSize) + ModelLocatorSize
	sizesData := make([]byte, blockCount*2)
	if err := stream.ReadFull(v, sizesData, sizesOffset); err != nil {
		return nil, errs.NewCorruptEntry(sizesOffset, "truncated model block size table")
	}

	blocks := make([]modelBlockInfo, blockCount)
	streamOff := int64(h.HeaderSize)
	var cumulative int64
	for i := 0; i < blockCount; i++ {
		padded := int64(binary.LittleEndian.Uint16(sizesData[i*2:]))
		blocks[i] = modelBlockInfo{StreamOffset: streamOff, PaddedSize: padded, RequestOffset: cumulative}
		bh, err := ReadBlockHeader(v, streamOff)
		if err != nil {
			return nil, errs.NewCorruptEntry(streamOff, "truncated model block header")
		}
		blocks[i].DecompressedSize = int64(bh.DecompressedSize)
		cumulative += int64(bh.DecompressedSize)
		streamOff += padded
	}

	groupAssigned := make([]bool, blockCount)
	for set := 0; set < ModelSetCount; set++ {
		count := int(loc.BlockCounts[set])
		if count == 0 {
			continue
		}
		first := int(loc.FirstBlockIndices[set])
		for j := 0; j < count; j++ {
			if first+j >= blockCount {
				return nil, errs.NewBadData("model locator references block index out of range")
			}
			if groupAssigned[first+j] {
				return nil, errs.NewBadData("model locator sets overlap on the same block")
			}
			groupAssigned[first+j] = true
		}
	}

	groupOffset := func(set int) int64 {
		if loc.BlockCounts[set] == 0 {
			if first := int(loc.FirstBlockIndices[set]); first < blockCount {
				return blocks[first].RequestOffset
			}
			return cumulative
		}
		return blocks[loc.FirstBlockIndices[set]].RequestOffset
	}
	groupSize := func(set int) uint32 {
		var sum int64
		first, count := int(loc.FirstBlockIndices[set]), int(loc.BlockCounts[set])
		for j := 0; j < count; j++ {
			sum += blocks[first+j].DecompressedSize
		}
		return uint32(sum)
	}

	mh := ModelHeader{
		Version:                    h.BlockCountOrVersion,
		VertexDeclarationCount:     loc.VertexDeclarationCount,
		MaterialCount:              loc.MaterialCount,
		LodCount:                   loc.LodCount,
		EnableIndexBufferStreaming: loc.EnableIndexBufferStreaming,
		EnableEdgeGeometry:         loc.EnableEdgeGeometry,
		Padding:                    loc.Padding,
		StackSize:                  groupSize(ModelSetStack),
		RuntimeSize:                groupSize(ModelSetRuntime),
	}
	for lod := 0; lod < 3; lod++ {
		mh.VertexSize[lod] = groupSize(ModelSetVertex(lod))
		mh.IndexSize[lod] = groupSize(ModelSetIndex(lod))
		mh.EdgeSize[lod] = groupSize(ModelSetEdge(lod))
		mh.VertexOffset[lod] = uint32(modelHeaderSize) + uint32(groupOffset(ModelSetVertex(lod)))
		mh.IndexOffset[lod] = uint32(modelHeaderSize) + uint32(groupOffset(ModelSetIndex(lod)))
		mh.EdgeOffset[lod] = uint32(modelHeaderSize) + uint32(groupOffset(ModelSetEdge(lod)))
	}

	head := encodeModelHeader(mh)

	return &modelUnpacker{
		src:    v,
		decomp: int64(modelHeaderSize) + cumulative,
		head:   head,
		blocks: blocks,
		dec:    newBlockDecoder(v),
	}, nil
}

func (u *modelUnpacker) Size() int64 { return u.decomp }

func (u *modelUnpacker) ReadAt(buf []byte, off int64) (int, error) {
	if off < 0 || off >= u.decomp {
		return 0, nil
	}
	want := u.decomp - off
	if int64(len(buf)) < want {
		want = int64(len(buf))
	}
	buf = buf[:want]
	end := off + int64(len(buf))

	headLen := int64(len(u.head))
	if off < headLen {
		n := min64(headLen, end) - off
		copy(buf[:n], u.head[off:off+n])
	}

	lo := max64(off, headLen)
	if lo >= end {
		return len(buf), nil
	}

	// Binary search the first block whose RequestOffset-relative range
	// intersects [lo-headLen, end-headLen).
	reqLo := lo - headLen
	idx := sort.Search(len(u.blocks), func(i int) bool {
		return u.blocks[i].RequestOffset+u.blocks[i].DecompressedSize > reqLo
	})

	var descs []blockDesc
	for i := idx; i < len(u.blocks); i++ {
		b := u.blocks[i]
		descs = append(descs, blockDesc{StreamOffset: b.StreamOffset, LogicalOffset: headLen + b.RequestOffset, LogicalSize: b.DecompressedSize})
		if headLen+b.RequestOffset+b.DecompressedSize >= end {
			break
		}
	}

	sub := buf[lo-off : end-off]
	if err := u.dec.Fill(sub, lo, descs); err != nil {
		return 0, err
	}
	return len(buf), nil
}

func (u *modelUnpacker) View(off, length int64) stream.Stream {
	return stream.NewPartialStream(u, off, length)
}
