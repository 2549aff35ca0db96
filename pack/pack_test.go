// Copyright (c) 2025 Soreepeong
// SPDX-License-Identifier: MIT

package pack

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/klauspost/compress/flate"

	"github.com/Soreepeong/xivres-sub000/pathspec"
	"github.com/Soreepeong/xivres-sub000/packed"
	"github.com/Soreepeong/xivres-sub000/stream"
	"github.com/Soreepeong/xivres-sub000/workerpool"
)

// fillPattern deterministically fills a buffer so compression has
// something non-trivial to chew on, without pulling in math/rand.
func fillPattern(n int, seed byte) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i)*31 + seed
	}
	return buf
}

func unpackAll(t *testing.T, entry stream.Stream) []byte {
	t.Helper()
	ps := packed.NewPackedStream(pathspec.PathSpec{}, entry, 0, entry.Size())
	u, err := ps.Unpack(nil)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	out := make([]byte, u.Size())
	if err := stream.ReadFull(u, out, 0); err != nil {
		t.Fatalf("reading unpacked stream: %v", err)
	}
	return out
}

func TestEmptyPassthroughRoundTrip(t *testing.T) {
	raw := fillPattern(500, 7)
	src := stream.NewMemoryStream(raw)
	p := NewEmptyPassthrough(src)
	got := unpackAll(t, p)
	if !bytes.Equal(got, raw) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(raw))
	}
}

func TestEmptyCompressingRoundTrip(t *testing.T) {
	raw := fillPattern(4000, 3)
	src := stream.NewMemoryStream(raw)
	p, err := NewEmptyCompressing(flate.BestCompression, src)
	if err != nil {
		t.Fatalf("NewEmptyCompressing: %v", err)
	}
	got := unpackAll(t, p)
	if !bytes.Equal(got, raw) {
		t.Fatalf("round trip mismatch")
	}
}

func TestStandardPassthroughRoundTrip(t *testing.T) {
	raw := fillPattern(int(chunkSize)*2+731, 11)
	src := stream.NewMemoryStream(raw)
	p := NewStandardPassthrough(src)
	got := unpackAll(t, p)
	if !bytes.Equal(got, raw) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(raw))
	}
}

func TestStandardCompressingRoundTrip(t *testing.T) {
	raw := fillPattern(int(chunkSize)*2+731, 17)
	src := stream.NewMemoryStream(raw)
	pool := workerpool.New(context.Background(), 0)
	p, err := NewStandardCompressing(pool, flate.BestCompression, src)
	if err != nil {
		t.Fatalf("NewStandardCompressing: %v", err)
	}
	got := unpackAll(t, p)
	if !bytes.Equal(got, raw) {
		t.Fatalf("round trip mismatch")
	}
}

func TestStandardCompressingEmptySource(t *testing.T) {
	src := stream.NewMemoryStream(nil)
	pool := workerpool.New(context.Background(), 0)
	p, err := NewStandardCompressing(pool, flate.BestCompression, src)
	if err != nil {
		t.Fatalf("NewStandardCompressing: %v", err)
	}
	got := unpackAll(t, p)
	if len(got) != 0 {
		t.Fatalf("expected empty round trip, got %d bytes", len(got))
	}
}

func buildTextureSource(t *testing.T, trailingZerosOnMip1 int) (src stream.Stream, headLen int64, mipSizes []int64) {
	t.Helper()
	headLen = 128
	mipSizes = []int64{4096, 1024, 256}

	head := fillPattern(int(headLen), 1)
	mip0 := fillPattern(int(mipSizes[0]), 2)
	mip1 := fillPattern(int(mipSizes[1]), 3)
	for i := len(mip1) - trailingZerosOnMip1; i < len(mip1); i++ {
		mip1[i] = 0
	}
	mip2 := fillPattern(int(mipSizes[2]), 4)

	var buf []byte
	buf = append(buf, head...)
	buf = append(buf, mip0...)
	buf = append(buf, mip1...)
	buf = append(buf, mip2...)
	return stream.NewMemoryStream(buf), headLen, mipSizes
}

func TestTexturePassthroughRoundTrip(t *testing.T) {
	src, headLen, mipSizes := buildTextureSource(t, 200)
	raw := make([]byte, src.Size())
	_ = stream.ReadFull(src, raw, 0)

	p := NewTexturePassthrough(src, headLen, mipSizes)
	got := unpackAll(t, p)
	if !bytes.Equal(got, raw) {
		t.Fatalf("round trip mismatch")
	}
}

func TestTextureCompressingRoundTrip(t *testing.T) {
	src, headLen, mipSizes := buildTextureSource(t, 200)
	raw := make([]byte, src.Size())
	_ = stream.ReadFull(src, raw, 0)

	pool := workerpool.New(context.Background(), 0)
	p, err := NewTextureCompressing(pool, flate.BestCompression, src, headLen, mipSizes)
	if err != nil {
		t.Fatalf("NewTextureCompressing: %v", err)
	}
	got := unpackAll(t, p)
	if !bytes.Equal(got, raw) {
		t.Fatalf("round trip mismatch after trailing-zero trim: got %d bytes, want %d", len(got), len(raw))
	}
}

// modelTestLayout describes one synthesized model's per-set byte counts,
// indexed the same way packed.ModelSetStack/Runtime/Vertex/Edge/Index are.
type modelTestLayout struct {
	stackSize, runtimeSize           int64
	vertexSize, edgeSize, indexSize  [3]int64
}

func encodeTestModelHeader(l modelTestLayout, version uint32) []byte {
	buf := make([]byte, packed.ModelHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:], version)
	binary.LittleEndian.PutUint32(buf[4:], uint32(l.stackSize))
	binary.LittleEndian.PutUint32(buf[8:], uint32(l.runtimeSize))
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint32(buf[12+i*4:], uint32(l.vertexSize[i]))
	}
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint32(buf[24+i*4:], uint32(l.indexSize[i]))
	}
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint32(buf[36+i*4:], uint32(l.edgeSize[i]))
	}

	offset := int64(packed.ModelHeaderSize)
	var vertexOffset, edgeOffset, indexOffset [3]uint32
	offset += l.stackSize
	offset += l.runtimeSize
	for lod := 0; lod < 3; lod++ {
		vertexOffset[lod] = uint32(offset)
		offset += l.vertexSize[lod]
		edgeOffset[lod] = uint32(offset)
		offset += l.edgeSize[lod]
		indexOffset[lod] = uint32(offset)
		offset += l.indexSize[lod]
	}
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint32(buf[48+i*4:], vertexOffset[i])
	}
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint32(buf[60+i*4:], indexOffset[i])
	}
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint32(buf[72+i*4:], edgeOffset[i])
	}
	binary.LittleEndian.PutUint16(buf[84:], 7)  // VertexDeclarationCount
	binary.LittleEndian.PutUint16(buf[86:], 3)  // MaterialCount
	buf[88] = 1                                 // LodCount
	buf[89] = 1                                 // EnableIndexBufferStreaming
	buf[90] = 1                                 // EnableEdgeGeometry
	return buf
}

func buildModelSource(t *testing.T) stream.Stream {
	t.Helper()
	l := modelTestLayout{
		stackSize:   300,
		runtimeSize: 0,
		vertexSize:  [3]int64{int64(chunkSize) + 5000, 800, 0},
		edgeSize:    [3]int64{500, 0, 0},
		indexSize:   [3]int64{3000, 400, 0},
	}
	head := encodeTestModelHeader(l, 42)

	var body []byte
	seed := byte(10)
	appendSet := func(size int64) {
		if size == 0 {
			return
		}
		body = append(body, fillPattern(int(size), seed)...)
		seed++
	}
	appendSet(l.stackSize)
	appendSet(l.runtimeSize)
	for lod := 0; lod < 3; lod++ {
		appendSet(l.vertexSize[lod])
		appendSet(l.edgeSize[lod])
		appendSet(l.indexSize[lod])
	}

	buf := append(head, body...)
	if int64(len(buf)) != int64(packed.ModelHeaderSize)+l.stackSize+l.runtimeSize+
		l.vertexSize[0]+l.edgeSize[0]+l.indexSize[0]+
		l.vertexSize[1]+l.edgeSize[1]+l.indexSize[1]+
		l.vertexSize[2]+l.edgeSize[2]+l.indexSize[2] {
		t.Fatalf("test source length accounting is wrong")
	}
	return stream.NewMemoryStream(buf)
}

func TestModelPassthroughRoundTrip(t *testing.T) {
	src := buildModelSource(t)
	raw := make([]byte, src.Size())
	_ = stream.ReadFull(src, raw, 0)

	p := NewModelPassthrough(src)
	got := unpackAll(t, p)
	if !bytes.Equal(got, raw) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(raw))
	}
}

func TestModelCompressingRoundTrip(t *testing.T) {
	src := buildModelSource(t)
	raw := make([]byte, src.Size())
	_ = stream.ReadFull(src, raw, 0)

	pool := workerpool.New(context.Background(), 0)
	p, err := NewModelCompressing(pool, flate.BestCompression, src)
	if err != nil {
		t.Fatalf("NewModelCompressing: %v", err)
	}
	got := unpackAll(t, p)
	if !bytes.Equal(got, raw) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(raw))
	}
}

func TestModelCompressingRejectsNonContiguousOffsets(t *testing.T) {
	l := modelTestLayout{
		stackSize:  10,
		vertexSize: [3]int64{100, 0, 0},
		indexSize:  [3]int64{50, 0, 0},
	}
	head := encodeTestModelHeader(l, 1)
	// Corrupt the declared vertex-LOD-0 offset so it disagrees with the
	// contiguous layout the packer assumes.
	binary.LittleEndian.PutUint32(head[48:], 999999)

	body := make([]byte, l.stackSize+l.vertexSize[0]+l.indexSize[0])
	src := stream.NewMemoryStream(append(head, body...))

	pool := workerpool.New(context.Background(), 0)
	if _, err := NewModelCompressing(pool, flate.BestCompression, src); err == nil {
		t.Fatalf("expected BadData error for non-contiguous model set offsets")
	}
}
