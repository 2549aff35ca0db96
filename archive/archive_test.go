// Copyright (c) 2025 Soreepeong
// SPDX-License-Identifier: MIT

package archive

import (
	"bytes"
	"testing"

	"github.com/Soreepeong/xivres-sub000/pack"
	"github.com/Soreepeong/xivres-sub000/pathspec"
	"github.com/Soreepeong/xivres-sub000/sqpack"
	"github.com/Soreepeong/xivres-sub000/stream"
)

func fillPattern(n int, seed byte) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i)*31 + seed
	}
	return buf
}

func standardEntry(raw []byte) stream.Stream {
	return pack.NewStandardPassthrough(stream.NewMemoryStream(raw))
}

func unpack(t *testing.T, s stream.Stream) []byte {
	t.Helper()
	out := make([]byte, s.Size())
	if err := stream.ReadFull(s, out, 0); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	return out
}

func TestGeneratorFullHashCollisionFails(t *testing.T) {
	g := NewGenerator(GeneratorOptions{})
	ps := pathspec.Parse("common/test/a.bin")
	if err := g.Add(ps, standardEntry(fillPattern(10, 1))); err != nil {
		t.Fatalf("first Add: %v", err)
	}
	if err := g.Add(ps, standardEntry(fillPattern(20, 2))); err == nil {
		t.Fatalf("expected HashCollision for a repeated full-path hash")
	}
}

func TestGeneratorPairHashCollisionWithoutTextFails(t *testing.T) {
	g := NewGenerator(GeneratorOptions{})
	id := sqpack.ArchiveID{Category: sqpack.CategoryCommon}
	a := pathspec.FromHashes(1, 2, 100, id)
	b := pathspec.FromHashes(1, 2, 200, id)
	if err := g.Add(a, standardEntry(fillPattern(10, 1))); err != nil {
		t.Fatalf("first Add: %v", err)
	}
	if err := g.Add(b, standardEntry(fillPattern(10, 2))); err == nil {
		t.Fatalf("expected an error promoting a hash-only pair-hash collision to a text locator")
	}
}

func TestGenerateReopenAndIterate(t *testing.T) {
	g := NewGenerator(GeneratorOptions{})

	paths := []string{
		"common/test/empty.bin",
		"common/test/one.bin",
		"common/test/large.bin",
	}
	raws := [][]byte{
		{},
		fillPattern(1, 7),
		fillPattern(100000, 13),
	}

	for i, p := range paths {
		if err := g.Add(pathspec.Parse(p), standardEntry(raws[i])); err != nil {
			t.Fatalf("Add %s: %v", p, err)
		}
	}

	index1, index2, dats, err := g.ExportToViews()
	if err != nil {
		t.Fatalf("ExportToViews: %v", err)
	}

	var dataStreams []stream.Stream
	for _, d := range dats {
		dataStreams = append(dataStreams, stream.NewMemoryStream(d))
	}

	r, err := Open("000000.win32.index", index1, index2, dataStreams, ReaderOptions{Strict: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	entries := r.Entries()
	if len(entries) != len(paths) {
		t.Fatalf("got %d entries, want %d", len(entries), len(paths))
	}

	for i, p := range paths {
		ps := pathspec.Parse(p)
		unpacked, err := r.At(ps)
		if err != nil {
			t.Fatalf("At(%s): %v", p, err)
		}
		got := unpack(t, unpacked)
		if !bytes.Equal(got, raws[i]) {
			t.Fatalf("At(%s) = %d bytes, want %d bytes", p, len(got), len(raws[i]))
		}
	}
}

func TestReaderEntryNotFound(t *testing.T) {
	g := NewGenerator(GeneratorOptions{})
	if err := g.Add(pathspec.Parse("common/test/a.bin"), standardEntry(fillPattern(10, 1))); err != nil {
		t.Fatalf("Add: %v", err)
	}
	index1, index2, dats, err := g.ExportToViews()
	if err != nil {
		t.Fatalf("ExportToViews: %v", err)
	}
	var dataStreams []stream.Stream
	for _, d := range dats {
		dataStreams = append(dataStreams, stream.NewMemoryStream(d))
	}
	r, err := Open("000000.win32.index", index1, index2, dataStreams, ReaderOptions{Strict: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := r.PackedAt(pathspec.Parse("common/test/missing.bin")); err == nil {
		t.Fatalf("expected EntryNotFound for a path never added")
	}
}

func TestAddArchiveBulkCopiesWithoutRecompression(t *testing.T) {
	src := NewGenerator(GeneratorOptions{})
	if err := src.Add(pathspec.Parse("common/test/a.bin"), standardEntry(fillPattern(5000, 3))); err != nil {
		t.Fatalf("Add: %v", err)
	}
	index1, index2, dats, err := src.ExportToViews()
	if err != nil {
		t.Fatalf("ExportToViews: %v", err)
	}
	var dataStreams []stream.Stream
	for _, d := range dats {
		dataStreams = append(dataStreams, stream.NewMemoryStream(d))
	}
	srcReader, err := Open("000000.win32.index", index1, index2, dataStreams, ReaderOptions{Strict: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	dst := NewGenerator(GeneratorOptions{})
	if err := dst.AddArchive(srcReader, true, true); err != nil {
		t.Fatalf("AddArchive: %v", err)
	}
	dIndex1, dIndex2, dDats, err := dst.ExportToViews()
	if err != nil {
		t.Fatalf("dst ExportToViews: %v", err)
	}
	var dDataStreams []stream.Stream
	for _, d := range dDats {
		dDataStreams = append(dDataStreams, stream.NewMemoryStream(d))
	}
	dstReader, err := Open("000000.win32.index", dIndex1, dIndex2, dDataStreams, ReaderOptions{Strict: true})
	if err != nil {
		t.Fatalf("Open copy: %v", err)
	}
	if len(dstReader.Entries()) != 1 {
		t.Fatalf("got %d entries in copy, want 1", len(dstReader.Entries()))
	}
	got, err := dstReader.At(pathspec.Parse("common/test/a.bin"))
	if err != nil {
		t.Fatalf("At on copy: %v", err)
	}
	if !bytes.Equal(unpack(t, got), fillPattern(5000, 3)) {
		t.Fatalf("copied entry content mismatch")
	}
}
