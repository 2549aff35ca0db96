// Copyright (c) 2025 Soreepeong
// SPDX-License-Identifier: MIT

package packed

import (
	"testing"

	"github.com/Soreepeong/xivres-sub000/pathspec"
	"github.com/Soreepeong/xivres-sub000/stream"
)

func TestEntryHeaderRoundTrip(t *testing.T) {
	want := EntryHeader{
		HeaderSize:          EntryHeaderSize,
		Type:                EntryTypeStandard,
		DecompressedSize:    12345,
		BlockBufferSize:     16,
		SpaceUsed:           8,
		BlockCountOrVersion: 3,
	}
	got, err := ReadEntryHeader(stream.NewMemoryStream(EncodeEntryHeader(want)))
	if err != nil {
		t.Fatalf("ReadEntryHeader: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestBlockHeaderRoundTrip(t *testing.T) {
	want := BlockHeader{
		HeaderSize:       BlockHeaderSize,
		Version:          0,
		CompressedSize:   RawMarker,
		DecompressedSize: 4096,
	}
	got, err := ReadBlockHeader(stream.NewMemoryStream(EncodeBlockHeader(want)), 0)
	if err != nil {
		t.Fatalf("ReadBlockHeader: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if !got.IsRaw() {
		t.Fatalf("expected IsRaw() true for the raw marker")
	}

	compressed := want
	compressed.CompressedSize = 123
	if compressed.IsRaw() {
		t.Fatalf("expected IsRaw() false for a real compressed size")
	}
}

func TestPackedStreamTypeAndUnpackDispatch(t *testing.T) {
	header := EncodeEntryHeader(EntryHeader{
		HeaderSize:          EntryHeaderSize,
		Type:                EntryTypeEmpty,
		DecompressedSize:    0,
		BlockBufferSize:     1,
		SpaceUsed:           1,
		BlockCountOrVersion: 0,
	})
	backing := append(header, make([]byte, 128-len(header))...)

	ps := NewPackedStream(pathspec.Parse("common/test/a.bin"), stream.NewMemoryStream(backing), 0, int64(len(backing)))
	typ, err := ps.Type()
	if err != nil {
		t.Fatalf("Type: %v", err)
	}
	if typ != EntryTypeEmpty {
		t.Fatalf("Type() = %v, want EntryTypeEmpty", typ)
	}

	unpacked, err := ps.Unpack(nil)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if unpacked.Size() != 0 {
		t.Fatalf("empty entry unpacked size = %d, want 0", unpacked.Size())
	}
}

func TestPackedStreamUnknownTypeFails(t *testing.T) {
	header := EncodeEntryHeader(EntryHeader{HeaderSize: EntryHeaderSize, Type: EntryType(99)})
	backing := append(header, make([]byte, 128-len(header))...)
	ps := NewPackedStream(pathspec.Empty, stream.NewMemoryStream(backing), 0, int64(len(backing)))
	if _, err := ps.Unpack(nil); err == nil {
		t.Fatalf("expected an error unpacking an unknown entry type")
	}
}
