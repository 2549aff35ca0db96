// Copyright (c) 2025 Soreepeong
// SPDX-License-Identifier: MIT

package container

import (
	"testing"

	"github.com/Soreepeong/xivres-sub000/stream"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{Platform: 0, FileType: FileTypeSqIndex}
	buf := EncodeHeader(h)
	if len(buf) != HeaderSize {
		t.Fatalf("encoded header length = %d, want %d", len(buf), HeaderSize)
	}
	got, err := readHeader(buf, true, FileTypeSqIndex)
	if err != nil {
		t.Fatalf("readHeader: %v", err)
	}
	if got.FileType != FileTypeSqIndex {
		t.Fatalf("FileType = %v, want SqIndex", got.FileType)
	}
}

func TestHeaderRejectsWrongFileTypeInStrictMode(t *testing.T) {
	buf := EncodeHeader(Header{FileType: FileTypeSqData})
	if _, err := readHeader(buf, true, FileTypeSqIndex); err == nil {
		t.Fatalf("expected error reading a data header as an index header")
	}
	// Non-strict mode skips the file-type and SHA-1 checks entirely.
	if _, err := readHeader(buf, false, FileTypeSqIndex); err != nil {
		t.Fatalf("non-strict readHeader should not validate file type: %v", err)
	}
}

func TestHeaderRejectsBadMagic(t *testing.T) {
	buf := EncodeHeader(Header{FileType: FileTypeSqIndex})
	buf[0] = 'X'
	if _, err := readHeader(buf, true, FileTypeSqIndex); err == nil {
		t.Fatalf("expected bad magic error")
	}
}

func TestIndex1RoundTrip(t *testing.T) {
	in := IndexBuildInput{
		PairHashes: []PairHashLocator{
			{PathHash: 10, NameHash: 1, Locator: NewDataLocator(0, 128, false)},
			{PathHash: 5, NameHash: 9, Locator: NewDataLocator(0, 256, false)},
			{PathHash: 5, NameHash: 2, Locator: NewDataLocator(1, 384, false)},
		},
		DatSha1: [][20]byte{{1, 2, 3}},
	}
	buf := EncodeIndex1(in)

	idx, err := ReadIndex1(buf, true)
	if err != nil {
		t.Fatalf("ReadIndex1: %v", err)
	}
	if len(idx.PairHashLocators()) != 3 {
		t.Fatalf("got %d pair hash locators, want 3", len(idx.PairHashLocators()))
	}

	loc, ok := idx.DataLocatorForPair(5, 2)
	if !ok {
		t.Fatalf("lookup (5,2) failed")
	}
	if loc.DatFileIndex() != 1 || loc.Offset() != 384 {
		t.Fatalf("locator = %+v, want dat 1 offset 384", loc)
	}

	if _, ok := idx.DataLocatorForPair(99, 99); ok {
		t.Fatalf("expected lookup miss for absent hash pair")
	}
}

func TestIndex2RoundTripAndTextLocator(t *testing.T) {
	in := IndexBuildInput{
		FullHashes: []FullHashLocator{
			{FullPathHash: 111, Locator: NewDataLocator(0, 128, false)},
			{FullPathHash: 50, Locator: NewDataLocator(0, 256, true)},
		},
		Texts: []TextLocator{
			{FullPathHash: 50, Locator: NewDataLocator(2, 512, false), FullPath: "common/font/font1.tex"},
		},
		DatSha1: [][20]byte{{9, 9, 9}},
	}
	buf := EncodeIndex2(in)

	idx, err := ReadIndex2(buf, true)
	if err != nil {
		t.Fatalf("ReadIndex2: %v", err)
	}

	loc, ok := idx.DataLocatorForFull(50)
	if !ok || !loc.IsSynonym() {
		t.Fatalf("expected synonym locator for hash 50, got %+v, %v", loc, ok)
	}

	resolved, ok := idx.DataLocatorForText("Common/Font/Font1.tex")
	if !ok {
		t.Fatalf("case-insensitive text locator lookup failed")
	}
	if resolved.DatFileIndex() != 2 || resolved.Offset() != 512 {
		t.Fatalf("resolved locator = %+v, want dat 2 offset 512", resolved)
	}
}

func TestDataLocatorPacking(t *testing.T) {
	loc := NewDataLocator(3, 128*200, true)
	if loc.DatFileIndex() != 3 {
		t.Fatalf("DatFileIndex = %d, want 3", loc.DatFileIndex())
	}
	if !loc.IsSynonym() {
		t.Fatalf("expected IsSynonym true")
	}
	if loc.Offset() != 128*200 {
		t.Fatalf("Offset = %d, want %d", loc.Offset(), 128*200)
	}
}

func TestDataFileHeaderRoundTrip(t *testing.T) {
	region := make([]byte, entryRegionSize)
	for i := range region {
		region[i] = byte(i)
	}
	buf := EncodeDataFileHeader(2, 16000, int64(len(region)), [20]byte{7}, region)
	buf = append(buf, region...)

	ms := stream.NewMemoryStream(buf)
	h, dh, err := ReadDataFileHeader(ms, true)
	if err != nil {
		t.Fatalf("ReadDataFileHeader: %v", err)
	}
	if h.FileType != FileTypeSqData || dh.DatFileIndex != 2 {
		t.Fatalf("got %+v, %+v", h, dh)
	}
}
