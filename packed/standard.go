// Copyright (c) 2025 Soreepeong
// SPDX-License-Identifier: MIT

package packed

import (
	"encoding/binary"
	"sort"

	"github.com/Soreepeong/xivres-sub000/errs"
	"github.com/Soreepeong/xivres-sub000/stream"
)

// standardLocator is one entry of a standard packed entry's block locator
// table: which block, its on-disk offset relative to the payload start,
// its 128-byte-aligned footprint, and its decompressed size.
type standardLocator struct {
	StreamOffset int64
	BlockSize    int64 // aligned on-disk footprint, including the 16-byte block header
	DecompSize   int64
}

// standardUnpacker is the standard packed-entry codec, §4.5 "Standard
// unpacker": a flat locator table, decoded lazily block-by-block through
// the common block decoder.
type standardUnpacker struct {
	src       stream.Stream
	decomp    int64
	locators  []standardLocator
	cumulative []int64 // cumulative decompressed offset at the start of each locator
	dec       *blockDecoder
}

var _ stream.Stream = (*standardUnpacker)(nil)

// standardLocatorTableOffset is where the locator table begins, right
// after the 24-byte entry header.
const standardLocatorTableOffset = EntryHeaderSize

// standardLocatorEntrySize is the on-disk size of one standardLocator
// record: offset, aligned block size, decompressed size.
const standardLocatorEntrySize = 4 + 4 + 4

func newStandardUnpacker(v stream.Stream, h EntryHeader) (stream.Stream, error) {
	count := int(h.BlockCountOrVersion)
	tableBytes := make([]byte, count*standardLocatorEntrySize)
	if err := stream.ReadFull(v, tableBytes, standardLocatorTableOffset); err != nil {
		return nil, errs.NewCorruptEntry(standardLocatorTableOffset, "truncated standard locator table")
	}

	locators := make([]standardLocator, count)
	cumulative := make([]int64, count)
	var running int64
	payloadStart := standardLocatorTableOffset + int64(count)*standardLocatorEntrySize
	for i := 0; i < count; i++ {
		rec := tableBytes[i*standardLocatorEntrySize:]
		offset := int64(binary.LittleEndian.Uint32(rec[0:]))
		blockSize := int64(binary.LittleEndian.Uint32(rec[4:]))
		decompSize := int64(binary.LittleEndian.Uint32(rec[8:]))
		locators[i] = standardLocator{StreamOffset: payloadStart + offset, BlockSize: blockSize, DecompSize: decompSize}
		cumulative[i] = running
		running += decompSize
	}

	if running != int64(h.DecompressedSize) {
		return nil, errs.NewBadData("standard entry locator sizes disagree with declared decompressed size")
	}

	return &standardUnpacker{
		src:        v,
		decomp:     int64(h.DecompressedSize),
		locators:   locators,
		cumulative: cumulative,
		dec:        newBlockDecoder(v),
	}, nil
}

func (u *standardUnpacker) Size() int64 { return u.decomp }

func (u *standardUnpacker) ReadAt(buf []byte, off int64) (int, error) {
	if off < 0 || off >= u.decomp {
		return 0, nil
	}
	want := u.decomp - off
	if int64(len(buf)) < want {
		want = int64(len(buf))
	}
	buf = buf[:want]

	// Binary-search the first locator covering off.
	idx := sort.Search(len(u.cumulative), func(i int) bool {
		end := u.cumulative[i]
		if i+1 < len(u.locators) {
			end = u.cumulative[i+1]
		} else {
			end = u.decomp
		}
		return end > off
	})

	var blocks []blockDesc
	for i := idx; i < len(u.locators); i++ {
		l := u.locators[i]
		blocks = append(blocks, blockDesc{StreamOffset: l.StreamOffset, LogicalOffset: u.cumulative[i], LogicalSize: l.DecompSize})
		if u.cumulative[i]+l.DecompSize >= off+int64(len(buf)) {
			break
		}
	}

	if err := u.dec.Fill(buf, off, blocks); err != nil {
		return 0, err
	}
	return len(buf), nil
}

func (u *standardUnpacker) View(off, length int64) stream.Stream {
	return stream.NewPartialStream(u, off, length)
}
