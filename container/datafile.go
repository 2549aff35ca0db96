// Copyright (c) 2025 Soreepeong
// SPDX-License-Identifier: MIT

package container

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"

	"github.com/Soreepeong/xivres-sub000/errs"
	"github.com/Soreepeong/xivres-sub000/stream"
)

// entryRegionSize is the fixed-size prefix of a data file's first entry
// whose SHA-1 the data sub-header separately declares, per §4.9 "Generator
// assembly": "the SHA-1 of its first entry region (a fixed-size prefix)".
const entryRegionSize = 1024

// DataFileHeader is the data-file-specific sub-header following the shared
// Header, §3 "Data file".
type DataFileHeader struct {
	DatFileIndex  uint32
	TotalDataSize int64
	MaxEntrySize  uint32
	DataSha1      [20]byte
	EntryOneSha1  [20]byte
}

// ReadDataFileHeader reads the shared Header and the DataFileHeader from
// the start of a data file stream.
func ReadDataFileHeader(s stream.Stream, strict bool) (Header, DataFileHeader, error) {
	buf := make([]byte, HeaderSize+dataSubHeaderSize)
	n, err := s.ReadAt(buf, 0)
	if err != nil {
		return Header{}, DataFileHeader{}, err
	}
	buf = buf[:n]
	if len(buf) < HeaderSize {
		return Header{}, DataFileHeader{}, errs.UnexpectedEof
	}

	h, err := readHeader(buf[:HeaderSize], strict, FileTypeSqData)
	if err != nil {
		return Header{}, DataFileHeader{}, err
	}

	sub := buf[HeaderSize:]
	if len(sub) < dataSubHeaderSize {
		return Header{}, DataFileHeader{}, errs.UnexpectedEof
	}
	r := bytes.NewReader(sub)
	var raw struct {
		DatFileIndex  uint32
		_             uint32
		TotalDataSize uint64
		MaxEntrySize  uint32
		_             uint32
		DataSha1      [20]byte
		EntryOneSha1  [20]byte
	}
	if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
		return Header{}, DataFileHeader{}, errs.UnexpectedEof
	}

	dh := DataFileHeader{
		DatFileIndex:  raw.DatFileIndex,
		TotalDataSize: int64(raw.TotalDataSize),
		MaxEntrySize:  raw.MaxEntrySize,
		DataSha1:      raw.DataSha1,
		EntryOneSha1:  raw.EntryOneSha1,
	}

	if strict {
		if dh.TotalDataSize != s.Size()-int64(HeaderSize+dataSubHeaderSize) && dh.TotalDataSize != s.Size() {
			// Some generators declare TotalDataSize as the size of the
			// region following both headers; others as the whole file.
			// Accept either without treating the mismatch as fatal, but
			// reject anything wildly inconsistent.
			if dh.TotalDataSize > s.Size() {
				return Header{}, DataFileHeader{}, errs.NewBadData("data file header declares size larger than the stream")
			}
		}
		prefixLen := entryRegionSize
		if int64(HeaderSize+dataSubHeaderSize+prefixLen) > s.Size() {
			prefixLen = int(s.Size() - int64(HeaderSize+dataSubHeaderSize))
		}
		if prefixLen > 0 {
			region := make([]byte, prefixLen)
			if err := stream.ReadFull(s, region, int64(HeaderSize+dataSubHeaderSize)); err != nil {
				return Header{}, DataFileHeader{}, err
			}
			sum := sha1.Sum(region)
			if !bytes.Equal(sum[:], dh.EntryOneSha1[:]) {
				return Header{}, DataFileHeader{}, errs.NewSha1Mismatch("entry-1 header region")
			}
		}
	}

	return h, dh, nil
}

// dataSubHeaderSize is the on-disk size of the DataFileHeader fields plus
// the zero padding that makes HeaderSize+dataSubHeaderSize a multiple of
// 128, so the entry region (and the first entry's DataLocator offset)
// starts on a 128-byte boundary.
const dataSubHeaderSize = 4 + 4 + 8 + 4 + 4 + 20 + 20 + 64

// DataHeaderSize is the combined size of the shared Header and the
// data-file sub-header together, i.e. the byte offset at which a data
// file's entry region begins. Generators use it to reserve header space
// up front and locate each dat file's data section.
const DataHeaderSize = HeaderSize + dataSubHeaderSize
