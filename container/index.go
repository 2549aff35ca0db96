// Copyright (c) 2025 Soreepeong
// SPDX-License-Identifier: MIT

package container

import (
	"bytes"
	"encoding/binary"
	"sort"
	"strings"

	"github.com/Soreepeong/xivres-sub000/errs"
)

// segmentDescriptorSize is the on-disk size of one segment descriptor:
// a count, an offset, a size, a SHA-1 digest, and trailing padding.
const segmentDescriptorSize = 4 + 4 + 4 + 20 + 44

// indexHeaderSize is the size of the sqindex sub-header: four segment
// descriptors (HashLocatorSegment, TextLocatorSegment, UnknownSegment3,
// DataFilesSegment), mirroring sqpack::sqindex::header in sqpack.reader.h.
const indexHeaderSize = 4 * segmentDescriptorSize

// DataLocator is the packed 32-bit value naming where an entry's packed
// data lives, §3 "Data locator".
type DataLocator uint32

const datFileIndexBits = 3

// NewDataLocator packs a dat-file index, a 128-byte-aligned offset, and the
// synonym flag into a DataLocator.
func NewDataLocator(datFileIndex int, offset int64, isSynonym bool) DataLocator {
	v := uint32(datFileIndex) & ((1 << datFileIndexBits) - 1)
	if isSynonym {
		v |= 1 << datFileIndexBits
	}
	v |= uint32(offset>>7) << (datFileIndexBits + 1)
	return DataLocator(v)
}

// DatFileIndex returns which numbered data file the entry lives in.
func (d DataLocator) DatFileIndex() int { return int(d & ((1 << datFileIndexBits) - 1)) }

// IsSynonym reports whether this locator must be re-resolved via the
// text-locator table.
func (d DataLocator) IsSynonym() bool { return d&(1<<datFileIndexBits) != 0 }

// Offset returns the 64-bit byte offset into the data file.
func (d DataLocator) Offset() int64 { return int64(d>>(datFileIndexBits+1)) << 7 }

// Packed returns the raw 32-bit value.
func (d DataLocator) Packed() uint32 { return uint32(d) }

// PairHashLocator is an index1 hash-locator entry, §3.
type PairHashLocator struct {
	PathHash, NameHash uint32
	Locator            DataLocator
}

// FullHashLocator is an index2 hash-locator entry, §3.
type FullHashLocator struct {
	FullPathHash uint32
	Locator      DataLocator
}

// TextLocator is a collision-overflow entry carrying the full path text
// alongside its locator, §3 "Text-locator entry".
type TextLocator struct {
	PathHash, NameHash, FullPathHash uint32
	Locator                          DataLocator
	FullPath                         string
}

const (
	pairHashLocatorSize = 4 + 4 + 4 + 4 // PathHash, NameHash, Locator, padding
	fullHashLocatorSize = 4 + 4         // FullPathHash, Locator
)

// Index is a parsed index1 or index2 file: the hash-locator table (the
// authoritative flat lookup structure per §4.1) and the text-locator table.
type Index struct {
	Header Header

	datFileSha1 [][20]byte

	pairHashes []PairHashLocator // nil for index2
	fullHashes []FullHashLocator // nil for index1
	texts      []TextLocator
	isIndex1   bool
}

// ReadIndex1 parses an index1 file (pair-hash locators).
func ReadIndex1(data []byte, strict bool) (*Index, error) {
	return readIndex(data, strict, true)
}

// ReadIndex2 parses an index2 file (full-hash locators).
func ReadIndex2(data []byte, strict bool) (*Index, error) {
	return readIndex(data, strict, false)
}

func readIndex(data []byte, strict bool, isIndex1 bool) (*Index, error) {
	h, err := readHeader(data, strict, FileTypeSqIndex)
	if err != nil {
		return nil, err
	}
	if int(h.HeaderSize) > len(data) {
		return nil, errs.UnexpectedEof
	}

	body := data[h.HeaderSize:]
	if len(body) < indexHeaderSize {
		return nil, errs.UnexpectedEof
	}
	r := bytes.NewReader(body)

	hashSeg, err := readSegmentDescriptor(r)
	if err != nil {
		return nil, err
	}
	textSeg, err := readSegmentDescriptor(r)
	if err != nil {
		return nil, err
	}
	seg3, err := readSegmentDescriptor(r)
	if err != nil {
		return nil, err
	}
	datFilesSeg, err := readSegmentDescriptor(r)
	if err != nil {
		return nil, err
	}

	idx := &Index{Header: h, isIndex1: isIndex1}

	stride := fullHashLocatorSize
	if isIndex1 {
		stride = pairHashLocatorSize
	}
	if strict && int(hashSeg.Size)%stride != 0 {
		return nil, errs.NewBadData("hash locator segment has invalid size alignment")
	}

	hashBytes := hashSeg.bytes(body)
	n := len(hashBytes) / stride
	hr := bytes.NewReader(hashBytes)
	if isIndex1 {
		idx.pairHashes = make([]PairHashLocator, n)
		for i := range idx.pairHashes {
			var raw struct {
				PathHash, NameHash, Locator uint32
				_                           uint32
			}
			if err := binary.Read(hr, binary.LittleEndian, &raw); err != nil {
				return nil, errs.UnexpectedEof
			}
			idx.pairHashes[i] = PairHashLocator{PathHash: raw.PathHash, NameHash: raw.NameHash, Locator: DataLocator(raw.Locator)}
		}
	} else {
		idx.fullHashes = make([]FullHashLocator, n)
		for i := range idx.fullHashes {
			var raw struct{ FullPathHash, Locator uint32 }
			if err := binary.Read(hr, binary.LittleEndian, &raw); err != nil {
				return nil, errs.UnexpectedEof
			}
			idx.fullHashes[i] = FullHashLocator{FullPathHash: raw.FullPathHash, Locator: DataLocator(raw.Locator)}
		}
	}

	idx.texts, err = readTextLocators(textSeg.bytes(body), isIndex1)
	if err != nil {
		return nil, err
	}

	datCount := int(datFilesSeg.Size) / 20
	idx.datFileSha1 = make([][20]byte, datCount)
	dr := bytes.NewReader(datFilesSeg.bytes(body))
	for i := range idx.datFileSha1 {
		dr.Read(idx.datFileSha1[i][:])
	}

	if strict {
		if err := hashSeg.verify(body, "HashLocatorSegment"); err != nil {
			return nil, err
		}
		if err := textSeg.verify(body, "TextLocatorSegment"); err != nil {
			return nil, err
		}
		if err := seg3.verify(body, "UnknownSegment3"); err != nil {
			return nil, err
		}
		if !sort.SliceIsSorted(idx.texts, func(i, j int) bool { return strings.ToLower(idx.texts[i].FullPath) < strings.ToLower(idx.texts[j].FullPath) }) {
			return nil, errs.NewBadData("text locator table is not sorted")
		}
	}

	return idx, nil
}

// textLocatorFixedSize is the fixed-width prefix before the NUL-terminated
// path text in a text-locator entry: three hashes, the locator, and
// padding, per path_spec.h's pair_hash_with_text_locator/
// full_hash_with_text_locator.
const textLocatorFixedSize = 32

func readTextLocators(data []byte, isIndex1 bool) ([]TextLocator, error) {
	var out []TextLocator
	for len(data) > 0 {
		if len(data) < textLocatorFixedSize {
			return nil, errs.UnexpectedEof
		}
		r := bytes.NewReader(data[:textLocatorFixedSize])
		var raw struct {
			PathHash, NameHash, FullPathHash, Locator uint32
			_                                         [16]byte
		}
		if isIndex1 {
			if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
				return nil, errs.UnexpectedEof
			}
		} else {
			var raw2 struct {
				FullPathHash, Locator uint32
				_                     [24]byte
			}
			if err := binary.Read(r, binary.LittleEndian, &raw2); err != nil {
				return nil, errs.UnexpectedEof
			}
			raw.FullPathHash, raw.Locator = raw2.FullPathHash, raw2.Locator
		}

		rest := data[textLocatorFixedSize:]
		nul := bytes.IndexByte(rest, 0)
		if nul < 0 {
			return nil, errs.UnexpectedEof
		}
		path := string(rest[:nul])
		// NUL-pad to a 4-byte boundary, consistent with the teacher's
		// fixed-record-plus-string framing for variable text entries.
		entryEnd := textLocatorFixedSize + (nul+1+3)&^3

		out = append(out, TextLocator{
			PathHash:     raw.PathHash,
			NameHash:     raw.NameHash,
			FullPathHash: raw.FullPathHash,
			Locator:      DataLocator(raw.Locator),
			FullPath:     path,
		})

		if entryEnd > len(data) {
			break
		}
		data = data[entryEnd:]
	}
	return out, nil
}

// DataLocatorForPair looks up an index1 entry by (path hash, name hash).
// If the result's IsSynonym bit is set, callers must re-resolve via
// DataLocatorForText.
func (idx *Index) DataLocatorForPair(pathHash, nameHash uint32) (DataLocator, bool) {
	lo, hi := 0, len(idx.pairHashes)
	for lo < hi {
		mid := (lo + hi) / 2
		e := idx.pairHashes[mid]
		switch {
		case e.PathHash < pathHash || (e.PathHash == pathHash && e.NameHash < nameHash):
			lo = mid + 1
		default:
			hi = mid
		}
	}
	if lo < len(idx.pairHashes) && idx.pairHashes[lo].PathHash == pathHash && idx.pairHashes[lo].NameHash == nameHash {
		return idx.pairHashes[lo].Locator, true
	}
	return 0, false
}

// DataLocatorForFull looks up an index2 entry by full-path hash.
func (idx *Index) DataLocatorForFull(fullPathHash uint32) (DataLocator, bool) {
	lo, hi := 0, len(idx.fullHashes)
	for lo < hi {
		mid := (lo + hi) / 2
		if idx.fullHashes[mid].FullPathHash < fullPathHash {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(idx.fullHashes) && idx.fullHashes[lo].FullPathHash == fullPathHash {
		return idx.fullHashes[lo].Locator, true
	}
	return 0, false
}

// DataLocatorForText looks up a text-locator entry by case-insensitive
// full path text, resolving a synonym hit.
func (idx *Index) DataLocatorForText(fullPath string) (DataLocator, bool) {
	target := strings.ToLower(fullPath)
	for _, t := range idx.texts {
		if strings.ToLower(t.FullPath) == target {
			return t.Locator, true
		}
	}
	return 0, false
}

// PairHashLocators returns every index1 (path hash, name hash, locator)
// entry, in stored order. Empty for an index2.
func (idx *Index) PairHashLocators() []PairHashLocator { return idx.pairHashes }

// FullHashLocators returns every index2 (full path hash, locator) entry, in
// stored order. Empty for an index1.
func (idx *Index) FullHashLocators() []FullHashLocator { return idx.fullHashes }

// TextLocators returns every collision-overflow entry in this index.
func (idx *Index) TextLocators() []TextLocator { return idx.texts }

// DatFileSha1 returns the declared SHA-1 digest for data file n.
func (idx *Index) DatFileSha1(n int) ([20]byte, bool) {
	if n < 0 || n >= len(idx.datFileSha1) {
		return [20]byte{}, false
	}
	return idx.datFileSha1[n], true
}
