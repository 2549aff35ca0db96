// Copyright (c) 2025 Soreepeong
// SPDX-License-Identifier: MIT

package container

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"sort"
	"strings"
)

// EncodeHeader serializes the shared 1024-byte archive header, computing
// the SHA-1 of the preceding 960 bytes itself.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	copy(buf, magic[:])
	binary.LittleEndian.PutUint32(buf[8:], h.Platform)
	binary.LittleEndian.PutUint32(buf[12:], HeaderSize)
	binary.LittleEndian.PutUint32(buf[20:], uint32(h.FileType))
	binary.LittleEndian.PutUint32(buf[24:], h.DatFileIndex)
	binary.LittleEndian.PutUint32(buf[32:], h.MaxFileSize)
	sum := sha1.Sum(buf[:sha1DigestOffset])
	copy(buf[sha1DigestOffset:], sum[:])
	return buf
}

func encodeSegmentDescriptor(d segmentDescriptor) []byte {
	buf := make([]byte, segmentDescriptorSize)
	binary.LittleEndian.PutUint32(buf[0:], d.Count)
	binary.LittleEndian.PutUint32(buf[4:], d.Offset)
	binary.LittleEndian.PutUint32(buf[8:], d.Size)
	copy(buf[12:], d.Sha1[:])
	return buf
}

// IndexBuildInput holds everything needed to serialize an index1 or index2
// file: the sorted hash-locator entries (one of the two slices, matching
// the Index being built), the sorted text-locator overflow entries, and
// the per-dat-file SHA-1 digests.
type IndexBuildInput struct {
	PairHashes []PairHashLocator // index1 only
	FullHashes []FullHashLocator // index2 only
	Texts      []TextLocator
	DatSha1    [][20]byte
}

// EncodeIndex1 serializes a complete index1 file from sorted input.
func EncodeIndex1(in IndexBuildInput) []byte {
	return encodeIndex(in, true)
}

// EncodeIndex2 serializes a complete index2 file from sorted input.
func EncodeIndex2(in IndexBuildInput) []byte {
	return encodeIndex(in, false)
}

func encodeIndex(in IndexBuildInput, isIndex1 bool) []byte {
	header := EncodeHeader(Header{FileType: FileTypeSqIndex})

	var hashBody bytes.Buffer
	if isIndex1 {
		sort.Slice(in.PairHashes, func(i, j int) bool {
			if in.PairHashes[i].PathHash != in.PairHashes[j].PathHash {
				return in.PairHashes[i].PathHash < in.PairHashes[j].PathHash
			}
			return in.PairHashes[i].NameHash < in.PairHashes[j].NameHash
		})
		for _, e := range in.PairHashes {
			binary.Write(&hashBody, binary.LittleEndian, struct{ PathHash, NameHash, Locator, Padding uint32 }{e.PathHash, e.NameHash, uint32(e.Locator), 0})
		}
	} else {
		sort.Slice(in.FullHashes, func(i, j int) bool { return in.FullHashes[i].FullPathHash < in.FullHashes[j].FullPathHash })
		for _, e := range in.FullHashes {
			binary.Write(&hashBody, binary.LittleEndian, struct{ FullPathHash, Locator uint32 }{e.FullPathHash, uint32(e.Locator)})
		}
	}

	sort.Slice(in.Texts, func(i, j int) bool { return strings.ToLower(in.Texts[i].FullPath) < strings.ToLower(in.Texts[j].FullPath) })
	var textBody bytes.Buffer
	for _, t := range in.Texts {
		textBody.Write(encodeTextLocator(t, isIndex1))
	}

	var seg3Body bytes.Buffer // UnknownSegment3: opaque, always empty here

	var datBody bytes.Buffer
	for _, s := range in.DatSha1 {
		datBody.Write(s[:])
	}

	hashSeg := segmentDescriptor{Count: uint32(len(hashBody.Bytes())), Size: uint32(hashBody.Len())}
	textSeg := segmentDescriptor{Count: uint32(len(in.Texts)), Size: uint32(textBody.Len())}
	seg3 := segmentDescriptor{Size: uint32(seg3Body.Len())}
	datSeg := segmentDescriptor{Count: uint32(len(in.DatSha1)), Size: uint32(datBody.Len())}

	bodyStart := indexHeaderSize
	hashSeg.Offset = uint32(bodyStart)
	textSeg.Offset = hashSeg.Offset + uint32(hashBody.Len())
	seg3.Offset = textSeg.Offset + uint32(textBody.Len())
	datSeg.Offset = seg3.Offset + uint32(seg3Body.Len())

	hashSum := sha1.Sum(hashBody.Bytes())
	copy(hashSeg.Sha1[:], hashSum[:])
	textSum := sha1.Sum(textBody.Bytes())
	copy(textSeg.Sha1[:], textSum[:])
	seg3Sum := sha1.Sum(seg3Body.Bytes())
	copy(seg3.Sha1[:], seg3Sum[:])

	var out bytes.Buffer
	out.Write(header)
	out.Write(encodeSegmentDescriptor(hashSeg))
	out.Write(encodeSegmentDescriptor(textSeg))
	out.Write(encodeSegmentDescriptor(seg3))
	out.Write(encodeSegmentDescriptor(datSeg))
	out.Write(hashBody.Bytes())
	out.Write(textBody.Bytes())
	out.Write(seg3Body.Bytes())
	out.Write(datBody.Bytes())
	return out.Bytes()
}

func encodeTextLocator(t TextLocator, isIndex1 bool) []byte {
	buf := make([]byte, textLocatorFixedSize)
	if isIndex1 {
		binary.LittleEndian.PutUint32(buf[0:], t.PathHash)
		binary.LittleEndian.PutUint32(buf[4:], t.NameHash)
		binary.LittleEndian.PutUint32(buf[8:], t.FullPathHash)
		binary.LittleEndian.PutUint32(buf[12:], uint32(t.Locator))
	} else {
		binary.LittleEndian.PutUint32(buf[0:], t.FullPathHash)
		binary.LittleEndian.PutUint32(buf[4:], uint32(t.Locator))
	}
	text := append([]byte(t.FullPath), 0)
	for len(text)%4 != 0 {
		text = append(text, 0)
	}
	return append(buf, text...)
}

// EncodeDataFileHeader serializes the shared Header plus DataFileHeader for
// a data file, computing EntryOneSha1 over the given entry-1 region.
func EncodeDataFileHeader(datIndex uint32, maxEntrySize uint32, totalDataSize int64, dataSha1 [20]byte, entryOneRegion []byte) []byte {
	header := EncodeHeader(Header{FileType: FileTypeSqData, DatFileIndex: datIndex, MaxFileSize: maxEntrySize})

	region := entryOneRegion
	if len(region) > entryRegionSize {
		region = region[:entryRegionSize]
	}
	entryOneSha1 := sha1.Sum(region)

	sub := make([]byte, dataSubHeaderSize)
	binary.LittleEndian.PutUint32(sub[0:], datIndex)
	binary.LittleEndian.PutUint64(sub[8:], uint64(totalDataSize))
	binary.LittleEndian.PutUint32(sub[16:], maxEntrySize)
	copy(sub[24:], dataSha1[:])
	copy(sub[44:], entryOneSha1[:])

	return append(header, sub...)
}
