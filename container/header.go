// Copyright (c) 2025 Soreepeong
// SPDX-License-Identifier: MIT

// Package container holds the on-disk archive/index/data header and locator
// types shared by every SqPack-family file, and the index1/index2 readers
// built on top of them. It mirrors the layout described in
// original_source/xivres/include/xivres/sqpack.reader.h, adapted from
// reinterpret_cast-over-a-byte-buffer to explicit binary.Read decoding.
package container

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"io"

	"github.com/Soreepeong/xivres-sub000/errs"
)

// HeaderSize is the fixed size of the shared archive header, §6.
const HeaderSize = 1024

// sha1DigestOffset is the offset of the SHA-1 field within the shared
// header: the header declares the digest of the 960 bytes preceding it.
const sha1DigestOffset = 960

var magic = [8]byte{'S', 'q', 'P', 'a', 'c', 'k', 0, 0}

// FileType identifies whether an archive file holds an index or data.
type FileType uint32

const (
	FileTypeSqIndex FileType = 1
	FileTypeSqData  FileType = 2
)

// Header is the shared 1024-byte archive header common to index and data
// files, §6.
type Header struct {
	Platform     uint32
	HeaderSize   uint32
	FileType     FileType
	DatFileIndex uint32 // data files only
	MaxFileSize  uint32 // data files only
}

// readHeader reads and, if strict, verifies the shared header at the start
// of data.
func readHeader(data []byte, strict bool, wantType FileType) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, errs.UnexpectedEof
	}
	r := bytes.NewReader(data[:HeaderSize])

	var rawMagic [8]byte
	if _, err := io.ReadFull(r, rawMagic[:]); err != nil {
		return Header{}, errs.UnexpectedEof
	}
	if rawMagic != magic {
		return Header{}, errs.NewBadMagic(le32(magic[:4]), le32(rawMagic[:4]))
	}

	var fields struct {
		Platform     uint32
		HeaderSize   uint32
		_            uint32
		FileType     uint32
		DatFileIndex uint32
		_            uint32
		MaxFileSize  uint32
	}
	if err := binary.Read(r, binary.LittleEndian, &fields); err != nil {
		return Header{}, errs.UnexpectedEof
	}

	h := Header{
		Platform:     fields.Platform,
		HeaderSize:   fields.HeaderSize,
		FileType:     FileType(fields.FileType),
		DatFileIndex: fields.DatFileIndex,
		MaxFileSize:  fields.MaxFileSize,
	}

	if strict {
		if h.FileType != wantType {
			return Header{}, errs.NewBadMagic(uint32(wantType), uint32(h.FileType))
		}
		sum := sha1.Sum(data[:sha1DigestOffset])
		if !bytes.Equal(sum[:], data[sha1DigestOffset:sha1DigestOffset+sha1.Size]) {
			return Header{}, errs.NewSha1Mismatch("archive header")
		}
	}

	return h, nil
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// segmentDescriptor names an index-header segment: its offset and size
// within the index file, plus the SHA-1 of its bytes.
type segmentDescriptor struct {
	Count  uint32
	Offset uint32
	Size   uint32
	Sha1   [20]byte
}

func readSegmentDescriptor(r *bytes.Reader) (segmentDescriptor, error) {
	var raw struct {
		Count      uint32
		Offset     uint32
		Size       uint32
		Sha1       [20]byte
		_          [44]byte
	}
	if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
		return segmentDescriptor{}, errs.UnexpectedEof
	}
	return segmentDescriptor{Count: raw.Count, Offset: raw.Offset, Size: raw.Size, Sha1: raw.Sha1}, nil
}

func (d segmentDescriptor) verify(data []byte, name string) error {
	if d.Size == 0 {
		return nil
	}
	if int(d.Offset)+int(d.Size) > len(data) {
		return errs.UnexpectedEof
	}
	sum := sha1.Sum(data[d.Offset : d.Offset+d.Size])
	if !bytes.Equal(sum[:], d.Sha1[:]) {
		return errs.NewSha1Mismatch(name)
	}
	return nil
}

func (d segmentDescriptor) bytes(data []byte) []byte {
	return data[d.Offset : d.Offset+d.Size]
}
