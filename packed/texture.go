// Copyright (c) 2025 Soreepeong
// SPDX-License-Identifier: MIT

package packed

import (
	"encoding/binary"
	"sort"

	"github.com/Soreepeong/xivres-sub000/errs"
	"github.com/Soreepeong/xivres-sub000/stream"
)

// textureMipmapLocator is one mipmap's block locator, mirroring
// standardLocator but additionally carrying the mipmap's natural
// (uncompressed, full-resolution) byte count so a short decompressed size
// can be detected and zero-filled, §4.5 "Texture unpacker".
type textureMipmapLocator struct {
	StreamOffset int64
	DecompSize   int64
	NaturalSize  int64
}

// textureUnpacker is the texture packed-entry codec. The texture header
// (verbatim bytes including the mipmap offset array) is served as a
// contiguous head region, followed by each mipmap's decoded bytes in
// order, any short mipmap zero-padded to its natural size.
type textureUnpacker struct {
	src        stream.Stream
	decomp     int64
	headHand   []byte // verbatim texture header served at offset 0
	mipmaps    []textureMipmapLocator
	mipOffsets []int64 // logical offset of each mipmap's decoded bytes
	dec        *blockDecoder
}

var _ stream.Stream = (*textureUnpacker)(nil)

const textureLocatorEntrySize = 4 + 4 + 4 // offset, decompressed size, natural size

func newTextureUnpacker(v stream.Stream, h EntryHeader) (stream.Stream, error) {
	count := int(h.BlockCountOrVersion)

	// The texture header's on-disk length is BlockBufferSize (in
	// 128-byte units), matching EntryHeader's reuse of that field for
	// "head region length" on this type, the same way
	// placeholderUnpacker reuses BlockCountOrVersion.
	headLen := int64(h.BlockBufferSize) * 128
	head := make([]byte, headLen)
	if err := stream.ReadFull(v, head, EntryHeaderSize); err != nil {
		return nil, errs.NewCorruptEntry(EntryHeaderSize, "truncated texture header")
	}

	tableOffset := int64(EntryHeaderSize) + headLen
	tableBytes := make([]byte, count*textureLocatorEntrySize)
	if err := stream.ReadFull(v, tableBytes, tableOffset); err != nil {
		return nil, errs.NewCorruptEntry(tableOffset, "truncated mipmap locator table")
	}

	payloadStart := tableOffset + int64(len(tableBytes))
	mipmaps := make([]textureMipmapLocator, count)
	mipOffsets := make([]int64, count)
	running := headLen
	for i := 0; i < count; i++ {
		rec := tableBytes[i*textureLocatorEntrySize:]
		offset := int64(binary.LittleEndian.Uint32(rec[0:]))
		decompSize := int64(binary.LittleEndian.Uint32(rec[4:]))
		naturalSize := int64(binary.LittleEndian.Uint32(rec[8:]))
		mipmaps[i] = textureMipmapLocator{StreamOffset: payloadStart + offset, DecompSize: decompSize, NaturalSize: naturalSize}
		mipOffsets[i] = running
		running += naturalSize
	}

	if count >= 2 {
		// Repeat-count inference, §4.5: "derived from the offset spacing
		// between the first two mipmaps in the header." Archives can
		// repeat a mip level's block consecutively; this assumes every
		// run of equal-sized mips is spaced uniformly. Do not guess when
		// that assumption breaks, §9: surface BadData instead of
		// mis-decoding silently.
		for i := 0; i+2 < count; i++ {
			if mipmaps[i].NaturalSize != mipmaps[i+1].NaturalSize {
				continue
			}
			spacing := mipmaps[i+1].StreamOffset - mipmaps[i].StreamOffset
			if mipmaps[i+2].NaturalSize == mipmaps[i].NaturalSize && mipmaps[i+2].StreamOffset-mipmaps[i+1].StreamOffset != spacing {
				return nil, errs.NewBadData("non-uniform mipmap repeat")
			}
		}
	}

	if running != int64(h.DecompressedSize) {
		return nil, errs.NewBadData("texture entry mipmap sizes disagree with declared decompressed size")
	}

	return &textureUnpacker{
		src:        v,
		decomp:     int64(h.DecompressedSize),
		headHand:   head,
		mipmaps:    mipmaps,
		mipOffsets: mipOffsets,
		dec:        newBlockDecoder(v),
	}, nil
}

func (u *textureUnpacker) Size() int64 { return u.decomp }

func (u *textureUnpacker) ReadAt(buf []byte, off int64) (int, error) {
	if off < 0 || off >= u.decomp {
		return 0, nil
	}
	want := u.decomp - off
	if int64(len(buf)) < want {
		want = int64(len(buf))
	}
	buf = buf[:want]
	end := off + int64(len(buf))

	headLen := int64(len(u.headHand))
	if off < headLen {
		n := min64(headLen, end) - off
		copy(buf[:n], u.headHand[off:off+n])
	}

	idx := sort.Search(len(u.mipOffsets), func(i int) bool {
		mipEnd := u.mipOffsets[i] + u.mipmaps[i].NaturalSize
		return mipEnd > off
	})

	var blocks []blockDesc
	for i := idx; i < len(u.mipmaps); i++ {
		m := u.mipmaps[i]
		blocks = append(blocks, blockDesc{StreamOffset: m.StreamOffset, LogicalOffset: u.mipOffsets[i], LogicalSize: m.DecompSize})
		if u.mipOffsets[i]+m.NaturalSize >= end {
			break
		}
	}

	if len(blocks) > 0 {
		// Decode only the mipmap region of buf; the head region above was
		// already filled directly from headHand.
		lo := max64(off, headLen)
		if lo < end {
			sub := buf[lo-off : end-off]
			if err := u.dec.Fill(sub, lo, blocks); err != nil {
				return 0, err
			}
		}
	}

	return len(buf), nil
}

func (u *textureUnpacker) View(off, length int64) stream.Stream {
	return stream.NewPartialStream(u, off, length)
}
