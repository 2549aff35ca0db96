// Copyright (c) 2025 Soreepeong
// SPDX-License-Identifier: MIT

package packed

import (
	"github.com/Soreepeong/xivres-sub000/internal/deflate"
	"github.com/Soreepeong/xivres-sub000/stream"
)

// placeholderUnpacker is the empty/placeholder codec, §4.5 "Empty/placeholder
// unpacker". A genuinely empty entry has no payload; an obfuscated resource
// stores its (small) header DEFLATE-packed as a single block, with the
// remaining raw bytes following verbatim.
type placeholderUnpacker struct {
	data          []byte // fully materialized decompressed bytes
	headerRewrite []byte
}

var _ stream.Stream = (*placeholderUnpacker)(nil)

func newPlaceholderUnpacker(v stream.Stream, h EntryHeader, headerRewrite []byte) (stream.Stream, error) {
	// "If the entry's decompressed size is smaller than the block-count
	// field, the payload is a single DEFLATE-packed header block" — here
	// BlockCountOrVersion doubles as the block-count field for this type.
	if h.DecompressedSize < h.BlockCountOrVersion {
		bh, err := ReadBlockHeader(v, EntryHeaderSize)
		if err != nil {
			return nil, err
		}
		payloadOff := int64(EntryHeaderSize + BlockHeaderSize)
		var decoded []byte
		if bh.IsRaw() {
			decoded = make([]byte, bh.DecompressedSize)
			if err := stream.ReadFull(v, decoded, payloadOff); err != nil {
				return nil, err
			}
		} else {
			compressed := make([]byte, bh.CompressedSize)
			if err := stream.ReadFull(v, compressed, payloadOff); err != nil {
				return nil, err
			}
			inf := deflate.NewInflater()
			out, err := inf.InflateToBuffer(compressed)
			if err != nil {
				return nil, err
			}
			decoded = append([]byte(nil), out...)
		}
		applyHeaderRewrite(decoded, headerRewrite)
		return &placeholderUnpacker{data: decoded}, nil
	}

	// Otherwise the payload after the header is already raw: serve it as
	// a partial view without copying, but still honor a header rewrite by
	// materializing just the rewritten prefix length if one was given.
	raw := v.View(EntryHeaderSize, int64(h.DecompressedSize))
	if len(headerRewrite) == 0 {
		return raw, nil
	}
	data := make([]byte, h.DecompressedSize)
	if err := stream.ReadFull(raw, data, 0); err != nil {
		return nil, err
	}
	applyHeaderRewrite(data, headerRewrite)
	return &placeholderUnpacker{data: data}, nil
}

func applyHeaderRewrite(data, rewrite []byte) {
	n := len(rewrite)
	if n > len(data) {
		n = len(data)
	}
	copy(data[:n], rewrite[:n])
}

func (p *placeholderUnpacker) Size() int64 { return int64(len(p.data)) }

func (p *placeholderUnpacker) ReadAt(buf []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(p.data)) {
		return 0, nil
	}
	n := copy(buf, p.data[off:])
	return n, nil
}

func (p *placeholderUnpacker) View(off, length int64) stream.Stream {
	return stream.NewPartialStream(p, off, length)
}
