// Copyright (c) 2025 Soreepeong
// SPDX-License-Identifier: MIT

// Package pack holds the passthrough and compressing packers, §4.6/§4.7:
// one pair of variants per packed-entry type (empty, standard, texture,
// model), each turning a raw decoded byte source into a valid packed
// entry.
package pack

import (
	"github.com/Soreepeong/xivres-sub000/stream"
)

// segment is one piece of a spliced stream: either literal bytes, a
// byte range copied lazily from another stream, or (if both are nil/zero)
// a run of zero bytes. spliceStream concatenates these without copying
// payload bytes upfront, matching §4.6 "reads splice generated
// header/locator bytes with raw payload bytes from the source, inserting
// zero padding where the packed layout requires."
type segment struct {
	literal []byte
	src     stream.Stream
	srcOff  int64
	length  int64
}

func literalSegment(data []byte) segment {
	return segment{literal: data, length: int64(len(data))}
}

func sourceSegment(src stream.Stream, off, length int64) segment {
	return segment{src: src, srcOff: off, length: length}
}

func zeroSegment(length int64) segment {
	return segment{length: length}
}

// spliceStream is a read-only, ordered concatenation of segments.
type spliceStream struct {
	segments []segment
	offsets  []int64 // cumulative start offset of each segment
	size     int64
}

var _ stream.Stream = (*spliceStream)(nil)

func newSpliceStream(segments []segment) *spliceStream {
	offsets := make([]int64, len(segments))
	var total int64
	for i, s := range segments {
		offsets[i] = total
		total += s.length
	}
	return &spliceStream{segments: segments, offsets: offsets, size: total}
}

func (s *spliceStream) Size() int64 { return s.size }

func (s *spliceStream) ReadAt(buf []byte, off int64) (int, error) {
	if off < 0 || off >= s.size {
		return 0, nil
	}
	want := s.size - off
	if int64(len(buf)) < want {
		want = int64(len(buf))
	}
	buf = buf[:want]

	// Linear scan is fine: packed entries have at most a few hundred
	// segments (one per block plus a handful of header/table pieces).
	n := 0
	for i, seg := range s.segments {
		segStart := s.offsets[i]
		segEnd := segStart + seg.length
		if segEnd <= off {
			continue
		}
		if segStart >= off+int64(len(buf)) {
			break
		}
		lo := segStart
		if off > lo {
			lo = off
		}
		hi := segEnd
		if off+int64(len(buf)) < hi {
			hi = off + int64(len(buf))
		}
		dst := buf[lo-off : hi-off]
		switch {
		case seg.literal != nil:
			copy(dst, seg.literal[lo-segStart:hi-segStart])
		case seg.src != nil:
			if _, err := seg.src.ReadAt(dst, seg.srcOff+lo-segStart); err != nil {
				return 0, err
			}
		default:
			for j := range dst {
				dst[j] = 0
			}
		}
		n = int(hi - off)
	}
	return n, nil
}

func (s *spliceStream) View(off, length int64) stream.Stream {
	return stream.NewPartialStream(s, off, length)
}
