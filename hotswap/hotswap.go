// Copyright (c) 2025 Soreepeong
// SPDX-License-Identifier: MIT

// Package hotswap implements a fixed-reserved-size packed stream for live
// in-place substitution, §4.10 "Hot-swap packed stream": a running consumer
// that mmap-reads a data file can have its view of one entry replaced
// without any offset or size recorded in the archive's index ever
// changing. Grounded on the same lazy-stream-over-a-mutable-holder shape
// legacympq/mpq.go uses for its in-place OpenForModify path, adapted from
// "queue replacement bytes, rewrite on Close" to "serve whichever stream is
// currently active, swap atomically".
package hotswap

import (
	"sync"

	"github.com/Soreepeong/xivres-sub000/errs"
	"github.com/Soreepeong/xivres-sub000/pack"
	"github.com/Soreepeong/xivres-sub000/sqpack"
	"github.com/Soreepeong/xivres-sub000/stream"
)

// Stream reserves a fixed on-disk size and serves reads from the current
// replacement stream if one has been installed, else the base stream, else
// an empty-entry skeleton; any tail beyond the served payload's own size is
// zero-filled up to the reserved size, §4.10.
type Stream struct {
	reserved int64

	mu       sync.Mutex
	base     stream.Stream
	current  stream.Stream
	skeleton stream.Stream
}

var _ stream.Stream = (*Stream)(nil)

// New creates a hot-swap stream reserving reservedSize bytes, rounded up to
// the 128-byte space unit, §4.10 "Created with a reserved size (rounded up
// to 128 bytes)". base, if non-nil, is served until the first Swap.
func New(reservedSize int64, base stream.Stream) *Stream {
	return &Stream{reserved: sqpack.AlignToSpaceUnit(reservedSize), base: base}
}

// Size reports the reserved capacity, not the active stream's own length.
func (s *Stream) Size() int64 { return s.reserved }

// active returns whichever stream currently backs reads, §4.10 "Holds an
// optional base stream ... and an optional current replacement."
func (s *Stream) active() stream.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.current != nil:
		return s.current
	case s.base != nil:
		return s.base
	default:
		if s.skeleton == nil {
			s.skeleton = pack.NewEmptyPassthrough(stream.NewMemoryStream(nil))
		}
		return s.skeleton
	}
}

// ReadAt serves the active stream's bytes, zero-filling any span from its
// end up to the reserved size.
func (s *Stream) ReadAt(buf []byte, off int64) (int, error) {
	if off < 0 || off >= s.reserved {
		return 0, nil
	}
	active := s.active()

	want := s.reserved - off
	if int64(len(buf)) < want {
		want = int64(len(buf))
	}
	buf = buf[:want]

	var served int
	if active != nil {
		n, err := active.ReadAt(buf, off)
		if err != nil {
			return 0, err
		}
		served = n
	}
	for i := served; i < len(buf); i++ {
		buf[i] = 0
	}
	return len(buf), nil
}

// View returns a Stream over [off, off+length) of the reserved region.
func (s *Stream) View(off, length int64) stream.Stream {
	return stream.NewPartialStream(s, off, length)
}

// Swap validates that newStream fits within the reserved size and
// atomically switches the active stream, §4.10 "swap(new_stream) validates
// new_stream.size() <= reserved and atomically (under a mutex) switches
// the active stream." Passing nil reverts to serving the base stream (or
// the empty-entry skeleton if there is none).
func (s *Stream) Swap(newStream stream.Stream) error {
	if newStream != nil && newStream.Size() > s.reserved {
		return errs.NewOutOfRange("hot-swap replacement exceeds reserved size")
	}
	s.mu.Lock()
	s.current = newStream
	s.mu.Unlock()
	return nil
}
