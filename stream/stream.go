// Copyright (c) 2025 Soreepeong
// SPDX-License-Identifier: MIT

// Package stream provides the random-access, size-known byte source that
// every higher layer of the archive engine consumes instead of an *os.File
// directly. A Stream never assumes a seekable OS handle: a memory buffer, a
// positioned read on a shared file handle, and a byte-range view over
// another Stream all satisfy the same three-method capability set.
package stream

import (
	"io"

	"github.com/Soreepeong/xivres-sub000/errs"
)

// Stream is a random-access, size-known source of bytes. ReadAt may return
// fewer bytes than requested near the end of the stream; it never pads with
// zeroes and never errors solely because the read ran past the end — it
// just returns what's available.
type Stream interface {
	// Size reports the total number of bytes available from offset 0.
	Size() int64

	// ReadAt reads up to len(buf) bytes starting at off into buf and
	// returns the number of bytes copied. A short read at or beyond Size
	// returns (0, nil), never an error.
	ReadAt(buf []byte, off int64) (int, error)

	// View returns a Stream over [off, off+length) of the receiver, sharing
	// the underlying bytes without copying.
	View(off, length int64) Stream
}

// ReadFull reads exactly len(buf) bytes from s at off, or fails with
// errs.UnexpectedEof if the stream is shorter.
func ReadFull(s Stream, buf []byte, off int64) error {
	n, err := s.ReadAt(buf, off)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return errs.UnexpectedEof
	}
	return nil
}

var _ io.ReaderAt = (*readerAtAdapter)(nil)

// readerAtAdapter adapts a Stream to io.ReaderAt for interop with stdlib
// decoders (e.g. archive/zip-style consumers) that want one.
type readerAtAdapter struct {
	s Stream
}

// AsReaderAt exposes s through the stdlib io.ReaderAt interface.
func AsReaderAt(s Stream) io.ReaderAt {
	return &readerAtAdapter{s: s}
}

func (r *readerAtAdapter) ReadAt(p []byte, off int64) (int, error) {
	n, err := r.s.ReadAt(p, off)
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
