// Copyright (c) 2025 Soreepeong
// SPDX-License-Identifier: MIT

// Package deflate wraps github.com/klauspost/compress/flate in raw-DEFLATE
// mode (no zlib header, window bits -15) with reusable buffers, the single
// compression primitive every packed-entry codec builds its blocks from.
package deflate

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/Soreepeong/xivres-sub000/errs"
)

// Inflater decompresses raw-DEFLATE streams. It is not safe for concurrent
// use; callers that need concurrency should use one Inflater per goroutine.
type Inflater struct {
	fr  io.ReadCloser
	buf bytes.Buffer
}

// NewInflater creates an Inflater. Window bits are always -15 (raw DEFLATE,
// per §4.3); there is no parameter for it because this format never uses
// anything else.
func NewInflater() *Inflater {
	return &Inflater{}
}

// InflateToBuffer decompresses data into an internal growing buffer and
// returns a slice of it. The slice is only valid until the next call on this
// Inflater.
func (inf *Inflater) InflateToBuffer(data []byte) ([]byte, error) {
	inf.buf.Reset()
	if err := inf.inflateInto(data, &inf.buf); err != nil {
		return nil, err
	}
	return inf.buf.Bytes(), nil
}

// InflateExact decompresses data into dst, failing unless the decompressed
// stream fills dst exactly.
func (inf *Inflater) InflateExact(data []byte, dst []byte) error {
	r := inf.reset(data)
	n, err := io.ReadFull(r, dst)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return err
	}
	if n != len(dst) {
		return errs.NewBadDataf("inflate: expected %d bytes, produced %d", len(dst), n)
	}
	// Confirm the stream doesn't have trailing data beyond dst's capacity.
	var extra [1]byte
	if m, _ := r.Read(extra[:]); m != 0 {
		return errs.NewBadData("inflate: stream longer than destination buffer")
	}
	return nil
}

func (inf *Inflater) inflateInto(data []byte, w *bytes.Buffer) error {
	r := inf.reset(data)
	_, err := io.Copy(w, r)
	return err
}

func (inf *Inflater) reset(data []byte) io.Reader {
	br := bytes.NewReader(data)
	if inf.fr == nil {
		inf.fr = flate.NewReader(br)
	} else {
		inf.fr.(flate.Resetter).Reset(br, nil)
	}
	return inf.fr
}

// Deflater compresses to raw DEFLATE bytes at a configurable level. Not safe
// for concurrent use.
type Deflater struct {
	level int
	buf   bytes.Buffer
	w     *flate.Writer
}

// NewDeflater creates a Deflater at the given compression level (0-9, or
// flate.BestCompression / flate.BestSpeed).
func NewDeflater(level int) *Deflater {
	return &Deflater{level: level}
}

// Deflate compresses data and returns the raw-DEFLATE bytes. The returned
// slice is only valid until the next call on this Deflater.
func (d *Deflater) Deflate(data []byte) ([]byte, error) {
	d.buf.Reset()
	if d.w == nil {
		w, err := flate.NewWriter(&d.buf, d.level)
		if err != nil {
			return nil, err
		}
		d.w = w
	} else {
		d.w.Reset(&d.buf)
	}
	if _, err := d.w.Write(data); err != nil {
		return nil, err
	}
	if err := d.w.Close(); err != nil {
		return nil, err
	}
	return d.buf.Bytes(), nil
}
