// Copyright (c) 2025 Soreepeong
// SPDX-License-Identifier: MIT

// Package errs holds the typed error taxonomy shared by every layer of the
// archive engine: stream, index, packed-entry, archive, and generator code
// all return (or wrap) one of these instead of an opaque error string, so
// callers can branch on failure kind with errors.As.
package errs

import (
	"errors"
	"fmt"
)

// UnexpectedEof is returned when a fixed-size structure reads short.
var UnexpectedEof = errors.New("unexpected EOF reading fixed-size structure")

// CompressionCancelled is returned when a packer's cancel flag was observed.
var CompressionCancelled = errors.New("compression cancelled")

// BadMagic reports a file-type identification failure.
type BadMagic struct {
	Expected, Actual uint32
}

func (e *BadMagic) Error() string {
	return fmt.Sprintf("bad magic: expected 0x%08X, got 0x%08X", e.Expected, e.Actual)
}

// NewBadMagic builds a BadMagic error.
func NewBadMagic(expected, actual uint32) error {
	return &BadMagic{Expected: expected, Actual: actual}
}

// BadData reports a structural invariant violation (alignment, size
// mismatch, unsorted table, inconsistent block count, ...).
type BadData struct {
	Reason string
}

func (e *BadData) Error() string { return "bad data: " + e.Reason }

// NewBadData builds a BadData error.
func NewBadData(reason string) error {
	return &BadData{Reason: reason}
}

// NewBadDataf builds a BadData error with a formatted reason.
func NewBadDataf(format string, args ...any) error {
	return &BadData{Reason: fmt.Sprintf(format, args...)}
}

// Sha1Mismatch reports that a segment's declared digest disagreed with its
// bytes.
type Sha1Mismatch struct {
	Segment string
}

func (e *Sha1Mismatch) Error() string { return "sha1 mismatch in segment: " + e.Segment }

// NewSha1Mismatch builds a Sha1Mismatch error.
func NewSha1Mismatch(segment string) error {
	return &Sha1Mismatch{Segment: segment}
}

// EntryNotFound reports a lookup miss, annotated with the path that was
// requested.
type EntryNotFound struct {
	Path string
}

func (e *EntryNotFound) Error() string { return "entry not found: " + e.Path }

// NewEntryNotFound builds an EntryNotFound error.
func NewEntryNotFound(path string) error {
	return &EntryNotFound{Path: path}
}

// HashCollision reports that index1/index2 disagreed on an entry, or that
// the generator found two distinct entries with the same full-path hash.
type HashCollision struct {
	Path string
}

func (e *HashCollision) Error() string { return "hash collision: " + e.Path }

// NewHashCollision builds a HashCollision error.
func NewHashCollision(path string) error {
	return &HashCollision{Path: path}
}

// CorruptEntry reports a block-decode failure at a specific offset within a
// packed entry.
type CorruptEntry struct {
	Offset int64
	Reason string
}

func (e *CorruptEntry) Error() string {
	return fmt.Sprintf("corrupt entry at offset %d: %s", e.Offset, e.Reason)
}

// NewCorruptEntry builds a CorruptEntry error.
func NewCorruptEntry(offset int64, reason string) error {
	return &CorruptEntry{Offset: offset, Reason: reason}
}

// OutOfRange reports that a caller asked for bytes beyond a decoded or
// reserved size.
type OutOfRange struct {
	What string
}

func (e *OutOfRange) Error() string { return "out of range: " + e.What }

// NewOutOfRange builds an OutOfRange error.
func NewOutOfRange(what string) error {
	return &OutOfRange{What: what}
}
