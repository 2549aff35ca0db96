// Copyright (c) 2025 Soreepeong
// SPDX-License-Identifier: MIT

// Package pathspec computes the CRC32 hash triple (path hash, name hash,
// full-path hash) that identifies an asset inside an archive, and derives
// the archive id a path belongs to. The hashing algorithm is grounded on
// the original xivres path_spec implementation: each path segment's hash
// chains into the next via crc32_combine rather than re-hashing the
// accumulated prefix.
package pathspec

import (
	"hash/crc32"
	"strconv"
	"strings"

	"github.com/Soreepeong/xivres-sub000/sqpack"
)

// EmptyHashValue is the hash stored in every field of an empty PathSpec.
const EmptyHashValue uint32 = 0xFFFFFFFF

// slashHashValue is the constant from which the per-segment separator's
// contribution to the hash chain is derived. Its complement is the CRC32
// (IEEE) of a single '/' byte.
const slashHashValue uint32 = 0x862C2D2B

// PathSpec identifies an asset by its normalized path text and the three
// hashes derived from it.
type PathSpec struct {
	text         string
	pathHash     uint32
	nameHash     uint32
	fullPathHash uint32
	archiveID    sqpack.ArchiveID
	hasArchiveID bool
}

// Empty reports whether ps carries no path.
func (ps PathSpec) Empty() bool {
	return ps.text == "" && ps.pathHash == EmptyHashValue && ps.nameHash == EmptyHashValue && ps.fullPathHash == EmptyHashValue
}

// HasOriginal reports whether ps retains its normalized path text, as
// opposed to having been constructed from hashes alone.
func (ps PathSpec) HasOriginal() bool { return ps.text != "" }

// Path returns the normalized path text, or "" if ps was built from hashes
// alone.
func (ps PathSpec) Path() string { return ps.text }

// PathHash returns the hash of every path segment but the last.
func (ps PathSpec) PathHash() uint32 { return ps.pathHash }

// NameHash returns the hash of the last path segment alone.
func (ps PathSpec) NameHash() uint32 { return ps.nameHash }

// FullPathHash returns the hash of the entire normalized path.
func (ps PathSpec) FullPathHash() uint32 { return ps.fullPathHash }

// ArchiveID returns the archive this path belongs to and whether the first
// path segment named a known category.
func (ps PathSpec) ArchiveID() (sqpack.ArchiveID, bool) { return ps.archiveID, ps.hasArchiveID }

// Empty is the sentinel PathSpec carrying no path.
var Empty = PathSpec{pathHash: EmptyHashValue, nameHash: EmptyHashValue, fullPathHash: EmptyHashValue}

// FromHashes builds a PathSpec directly from a precomputed hash triple and
// archive id, without retaining any path text. Two PathSpecs built this way
// compare equal to ones built from the path text that produced the same
// hashes.
func FromHashes(pathHash, nameHash, fullPathHash uint32, id sqpack.ArchiveID) PathSpec {
	return PathSpec{pathHash: pathHash, nameHash: nameHash, fullPathHash: fullPathHash, archiveID: id, hasArchiveID: true}
}

// Parse normalizes fullPath (splitting on '/' and '\', resolving "." and
// "..", lowercasing) and computes its hash triple and archive id.
func Parse(fullPath string) PathSpec {
	parts := splitNormalized(fullPath)
	if len(parts) == 0 {
		return Empty
	}

	var text strings.Builder
	var pathHash, nameHash uint32
	for i, part := range parts {
		if i > 0 {
			text.WriteByte('/')
			if i == 1 {
				pathHash = nameHash
			} else {
				pathHash = crc32Combine(crc32Combine(pathHash, ^slashHashValue, 1), nameHash, int64(len(parts[i-1])))
			}
		}
		text.WriteString(part)
		nameHash = crc32.ChecksumIEEE([]byte(strings.ToLower(part)))
	}

	fullPathHash := crc32Combine(crc32Combine(pathHash, ^slashHashValue, 1), nameHash, int64(len(parts[len(parts)-1])))
	fullPathHash = ^fullPathHash
	pathHash = ^pathHash
	nameHash = ^nameHash

	id, ok := archiveIDFromParts(parts)

	return PathSpec{
		text:         text.String(),
		pathHash:     pathHash,
		nameHash:     nameHash,
		fullPathHash: fullPathHash,
		archiveID:    id,
		hasArchiveID: ok,
	}
}

// splitNormalized splits fullPath on '/' and '\', dropping empty and "."
// segments and popping the previous segment on "..", the way a filesystem
// path would be normalized.
func splitNormalized(fullPath string) []string {
	var parts []string
	start := 0
	flush := func(seg string) {
		switch {
		case seg == "" || seg == ".":
			// drop
		case seg == "..":
			if len(parts) > 0 {
				parts = parts[:len(parts)-1]
			}
		default:
			parts = append(parts, seg)
		}
	}
	for i := 0; i < len(fullPath); i++ {
		if c := fullPath[i]; c == '/' || c == '\\' {
			flush(fullPath[start:i])
			start = i + 1
		}
	}
	flush(fullPath[start:])
	return parts
}

// archiveIDFromParts derives the (category, expansion, part) triple from
// the leading path segments, per the category table in package sqpack. A
// few categories additionally carry an expansion (and, for "bg", a part)
// encoded in the next one or two segments as "exN" and "N".
func archiveIDFromParts(parts []string) (sqpack.ArchiveID, bool) {
	cat, ok := sqpack.CategoryFromSegment(parts[0])
	if !ok {
		return sqpack.ArchiveID{Category: sqpack.CategoryCommon}, false
	}

	id := sqpack.ArchiveID{Category: cat}

	switch cat {
	case sqpack.CategoryBg:
		id.Expansion = expansionFromSegment(parts, 1)
		if id.Expansion > 0 && len(parts) >= 3 {
			id.Part = uint8(leadingDigits(parts[2]))
		}
	case sqpack.CategoryCut, sqpack.CategoryMusic:
		id.Expansion = expansionFromSegment(parts, 1)
	}

	return id, true
}

// expansionFromSegment reads the "exN" expansion number out of parts[idx],
// returning 0 if idx is out of range or the segment isn't of that form.
func expansionFromSegment(parts []string, idx int) uint8 {
	if idx >= len(parts) || !strings.HasPrefix(parts[idx], "ex") {
		return 0
	}
	return uint8(leadingDigits(parts[idx][2:]))
}

// leadingDigits parses the run of decimal digits at the start of s,
// mirroring strtol's behavior of stopping at the first non-digit rather
// than requiring the whole string to be numeric.
func leadingDigits(s string) uint64 {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	n, _ := strconv.ParseUint(s[:i], 10, 64)
	return n
}

// AllHashComparator orders PathSpecs by full-path hash, then path hash,
// then name hash, empty specs first.
func AllHashComparator(l, r PathSpec) int {
	if c := emptyOrder(l, r); c != ordUndetermined {
		return c
	}
	if l.fullPathHash != r.fullPathHash {
		return cmpUint32(l.fullPathHash, r.fullPathHash)
	}
	if l.pathHash != r.pathHash {
		return cmpUint32(l.pathHash, r.pathHash)
	}
	return cmpUint32(l.nameHash, r.nameHash)
}

// FullHashComparator orders PathSpecs by full-path hash alone, the order
// index2 locators are stored in.
func FullHashComparator(l, r PathSpec) int {
	if c := emptyOrder(l, r); c != ordUndetermined {
		return c
	}
	return cmpUint32(l.fullPathHash, r.fullPathHash)
}

// PairHashComparator orders PathSpecs by (path hash, name hash), the order
// index1 locators are stored in.
func PairHashComparator(l, r PathSpec) int {
	if c := emptyOrder(l, r); c != ordUndetermined {
		return c
	}
	if l.pathHash != r.pathHash {
		return cmpUint32(l.pathHash, r.pathHash)
	}
	return cmpUint32(l.nameHash, r.nameHash)
}

// FullPathComparator orders PathSpecs by case-insensitive path text. Both
// sides must have retained their text (HasOriginal).
func FullPathComparator(l, r PathSpec) int {
	if c := emptyOrder(l, r); c != ordUndetermined {
		return c
	}
	a, b := l.text, r.text
	for i := 0; i < len(a) && i < len(b); i++ {
		x, y := lower(a[i]), lower(b[i])
		if x != y {
			if x < y {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

const ordUndetermined = -2

func emptyOrder(l, r PathSpec) int {
	le, re := l.Empty(), r.Empty()
	switch {
	case le && re:
		return 0
	case le && !re:
		return -1
	case !le && re:
		return 1
	default:
		return ordUndetermined
	}
}

func cmpUint32(a, b uint32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func lower(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

// Equal reports whether l and r identify the same asset: same hash triple,
// and if both retain path text, equal (case-insensitively) path text too.
func Equal(l, r PathSpec) bool {
	if l.Empty() && r.Empty() {
		return true
	}
	if l.fullPathHash != r.fullPathHash || l.pathHash != r.pathHash || l.nameHash != r.nameHash {
		return false
	}
	if l.text == "" || r.text == "" {
		return true
	}
	return FullPathComparator(l, r) == 0
}
