// Copyright (c) 2025 Soreepeong
// SPDX-License-Identifier: MIT

package sqpack

import "fmt"

// Category identifies the first path segment of an asset, e.g. "chara" or
// "exd". It is the top byte of an ArchiveID.
type Category uint8

// Category table, §6.
const (
	CategoryCommon     Category = 0x00
	CategoryBgCommon    Category = 0x01
	CategoryBg         Category = 0x02
	CategoryCut        Category = 0x03
	CategoryChara      Category = 0x04
	CategoryShader     Category = 0x05
	CategoryUi         Category = 0x06
	CategorySound      Category = 0x07
	CategoryVfx        Category = 0x08
	CategoryUiScript   Category = 0x09
	CategoryExd        Category = 0x0A
	CategoryGameScript Category = 0x0B
	CategoryMusic      Category = 0x0C
	CategorySqpackTest Category = 0x12
	CategoryDebug      Category = 0x13
)

// categoryNames maps a first path segment to its Category, per §6.
var categoryNames = map[string]Category{
	"common":      CategoryCommon,
	"bgcommon":    CategoryBgCommon,
	"bg":          CategoryBg,
	"cut":         CategoryCut,
	"chara":       CategoryChara,
	"shader":      CategoryShader,
	"ui":          CategoryUi,
	"sound":       CategorySound,
	"vfx":         CategoryVfx,
	"ui_script":   CategoryUiScript,
	"exd":         CategoryExd,
	"game_script": CategoryGameScript,
	"music":       CategoryMusic,
	"sqpack_test": CategorySqpackTest,
	"debug":       CategoryDebug,
}

// CategoryFromSegment resolves the first path segment to a Category. ok is
// false if the segment names no known category.
func CategoryFromSegment(segment string) (Category, bool) {
	c, ok := categoryNames[segment]
	return c, ok
}

// ArchiveID is the (category, expansion, part) triple packed into a 24-bit
// id, per §3 "Archive identity".
type ArchiveID struct {
	Category   Category
	Expansion  uint8
	Part       uint8
}

// Packed returns the 24-bit packed id: category in the high byte, expansion
// in the middle byte, part in the low byte.
func (id ArchiveID) Packed() uint32 {
	return uint32(id.Category)<<16 | uint32(id.Expansion)<<8 | uint32(id.Part)
}

// String formats the id as the 6-hex-digit archive name used in file names,
// e.g. "0a0000".
func (id ArchiveID) String() string {
	return fmt.Sprintf("%06x", id.Packed())
}

// ArchiveIDFromPacked unpacks a 24-bit id back into its three fields.
func ArchiveIDFromPacked(packed uint32) ArchiveID {
	return ArchiveID{
		Category:  Category(packed >> 16),
		Expansion: uint8(packed >> 8),
		Part:      uint8(packed),
	}
}

// Index1FileName returns the "<6hex>.win32.index" file name, §6.
func (id ArchiveID) Index1FileName() string { return id.String() + ".win32.index" }

// Index2FileName returns the "<6hex>.win32.index2" file name, §6.
func (id ArchiveID) Index2FileName() string { return id.String() + ".win32.index2" }

// DatFileName returns the "<6hex>.win32.dat<N>" file name, §6.
func (id ArchiveID) DatFileName(n int) string { return fmt.Sprintf("%s.win32.dat%d", id, n) }

// SpaceUnit is the 128-byte alignment unit that every packed entry and
// packed block footprint is a multiple of, §3.
const SpaceUnit = 128

// AlignToSpaceUnit rounds n up to the next multiple of SpaceUnit.
func AlignToSpaceUnit(n int64) int64 {
	return (n + SpaceUnit - 1) &^ (SpaceUnit - 1)
}

// MaxBlockDecompressedSize is the largest decompressed payload a single
// packed block may hold, §3 "Packed block".
const MaxBlockDecompressedSize = 16000

// DefaultMaxDatFileSize is the default dat-file size cap: 2 GiB minus one
// entry's worth of headroom, §3 "Data file".
const DefaultMaxDatFileSize = 2*1024*1024*1024 - SpaceUnit
