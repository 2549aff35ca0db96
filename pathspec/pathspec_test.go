// Copyright (c) 2025 Soreepeong
// SPDX-License-Identifier: MIT

package pathspec

import (
	"hash/crc32"
	"testing"

	"github.com/Soreepeong/xivres-sub000/sqpack"
)

func TestParseBasic(t *testing.T) {
	ps := Parse("exd/root.exl")
	if ps.Empty() {
		t.Fatalf("parsed path reported empty")
	}
	if ps.Path() != "exd/root.exl" {
		t.Fatalf("path = %q, want exd/root.exl", ps.Path())
	}
	id, ok := ps.ArchiveID()
	if !ok || id.Category != sqpack.CategoryExd {
		t.Fatalf("ArchiveID = %+v, %v, want CategoryExd", id, ok)
	}
}

func TestParseNormalizesSeparatorsAndDotDot(t *testing.T) {
	a := Parse("chara/human/c0101/obj/body/b0001/model/c0101b0001_top.mdl")
	b := Parse(`chara\human\c0101\x\..\obj\body\./b0001\model\c0101b0001_top.mdl`)
	if !Equal(a, b) {
		t.Fatalf("expected normalized paths to hash equal: %+v vs %+v", a, b)
	}
}

func TestParseIsCaseInsensitive(t *testing.T) {
	a := Parse("Chara/Human/C0101/Skeleton.sklb")
	b := Parse("chara/human/c0101/skeleton.sklb")
	if a.FullPathHash() != b.FullPathHash() || a.PathHash() != b.PathHash() || a.NameHash() != b.NameHash() {
		t.Fatalf("expected case-insensitive hashing, got %08x vs %08x", a.FullPathHash(), b.FullPathHash())
	}
}

func TestFullPathHashChainsFromPathAndNameHash(t *testing.T) {
	ps := Parse("common/font/font1.tex")
	// FullPathHash is derived by chaining PathHash with NameHash via the
	// slash-hash combine, not by hashing the full path text directly.
	want := crc32Combine(crc32Combine(^ps.pathHash, ^slashHashValue, 1), ^ps.nameHash, int64(len("font1.tex")))
	want = ^want
	if want != ps.FullPathHash() {
		t.Fatalf("full path hash chain mismatch: got %08x, want %08x", ps.FullPathHash(), want)
	}
}

func TestEmptyPathSpec(t *testing.T) {
	for _, p := range []string{"", ".", "./", "a/..", "a/../.."} {
		ps := Parse(p)
		if !ps.Empty() {
			t.Fatalf("Parse(%q) should be empty, got %+v", p, ps)
		}
		if ps.PathHash() != EmptyHashValue || ps.NameHash() != EmptyHashValue || ps.FullPathHash() != EmptyHashValue {
			t.Fatalf("Parse(%q) hashes should all be EmptyHashValue", p)
		}
	}
}

func TestFromHashesRoundTrip(t *testing.T) {
	ps := Parse("music/ex1/bgm_ex1_battle01.scd")
	rebuilt := FromHashes(ps.PathHash(), ps.NameHash(), ps.FullPathHash(), sqpack.ArchiveID{})
	if !Equal(ps, rebuilt) {
		t.Fatalf("expected hash-only reconstruction to compare equal")
	}
}

func TestArchiveIDDerivation(t *testing.T) {
	cases := []struct {
		path string
		want sqpack.ArchiveID
	}{
		{"common/font/font1.tex", sqpack.ArchiveID{Category: sqpack.CategoryCommon}},
		{"bg/ex2/03_w1h1/level/bg.lgb", sqpack.ArchiveID{Category: sqpack.CategoryBg, Expansion: 2, Part: 3}},
		{"bg/ffxiv/level/bg.lgb", sqpack.ArchiveID{Category: sqpack.CategoryBg}},
		{"music/ex3/song.scd", sqpack.ArchiveID{Category: sqpack.CategoryMusic, Expansion: 3}},
		{"cut/ex1/movie.scd", sqpack.ArchiveID{Category: sqpack.CategoryCut, Expansion: 1}},
	}
	for _, c := range cases {
		ps := Parse(c.path)
		id, ok := ps.ArchiveID()
		if !ok || id != c.want {
			t.Fatalf("Parse(%q).ArchiveID() = %+v, %v, want %+v", c.path, id, ok, c.want)
		}
	}
}

func TestComparatorsOrderEmptyFirst(t *testing.T) {
	empty := Empty
	nonEmpty := Parse("common/font/font1.tex")
	if AllHashComparator(empty, nonEmpty) >= 0 {
		t.Fatalf("expected empty PathSpec to sort first under AllHashComparator")
	}
	if FullHashComparator(nonEmpty, empty) <= 0 {
		t.Fatalf("expected empty PathSpec to sort first under FullHashComparator")
	}
	if PairHashComparator(nonEmpty, empty) <= 0 {
		t.Fatalf("expected empty PathSpec to sort first under PairHashComparator")
	}
}

func TestFullPathComparatorIsCaseInsensitiveAndLexicographic(t *testing.T) {
	a := Parse("common/Font/Font1.tex")
	b := Parse("common/font/font2.tex")
	if FullPathComparator(a, b) >= 0 {
		t.Fatalf("expected font1 < font2 lexicographically")
	}
	if FullPathComparator(a, a) != 0 {
		t.Fatalf("expected equal paths to compare 0")
	}
}

func TestCrc32CombineMatchesDirectHash(t *testing.T) {
	// crc32_combine(crc(a), crc(b), len(b)) must equal crc(a+b) for any a, b:
	// the whole pathspec hash chain depends on this identity holding.
	a := []byte("chara/human/c0101/")
	b := []byte("obj/body.mdl")
	wantIEEE := crc32.ChecksumIEEE(append(append([]byte{}, a...), b...))
	got := crc32Combine(crc32.ChecksumIEEE(a), crc32.ChecksumIEEE(b), int64(len(b)))
	if got != wantIEEE {
		t.Fatalf("crc32Combine mismatch: got %08x, want %08x", got, wantIEEE)
	}
}
