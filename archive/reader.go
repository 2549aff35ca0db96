// Copyright (c) 2025 Soreepeong
// SPDX-License-Identifier: MIT

// Package archive assembles the container package's index and data-file
// readers into a whole-archive view: a Reader that resolves a path spec to
// a packed stream and lets callers iterate every entry, and a Generator
// that builds a fresh archive from a collection of packed streams, §4.8/
// §4.9. Layout is grounded on original_source/xivres/include/xivres/
// sqpack.reader.h and sqpack.generator.h, adapted the way legacympq/mpq.go
// opens a single archive handle, looks files up by name, and iterates them.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/Soreepeong/xivres-sub000/container"
	"github.com/Soreepeong/xivres-sub000/errs"
	"github.com/Soreepeong/xivres-sub000/packed"
	"github.com/Soreepeong/xivres-sub000/pathspec"
	"github.com/Soreepeong/xivres-sub000/sqpack"
	"github.com/Soreepeong/xivres-sub000/stream"
)

// ReaderOptions configures Open. The zero value skips validation
// (non-strict) and logs nothing.
type ReaderOptions struct {
	// Strict enables SHA-1 and structural verification on every index and
	// data file header, §7 "Validation in construction is controllable by
	// a strict flag." Non-strict mode is for opening partially-written
	// archives during in-place editing.
	Strict bool

	// Logger receives per-archive and per-data-file diagnostics. Nil
	// disables logging.
	Logger *zap.SugaredLogger
}

func (o ReaderOptions) logger() *zap.SugaredLogger {
	if o.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return o.Logger
}

// EntryInfo names one catalogued entry: its path (when known), its data
// locator, and the byte span it occupies in its data file, §4.8 step 4
// "successive differences give each entry's allocation".
type EntryInfo struct {
	Path       pathspec.PathSpec
	Locator    container.DataLocator
	Allocation int64
}

type datOffsetKey struct {
	dat    int
	offset int64
}

// Reader is a read-only view over one archive's index1, index2, and data
// files, §4.8.
type Reader struct {
	id   sqpack.ArchiveID
	opts ReaderOptions

	index1 *container.Index
	index2 *container.Index

	dataStreams []stream.Stream
	closers     []func() error

	entries    []EntryInfo
	allocation map[datOffsetKey]int64
}

// filenamePattern extracts the 6-hex archive id from an index/index2/dat
// file name, §6 "Archive file set per (category, expac, part)".
var filenamePattern = regexp.MustCompile(`^([0-9a-fA-F]{6})\.win32\.(index2?|dat\d+)$`)

// ParseFilename derives an ArchiveID from one member of an archive's file
// set (its index, index2, or any dat file), by the 6-hex-digit prefix in
// its base name.
func ParseFilename(name string) (sqpack.ArchiveID, error) {
	m := filenamePattern.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return sqpack.ArchiveID{}, errs.NewBadDataf("%q does not name a sqpack archive member", name)
	}
	n, err := strconv.ParseUint(m[1], 16, 32)
	if err != nil {
		return sqpack.ArchiveID{}, errs.NewBadDataf("%q has an unparsable archive id", name)
	}
	return sqpack.ArchiveIDFromPacked(uint32(n)), nil
}

// Open constructs a Reader from an archive's filename (used only to derive
// its id), its raw index1 and index2 bytes, and its data file streams in
// dat-index order, §4.8 steps 1-4.
func Open(filename string, index1, index2 []byte, dataStreams []stream.Stream, opts ReaderOptions) (*Reader, error) {
	id, err := ParseFilename(filename)
	if err != nil {
		return nil, err
	}

	idx1, err := container.ReadIndex1(index1, opts.Strict)
	if err != nil {
		return nil, fmt.Errorf("read index1: %w", err)
	}
	idx2, err := container.ReadIndex2(index2, opts.Strict)
	if err != nil {
		return nil, fmt.Errorf("read index2: %w", err)
	}

	log := opts.logger()
	for i, ds := range dataStreams {
		if _, _, err := container.ReadDataFileHeader(ds, opts.Strict); err != nil {
			return nil, fmt.Errorf("data file %d header: %w", i, err)
		}
		log.Debugw("opened data file", "archive", id.String(), "index", i, "size", ds.Size())
	}

	r := &Reader{id: id, opts: opts, index1: idx1, index2: idx2, dataStreams: dataStreams}
	if err := r.build(); err != nil {
		return nil, err
	}
	log.Infow("opened archive", "archive", id.String(), "entries", len(r.entries))
	return r, nil
}

// OpenFromDir opens a complete archive file set (index1, index2, and
// contiguous dat files numbered from 0) out of dir, named per id.
func OpenFromDir(dir string, id sqpack.ArchiveID, opts ReaderOptions) (*Reader, error) {
	index1, err := os.ReadFile(filepath.Join(dir, id.Index1FileName()))
	if err != nil {
		return nil, fmt.Errorf("read index1: %w", err)
	}
	index2, err := os.ReadFile(filepath.Join(dir, id.Index2FileName()))
	if err != nil {
		return nil, fmt.Errorf("read index2: %w", err)
	}

	var dataStreams []stream.Stream
	var closers []func() error
	for n := 0; ; n++ {
		fs, closeFn, err := stream.OpenFileStream(filepath.Join(dir, id.DatFileName(n)))
		if err != nil {
			if n == 0 {
				return nil, fmt.Errorf("open dat file 0: %w", err)
			}
			break
		}
		dataStreams = append(dataStreams, fs)
		closers = append(closers, closeFn)
	}

	r, err := Open(id.Index1FileName(), index1, index2, dataStreams, opts)
	if err != nil {
		for _, c := range closers {
			c()
		}
		return nil, err
	}
	r.closers = closers
	return r, nil
}

// Close releases any file handles OpenFromDir opened. Archives built via
// Open directly own nothing and Close is a no-op for them.
func (r *Reader) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ID reports the (category, expansion, part) identity this archive was
// opened under.
func (r *Reader) ID() sqpack.ArchiveID { return r.id }

type rawLocator struct {
	path pathspec.PathSpec
	loc  container.DataLocator
}

// build joins the index1 and index2 locator sets, §4.8 steps 3-4.
func (r *Reader) build() error {
	fromIndex1, err := r.joinedLocators(r.index1, true)
	if err != nil {
		return err
	}
	fromIndex2, err := r.joinedLocators(r.index2, false)
	if err != nil {
		return err
	}

	if r.opts.Strict {
		key := func(l container.DataLocator) datOffsetKey {
			return datOffsetKey{dat: l.DatFileIndex(), offset: l.Offset()}
		}
		set1 := map[datOffsetKey]int{}
		for _, rl := range fromIndex1 {
			set1[key(rl.loc)]++
		}
		set2 := map[datOffsetKey]int{}
		for _, rl := range fromIndex2 {
			set2[key(rl.loc)]++
		}
		if len(set1) != len(set2) {
			return errs.NewBadDataf("index1/index2 locator sets disagree: %d vs %d entries", len(set1), len(set2))
		}
		for k, n := range set1 {
			if set2[k] != n {
				return errs.NewHashCollision(fmt.Sprintf("dat %d offset %d", k.dat, k.offset))
			}
		}
	}

	sort.Slice(fromIndex1, func(i, j int) bool {
		li, lj := fromIndex1[i].loc, fromIndex1[j].loc
		if li.DatFileIndex() != lj.DatFileIndex() {
			return li.DatFileIndex() < lj.DatFileIndex()
		}
		return li.Offset() < lj.Offset()
	})

	r.entries = make([]EntryInfo, 0, len(fromIndex1))
	r.allocation = make(map[datOffsetKey]int64, len(fromIndex1))

	fullByKey := make(map[datOffsetKey]uint32)
	for _, e := range r.index2.FullHashLocators() {
		fullByKey[datOffsetKey{dat: e.Locator.DatFileIndex(), offset: e.Locator.Offset()}] = e.FullPathHash
	}

	for i, rl := range fromIndex1 {
		dat := rl.loc.DatFileIndex()
		if dat < 0 || dat >= len(r.dataStreams) {
			return errs.NewBadDataf("locator names data file %d, only %d present", dat, len(r.dataStreams))
		}
		var end int64
		if i+1 < len(fromIndex1) && fromIndex1[i+1].loc.DatFileIndex() == dat {
			end = fromIndex1[i+1].loc.Offset()
		} else {
			end = r.dataStreams[dat].Size()
		}
		alloc := end - rl.loc.Offset()
		key := datOffsetKey{dat: dat, offset: rl.loc.Offset()}
		r.allocation[key] = alloc
		path := rl.path
		if !path.HasOriginal() {
			path = pathspec.FromHashes(path.PathHash(), path.NameHash(), fullByKey[key], r.id)
		}
		r.entries = append(r.entries, EntryInfo{Path: path, Locator: rl.loc, Allocation: alloc})
	}
	return nil
}

// joinedLocators flattens one index's pair-hash-or-full-hash locators plus
// its text locators into a single list, checking that every synonym-
// flagged hash locator resolves through the text table, §4.8 step 3 "a
// synonym bit without a resolvable text locator is an error".
func (r *Reader) joinedLocators(idx *container.Index, isIndex1 bool) ([]rawLocator, error) {
	var out []rawLocator
	if isIndex1 {
		for _, e := range idx.PairHashLocators() {
			if e.Locator.IsSynonym() {
				if !hasTextForPair(idx, e.PathHash, e.NameHash) {
					return nil, errs.NewBadDataf("index1 synonym locator for (pathHash=%08x, nameHash=%08x) has no resolving text locator", e.PathHash, e.NameHash)
				}
				continue
			}
			out = append(out, rawLocator{path: pathspec.FromHashes(e.PathHash, e.NameHash, 0, r.id), loc: e.Locator})
		}
	} else {
		for _, e := range idx.FullHashLocators() {
			if e.Locator.IsSynonym() {
				if !hasTextForFull(idx, e.FullPathHash) {
					return nil, errs.NewBadDataf("index2 synonym locator for fullPathHash=%08x has no resolving text locator", e.FullPathHash)
				}
				continue
			}
			out = append(out, rawLocator{loc: e.Locator})
		}
	}
	for _, t := range idx.TextLocators() {
		out = append(out, rawLocator{path: pathspec.Parse(t.FullPath), loc: t.Locator})
	}
	return out, nil
}

func hasTextForPair(idx *container.Index, pathHash, nameHash uint32) bool {
	for _, t := range idx.TextLocators() {
		if t.PathHash == pathHash && t.NameHash == nameHash {
			return true
		}
	}
	return false
}

func hasTextForFull(idx *container.Index, fullPathHash uint32) bool {
	for _, t := range idx.TextLocators() {
		if t.FullPathHash == fullPathHash {
			return true
		}
	}
	return false
}

func (r *Reader) allocationFor(loc container.DataLocator) int64 {
	return r.allocation[datOffsetKey{dat: loc.DatFileIndex(), offset: loc.Offset()}]
}

// resolve looks up a path spec's data locator, following a synonym hit
// through the text-locator table, §4.8 "packed_at".
func (r *Reader) resolve(path pathspec.PathSpec) (container.DataLocator, error) {
	loc, ok := r.index1.DataLocatorForPair(path.PathHash(), path.NameHash())
	if !ok {
		return 0, errs.NewEntryNotFound(path.Path())
	}
	if loc.IsSynonym() {
		if !path.HasOriginal() {
			return 0, errs.NewBadDataf("synonym locator for %08x/%08x requires path text to resolve", path.PathHash(), path.NameHash())
		}
		loc, ok = r.index1.DataLocatorForText(path.Path())
		if !ok {
			return 0, errs.NewEntryNotFound(path.Path())
		}
	}
	return loc, nil
}

func (r *Reader) packedAtLocator(path pathspec.PathSpec, loc container.DataLocator) (*packed.PackedStream, error) {
	dat := loc.DatFileIndex()
	if dat < 0 || dat >= len(r.dataStreams) {
		return nil, errs.NewBadDataf("locator names data file %d, only %d present", dat, len(r.dataStreams))
	}
	alloc := r.allocationFor(loc)
	if alloc <= 0 {
		return nil, errs.NewCorruptEntry(loc.Offset(), "zero or negative allocation")
	}
	return packed.NewPackedStream(path, r.dataStreams[dat], loc.Offset(), alloc), nil
}

// PackedAt looks up the packed entry named by path, falling back to the
// text-locator table when the hash-locator hit is a synonym, and
// materializes a packed stream over the data region, §4.8 "packed_at".
func (r *Reader) PackedAt(path pathspec.PathSpec) (*packed.PackedStream, error) {
	loc, err := r.resolve(path)
	if err != nil {
		return nil, err
	}
	return r.packedAtLocator(path, loc)
}

// PackedAtEntry is the direct by-offset form of packed_at, for iteration
// over an already-catalogued EntryInfo, §4.8.
func (r *Reader) PackedAtEntry(e EntryInfo) (*packed.PackedStream, error) {
	return r.packedAtLocator(e.Path, e.Locator)
}

// At composes the packed stream with its matching unpacker, producing
// random-access decoded bytes, §4.8 "at".
func (r *Reader) At(path pathspec.PathSpec) (stream.Stream, error) {
	ps, err := r.PackedAt(path)
	if err != nil {
		return nil, err
	}
	return ps.Unpack(nil)
}

// Entries returns the catalogue of every entry, sorted by (dat index,
// offset), for whole-archive scans, §4.8 "Iterate the entries vector".
func (r *Reader) Entries() []EntryInfo {
	return append([]EntryInfo(nil), r.entries...)
}
