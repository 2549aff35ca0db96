// Copyright (c) 2025 Soreepeong
// SPDX-License-Identifier: MIT

package archive

import (
	"crypto/sha1"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/Soreepeong/xivres-sub000/container"
	"github.com/Soreepeong/xivres-sub000/errs"
	"github.com/Soreepeong/xivres-sub000/pathspec"
	"github.com/Soreepeong/xivres-sub000/sqpack"
	"github.com/Soreepeong/xivres-sub000/stream"
)

// GeneratorOptions configures a Generator. The zero value uses
// sqpack.DefaultMaxDatFileSize and logs nothing.
type GeneratorOptions struct {
	// MaxDatFileSize caps how large a single dat file may grow before the
	// generator starts a new one, §4.9 finalization step 1. Zero uses
	// sqpack.DefaultMaxDatFileSize.
	MaxDatFileSize int64

	// Logger receives per-entry and per-dat-file diagnostics. Nil disables
	// logging.
	Logger *zap.SugaredLogger

	// Progress, if set, is invoked after each queued entry is written
	// during finalization, §4.9 step 6.
	Progress func(completed, total int)
}

func (o GeneratorOptions) logger() *zap.SugaredLogger {
	if o.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return o.Logger
}

type pairKey struct{ pathHash, nameHash uint32 }

type queuedEntry struct {
	path    pathspec.PathSpec
	src     stream.Stream
	useText bool
}

// Generator builds a fresh archive from a collection of packed streams,
// §4.9.
type Generator struct {
	opts GeneratorOptions

	queued []queuedEntry
	byPair map[pairKey]int
	byFull map[uint32]int
}

// NewGenerator creates an empty Generator.
func NewGenerator(opts GeneratorOptions) *Generator {
	return &Generator{opts: opts, byPair: map[pairKey]int{}, byFull: map[uint32]int{}}
}

func (g *Generator) maxDatFileSize() int64 {
	if g.opts.MaxDatFileSize > 0 {
		return g.opts.MaxDatFileSize
	}
	return sqpack.DefaultMaxDatFileSize
}

func describePath(path pathspec.PathSpec) string {
	if path.HasOriginal() {
		return path.Path()
	}
	return fmt.Sprintf("%08x/%08x", path.PathHash(), path.NameHash())
}

// Add queues one packed entry, identified by path, for inclusion. A
// distinct entry whose full-path hash collides with one already queued
// fails with HashCollision; one whose pair hash (but not full-path hash)
// collides is resolved by promoting both entries to text locators, §4.9
// "add".
func (g *Generator) Add(path pathspec.PathSpec, src stream.Stream) error {
	if _, ok := g.byFull[path.FullPathHash()]; ok {
		return errs.NewHashCollision(describePath(path))
	}

	pk := pairKey{path.PathHash(), path.NameHash()}
	if existing, ok := g.byPair[pk]; ok {
		if !path.HasOriginal() || !g.queued[existing].path.HasOriginal() {
			return errs.NewBadDataf("pair-hash collision for %08x/%08x cannot be resolved without both entries' path text", pk.pathHash, pk.nameHash)
		}
		g.queued[existing].useText = true
		g.queued = append(g.queued, queuedEntry{path: path, src: src, useText: true})
		g.byFull[path.FullPathHash()] = len(g.queued) - 1
		g.opts.logger().Warnw("pair-hash collision, promoting to text locator",
			"a", g.queued[existing].path.Path(), "b", describePath(path))
		return nil
	}

	g.queued = append(g.queued, queuedEntry{path: path, src: src})
	g.byPair[pk] = len(g.queued) - 1
	g.byFull[path.FullPathHash()] = len(g.queued) - 1
	return nil
}

// AddArchive bulk-adds every entry of an existing archive by referencing
// its underlying data streams directly, without recompression, §4.9
// "add_archive". includeHashes selects entries only reachable through a
// plain hash locator (no retained path text); includeText selects entries
// that carried their path text via a text locator in the source archive.
func (g *Generator) AddArchive(r *Reader, includeHashes, includeText bool) error {
	for _, e := range r.Entries() {
		hasText := e.Path.HasOriginal()
		if hasText && !includeText {
			continue
		}
		if !hasText && !includeHashes {
			continue
		}
		ps, err := r.PackedAtEntry(e)
		if err != nil {
			return err
		}
		if err := g.Add(e.Path, ps.View()); err != nil {
			return err
		}
	}
	return nil
}

// finalize partitions queued entries across dat files, assigns data
// locators, and builds the index1/index2 build inputs, §4.9 steps 1-4.
func (g *Generator) finalize() (dats [][]byte, idx1, idx2 container.IndexBuildInput, err error) {
	maxSize := g.maxDatFileSize()

	var bufs [][]byte
	bufs = append(bufs, make([]byte, container.DataHeaderSize))

	locators := make([]container.DataLocator, len(g.queued))
	total := len(g.queued)

	for i, qe := range g.queued {
		size := qe.src.Size()
		if size <= 0 || size%sqpack.SpaceUnit != 0 {
			return nil, container.IndexBuildInput{}, container.IndexBuildInput{},
				errs.NewBadDataf("queued entry %s has unaligned size %d", describePath(qe.path), size)
		}

		datIndex := len(bufs) - 1
		if int64(len(bufs[datIndex]))+size > maxSize && len(bufs[datIndex]) > container.DataHeaderSize {
			bufs = append(bufs, make([]byte, container.DataHeaderSize))
			datIndex++
		}

		offset := int64(len(bufs[datIndex]))
		entry := make([]byte, size)
		if err := stream.ReadFull(qe.src, entry, 0); err != nil {
			return nil, container.IndexBuildInput{}, container.IndexBuildInput{},
				fmt.Errorf("materialize entry %s: %w", describePath(qe.path), err)
		}
		bufs[datIndex] = append(bufs[datIndex], entry...)

		locators[i] = container.NewDataLocator(datIndex, offset, qe.useText)

		g.opts.logger().Debugw("placed entry", "path", describePath(qe.path), "dat", datIndex, "offset", offset, "size", size)
		if g.opts.Progress != nil {
			g.opts.Progress(i+1, total)
		}
	}

	datSha1 := make([][20]byte, len(bufs))
	for i, body := range bufs {
		dataSection := body[container.DataHeaderSize:]
		dataSum := sha1.Sum(dataSection)
		header := container.EncodeDataFileHeader(uint32(i), uint32(maxSize), int64(len(dataSection)), dataSum, dataSection)
		copy(body[:len(header)], header)
		datSha1[i] = sha1.Sum(body)
	}

	var pairHashes []container.PairHashLocator
	var fullHashes []container.FullHashLocator
	var texts1, texts2 []container.TextLocator

	for i, qe := range g.queued {
		loc := locators[i]
		pairHashes = append(pairHashes, container.PairHashLocator{PathHash: qe.path.PathHash(), NameHash: qe.path.NameHash(), Locator: loc})
		fullHashes = append(fullHashes, container.FullHashLocator{FullPathHash: qe.path.FullPathHash(), Locator: loc})
		if qe.useText {
			if !qe.path.HasOriginal() {
				return nil, container.IndexBuildInput{}, container.IndexBuildInput{},
					errs.NewBadDataf("entry %08x promoted to a text locator without retained path text", qe.path.FullPathHash())
			}
			texts1 = append(texts1, container.TextLocator{PathHash: qe.path.PathHash(), NameHash: qe.path.NameHash(), FullPathHash: qe.path.FullPathHash(), Locator: loc, FullPath: qe.path.Path()})
			texts2 = append(texts2, container.TextLocator{FullPathHash: qe.path.FullPathHash(), Locator: loc, FullPath: qe.path.Path()})
		}
	}

	idx1 = container.IndexBuildInput{PairHashes: pairHashes, Texts: texts1, DatSha1: datSha1}
	idx2 = container.IndexBuildInput{FullHashes: fullHashes, Texts: texts2, DatSha1: datSha1}
	return bufs, idx1, idx2, nil
}

// ExportToViews finalizes the generator's queued entries into in-memory
// index1, index2, and per-dat-file byte buffers, §4.9 "export_to_views".
func (g *Generator) ExportToViews() (index1, index2 []byte, dataFiles [][]byte, err error) {
	dats, idx1in, idx2in, err := g.finalize()
	if err != nil {
		return nil, nil, nil, err
	}
	return container.EncodeIndex1(idx1in), container.EncodeIndex2(idx2in), dats, nil
}

// ExportToFiles finalizes and writes the archive's complete file set —
// index1, index2, and each dat file, named per id — into dir, §4.9
// "export_to_files".
func (g *Generator) ExportToFiles(dir string, id sqpack.ArchiveID) error {
	index1, index2, dats, err := g.ExportToViews()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, id.Index1FileName()), index1, 0o644); err != nil {
		return fmt.Errorf("write index1: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, id.Index2FileName()), index2, 0o644); err != nil {
		return fmt.Errorf("write index2: %w", err)
	}
	for i, d := range dats {
		if err := os.WriteFile(filepath.Join(dir, id.DatFileName(i)), d, 0o644); err != nil {
			return fmt.Errorf("write dat file %d: %w", i, err)
		}
	}
	g.opts.logger().Infow("exported archive", "archive", id.String(), "dats", len(dats), "entries", len(g.queued))
	return nil
}
