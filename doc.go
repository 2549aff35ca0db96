// Copyright (c) 2025 Soreepeong
// SPDX-License-Identifier: MIT

/*
Package sqpack provides pure Go support for reading and writing the
hash-addressed resource archive format used by a large online game client.

An archive is identified by a (category, expansion, part) triple packed into
a 24-bit id and is backed by three kinds of file on disk: an index1 file
(pair-hash locators), an index2 file (full-hash locators), and one or more
numbered data files holding the packed entries themselves.

# Features

  - Pure Go implementation - no CGO
  - Random-access decoding of standard, texture, model, and empty/placeholder
    packed entries without materializing the whole asset
  - Passthrough and compressing packers that produce byte-exact round-trippable
    packed entries from raw decoded bytes
  - An archive generator that assembles fresh index/data file pairs
  - A hot-swap packed stream for live, in-place entry substitution

# Basic usage

Opening an archive and reading a file:

	id := sqpack.ArchiveID{Category: sqpack.CategoryExd} // 0a0000
	rdr, err := archive.OpenFromDir("sqpack/ffxiv", id, archive.ReaderOptions{Strict: true})
	if err != nil {
		log.Fatal(err)
	}
	defer rdr.Close()

	ps := pathspec.Parse("exd/root.exl")
	unpacked, err := rdr.At(ps)
	if err != nil {
		log.Fatal(err)
	}
	data := make([]byte, unpacked.Size())
	unpacked.ReadAt(data, 0)

# Package layout

Package sqpack holds archive identity and the shared category table.
Subpackage stream holds the random-access byte source abstraction. Package
pathspec computes the CRC32 hash triple identifying an asset. Package
container holds on-disk header/locator types and the index1/index2 readers.
Package packed holds the packed-entry readers and the four unpackers.
Package pack holds the passthrough and compressing packers. Package
workerpool holds the bounded thread pool used by the compressing packers.
Package archive combines all of the above into a Reader and a Generator.
Package hotswap holds the fixed-footprint, swappable packed stream. Package
errs holds the typed error taxonomy shared across all of the above.

# Limitations

This package focuses on the container engine:

  - No font rasterization or glyph layout
  - No texture preview
  - No Excel/string payload decoding
  - No process injection / redirection hooks
*/
package sqpack
