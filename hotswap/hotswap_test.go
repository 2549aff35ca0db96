// Copyright (c) 2025 Soreepeong
// SPDX-License-Identifier: MIT

package hotswap

import (
	"bytes"
	"errors"
	"testing"

	"github.com/Soreepeong/xivres-sub000/errs"
	"github.com/Soreepeong/xivres-sub000/stream"
)

func pattern(n int, seed byte) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i)*17 + seed
	}
	return buf
}

func readAll(t *testing.T, s stream.Stream, n int64) []byte {
	t.Helper()
	buf := make([]byte, n)
	if err := stream.ReadFull(s, buf, 0); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	return buf
}

func TestHotSwapServesBaseThenReplacementThenZeroFill(t *testing.T) {
	const reserved = 1 << 20 // 1 MiB

	baseData := pattern(2000, 1)
	base := stream.NewMemoryStream(baseData)
	hs := New(reserved, base)

	if hs.Size() != reserved {
		t.Fatalf("Size() = %d, want %d", hs.Size(), reserved)
	}

	got := readAll(t, hs, reserved)
	if !bytes.Equal(got[:len(baseData)], baseData) {
		t.Fatalf("base bytes not served before any swap")
	}
	for _, b := range got[len(baseData):] {
		if b != 0 {
			t.Fatalf("expected zero fill past base data, found %d", b)
		}
	}

	replacement := pattern(500*1024, 2) // 500 KiB
	if err := hs.Swap(stream.NewMemoryStream(replacement)); err != nil {
		t.Fatalf("Swap: %v", err)
	}

	got = readAll(t, hs, reserved)
	if !bytes.Equal(got[:len(replacement)], replacement) {
		t.Fatalf("replacement bytes not served after swap")
	}
	for _, b := range got[len(replacement):] {
		if b != 0 {
			t.Fatalf("expected zero fill past replacement data, found %d", b)
		}
	}

	if err := hs.Swap(nil); err != nil {
		t.Fatalf("Swap(nil): %v", err)
	}
	got = readAll(t, hs, reserved)
	if !bytes.Equal(got[:len(baseData)], baseData) {
		t.Fatalf("base bytes not restored after swapping back to nil")
	}
}

func TestHotSwapRejectsOversizedReplacement(t *testing.T) {
	const reserved = 128 * 10
	base := stream.NewMemoryStream(pattern(128, 3))
	hs := New(reserved, base)

	tooBig := stream.NewMemoryStream(pattern(reserved+128, 4))
	err := hs.Swap(tooBig)
	if err == nil {
		t.Fatalf("expected an error for an oversized replacement")
	}
	var oor *errs.OutOfRange
	if !errors.As(err, &oor) {
		t.Fatalf("expected an OutOfRange error, got %v (%T)", err, err)
	}

	got := readAll(t, hs, 128)
	if !bytes.Equal(got, pattern(128, 3)) {
		t.Fatalf("base stream must remain active after a rejected swap")
	}
}

func TestHotSwapWithoutBaseServesSkeleton(t *testing.T) {
	const reserved = 128 * 4
	hs := New(reserved, nil)

	got := readAll(t, hs, reserved)
	allZero := true
	for _, b := range got {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		t.Fatalf("expected an empty-entry skeleton header, got all zero bytes")
	}
}

func TestHotSwapViewRespectsOffsetAndLength(t *testing.T) {
	const reserved = 128 * 4
	base := stream.NewMemoryStream(pattern(128*4, 9))
	hs := New(reserved, base)

	v := hs.View(128, 256)
	if v.Size() != 256 {
		t.Fatalf("View size = %d, want 256", v.Size())
	}
	got := readAll(t, v, 256)
	if !bytes.Equal(got, pattern(128*4, 9)[128:128+256]) {
		t.Fatalf("View did not serve the expected window")
	}
}
