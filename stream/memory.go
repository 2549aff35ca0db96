// Copyright (c) 2025 Soreepeong
// SPDX-License-Identifier: MIT

package stream

// MemoryStream is an in-memory, immutable-after-construction Stream. It is
// free-threaded: once built, concurrent ReadAt calls need no lock.
type MemoryStream struct {
	data []byte
}

var _ Stream = (*MemoryStream)(nil)

// NewMemoryStream wraps data as a Stream. The returned stream borrows data;
// callers must not mutate it afterwards. Use NewOwnedMemoryStream to copy.
func NewMemoryStream(data []byte) *MemoryStream {
	return &MemoryStream{data: data}
}

// NewOwnedMemoryStream copies data and wraps the copy as a Stream.
func NewOwnedMemoryStream(data []byte) *MemoryStream {
	owned := make([]byte, len(data))
	copy(owned, data)
	return &MemoryStream{data: owned}
}

func (m *MemoryStream) Size() int64 { return int64(len(m.data)) }

func (m *MemoryStream) ReadAt(buf []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(m.data)) {
		return 0, nil
	}
	n := copy(buf, m.data[off:])
	return n, nil
}

func (m *MemoryStream) View(off, length int64) Stream {
	return NewPartialStream(m, off, length)
}

// Bytes returns the whole backing slice. Callers must not mutate it.
func (m *MemoryStream) Bytes() []byte { return m.data }
