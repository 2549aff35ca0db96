// Copyright (c) 2025 Soreepeong
// SPDX-License-Identifier: MIT

package stream

import (
	"os"
	"sync"
)

// FileStream is a Stream backed by a shared *os.File, serializing positioned
// reads behind a mutex so a single instance is safe for concurrent callers.
type FileStream struct {
	mu   sync.Mutex
	file *os.File
	size int64
}

var _ Stream = (*FileStream)(nil)

// NewFileStream wraps an already-open file. The caller retains ownership of
// f and is responsible for closing it once every Stream built on top is
// done.
func NewFileStream(f *os.File) (*FileStream, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return &FileStream{file: f, size: info.Size()}, nil
}

// OpenFileStream opens path read-only and wraps it. The returned Close
// function must be called once the stream and every view built on it are no
// longer in use.
func OpenFileStream(path string) (fs *FileStream, closeFn func() error, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	fs, err = NewFileStream(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return fs, f.Close, nil
}

func (f *FileStream) Size() int64 { return f.size }

func (f *FileStream) ReadAt(buf []byte, off int64) (int, error) {
	if off < 0 || off >= f.size {
		return 0, nil
	}
	want := f.size - off
	if int64(len(buf)) < want {
		want = int64(len(buf))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.file.ReadAt(buf[:want], off)
	if n > 0 {
		err = nil
	}
	return n, err
}

func (f *FileStream) View(off, length int64) Stream {
	return NewPartialStream(f, off, length)
}
