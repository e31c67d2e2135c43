// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package storage implements the on-disk file backend: mapping a torrent's
// flat byte-offset space onto one or more destination files and performing
// positional reads/writes that may span file boundaries.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/leechkit/leech/metainfo"
)

type fileSpan struct {
	file   *os.File
	offset int64
	length int64
}

// FileSet is the multi-file backend for a single torrent, generalizing the
// single-blob-per-torrent storage of a pure seeding agent to the general
// multi-file case a leecher must support.
type FileSet struct {
	mu    sync.Mutex
	spans []fileSpan
}

// Open creates (or reopens) every file named in tor under destDir,
// preallocating each to its final length, and returns a FileSet ready for
// positional I/O.
func Open(tor *metainfo.Torrent, destDir string) (*FileSet, error) {
	fs := &FileSet{}
	for _, f := range tor.Files {
		fullPath := filepath.Join(destDir, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			return nil, fmt.Errorf("storage: creating directory for %q: %s", f.Path, err)
		}
		file, err := os.OpenFile(fullPath, os.O_RDWR|os.O_CREATE, 0644)
		if err != nil {
			return nil, fmt.Errorf("storage: opening %q: %s", f.Path, err)
		}
		if err := file.Truncate(f.Length); err != nil {
			file.Close()
			return nil, fmt.Errorf("storage: truncating %q: %s", f.Path, err)
		}
		fs.spans = append(fs.spans, fileSpan{file: file, offset: f.Offset, length: f.Length})
	}
	return fs, nil
}

// Close closes every underlying file.
func (fs *FileSet) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var firstErr error
	for _, s := range fs.spans {
		if err := s.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ReadAt reads len(p) bytes starting at the given offset into the flat
// torrent byte space, splitting the read across file boundaries as needed.
func (fs *FileSet) ReadAt(p []byte, offset int64) (int, error) {
	return fs.do(p, offset, false)
}

// WriteAt writes p starting at the given offset into the flat torrent byte
// space, splitting the write across file boundaries as needed.
func (fs *FileSet) WriteAt(p []byte, offset int64) (int, error) {
	return fs.do(p, offset, true)
}

func (fs *FileSet) do(p []byte, offset int64, write bool) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	total := 0
	remaining := p
	pos := offset
	for len(remaining) > 0 {
		span, ok := fs.spanFor(pos)
		if !ok {
			return total, fmt.Errorf("storage: offset %d out of range", pos)
		}
		localOff := pos - span.offset
		n := int(span.length - localOff)
		if n > len(remaining) {
			n = len(remaining)
		}
		var err error
		if write {
			_, err = span.file.WriteAt(remaining[:n], localOff)
		} else {
			_, err = span.file.ReadAt(remaining[:n], localOff)
		}
		if err != nil {
			return total, err
		}
		total += n
		remaining = remaining[n:]
		pos += int64(n)
	}
	return total, nil
}

func (fs *FileSet) spanFor(offset int64) (fileSpan, bool) {
	for _, s := range fs.spans {
		if offset >= s.offset && offset < s.offset+s.length {
			return s, true
		}
		if s.length == 0 && offset == s.offset {
			return s, true
		}
	}
	return fileSpan{}, false
}
