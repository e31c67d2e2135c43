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
package storage

import (
	"testing"

	"github.com/leechkit/leech/metainfo"
	"github.com/stretchr/testify/require"
)

func testTorrent() *metainfo.Torrent {
	return &metainfo.Torrent{
		Name: "multi",
		Files: []metainfo.File{
			{Path: "a.bin", Length: 5, Offset: 0},
			{Path: "sub/b.bin", Length: 10, Offset: 5},
		},
	}
}

func TestFileSetSpansFileBoundaries(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	fs, err := Open(testTorrent(), dir)
	require.NoError(err)
	defer fs.Close()

	data := []byte("0123456789012345") // 16 bytes, straddling the 5-byte boundary
	n, err := fs.WriteAt(data, 0)
	// Only 15 bytes fit across both files (5 + 10): those are written, and the
	// 16th byte, past the end of the last file, is reported as an error.
	require.Error(err)
	require.Equal(15, n)

	readBack := make([]byte, 15)
	n, err = fs.ReadAt(readBack, 0)
	require.NoError(err)
	require.Equal(15, n)
	require.Equal(data[:15], readBack)
}

func TestFileSetRejectsOutOfRangeOffset(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	fs, err := Open(testTorrent(), dir)
	require.NoError(err)
	defer fs.Close()

	_, err = fs.ReadAt(make([]byte, 1), 100)
	require.Error(err)
}
