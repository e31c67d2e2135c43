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

// Package metainfo builds the immutable Torrent descriptor from a decoded
// .torrent file, following BEP-3 (and BEP-12 for multi-tracker tiers).
package metainfo

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/leechkit/leech/bencode"
	"github.com/leechkit/leech/core"
)

// InvalidMetainfoError reports a structurally valid bencode document that
// does not describe a usable torrent.
type InvalidMetainfoError struct {
	Reason string
}

func (e *InvalidMetainfoError) Error() string {
	return fmt.Sprintf("invalid metainfo: %s", e.Reason)
}

func invalid(format string, args ...interface{}) error {
	return &InvalidMetainfoError{Reason: fmt.Sprintf(format, args...)}
}

// File describes one file within a (possibly multi-file) torrent, along
// with its offset into the concatenation of all files -- the layout piece
// boundaries are computed against.
type File struct {
	Path   string
	Length int64
	Offset int64
}

// Torrent is the immutable descriptor of a single torrent: everything
// needed to verify pieces, map them to files, and announce to trackers.
type Torrent struct {
	InfoHash      core.InfoHash
	Name          string
	PieceLength   int64
	PieceHashes   [][20]byte
	Files         []File
	AnnounceTiers [][]string
}

// TotalLength returns the sum of all file lengths.
func (t *Torrent) TotalLength() int64 {
	var total int64
	for _, f := range t.Files {
		total += f.Length
	}
	return total
}

// NumPieces returns the number of pieces in the torrent.
func (t *Torrent) NumPieces() int {
	return len(t.PieceHashes)
}

// PieceSize returns the size in bytes of piece i, accounting for the final
// (possibly short) piece.
func (t *Torrent) PieceSize(i int) int64 {
	if i < 0 || i >= t.NumPieces() {
		return 0
	}
	if i == t.NumPieces()-1 {
		last := t.TotalLength() - int64(i)*t.PieceLength
		if last > 0 {
			return last
		}
	}
	return t.PieceLength
}

// Parse decodes raw as a bencoded .torrent file and builds a Torrent
// descriptor from it, including its info hash computed from the exact
// encoded bytes of the "info" dict.
func Parse(raw []byte) (*Torrent, error) {
	dec := bencode.NewDecoder(bytes.NewReader(raw))
	root, err := dec.Decode()
	if err != nil {
		return nil, err
	}
	rootDict, ok := root.Dict()
	if !ok {
		return nil, invalid("top-level value is not a dict")
	}

	infoStart, infoEnd, ok := dec.InfoRange()
	if !ok {
		return nil, invalid("missing required key \"info\"")
	}
	infoHash := core.NewInfoHashFromBytes(raw[infoStart:infoEnd])

	infoDict, err := rootDict.GetDict("info")
	if err != nil {
		return nil, invalid("%s", err)
	}

	t := &Torrent{InfoHash: infoHash}

	if nameElem, ok := infoDict.Get("name"); ok {
		s, ok := nameElem.Str()
		if !ok {
			return nil, invalid("\"name\" is not a byte string")
		}
		t.Name = s
	}
	t.PieceLength, err = infoDict.GetInt("piece length")
	if err != nil {
		return nil, invalid("%s", err)
	}
	if t.PieceLength <= 0 {
		return nil, invalid("piece length must be positive")
	}

	piecesRaw, err := infoDict.GetBytes("pieces")
	if err != nil {
		return nil, invalid("%s", err)
	}
	if len(piecesRaw)%20 != 0 {
		return nil, invalid("pieces field length %d is not a multiple of 20", len(piecesRaw))
	}
	for i := 0; i+20 <= len(piecesRaw); i += 20 {
		var h [20]byte
		copy(h[:], piecesRaw[i:i+20])
		t.PieceHashes = append(t.PieceHashes, h)
	}

	if err := parseFiles(infoDict, t); err != nil {
		return nil, err
	}

	if len(t.PieceHashes) == 0 {
		return nil, invalid("torrent has zero pieces")
	}
	expectedPieces := (t.TotalLength() + t.PieceLength - 1) / t.PieceLength
	if int64(len(t.PieceHashes)) != expectedPieces {
		return nil, invalid(
			"piece count %d does not match expected %d for total length %d and piece length %d",
			len(t.PieceHashes), expectedPieces, t.TotalLength(), t.PieceLength)
	}

	t.AnnounceTiers = parseAnnounceTiers(rootDict)
	if len(t.AnnounceTiers) == 0 {
		return nil, invalid("no announce URLs present")
	}

	return t, nil
}

func parseFiles(infoDict *bencode.Dict, t *Torrent) error {
	if filesElem, ok := infoDict.Get("files"); ok {
		list, ok := filesElem.List()
		if !ok {
			return invalid("\"files\" is not a list")
		}
		if len(list) == 0 {
			return invalid("\"files\" list is empty")
		}
		var offset int64
		for idx, fe := range list {
			fd, ok := fe.Dict()
			if !ok {
				return invalid("files[%d] is not a dict", idx)
			}
			length, err := fd.GetInt("length")
			if err != nil {
				return invalid("files[%d]: %s", idx, err)
			}
			if length < 0 {
				return invalid("files[%d]: negative length", idx)
			}
			pathList, err := fd.GetList("path")
			if err != nil {
				return invalid("files[%d]: %s", idx, err)
			}
			p, err := sanitisePath(t.Name, pathList)
			if err != nil {
				return err
			}
			t.Files = append(t.Files, File{Path: p, Length: length, Offset: offset})
			offset += length
		}
		return nil
	}

	length, err := infoDict.GetInt("length")
	if err != nil {
		return invalid("single-file torrent missing \"length\": %s", err)
	}
	if length < 0 {
		return invalid("negative length")
	}
	if t.Name == "" {
		return invalid("single-file torrent missing \"name\"")
	}
	t.Files = []File{{Path: t.Name, Length: length, Offset: 0}}
	return nil
}

// sanitisePath joins a bencode path-component list into a safe, relative
// filesystem path, rejecting traversal outside the torrent's own directory.
func sanitisePath(root string, components []bencode.Element) (string, error) {
	parts := make([]string, 0, len(components)+1)
	if root != "" {
		parts = append(parts, root)
	}
	for i, ce := range components {
		s, ok := ce.Str()
		if !ok {
			return "", invalid("path component %d is not a byte string", i)
		}
		if s == "" || s == "." || s == ".." || strings.ContainsAny(s, "/\x00") {
			return "", invalid("unsafe path component %q", s)
		}
		parts = append(parts, s)
	}
	if len(parts) == 0 {
		return "", invalid("empty file path")
	}
	joined := path.Join(parts...)
	if strings.HasPrefix(joined, "..") || path.IsAbs(joined) {
		return "", invalid("path escapes torrent root: %q", joined)
	}
	return joined, nil
}

// parseAnnounceTiers builds the announce tier list per BEP-12, falling back
// to the single "announce" URL when "announce-list" is absent.
func parseAnnounceTiers(d *bencode.Dict) [][]string {
	if listElem, ok := d.Get("announce-list"); ok {
		if tiers, ok := listElem.List(); ok {
			var result [][]string
			for _, tierElem := range tiers {
				tierList, ok := tierElem.List()
				if !ok {
					continue
				}
				var tier []string
				for _, urlElem := range tierList {
					if s, ok := urlElem.Str(); ok && s != "" {
						tier = append(tier, s)
					}
				}
				if len(tier) > 0 {
					result = append(result, tier)
				}
			}
			if len(result) > 0 {
				return result
			}
		}
	}
	if b, err := d.GetBytes("announce"); err == nil && len(b) > 0 {
		return [][]string{{string(b)}}
	}
	return nil
}
