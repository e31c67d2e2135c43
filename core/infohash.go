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
package core

import (
	"crypto/sha1"
	"encoding/hex"
)

// InfoHash is the 20-byte SHA-1 hash of a torrent's bencoded info dict. It
// is the authoritative identifier exchanged in handshakes and tracker
// announces.
type InfoHash [20]byte

// NewInfoHashFromBytes hashes the raw bencoded info dict into an InfoHash.
// This client never parses a hash from a hex string or magnet link (out of
// scope), so it only ever constructs one this way, from the byte range the
// bencode decoder reports for the "info" key.
func NewInfoHashFromBytes(b []byte) InfoHash {
	var h InfoHash
	sum := sha1.Sum(b)
	copy(h[:], sum[:])
	return h
}

// Bytes converts h to raw bytes.
func (h InfoHash) Bytes() []byte {
	return h[:]
}

// Hex converts h into a hexadecimal string, as used in tracker query
// parameters and log output.
func (h InfoHash) Hex() string {
	return hex.EncodeToString(h[:])
}

func (h InfoHash) String() string {
	return h.Hex()
}
