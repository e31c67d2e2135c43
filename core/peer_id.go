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
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
)

// clientPrefix identifies this client in generated peer ids, following the
// Azureus-style convention ("-XX0001-" + 12 random bytes).
const clientPrefix = "-LE0001-"

// ErrInvalidPeerIDLength returns when a string peer id does not decode into 20 bytes.
var ErrInvalidPeerIDLength = errors.New("peer id has invalid length")

// PeerID represents a fixed size peer id exchanged in the handshake and
// tracker announces.
type PeerID [20]byte

// NewPeerID parses a PeerID from the given string. Must be in hexadecimal
// notation, encoding exactly 20 bytes.
func NewPeerID(s string) (PeerID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return PeerID{}, err
	}
	if len(b) != 20 {
		return PeerID{}, ErrInvalidPeerIDLength
	}
	var p PeerID
	copy(p[:], b)
	return p, nil
}

// NewPeerIDFromBytes copies exactly 20 bytes into a PeerID.
func NewPeerIDFromBytes(b []byte) (PeerID, error) {
	if len(b) != 20 {
		return PeerID{}, ErrInvalidPeerIDLength
	}
	var p PeerID
	copy(p[:], b)
	return p, nil
}

// String encodes the PeerID in hexadecimal notation.
func (p PeerID) String() string {
	return hex.EncodeToString(p[:])
}

// Bytes returns the raw 20 bytes of p.
func (p PeerID) Bytes() []byte {
	return p[:]
}

// LessThan returns whether p sorts before o, comparing the raw bytes.
func (p PeerID) LessThan(o PeerID) bool {
	return bytes.Compare(p[:], o[:]) == -1
}

// RandomPeerID generates a new PeerID for this run: a client prefix followed
// by cryptographically random bytes, the way most well-behaved clients
// identify themselves on the wire.
func RandomPeerID() (PeerID, error) {
	var p PeerID
	copy(p[:], clientPrefix)
	if _, err := rand.Read(p[len(clientPrefix):]); err != nil {
		return PeerID{}, err
	}
	return p, nil
}
