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

// Package wire implements the BitTorrent peer wire protocol: the fixed
// handshake exchange and the length-prefixed message stream that follows
// it.
package wire

import (
	"errors"
	"io"

	"github.com/leechkit/leech/core"
)

const protocolString = "BitTorrent protocol"

// HandshakeLen is the fixed length of a handshake message on the wire.
const HandshakeLen = 1 + 19 + 8 + 20 + 20

// Handshake is the fixed 68-byte preamble exchanged before any messages.
type Handshake struct {
	InfoHash core.InfoHash
	PeerID   core.PeerID
}

// ErrBadProtocol is returned when a peer's handshake does not identify
// itself as speaking the BitTorrent protocol.
var ErrBadProtocol = errors.New("wire: unrecognized protocol identifier")

// WriteHandshake serializes and writes h to w.
func WriteHandshake(w io.Writer, h Handshake) error {
	buf := make([]byte, HandshakeLen)
	buf[0] = 19
	copy(buf[1:20], protocolString)
	// bytes 20:28 are the 8 reserved bytes, left zero: no extensions.
	copy(buf[28:48], h.InfoHash.Bytes())
	copy(buf[48:68], h.PeerID.Bytes())
	_, err := w.Write(buf)
	return err
}

// ReadHandshake reads and parses a handshake from r.
func ReadHandshake(r io.Reader) (Handshake, error) {
	buf := make([]byte, HandshakeLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Handshake{}, err
	}
	if buf[0] != 19 || string(buf[1:20]) != protocolString {
		return Handshake{}, ErrBadProtocol
	}
	var h Handshake
	copy(h.InfoHash[:], buf[28:48])
	pid, err := core.NewPeerIDFromBytes(buf[48:68])
	if err != nil {
		return Handshake{}, err
	}
	h.PeerID = pid
	return h, nil
}
