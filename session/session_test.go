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
package session

import (
	"crypto/sha1"
	"net"
	"testing"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/leechkit/leech/core"
	"github.com/leechkit/leech/metainfo"
	"github.com/leechkit/leech/piece"
	"github.com/leechkit/leech/scheduler"
	"github.com/leechkit/leech/storage"
	"github.com/leechkit/leech/tracker"
	"github.com/leechkit/leech/wire"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHandshakeRejectsInfoHashMismatch(t *testing.T) {
	require := require.New(t)

	clientConn, peerConn := net.Pipe()
	defer clientConn.Close()
	defer peerConn.Close()

	data := make([]byte, piece.BlockSize)
	sum := sha1.Sum(data)
	tor := &metainfo.Torrent{
		InfoHash:    core.NewInfoHashFromBytes([]byte("torrent-a")),
		PieceLength: int64(len(data)),
		PieceHashes: [][20]byte{sum},
		Files:       []metainfo.File{{Path: "f", Length: int64(len(data))}},
	}

	dir := t.TempDir()
	fs, err := storage.Open(tor, dir)
	require.NoError(err)
	defer fs.Close()

	sched := scheduler.New(tor, fs, tracker.NewPeerQueue(), zap.NewNop().Sugar())
	selfID, err := core.RandomPeerID()
	require.NoError(err)

	s := newSession("peer-addr", clientConn, tor, sched, selfID, clock.New(), zap.NewNop().Sugar())

	done := make(chan error, 1)
	go func() { done <- s.handshake() }()

	// net.Pipe is unbuffered: drain our handshake write before replying.
	_, err = wire.ReadHandshake(peerConn)
	require.NoError(err)
	// Peer replies with a handshake for a different info hash.
	otherPeerID, _ := core.RandomPeerID()
	require.NoError(wire.WriteHandshake(peerConn, wire.Handshake{
		InfoHash: core.NewInfoHashFromBytes([]byte("different-torrent")),
		PeerID:   otherPeerID,
	}))

	select {
	case err := <-done:
		require.Error(err)
		var hfErr *HandshakeFailedError
		require.ErrorAs(err, &hfErr)
	case <-time.After(2 * time.Second):
		t.Fatal("handshake did not complete")
	}
}

func TestHandshakeSucceedsOnMatchingInfoHash(t *testing.T) {
	require := require.New(t)

	clientConn, peerConn := net.Pipe()
	defer clientConn.Close()
	defer peerConn.Close()

	tor := &metainfo.Torrent{
		InfoHash:    core.NewInfoHashFromBytes([]byte("torrent-match")),
		PieceLength: piece.BlockSize,
		PieceHashes: [][20]byte{{}},
		Files:       []metainfo.File{{Path: "f", Length: piece.BlockSize}},
	}
	dir := t.TempDir()
	fs, err := storage.Open(tor, dir)
	require.NoError(err)
	defer fs.Close()

	sched := scheduler.New(tor, fs, tracker.NewPeerQueue(), zap.NewNop().Sugar())
	selfID, err := core.RandomPeerID()
	require.NoError(err)
	s := newSession("peer-addr", clientConn, tor, sched, selfID, clock.New(), zap.NewNop().Sugar())

	done := make(chan error, 1)
	go func() { done <- s.handshake() }()

	_, err = wire.ReadHandshake(peerConn)
	require.NoError(err)
	peerID, _ := core.RandomPeerID()
	require.NoError(wire.WriteHandshake(peerConn, wire.Handshake{InfoHash: tor.InfoHash, PeerID: peerID}))

	select {
	case err := <-done:
		require.NoError(err)
	case <-time.After(2 * time.Second):
		t.Fatal("handshake did not complete")
	}
}
