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

// Package session implements the per-peer connection state machine: dial,
// handshake, bitfield exchange, and the choke/interest/request
// flow control loop that drives block transfer for a single remote peer.
package session

import (
	"fmt"
	"net"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/leechkit/leech/core"
	"github.com/leechkit/leech/metainfo"
	"github.com/leechkit/leech/piece"
	"github.com/leechkit/leech/scheduler"
	"github.com/leechkit/leech/wire"
	"go.uber.org/zap"
)

// maxPipelined is the number of outstanding block requests this session
// keeps in flight against a single peer.
const maxPipelined = 5

// requestTimeout bounds how long a pending request waits before its block
// is released back to the scheduler for reassignment.
const requestTimeout = 30 * time.Second

// DialFailedError reports a failed TCP dial to a peer.
type DialFailedError struct {
	Addr string
	Err  error
}

func (e *DialFailedError) Error() string {
	return fmt.Sprintf("dial %s failed: %s", e.Addr, e.Err)
}

func (e *DialFailedError) Unwrap() error { return e.Err }

// HandshakeFailedError reports a failed or mismatched handshake.
type HandshakeFailedError struct {
	Addr string
	Err  error
}

func (e *HandshakeFailedError) Error() string {
	return fmt.Sprintf("handshake with %s failed: %s", e.Addr, e.Err)
}

func (e *HandshakeFailedError) Unwrap() error { return e.Err }

// PeerTimeoutError reports that a peer stopped responding.
type PeerTimeoutError struct {
	Addr string
}

func (e *PeerTimeoutError) Error() string {
	return fmt.Sprintf("peer %s timed out", e.Addr)
}

type pendingRequest struct {
	piece    int
	blockIdx int
	begin    int
	length   int
	sentAt   time.Time
}

// Session drives a single peer connection from handshake through steady-
// state block exchange until the connection closes or the torrent
// completes.
type Session struct {
	addr     string
	conn     net.Conn
	torrent  *metainfo.Torrent
	sched    *scheduler.Scheduler
	selfID   core.PeerID
	clk      clock.Clock
	log      *zap.SugaredLogger

	peerChoking    bool
	amInterested   bool
	peerBitfield   *piece.Bitfield
	pending        map[string]*pendingRequest
}

// Dial opens a TCP connection to addr, performs the handshake, and returns
// a Session ready to run. The connection is closed if any step fails.
func Dial(addr string, tor *metainfo.Torrent, sched *scheduler.Scheduler, selfID core.PeerID, clk clock.Clock, log *zap.SugaredLogger) (*Session, error) {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, &DialFailedError{Addr: addr, Err: err}
	}
	s := newSession(addr, conn, tor, sched, selfID, clk, log)
	if err := s.handshake(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func newSession(addr string, conn net.Conn, tor *metainfo.Torrent, sched *scheduler.Scheduler, selfID core.PeerID, clk clock.Clock, log *zap.SugaredLogger) *Session {
	return &Session{
		addr:         addr,
		conn:         conn,
		torrent:      tor,
		sched:        sched,
		selfID:       selfID,
		clk:          clk,
		log:          log.With("peer", addr),
		peerChoking:  true,
		pending:      make(map[string]*pendingRequest),
	}
}

func (s *Session) handshake() error {
	s.conn.SetDeadline(time.Now().Add(15 * time.Second))
	if err := wire.WriteHandshake(s.conn, wire.Handshake{InfoHash: s.torrent.InfoHash, PeerID: s.selfID}); err != nil {
		return &HandshakeFailedError{Addr: s.addr, Err: err}
	}
	hs, err := wire.ReadHandshake(s.conn)
	if err != nil {
		return &HandshakeFailedError{Addr: s.addr, Err: err}
	}
	if hs.InfoHash != s.torrent.InfoHash {
		return &HandshakeFailedError{Addr: s.addr, Err: fmt.Errorf("info hash mismatch")}
	}
	s.conn.SetDeadline(time.Time{})
	return nil
}

// Close terminates the underlying connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Run drives the session's steady-state loop: sending our bitfield and
// interest, then alternating between reading peer messages and issuing new
// block requests, until the connection errors, the peer times out, the
// torrent completes, or the peer has unchoked us but offers no block left to
// reserve and no request is outstanding (a graceful end, returning nil).
func (s *Session) Run() error {
	defer s.releaseAllPending()

	if err := s.sendMessage(wire.FormatBitfield(s.sched.Bitfield().ToWire())); err != nil {
		return err
	}

	for !s.sched.Done() {
		s.conn.SetReadDeadline(s.clk.Now().Add(60 * time.Second))
		msg, err := wire.ReadMessage(s.conn)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return &PeerTimeoutError{Addr: s.addr}
			}
			return err
		}
		if err := s.handleMessage(msg); err != nil {
			return err
		}
		s.reapTimedOutRequests()
		if err := s.fillPipeline(); err != nil {
			return err
		}
		if !s.peerChoking && s.peerBitfield != nil && len(s.pending) == 0 {
			return nil
		}
	}
	return nil
}

func (s *Session) sendMessage(m wire.Message) error {
	s.conn.SetWriteDeadline(s.clk.Now().Add(30 * time.Second))
	return wire.WriteMessage(s.conn, m)
}

func (s *Session) handleMessage(msg wire.Message) error {
	if msg.IsKeepAlive() {
		return nil
	}
	switch msg.ID {
	case wire.MsgChoke:
		s.peerChoking = true
		s.releaseAllPending()
	case wire.MsgUnchoke:
		s.peerChoking = false
	case wire.MsgHave:
		idx, err := wire.ParseHave(msg)
		if err != nil {
			return err
		}
		if s.peerBitfield == nil {
			s.peerBitfield = piece.NewBitfield(s.torrent.NumPieces())
		}
		if !s.peerBitfield.Has(idx) {
			s.peerBitfield.Set(idx)
			s.sched.RegisterPeerHave(idx)
		}
	case wire.MsgBitfield:
		bf, err := piece.FromWire(msg.Payload, s.torrent.NumPieces())
		if err != nil {
			return err
		}
		s.peerBitfield = bf
		s.sched.RegisterPeerBitfield(bf)
	case wire.MsgPiece:
		return s.handlePiece(msg)
	case wire.MsgRequest, wire.MsgInterested, wire.MsgNotInterested, wire.MsgCancel, wire.MsgPort:
		// This client never uploads and does not respond to peer requests.
	default:
		return &wire.BadMessageError{Reason: fmt.Sprintf("unknown message id %d", msg.ID)}
	}
	return nil
}

func (s *Session) handlePiece(msg wire.Message) error {
	index, begin, block, err := wire.ParsePiece(msg)
	if err != nil {
		return err
	}
	key := requestKey(index, begin)
	if _, ok := s.pending[key]; !ok {
		return nil // unsolicited or already-timed-out block; ignore.
	}
	delete(s.pending, key)

	if err := s.sched.CompleteBlock(index, begin, block); err != nil {
		if _, ok := err.(*scheduler.HashMismatchError); ok {
			s.log.Warnf("Discarding piece %d: %s", index, err)
			return nil
		}
		return err
	}
	return nil
}

// fillPipeline keeps up to maxPipelined requests outstanding against this
// peer, expressing interest as needed and reserving new rarest-first blocks
// from the scheduler.
func (s *Session) fillPipeline() error {
	if s.peerBitfield == nil {
		return nil
	}
	if len(s.pending) == 0 && !s.amInterested {
		s.amInterested = true
		if err := s.sendMessage(wire.Message{ID: wire.MsgInterested}); err != nil {
			return err
		}
	}
	if s.peerChoking {
		return nil
	}

	for len(s.pending) < maxPipelined {
		need := maxPipelined - len(s.pending)
		pieces := s.sched.ReserveRarestFor(need, s.peerBitfield)
		if len(pieces) == 0 {
			break
		}
		for _, idx := range pieces {
			if err := s.requestNextBlock(idx); err != nil {
				return err
			}
		}
		if len(pieces) < need {
			break
		}
	}
	return nil
}

func (s *Session) requestNextBlock(pieceIdx int) error {
	size := s.torrent.PieceSize(pieceIdx)
	n := piece.NumBlocks(size)
	for b := 0; b < n; b++ {
		if !s.sched.ReserveBlock(pieceIdx, b) {
			continue
		}
		block := piece.BlockAt(size, b)
		req := &pendingRequest{piece: pieceIdx, blockIdx: b, begin: block.Begin, length: block.Length, sentAt: s.clk.Now()}
		s.pending[requestKey(pieceIdx, block.Begin)] = req
		return s.sendMessage(wire.FormatRequest(pieceIdx, block.Begin, block.Length))
	}
	return nil
}

// reapTimedOutRequests releases the scheduler's reservation for any request
// that has been outstanding longer than requestTimeout, so another session
// may retry it.
func (s *Session) reapTimedOutRequests() {
	now := s.clk.Now()
	for key, req := range s.pending {
		if now.Sub(req.sentAt) > requestTimeout {
			s.sched.ReleaseBlock(req.piece, req.blockIdx)
			delete(s.pending, key)
		}
	}
}

func (s *Session) releaseAllPending() {
	for key, req := range s.pending {
		s.sched.ReleaseBlock(req.piece, req.blockIdx)
		delete(s.pending, key)
	}
}

func requestKey(pieceIdx, begin int) string {
	return fmt.Sprintf("%d:%d", pieceIdx, begin)
}
