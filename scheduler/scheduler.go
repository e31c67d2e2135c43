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

// Package scheduler implements the shared piece scheduler: admission
// control over which peers a session may dial, rarest-first block
// reservation, and post-write hash verification. It is the single
// synchronization point shared by all peer sessions of a torrent.
package scheduler

import (
	"crypto/sha1"
	"fmt"
	"runtime"
	"sync"

	"github.com/leechkit/leech/internal/heap"
	"github.com/leechkit/leech/internal/syncutil"
	"github.com/leechkit/leech/metainfo"
	"github.com/leechkit/leech/piece"
	"github.com/leechkit/leech/storage"
	"github.com/leechkit/leech/tracker"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// HashMismatchError reports that a fully-downloaded piece failed SHA-1
// verification and must be re-fetched.
type HashMismatchError struct {
	Piece int
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("piece %d failed hash verification", e.Piece)
}

// pieceState tracks each block's progress through the three-state model
// (Missing/Reserved/Present) for one piece, guarded by Scheduler.piecesMu.
// reserved marks a block as requested (in flight to some peer); present
// marks a block as actually written to disk. A block can be reserved
// without being present (request outstanding) or present without having
// ever been reserved (e.g. a block written by a duplicate/unsolicited
// reply) -- verification must gate on present, not reserved.
type pieceState struct {
	complete bool
	reserved []bool
	present  []bool
}

// Scheduler owns the piece bitmap, the per-piece rarity counters, the set
// of active peer connections, and the shared tracker peer queue. Each field
// group is guarded by its own mutex -- piecesMu, connsMu and the queue's
// mutex are never nested (numPeersByPiece's internal lock is the one leaf
// lock taken under piecesMu, see below),
// following the discipline of a per-peer-session dispatcher that must never
// block one peer's progress on another's.
type Scheduler struct {
	torrent *metainfo.Torrent
	files   *storage.FileSet

	piecesMu sync.Mutex
	pieces   []pieceState
	bitfield *piece.Bitfield

	downloaded *atomic.Int64

	// numPeersByPiece is self-synchronizing (each counter access takes its
	// own internal lock), so it is written without holding piecesMu.
	// ReserveRarestFor reads it while holding piecesMu; the counters' lock
	// is never held while acquiring another lock, so this nesting cannot
	// deadlock.
	numPeersByPiece *syncutil.Counters

	connsMu sync.Mutex
	conns   map[string]struct{}

	queue *tracker.PeerQueue

	log *zap.SugaredLogger
}

// New builds a Scheduler for tor, backed by files for persistence.
func New(tor *metainfo.Torrent, files *storage.FileSet, queue *tracker.PeerQueue, log *zap.SugaredLogger) *Scheduler {
	n := tor.NumPieces()
	s := &Scheduler{
		torrent:         tor,
		files:           files,
		pieces:          make([]pieceState, n),
		bitfield:        piece.NewBitfield(n),
		downloaded:      atomic.NewInt64(0),
		numPeersByPiece: syncutil.NewCounters(n),
		conns:           make(map[string]struct{}),
		queue:           queue,
		log:             log,
	}
	for i := range s.pieces {
		n := piece.NumBlocks(tor.PieceSize(i))
		s.pieces[i].reserved = make([]bool, n)
		s.pieces[i].present = make([]bool, n)
	}
	return s
}

// Resume scans any already-on-disk data, verifying each piece's hash in
// parallel across up to NumCPU workers, and marks verified pieces complete
// before any network activity begins.
func (s *Scheduler) Resume() error {
	n := s.torrent.NumPieces()
	workers := runtime.NumCPU()
	if workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}

	var g errgroup.Group
	sem := make(chan struct{}, workers)
	for i := 0; i < n; i++ {
		i := i
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			ok, err := s.verifyPieceOnDisk(i)
			if err != nil {
				return err
			}
			if ok {
				s.markComplete(i)
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) verifyPieceOnDisk(i int) (bool, error) {
	size := s.torrent.PieceSize(i)
	buf := make([]byte, size)
	offset := int64(i) * s.torrent.PieceLength
	n, err := s.files.ReadAt(buf, offset)
	if err != nil || int64(n) != size {
		return false, nil // not yet fully present on disk; not an error
	}
	sum := sha1.Sum(buf)
	return sum == s.torrent.PieceHashes[i], nil
}

// Downloaded returns the total number of verified bytes so far.
func (s *Scheduler) Downloaded() int64 {
	return s.downloaded.Load()
}

// Left returns the number of bytes remaining to be verified.
func (s *Scheduler) Left() int64 {
	left := s.torrent.TotalLength() - s.downloaded.Load()
	if left < 0 {
		return 0
	}
	return left
}

// Done reports whether every piece has been verified.
func (s *Scheduler) Done() bool {
	return s.Downloaded() >= s.torrent.TotalLength()
}

// Bitfield returns a snapshot of locally-held pieces for sending in a
// peer's initial "bitfield" message.
func (s *Scheduler) Bitfield() *piece.Bitfield {
	s.piecesMu.Lock()
	defer s.piecesMu.Unlock()
	snap := piece.NewBitfield(s.bitfield.Len())
	for i := 0; i < s.bitfield.Len(); i++ {
		if s.bitfield.Has(i) {
			snap.Set(i)
		}
	}
	return snap
}

// HavePiece reports whether piece i has been verified.
func (s *Scheduler) HavePiece(i int) bool {
	s.piecesMu.Lock()
	defer s.piecesMu.Unlock()
	return s.pieces[i].complete
}

// RegisterPeerBitfield records that a peer advertises the pieces set in bf,
// incrementing rarity counters for use by rarest-first selection.
func (s *Scheduler) RegisterPeerBitfield(bf *piece.Bitfield) {
	for i := 0; i < bf.Len(); i++ {
		if bf.Has(i) {
			s.numPeersByPiece.Increment(i)
		}
	}
}

// UnregisterPeerBitfield reverses RegisterPeerBitfield when a peer
// disconnects.
func (s *Scheduler) UnregisterPeerBitfield(bf *piece.Bitfield) {
	for i := 0; i < bf.Len(); i++ {
		if bf.Has(i) {
			s.numPeersByPiece.Decrement(i)
		}
	}
}

// RegisterPeerHave increments the rarity counter for a single piece
// announced via a "have" message after the initial bitfield.
func (s *Scheduler) RegisterPeerHave(i int) {
	s.numPeersByPiece.Increment(i)
}

// ReserveRarestFor selects up to limit not-yet-fully-reserved pieces that
// peerHas offers, preferring the rarest (fewest advertising peers) first and
// breaking ties by lowest piece index.
func (s *Scheduler) ReserveRarestFor(limit int, peerHas *piece.Bitfield) []int {
	s.piecesMu.Lock()
	defer s.piecesMu.Unlock()

	pq := heap.NewPriorityQueue()
	for i := 0; i < len(s.pieces); i++ {
		if s.pieces[i].complete || !peerHas.Has(i) || !s.hasUnreservedBlock(i) {
			continue
		}
		pq.Push(&heap.Item{Value: i, Priority: s.numPeersByPiece.Get(i)})
	}

	var selected []int
	for len(selected) < limit {
		item, err := pq.Pop()
		if err != nil {
			break
		}
		i := item.Value.(int)
		selected = append(selected, i)
	}
	return selected
}

func (s *Scheduler) hasUnreservedBlock(i int) bool {
	for _, taken := range s.pieces[i].reserved {
		if !taken {
			return true
		}
	}
	return false
}

// ReserveBlock marks block blockIdx of piece i as reserved, so no other
// session will request it concurrently. ok is false if the block was
// already reserved or the piece is already complete.
func (s *Scheduler) ReserveBlock(i, blockIdx int) bool {
	s.piecesMu.Lock()
	defer s.piecesMu.Unlock()
	if s.pieces[i].complete || s.pieces[i].reserved[blockIdx] {
		return false
	}
	s.pieces[i].reserved[blockIdx] = true
	return true
}

// ReleaseBlock releases a reservation taken by ReserveBlock, e.g. after a
// timed-out or failed request, so another session may retry it.
func (s *Scheduler) ReleaseBlock(i, blockIdx int) {
	s.piecesMu.Lock()
	defer s.piecesMu.Unlock()
	if !s.pieces[i].complete {
		s.pieces[i].reserved[blockIdx] = false
	}
}

// CompleteBlock writes a downloaded block to disk and, once every block of
// its piece has actually arrived (is Present, not merely Reserved),
// verifies the piece's hash. If verification fails, all of the piece's
// block state is cleared so it is fetched again, and HashMismatchError is
// returned (non-fatal: the caller discards the piece and continues).
func (s *Scheduler) CompleteBlock(i, begin int, data []byte) error {
	offset := int64(i)*s.torrent.PieceLength + int64(begin)
	if _, err := s.files.WriteAt(data, offset); err != nil {
		return err
	}

	s.piecesMu.Lock()
	if s.pieces[i].complete {
		s.piecesMu.Unlock()
		return nil
	}
	blockIdx := begin / piece.BlockSize
	if blockIdx < len(s.pieces[i].present) {
		s.pieces[i].present[blockIdx] = true
	}
	allPresent := true
	for _, got := range s.pieces[i].present {
		if !got {
			allPresent = false
			break
		}
	}
	s.piecesMu.Unlock()

	if !allPresent {
		return nil
	}
	return s.verifyAndMark(i)
}

func (s *Scheduler) verifyAndMark(i int) error {
	size := s.torrent.PieceSize(i)
	buf := make([]byte, size)
	offset := int64(i) * s.torrent.PieceLength
	if _, err := s.files.ReadAt(buf, offset); err != nil {
		return err
	}
	sum := sha1.Sum(buf)
	if sum != s.torrent.PieceHashes[i] {
		s.piecesMu.Lock()
		for j := range s.pieces[i].reserved {
			s.pieces[i].reserved[j] = false
			s.pieces[i].present[j] = false
		}
		s.piecesMu.Unlock()
		return &HashMismatchError{Piece: i}
	}
	s.markComplete(i)
	return nil
}

func (s *Scheduler) markComplete(i int) {
	s.piecesMu.Lock()
	if s.pieces[i].complete {
		s.piecesMu.Unlock()
		return
	}
	s.pieces[i].complete = true
	s.bitfield.Set(i)
	s.piecesMu.Unlock()
	s.downloaded.Add(s.torrent.PieceSize(i))
}

// AdmitConnection records addr as an active connection if the active set
// has room under limit, returning whether admission succeeded. Callers must
// pair a successful AdmitConnection with a later ReleaseConnection.
func (s *Scheduler) AdmitConnection(addr string, limit int) bool {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	if _, exists := s.conns[addr]; exists {
		return false
	}
	if len(s.conns) >= limit {
		return false
	}
	s.conns[addr] = struct{}{}
	return true
}

// ReleaseConnection removes addr from the active connection set.
func (s *Scheduler) ReleaseConnection(addr string) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, addr)
}

// ActiveConnections returns the number of currently admitted connections.
func (s *Scheduler) ActiveConnections() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	return len(s.conns)
}

// NextPeer pops the next peer endpoint to dial from the shared tracker
// queue, if any.
func (s *Scheduler) NextPeer() (tracker.PeerEndpoint, bool) {
	return s.queue.Next()
}
