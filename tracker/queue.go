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
package tracker

import (
	"container/list"
	"sync"
)

// PeerQueue is a thread-safe FIFO of peer endpoints discovered via tracker
// announces, deduplicated so the same endpoint is never queued twice while
// already pending or queued.
type PeerQueue struct {
	mu      sync.Mutex
	ready   *list.List
	known   map[string]struct{}
}

// NewPeerQueue returns an empty PeerQueue.
func NewPeerQueue() *PeerQueue {
	return &PeerQueue{
		ready: list.New(),
		known: make(map[string]struct{}),
	}
}

// Add appends peers not already known to the back of the queue.
func (q *PeerQueue) Add(peers []PeerEndpoint) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, p := range peers {
		key := p.String()
		if _, exists := q.known[key]; exists {
			continue
		}
		q.known[key] = struct{}{}
		q.ready.PushBack(p)
	}
}

// Next removes and returns the peer at the front of the queue. ok is false
// if the queue is empty.
func (q *PeerQueue) Next() (PeerEndpoint, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	front := q.ready.Front()
	if front == nil {
		return PeerEndpoint{}, false
	}
	q.ready.Remove(front)
	p := front.Value.(PeerEndpoint)
	delete(q.known, p.String())
	return p, true
}

// Len returns the number of peers currently queued.
func (q *PeerQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ready.Len()
}
