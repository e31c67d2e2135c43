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

// Package heap provides a minimal min-priority-queue used by the scheduler
// to pick the rarest available piece. Ties (equal priority) resolve in
// insertion order, unlike container/heap's unspecified tie behavior.
package heap

import (
	"container/heap"
	"errors"
)

// Item is one entry in a PriorityQueue: Value is caller-defined payload,
// Priority determines pop order (lowest first).
type Item struct {
	Value    interface{}
	Priority int

	seq   int
	index int
}

// ErrEmptyQueue is returned by Pop when the queue has no items.
var ErrEmptyQueue = errors.New("priority queue is empty")

// PriorityQueue is a min-heap of *Item ordered by Priority, then by
// insertion order on ties.
type PriorityQueue struct {
	h      *innerHeap
	nextSeq int
}

// NewPriorityQueue returns a PriorityQueue seeded with items.
func NewPriorityQueue(items ...*Item) *PriorityQueue {
	pq := &PriorityQueue{h: &innerHeap{}}
	for _, it := range items {
		pq.Push(it)
	}
	return pq
}

// Push inserts item into the queue.
func (pq *PriorityQueue) Push(item *Item) {
	item.seq = pq.nextSeq
	pq.nextSeq++
	heap.Push(pq.h, item)
}

// Pop removes and returns the lowest-priority item (ties broken by
// insertion order).
func (pq *PriorityQueue) Pop() (*Item, error) {
	if pq.h.Len() == 0 {
		return nil, ErrEmptyQueue
	}
	return heap.Pop(pq.h).(*Item), nil
}

// Len returns the number of items currently queued.
func (pq *PriorityQueue) Len() int {
	return pq.h.Len()
}

type innerHeap []*Item

func (h innerHeap) Len() int { return len(h) }

func (h innerHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h innerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *innerHeap) Push(x interface{}) {
	item := x.(*Item)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *innerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
