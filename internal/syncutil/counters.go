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

// Package syncutil provides small thread-safe counter collections used by
// the scheduler to track how many peers have advertised each piece.
package syncutil

import "sync"

// Counters is a thread-safe, fixed-size array of integer counters.
type Counters struct {
	mu     sync.Mutex
	values []int
}

// NewCounters returns a Counters with n counters, all initialized to 0.
func NewCounters(n int) *Counters {
	return &Counters{values: make([]int, n)}
}

// Increment adds 1 to the counter at index k.
func (c *Counters) Increment(k int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[k]++
}

// Decrement subtracts 1 from the counter at index k.
func (c *Counters) Decrement(k int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[k]--
}

// Set overwrites the counter at index k.
func (c *Counters) Set(k, v int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[k] = v
}

// Get returns the current value of the counter at index k.
func (c *Counters) Get(k int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[k]
}

// Len returns the number of counters.
func (c *Counters) Len() int {
	return len(c.values)
}
