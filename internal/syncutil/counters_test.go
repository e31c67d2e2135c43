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
package syncutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCountersIncrementDecrement(t *testing.T) {
	require := require.New(t)

	c := NewCounters(3)
	c.Increment(0)
	c.Increment(0)
	c.Increment(1)
	require.Equal(2, c.Get(0))
	require.Equal(1, c.Get(1))
	require.Equal(0, c.Get(2))

	c.Decrement(0)
	require.Equal(1, c.Get(0))
}

func TestCountersSet(t *testing.T) {
	require := require.New(t)

	c := NewCounters(2)
	c.Set(1, 42)
	require.Equal(42, c.Get(1))
	require.Equal(2, c.Len())
}

func TestCountersConcurrentAccess(t *testing.T) {
	c := NewCounters(1)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Increment(0)
		}()
	}
	wg.Wait()
	require.Equal(t, 100, c.Get(0))
}
