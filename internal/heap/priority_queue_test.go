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
package heap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPriorityQueueOrdersByPriority(t *testing.T) {
	require := require.New(t)

	pq := NewPriorityQueue()
	pq.Push(&Item{Value: "c", Priority: 3})
	pq.Push(&Item{Value: "a", Priority: 1})
	pq.Push(&Item{Value: "b", Priority: 2})

	var order []string
	for pq.Len() > 0 {
		item, err := pq.Pop()
		require.NoError(err)
		order = append(order, item.Value.(string))
	}
	require.Equal([]string{"a", "b", "c"}, order)
}

func TestPriorityQueueBreaksTiesByInsertionOrder(t *testing.T) {
	require := require.New(t)

	pq := NewPriorityQueue()
	pq.Push(&Item{Value: "first", Priority: 1})
	pq.Push(&Item{Value: "second", Priority: 1})
	pq.Push(&Item{Value: "third", Priority: 1})

	var order []string
	for pq.Len() > 0 {
		item, err := pq.Pop()
		require.NoError(err)
		order = append(order, item.Value.(string))
	}
	require.Equal([]string{"first", "second", "third"}, order)
}

func TestPriorityQueuePopEmpty(t *testing.T) {
	pq := NewPriorityQueue()
	_, err := pq.Pop()
	require.Equal(t, ErrEmptyQueue, err)
}
