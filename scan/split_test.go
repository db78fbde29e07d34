// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package scan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSplit(path string) *Split {
	return &Split{ConnectorID: "t", Path: path, Format: "parquet", Length: 1}
}

func TestSplitQueueOrder(t *testing.T) {
	q := NewSplitQueue()
	q.Add(testSplit("a"))
	q.Add(testSplit("b"))
	q.NoMoreSplits()

	s, fut := q.Next()
	require.NotNil(t, s)
	assert.Nil(t, fut)
	assert.Equal(t, "a", s.Path)
	q.Finish(s)

	s, _ = q.Next()
	assert.Equal(t, "b", s.Path)
	q.Finish(s)

	s, fut = q.Next()
	assert.Nil(t, s)
	assert.Nil(t, fut)
}

func TestSplitQueueBlocksUntilAdd(t *testing.T) {
	q := NewSplitQueue()

	s, fut := q.Next()
	require.Nil(t, s)
	require.NotNil(t, fut)

	go q.Add(testSplit("late"))

	select {
	case <-fut:
	case <-time.After(5 * time.Second):
		t.Fatal("future never resolved")
	}

	s, _ = q.Next()
	require.NotNil(t, s)
	assert.Equal(t, "late", s.Path)
}

func TestSplitQueueFutureResolvesOnNoMoreSplits(t *testing.T) {
	q := NewSplitQueue()
	_, fut := q.Next()
	require.NotNil(t, fut)

	q.NoMoreSplits()
	select {
	case <-fut:
	case <-time.After(5 * time.Second):
		t.Fatal("future never resolved")
	}

	s, fut2 := q.Next()
	assert.Nil(t, s)
	assert.Nil(t, fut2)
}

func TestSplitQueueSequenceDeduplication(t *testing.T) {
	q := NewSplitQueue()

	assert.True(t, q.AddWithSequence(1, 5, testSplit("a")))
	assert.False(t, q.AddWithSequence(1, 5, testSplit("a")))
	assert.False(t, q.AddWithSequence(1, 3, testSplit("stale")))
	// Gaps are fine; the mark only moves forward.
	assert.True(t, q.AddWithSequence(1, 9, testSplit("b")))
	assert.False(t, q.AddWithSequence(1, 7, testSplit("late")))
	// Other groups keep their own high-water marks.
	assert.True(t, q.AddWithSequence(2, 5, testSplit("c")))

	assert.EqualValues(t, 3, q.Gauges().NumQueued)
}

func TestSplitQueueGauges(t *testing.T) {
	q := NewSplitQueue()
	heavy := testSplit("heavy")
	heavy.Weight = 4
	q.Add(heavy)
	q.Add(testSplit("light"))

	g := q.Gauges()
	assert.EqualValues(t, 2, g.NumQueued)
	assert.EqualValues(t, 5, g.QueuedWeights)

	s, _ := q.Next()
	g = q.Gauges()
	assert.EqualValues(t, 1, g.NumQueued)
	assert.EqualValues(t, 1, g.QueuedWeights)
	assert.EqualValues(t, 1, g.NumRunning)
	assert.EqualValues(t, 4, g.RunningWeights)

	q.Finish(s)
	g = q.Gauges()
	assert.EqualValues(t, 0, g.NumRunning)
	assert.EqualValues(t, 0, g.RunningWeights)
}

func TestSplitQueuePeek(t *testing.T) {
	q := NewSplitQueue()
	q.Add(testSplit("a"))
	q.Add(testSplit("b"))
	q.Add(testSplit("c"))

	peeked := q.Peek(2)
	require.Len(t, peeked, 2)
	assert.Equal(t, "a", peeked[0].Path)
	assert.Equal(t, "b", peeked[1].Path)
	// Peek does not consume.
	assert.EqualValues(t, 3, q.Gauges().NumQueued)

	assert.Len(t, q.Peek(10), 3)
}
