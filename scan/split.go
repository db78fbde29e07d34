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

import "sync"

// BucketConversion emulates a different bucket count without
// rewriting the file: rows are re-hashed over KeyColumns and kept only
// when they land in the split's bucket.
type BucketConversion struct {
	NewBucketCount   int
	TableBucketCount int
	KeyColumns       []string
}

// RowIDProperties parameterize the synthesized row_id struct column.
type RowIDProperties struct {
	MetadataVersion int64
	PartitionID     int64
	TableGUID       string
}

// Split is one self-describing unit of scan work: a byte range of one
// file plus everything needed to open and interpret it. Splits are
// immutable once queued.
type Split struct {
	ConnectorID string
	Path        string
	Format      string
	Start       int64
	Length      int64

	// PartitionKeys maps partition column names to their values; a
	// nil value is a NULL partition key.
	PartitionKeys     map[string]*string
	TableBucketNumber *int
	BucketConversion  *BucketConversion
	RowIDProperties   *RowIDProperties
	SerdeParameters   map[string]string
	CustomSplitInfo   map[string]string
	Cacheable         bool
	Weight            int64
}

func (s *Split) weight() int64 {
	if s.Weight <= 0 {
		return 1
	}

	return s.Weight
}

// ContinueFuture is published when the queue has no split yet; it is
// closed when a split arrives or no more are coming.
type ContinueFuture <-chan struct{}

// QueueGauges are the split queue's point-in-time occupancy numbers.
type QueueGauges struct {
	NumQueued      int64
	NumRunning     int64
	QueuedWeights  int64
	RunningWeights int64
}

// SplitQueue feeds splits to scan operators. Splits may arrive with
// (group, sequence) identifiers for idempotent redelivery: a sequence
// at or below the group's high-water mark is dropped silently, and
// out-of-order arrival above it is accepted. Splits added without
// sequence numbers are never deduplicated, so adding one twice means
// scanning it twice.
type SplitQueue struct {
	mu      sync.Mutex
	queue   []*Split
	maxSeen map[int64]int64
	noMore  bool
	waiters []chan struct{}

	numRunning     int64
	runningWeights int64
	queuedWeights  int64
}

func NewSplitQueue() *SplitQueue {
	return &SplitQueue{maxSeen: map[int64]int64{}}
}

// Add enqueues a split unconditionally.
func (q *SplitQueue) Add(s *Split) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueueLocked(s)
}

// AddWithSequence enqueues a split with a per-group sequence number.
// It reports whether the split was accepted; duplicates and stale
// redeliveries return false.
func (q *SplitQueue) AddWithSequence(group, seq int64, s *Split) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if seen, ok := q.maxSeen[group]; ok && seq <= seen {
		return false
	}
	q.maxSeen[group] = max(q.maxSeen[group], seq)
	q.enqueueLocked(s)

	return true
}

func (q *SplitQueue) enqueueLocked(s *Split) {
	q.queue = append(q.queue, s)
	q.queuedWeights += s.weight()
	q.notifyLocked()
}

// NoMoreSplits marks the end of the split stream.
func (q *SplitQueue) NoMoreSplits() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.noMore = true
	q.notifyLocked()
}

func (q *SplitQueue) notifyLocked() {
	for _, w := range q.waiters {
		close(w)
	}
	q.waiters = nil
}

// Next pops the next split. When none is queued and more may come, it
// returns a ContinueFuture the caller waits on before retrying. A nil
// split with a nil future means the stream ended.
func (q *SplitQueue) Next() (*Split, ContinueFuture) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.queue) > 0 {
		s := q.queue[0]
		q.queue = q.queue[1:]
		q.queuedWeights -= s.weight()
		q.numRunning++
		q.runningWeights += s.weight()

		return s, nil
	}
	if q.noMore {
		return nil, nil
	}

	w := make(chan struct{})
	q.waiters = append(q.waiters, w)

	return nil, w
}

// Finish retires a split handed out by Next.
func (q *SplitQueue) Finish(s *Split) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.numRunning--
	q.runningWeights -= s.weight()
}

// Gauges snapshots the queue occupancy counters.
func (q *SplitQueue) Gauges() QueueGauges {
	q.mu.Lock()
	defer q.mu.Unlock()

	return QueueGauges{
		NumQueued:      int64(len(q.queue)),
		NumRunning:     q.numRunning,
		QueuedWeights:  q.queuedWeights,
		RunningWeights: q.runningWeights,
	}
}

// Peek returns up to n queued splits without removing them, for
// preloading.
func (q *SplitQueue) Peek(n int) []*Split {
	q.mu.Lock()
	defer q.mu.Unlock()

	n = min(n, len(q.queue))
	out := make([]*Split, n)
	copy(out, q.queue[:n])

	return out
}
