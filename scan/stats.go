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
	"sync/atomic"

	vio "github.com/vellumdata/vellum-go/io"
)

// RuntimeStats accumulates the per-scan counters. All counters are
// additive across splits and safe to snapshot while the scan runs.
type RuntimeStats struct {
	// Read is shared with the io layer and the format readers.
	Read vio.ReadStats

	RawInputRows      atomic.Int64
	IOWaitWallNanos   atomic.Int64
	TotalScanTimeNano atomic.Int64
	SkippedSplits     atomic.Int64
	SkippedStrides    atomic.Int64
	PreloadedSplits   atomic.Int64
	YieldCount        atomic.Int64
	LoadedToValueHook atomic.Int64
}

// StatsSnapshot is a point-in-time copy of every counter, including
// the split queue gauges.
type StatsSnapshot struct {
	RawInputBytes        int64
	OverreadBytes        int64
	StorageReadBytes     int64
	NumStorageRead       int64
	FooterBufferOverread int64
	RawInputRows         int64
	IOWaitWallNanos      int64
	TotalScanTimeNanos   int64
	SkippedSplits        int64
	SkippedStrides       int64
	PreloadedSplits      int64
	YieldCount           int64
	LoadedToValueHook    int64

	NumQueuedTableScanSplits     int64
	NumRunningTableScanSplits    int64
	QueuedTableScanSplitWeights  int64
	RunningTableScanSplitWeights int64
}

// Snapshot copies the counters. queue may be nil.
func (s *RuntimeStats) Snapshot(queue *SplitQueue) StatsSnapshot {
	snap := StatsSnapshot{
		RawInputBytes:        s.Read.RawInputBytes.Load(),
		OverreadBytes:        s.Read.OverreadBytes.Load(),
		StorageReadBytes:     s.Read.StorageReadBytes(),
		NumStorageRead:       s.Read.StorageReadCount.Load(),
		FooterBufferOverread: s.Read.FooterBufferOverread.Load(),
		RawInputRows:         s.RawInputRows.Load(),
		IOWaitWallNanos:      s.IOWaitWallNanos.Load(),
		TotalScanTimeNanos:   s.TotalScanTimeNano.Load(),
		SkippedSplits:        s.SkippedSplits.Load(),
		SkippedStrides:       s.SkippedStrides.Load(),
		PreloadedSplits:      s.PreloadedSplits.Load(),
		YieldCount:           s.YieldCount.Load(),
		LoadedToValueHook:    s.LoadedToValueHook.Load(),
	}
	if queue != nil {
		q := queue.Gauges()
		snap.NumQueuedTableScanSplits = q.NumQueued
		snap.NumRunningTableScanSplits = q.NumRunning
		snap.QueuedTableScanSplitWeights = q.QueuedWeights
		snap.RunningTableScanSplitWeights = q.RunningWeights
	}

	return snap
}
