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

package io

import (
	"fmt"
	"io"
	"slices"
	"sync/atomic"
)

// Region is a byte range of a file requested by a reader.
type Region struct {
	Offset int64
	Length int64
}

func (r Region) end() int64 { return r.Offset + r.Length }

// CoalescedRead is one storage read covering several nearby regions.
// Gap bytes between member regions are fetched and discarded.
type CoalescedRead struct {
	Offset  int64
	Length  int64
	Regions []Region
}

// Overread returns how many fetched bytes belong to no region.
func (c CoalescedRead) Overread() int64 {
	useful := int64(0)
	for _, r := range c.Regions {
		useful += r.Length
	}

	return c.Length - useful
}

// ReadStats accumulates byte accounting across storage reads. Safe for
// concurrent update.
type ReadStats struct {
	// RawInputBytes counts bytes belonging to requested regions.
	RawInputBytes atomic.Int64
	// OverreadBytes counts gap bytes fetched only to merge reads.
	OverreadBytes atomic.Int64
	// StorageReadCount counts issued storage reads.
	StorageReadCount atomic.Int64
	// FooterBufferOverread counts speculative footer bytes that turned
	// out not to be needed.
	FooterBufferOverread atomic.Int64
}

// StorageReadBytes returns the total bytes fetched from storage.
func (s *ReadStats) StorageReadBytes() int64 {
	return s.RawInputBytes.Load() + s.OverreadBytes.Load()
}

// CoalesceRegions merges nearby regions into larger storage reads. Two
// adjacent regions merge when the gap between them is at most maxGap
// and the merged read stays within maxBytes. Regions are processed in
// offset order; overlapping input regions are not supported.
func CoalesceRegions(regions []Region, maxGap, maxBytes int64) []CoalescedRead {
	if len(regions) == 0 {
		return nil
	}
	sorted := slices.Clone(regions)
	slices.SortFunc(sorted, func(a, b Region) int {
		switch {
		case a.Offset < b.Offset:
			return -1
		case a.Offset > b.Offset:
			return 1
		default:
			return 0
		}
	})

	var out []CoalescedRead
	cur := CoalescedRead{
		Offset:  sorted[0].Offset,
		Length:  sorted[0].Length,
		Regions: []Region{sorted[0]},
	}
	for _, r := range sorted[1:] {
		gap := r.Offset - (cur.Offset + cur.Length)
		merged := r.end() - cur.Offset
		if gap >= 0 && gap <= maxGap && merged <= maxBytes {
			cur.Length = merged
			cur.Regions = append(cur.Regions, r)

			continue
		}
		out = append(out, cur)
		cur = CoalescedRead{Offset: r.Offset, Length: r.Length, Regions: []Region{r}}
	}

	return append(out, cur)
}

// ReadRegions fetches all regions from r with coalescing, returning
// one buffer per input region in input order. Byte accounting lands in
// stats.
func ReadRegions(r io.ReaderAt, regions []Region, maxGap, maxBytes int64, stats *ReadStats) ([][]byte, error) {
	reads := CoalesceRegions(regions, maxGap, maxBytes)

	got := make(map[Region][]byte, len(regions))
	for _, cr := range reads {
		buf := make([]byte, cr.Length)
		if _, err := r.ReadAt(buf, cr.Offset); err != nil && err != io.EOF {
			return nil, fmt.Errorf("reading %d bytes at offset %d: %w", cr.Length, cr.Offset, err)
		}
		if stats != nil {
			stats.StorageReadCount.Add(1)
			stats.OverreadBytes.Add(cr.Overread())
		}
		for _, reg := range cr.Regions {
			start := reg.Offset - cr.Offset
			got[reg] = buf[start : start+reg.Length]
			if stats != nil {
				stats.RawInputBytes.Add(reg.Length)
			}
		}
	}

	out := make([][]byte, len(regions))
	for i, reg := range regions {
		buf, ok := got[reg]
		if !ok {
			return nil, fmt.Errorf("region [%d, %d) missing from coalesced reads", reg.Offset, reg.end())
		}
		out[i] = buf
	}

	return out, nil
}

// ReadTail reads the last n bytes of a file of the given size,
// counting bytes beyond needed as footer buffer overread once the
// caller reports the needed size via stats.
func ReadTail(r io.ReaderAt, fileSize, n int64, stats *ReadStats) ([]byte, error) {
	if n > fileSize {
		n = fileSize
	}
	buf := make([]byte, n)
	if _, err := r.ReadAt(buf, fileSize-n); err != nil && err != io.EOF {
		return nil, err
	}
	if stats != nil {
		stats.StorageReadCount.Add(1)
		stats.RawInputBytes.Add(n)
	}

	return buf, nil
}
