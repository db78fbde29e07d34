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

package vellum

import (
	"cmp"
	"fmt"
	"time"
)

// Timestamp is a point in time with nanosecond resolution, compared by
// (seconds, nanos) lexicographic order. Whether a timestamp is UTC or
// session-local is not part of the value; the scan layer applies the
// session's timezone policy when materializing partition values.
type Timestamp struct {
	Seconds int64
	Nanos   uint32
}

// TimestampFromTime converts a time.Time, discarding the location.
func TimestampFromTime(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanos: uint32(t.Nanosecond())}
}

// TimestampFromMillis converts milliseconds since the unix epoch.
func TimestampFromMillis(ms int64) Timestamp {
	secs := ms / 1000
	rem := ms % 1000
	if rem < 0 {
		secs--
		rem += 1000
	}

	return Timestamp{Seconds: secs, Nanos: uint32(rem) * 1_000_000}
}

func (t Timestamp) Compare(other Timestamp) int {
	if c := cmp.Compare(t.Seconds, other.Seconds); c != 0 {
		return c
	}

	return cmp.Compare(t.Nanos, other.Nanos)
}

func (t Timestamp) Before(other Timestamp) bool { return t.Compare(other) < 0 }
func (t Timestamp) After(other Timestamp) bool  { return t.Compare(other) > 0 }

func (t Timestamp) ToTime() time.Time {
	return time.Unix(t.Seconds, int64(t.Nanos)).UTC()
}

func (t Timestamp) String() string {
	return fmt.Sprintf("%d.%09d", t.Seconds, t.Nanos)
}
