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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimestampCompare(t *testing.T) {
	a := Timestamp{Seconds: 10, Nanos: 500}
	b := Timestamp{Seconds: 10, Nanos: 600}
	c := Timestamp{Seconds: 11}

	assert.Zero(t, a.Compare(a))
	assert.Negative(t, a.Compare(b))
	assert.Positive(t, b.Compare(a))
	assert.Negative(t, b.Compare(c))
	assert.True(t, a.Before(b))
	assert.True(t, c.After(b))
}

func TestTimestampFromMillis(t *testing.T) {
	tests := []struct {
		millis int64
		want   Timestamp
	}{
		{0, Timestamp{}},
		{1500, Timestamp{Seconds: 1, Nanos: 500_000_000}},
		{-1, Timestamp{Seconds: -1, Nanos: 999_000_000}},
		{-1500, Timestamp{Seconds: -2, Nanos: 500_000_000}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, TimestampFromMillis(tt.millis), "millis %d", tt.millis)
	}
}

func TestTimestampTimeRoundTrip(t *testing.T) {
	now := time.Date(2021, 6, 15, 10, 30, 0, 123_456_789, time.UTC)
	ts := TimestampFromTime(now)
	assert.Equal(t, now, ts.ToTime().UTC())
	assert.Equal(t, "1623753000.123456789", ts.String())
}
