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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vellum "github.com/vellumdata/vellum-go"
)

func intStats(lo, hi int64) ColumnStats {
	return ColumnStats{Min: lo, Max: hi}
}

func statsFor(m map[string]ColumnStats) func(string) (ColumnStats, bool) {
	return func(column string) (ColumnStats, bool) {
		cs, ok := m[column]

		return cs, ok
	}
}

func TestSkipperSkipsDisjointRange(t *testing.T) {
	sk := NewSkipper([]string{"c0"}, map[string]vellum.Filter{
		"c0": vellum.NewBigintRange(10, 20, false),
	}, false)

	assert.True(t, sk.CanSkip(100, statsFor(map[string]ColumnStats{"c0": intStats(30, 40)})))
	assert.False(t, sk.CanSkip(100, statsFor(map[string]ColumnStats{"c0": intStats(15, 40)})))
}

func TestSkipperMissingStatsNeverSkips(t *testing.T) {
	sk := NewSkipper([]string{"c0"}, map[string]vellum.Filter{
		"c0": vellum.NewBigintRange(10, 20, false),
	}, false)

	assert.False(t, sk.CanSkip(100, statsFor(nil)))
}

func TestSkipperAllNullUnit(t *testing.T) {
	allNull := map[string]ColumnStats{
		"c0": {HasNulls: true, NullCount: vellum.Some[int64](100)},
	}

	notNull := NewSkipper([]string{"c0"}, map[string]vellum.Filter{"c0": vellum.NewIsNotNull()}, false)
	assert.True(t, notNull.CanSkip(100, statsFor(allNull)))

	isNull := NewSkipper([]string{"c0"}, map[string]vellum.Filter{"c0": vellum.NewIsNull()}, false)
	assert.False(t, isNull.CanSkip(100, statsFor(allNull)))
}

func TestSkipperConstantColumn(t *testing.T) {
	sk := NewSkipper([]string{"c0"}, map[string]vellum.Filter{
		"c0": vellum.NewBigintRange(5, 5, false),
	}, false)

	assert.True(t, sk.CanSkip(100, statsFor(map[string]ColumnStats{"c0": intStats(7, 7)})))
	assert.False(t, sk.CanSkip(100, statsFor(map[string]ColumnStats{"c0": intStats(5, 5)})))
}

func TestSkipperNullOnlyPredicateWithoutBounds(t *testing.T) {
	sk := NewSkipper([]string{"c0"}, map[string]vellum.Filter{"c0": vellum.NewIsNull()}, false)

	assert.True(t, sk.CanSkip(100, statsFor(map[string]ColumnStats{
		"c0": {HasNulls: false, NullCount: vellum.Some[int64](0), ValueCount: vellum.Some[int64](100)},
	})))
	assert.False(t, sk.CanSkip(100, statsFor(map[string]ColumnStats{
		"c0": {HasNulls: true},
	})))
}

// recordingStats tracks which columns the skipper consults, in order.
func recordingStats(m map[string]ColumnStats, seen *[]string) func(string) (ColumnStats, bool) {
	return func(column string) (ColumnStats, bool) {
		*seen = append(*seen, column)
		cs, ok := m[column]

		return cs, ok
	}
}

func TestSkipperReordersBySkipRate(t *testing.T) {
	sk := NewSkipper([]string{"a", "b"}, map[string]vellum.Filter{
		"a": vellum.NewBigintRange(0, 1000, false),
		"b": vellum.NewBigintRange(10, 20, false),
	}, false)

	stats := map[string]ColumnStats{
		"a": intStats(0, 100), // always passes
		"b": intStats(500, 600),
	}

	var seen []string
	require.True(t, sk.CanSkip(100, recordingStats(stats, &seen)))
	require.True(t, sk.CanSkip(100, recordingStats(stats, &seen)))

	// First pass tries the original order; once b proves effective it
	// runs first and a is never consulted.
	assert.Equal(t, []string{"a", "b", "b"}, seen)
}

func TestSkipperReorderDisabledKeepsColumnOrder(t *testing.T) {
	sk := NewSkipper([]string{"a", "b"}, map[string]vellum.Filter{
		"a": vellum.NewBigintRange(0, 1000, false),
		"b": vellum.NewBigintRange(10, 20, false),
	}, true)

	stats := map[string]ColumnStats{
		"a": intStats(0, 100),
		"b": intStats(500, 600),
	}

	var seen []string
	require.True(t, sk.CanSkip(100, recordingStats(stats, &seen)))
	require.True(t, sk.CanSkip(100, recordingStats(stats, &seen)))

	assert.Equal(t, []string{"a", "b", "a", "b"}, seen)
}

func TestSkipperMergeTightensFilter(t *testing.T) {
	sk := NewSkipper([]string{"c0"}, map[string]vellum.Filter{
		"c0": vellum.NewBigintRange(0, 1000, false),
	}, false)

	stats := statsFor(map[string]ColumnStats{"c0": intStats(0, 100)})
	require.False(t, sk.CanSkip(100, stats))

	sk.Merge("c0", vellum.NewBigintRange(500, 600, false))
	assert.True(t, sk.CanSkip(100, stats))
}

func TestSkipperMergeAddsColumn(t *testing.T) {
	sk := NewSkipper([]string{"c0"}, map[string]vellum.Filter{}, false)

	stats := statsFor(map[string]ColumnStats{"c1": intStats(0, 10)})
	require.False(t, sk.CanSkip(100, stats))

	sk.Merge("c1", vellum.NewBigintRange(50, 60, false))
	assert.True(t, sk.CanSkip(100, stats))
}
