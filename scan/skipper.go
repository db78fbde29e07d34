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
	"sort"
	"sync"

	vellum "github.com/vellumdata/vellum-go"
	"github.com/vellumdata/vellum-go/format"
)

// ColumnStats describes one column of a skippable unit.
type ColumnStats = format.ColumnStats

type columnFilter struct {
	column string
	index  int
	filter vellum.Filter

	tested  int64
	skipped int64
}

// skipRate orders filters by how often they actually skipped units.
func (c *columnFilter) skipRate() float64 {
	if c.tested == 0 {
		return 0
	}

	return float64(c.skipped) / float64(c.tested)
}

// Skipper evaluates pushed filters against unit statistics at every
// level (file, stripe, row group). A unit is skipped when any filter
// proves no row of it can pass. Filters are tried in decreasing
// observed skip rate so the cheapest effective predicate runs first,
// with the original column order as the deterministic tie-break; the
// reorder can be disabled for benchmarking.
type Skipper struct {
	mu              sync.Mutex
	filters         []*columnFilter
	reorderDisabled bool
}

// NewSkipper builds a skipper trying filters in the given column
// order.
func NewSkipper(columns []string, filters map[string]vellum.Filter, reorderDisabled bool) *Skipper {
	s := &Skipper{reorderDisabled: reorderDisabled}
	for _, name := range columns {
		f, ok := filters[name]
		if !ok {
			continue
		}
		s.filters = append(s.filters, &columnFilter{
			column: name,
			index:  len(s.filters),
			filter: f,
		})
	}

	return s
}

// Merge replaces or adds the filter for a column, conjoining with any
// existing one.
func (s *Skipper) Merge(column string, f vellum.Filter) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cf := range s.filters {
		if cf.column == column {
			cf.filter = cf.filter.MergeWith(f)

			return
		}
	}
	s.filters = append(s.filters, &columnFilter{
		column: column,
		index:  len(s.filters),
		filter: f,
	})
}

// CanSkip implements format.UnitSkipper.
func (s *Skipper) CanSkip(numRows int64, stats func(column string) (ColumnStats, bool)) bool {
	s.mu.Lock()
	ordered := make([]*columnFilter, len(s.filters))
	copy(ordered, s.filters)
	if !s.reorderDisabled {
		sort.SliceStable(ordered, func(i, j int) bool {
			ri, rj := ordered[i].skipRate(), ordered[j].skipRate()
			if ri != rj {
				return ri > rj
			}

			return ordered[i].index < ordered[j].index
		})
	}
	s.mu.Unlock()

	for _, cf := range ordered {
		cs, ok := stats(cf.column)
		if !ok {
			continue
		}

		skip := !unitMayPass(cf.filter, cs, numRows)
		s.mu.Lock()
		cf.tested++
		if skip {
			cf.skipped++
		}
		s.mu.Unlock()
		if skip {
			return true
		}
	}

	return false
}

// unitMayPass reports whether some row of a unit with the given stats
// could satisfy the filter.
func unitMayPass(f vellum.Filter, cs ColumnStats, numRows int64) bool {
	hasNulls := cs.HasNulls
	if cs.NullCount.Valid {
		hasNulls = cs.NullCount.Val > 0
	}

	// Entirely null unit: only the null test matters.
	allNull := (cs.ValueCount.Valid && cs.ValueCount.Val == 0) ||
		(cs.NullCount.Valid && cs.NullCount.Val >= numRows)
	if allNull {
		return f.TestNull()
	}

	if cs.Min == nil || cs.Max == nil {
		// No bounds. Null counts still decide pure null predicates.
		if f.Kind() == vellum.KindIsNull {
			return hasNulls
		}

		return true
	}

	// Constant column: test the value itself.
	if !hasNulls && statsEqual(cs.Min, cs.Max) {
		return testStatValue(f, cs.Min)
	}

	switch mn := cs.Min.(type) {
	case int64:
		mx, ok := cs.Max.(int64)

		return !ok || f.TestInt64Range(mn, mx, hasNulls)
	case float64:
		mx, ok := cs.Max.(float64)

		return !ok || f.TestDoubleRange(mn, mx, hasNulls)
	case []byte:
		mx, ok := cs.Max.([]byte)

		return !ok || f.TestBytesRange(mn, mx, hasNulls)
	case vellum.Timestamp:
		mx, ok := cs.Max.(vellum.Timestamp)

		return !ok || f.TestTimestampRange(mn, mx, hasNulls)
	case bool:
		mx, ok := cs.Max.(bool)
		if !ok {
			return true
		}

		return (hasNulls && f.TestNull()) || f.TestBool(mn) || f.TestBool(mx)
	default:
		return true
	}
}

func statsEqual(a, b any) bool {
	switch av := a.(type) {
	case int64:
		bv, ok := b.(int64)

		return ok && av == bv
	case float64:
		bv, ok := b.(float64)

		return ok && av == bv
	case []byte:
		bv, ok := b.([]byte)

		return ok && string(av) == string(bv)
	case vellum.Timestamp:
		bv, ok := b.(vellum.Timestamp)

		return ok && av.Compare(bv) == 0
	case bool:
		bv, ok := b.(bool)

		return ok && av == bv
	default:
		return false
	}
}

func testStatValue(f vellum.Filter, v any) bool {
	switch v := v.(type) {
	case int64:
		return f.TestInt64(v)
	case float64:
		return f.TestDouble(v)
	case []byte:
		return f.TestBytes(v)
	case vellum.Timestamp:
		return f.TestTimestamp(v)
	case bool:
		return f.TestBool(v)
	default:
		return true
	}
}
