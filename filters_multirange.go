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
	"bytes"
	"fmt"
	"math"
	"slices"
)

// MultiRange passes values matching any member of an ordered list of
// range filters over the same type. Members carry nullAllowed=false;
// the null policy lives on the MultiRange itself.
type MultiRange struct {
	baseFilter
	filters    []Filter
	nanAllowed bool
}

// NewMultiRange returns the union of the given range filters. Members
// must all be ranges over the same type. Panics on empty input.
func NewMultiRange(filters []Filter, nanAllowed, nullAllowed bool) *MultiRange {
	if len(filters) == 0 {
		panic(fmt.Errorf("%w: MultiRange requires at least one filter", ErrInvalidArgument))
	}
	members := make([]Filter, len(filters))
	for i, m := range filters {
		switch m.Kind() {
		case KindBytesRange, KindNegatedBytesRange, KindBytesValues,
			KindDoubleRange, KindFloatRange:
		default:
			panic(fmt.Errorf("%w: MultiRange does not accept %s members",
				ErrInvalidArgument, m.Kind()))
		}
		members[i] = m.Clone(false)
	}

	return &MultiRange{
		baseFilter: baseFilter{kind: KindMultiRange, nullAllowed: nullAllowed},
		filters:    members,
		nanAllowed: nanAllowed,
	}
}

// Filters returns the member filters.
func (f *MultiRange) Filters() []Filter { return f.filters }

// NanAllowed reports whether NaN passes the filter.
func (f *MultiRange) NanAllowed() bool { return f.nanAllowed }

func (f *MultiRange) TestDouble(v float64) bool {
	if math.IsNaN(v) {
		return f.nanAllowed
	}
	for _, m := range f.filters {
		if m.TestDouble(v) {
			return true
		}
	}

	return false
}

func (f *MultiRange) TestFloat(v float32) bool {
	if math.IsNaN(float64(v)) {
		return f.nanAllowed
	}
	for _, m := range f.filters {
		if m.TestFloat(v) {
			return true
		}
	}

	return false
}

func (f *MultiRange) TestBytes(v []byte) bool {
	for _, m := range f.filters {
		if m.TestBytes(v) {
			return true
		}
	}

	return false
}

func (f *MultiRange) TestLength(n int) bool {
	for _, m := range f.filters {
		if m.TestLength(n) {
			return true
		}
	}

	return false
}

func (f *MultiRange) TestDoubleRange(lo, hi float64, hasNull bool) bool {
	if hasNull && f.nullAllowed {
		return true
	}
	if f.nanAllowed || math.IsNaN(lo) || math.IsNaN(hi) {
		return true
	}
	for _, m := range f.filters {
		if m.TestDoubleRange(lo, hi, hasNull) {
			return true
		}
	}

	return false
}

func (f *MultiRange) TestBytesRange(lo, hi []byte, hasNull bool) bool {
	if hasNull && f.nullAllowed {
		return true
	}
	for _, m := range f.filters {
		if m.TestBytesRange(lo, hi, hasNull) {
			return true
		}
	}

	return false
}

func (f *MultiRange) MergeWith(other Filter) Filter {
	switch other.Kind() {
	case KindAlwaysTrue, KindAlwaysFalse, KindIsNull, KindIsNotNull:
		return other.MergeWith(f)
	}

	nullAllowed := f.nullAllowed && other.TestNull()

	var merged []Filter
	for _, m := range f.filters {
		res := m.MergeWith(other)
		switch res.Kind() {
		case KindAlwaysFalse, KindIsNull:
		case KindAlwaysTrue, KindIsNotNull:
			if nullAllowed {
				return NewAlwaysTrue()
			}

			return NewIsNotNull()
		case KindMultiRange:
			merged = append(merged, res.(*MultiRange).filters...)
		default:
			merged = append(merged, res)
		}
	}

	nanAllowed := f.nanAllowed
	if o, ok := other.(interface{ NanAllowed() bool }); ok {
		nanAllowed = nanAllowed && o.NanAllowed()
	}

	switch len(merged) {
	case 0:
		if nanAllowed {
			inf := math.Inf(1)

			return NewDoubleRange(inf, false, true, inf, false, true, true, nullAllowed)
		}

		return nullOrFalse(nullAllowed)
	case 1:
		return merged[0].Clone(nullAllowed)
	default:
		return NewMultiRange(merged, nanAllowed, nullAllowed)
	}
}

func (f *MultiRange) Clone(nullAllowed ...bool) Filter {
	return NewMultiRange(f.filters, f.nanAllowed, nullAllowedOr(f.nullAllowed, nullAllowed))
}

func (f *MultiRange) String() string {
	return f.describe(fmt.Sprintf("%d filters", len(f.filters)))
}

// bytesInterval is a possibly half-open interval over byte strings used
// while intersecting the bytes filter family.
type bytesInterval struct {
	lo, hi                   []byte
	loUnbounded, hiUnbounded bool
	loExclusive, hiExclusive bool
}

func (iv bytesInterval) contains(v []byte) bool {
	if !iv.loUnbounded {
		c := bytes.Compare(v, iv.lo)
		if c < 0 || (iv.loExclusive && c == 0) {
			return false
		}
	}
	if !iv.hiUnbounded {
		c := bytes.Compare(v, iv.hi)
		if c > 0 || (iv.hiExclusive && c == 0) {
			return false
		}
	}

	return true
}

func (iv bytesInterval) empty() bool {
	if iv.loUnbounded || iv.hiUnbounded {
		return false
	}
	c := bytes.Compare(iv.lo, iv.hi)

	return c > 0 || (c == 0 && (iv.loExclusive || iv.hiExclusive))
}

func bytesRangeInterval(r *BytesRange) bytesInterval {
	return bytesInterval{
		lo: r.lower, hi: r.upper,
		loUnbounded: r.lowerUnbounded, hiUnbounded: r.upperUnbounded,
		loExclusive: r.lowerExclusive, hiExclusive: r.upperExclusive,
	}
}

// bytesIntervals renders a range-shaped bytes filter as an ordered list
// of disjoint intervals.
func bytesIntervals(f Filter) ([]bytesInterval, bool) {
	switch f := f.(type) {
	case *BytesRange:
		return []bytesInterval{bytesRangeInterval(f)}, true
	case *NegatedBytesRange:
		hole := bytesRangeInterval(f.nonNegated)
		var out []bytesInterval
		if !hole.loUnbounded {
			out = append(out, bytesInterval{
				loUnbounded: true,
				hi:          hole.lo, hiExclusive: !hole.loExclusive,
			})
		}
		if !hole.hiUnbounded {
			out = append(out, bytesInterval{
				lo: hole.hi, loExclusive: !hole.hiExclusive,
				hiUnbounded: true,
			})
		}

		return out, true
	case *MultiRange:
		out := make([]bytesInterval, 0, len(f.filters))
		for _, m := range f.filters {
			r, ok := m.(*BytesRange)
			if !ok {
				return nil, false
			}
			out = append(out, bytesRangeInterval(r))
		}

		return out, true
	default:
		return nil, false
	}
}

// mergeBytes intersects two filters from the bytes family.
func mergeBytes(f, other Filter) Filter {
	switch other.Kind() {
	case KindAlwaysTrue, KindAlwaysFalse, KindIsNull, KindIsNotNull:
		return other.MergeWith(f)
	case KindMultiRange:
		return other.MergeWith(f)
	}

	nullAllowed := f.TestNull() && other.TestNull()

	aVals, aNeg, aIsVals := bytesPoints(f)
	bVals, bNeg, bIsVals := bytesPoints(other)

	switch {
	case aIsVals && bIsVals:
		switch {
		case !aNeg && !bNeg:
			return NewBytesValues(intersectBytesSorted(aVals, bVals), nullAllowed)
		case aNeg && bNeg:
			return NewNegatedBytesValues(unionBytesSorted(aVals, bVals), nullAllowed)
		case aNeg:
			return NewBytesValues(subtractBytesSorted(bVals, aVals), nullAllowed)
		default:
			return NewBytesValues(subtractBytesSorted(aVals, bVals), nullAllowed)
		}

	case aIsVals:
		return mergeBytesPointsWithFilter(aVals, aNeg, other, nullAllowed)
	case bIsVals:
		return mergeBytesPointsWithFilter(bVals, bNeg, f, nullAllowed)
	}

	aIvals, _ := bytesIntervals(f)
	bIvals, _ := bytesIntervals(other)

	var out []bytesInterval
	for _, a := range aIvals {
		for _, b := range bIvals {
			if iv, ok := intersectBytesIntervals(a, b); ok {
				out = append(out, iv)
			}
		}
	}

	return filterFromBytesIntervals(out, nullAllowed)
}

func mergeBytesPointsWithFilter(vals [][]byte, negated bool, rangeFilter Filter, nullAllowed bool) Filter {
	if !negated {
		kept := make([][]byte, 0, len(vals))
		for _, v := range vals {
			if rangeFilter.TestBytes(v) {
				kept = append(kept, v)
			}
		}

		return NewBytesValues(kept, nullAllowed)
	}

	ivals, _ := bytesIntervals(rangeFilter)

	return filterFromBytesIntervals(splitBytesIntervals(ivals, vals), nullAllowed)
}

// bytesPoints renders a value-shaped bytes filter as its ascending
// member list plus whether membership is negated. Single-value ranges
// count as one-element sets.
func bytesPoints(f Filter) (vals [][]byte, negated, ok bool) {
	switch f := f.(type) {
	case *BytesValues:
		return f.values, false, true
	case *NegatedBytesValues:
		return f.nonNegated.values, true, true
	case *BytesRange:
		if f.singleValue {
			return [][]byte{f.lower}, false, true
		}
	}

	return nil, false, false
}

// intersectBytesIntervals returns the overlap of two intervals, taking
// the tighter bound on each side.
func intersectBytesIntervals(a, b bytesInterval) (bytesInterval, bool) {
	out := a
	switch {
	case out.loUnbounded:
		out.lo, out.loUnbounded, out.loExclusive = b.lo, b.loUnbounded, b.loExclusive
	case !b.loUnbounded:
		c := bytes.Compare(b.lo, out.lo)
		if c > 0 {
			out.lo, out.loExclusive = b.lo, b.loExclusive
		} else if c == 0 {
			out.loExclusive = out.loExclusive || b.loExclusive
		}
	}
	switch {
	case out.hiUnbounded:
		out.hi, out.hiUnbounded, out.hiExclusive = b.hi, b.hiUnbounded, b.hiExclusive
	case !b.hiUnbounded:
		c := bytes.Compare(b.hi, out.hi)
		if c < 0 {
			out.hi, out.hiExclusive = b.hi, b.hiExclusive
		} else if c == 0 {
			out.hiExclusive = out.hiExclusive || b.hiExclusive
		}
	}
	if out.empty() {
		return bytesInterval{}, false
	}

	return out, true
}

// splitBytesIntervals carves rejected points out of each interval,
// leaving exclusive bounds at every removed point.
func splitBytesIntervals(ivals []bytesInterval, points [][]byte) []bytesInterval {
	var out []bytesInterval
	for _, iv := range ivals {
		cur := iv
		for _, p := range points {
			if !cur.contains(p) {
				continue
			}
			left := cur
			left.hi, left.hiUnbounded, left.hiExclusive = p, false, true
			if !left.empty() {
				out = append(out, left)
			}
			cur.lo, cur.loUnbounded, cur.loExclusive = p, false, true
		}
		if !cur.empty() {
			out = append(out, cur)
		}
	}

	return out
}

// filterFromBytesIntervals builds the most compact filter passing
// exactly the strings covered by the ordered disjoint interval list.
func filterFromBytesIntervals(ivals []bytesInterval, nullAllowed bool) Filter {
	switch len(ivals) {
	case 0:
		return nullOrFalse(nullAllowed)
	case 1:
		iv := ivals[0]
		if iv.loUnbounded && iv.hiUnbounded {
			if nullAllowed {
				return NewAlwaysTrue()
			}

			return NewIsNotNull()
		}

		return NewBytesRange(iv.lo, iv.loUnbounded, iv.loExclusive,
			iv.hi, iv.hiUnbounded, iv.hiExclusive, nullAllowed)
	case 2:
		// Unbounded tails around a single gap negate back into a hole.
		if ivals[0].loUnbounded && ivals[1].hiUnbounded {
			return NewNegatedBytesRange(
				ivals[0].hi, false, !ivals[0].hiExclusive,
				ivals[1].lo, false, !ivals[1].loExclusive,
				nullAllowed)
		}
	}

	members := make([]Filter, len(ivals))
	for i, iv := range ivals {
		members[i] = NewBytesRange(iv.lo, iv.loUnbounded, iv.loExclusive,
			iv.hi, iv.hiUnbounded, iv.hiExclusive, false)
	}

	return NewMultiRange(members, false, nullAllowed)
}

func intersectBytesSorted(a, b [][]byte) [][]byte {
	var out [][]byte
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch bytes.Compare(a[i], b[j]) {
		case 0:
			out = append(out, a[i])
			i++
			j++
		case -1:
			i++
		default:
			j++
		}
	}

	return out
}

func unionBytesSorted(a, b [][]byte) [][]byte {
	out := make([][]byte, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch bytes.Compare(a[i], b[j]) {
		case 0:
			out = append(out, a[i])
			i++
			j++
		case -1:
			out = append(out, a[i])
			i++
		default:
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)

	return out
}

func subtractBytesSorted(a, b [][]byte) [][]byte {
	var out [][]byte
	for _, v := range a {
		if _, found := slices.BinarySearchFunc(b, v, bytes.Compare); !found {
			out = append(out, v)
		}
	}

	return out
}
