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
	"math"
	"slices"
)

// nullOrFalse returns the filter for an empty value intersection:
// only null can still pass, or nothing at all.
func nullOrFalse(nullAllowed bool) Filter {
	if nullAllowed {
		return NewIsNull()
	}

	return NewAlwaysFalse()
}

// int64Interval is an inclusive interval used while intersecting the
// bigint filter family.
type int64Interval struct{ lo, hi int64 }

// bigintIntervals renders a range-shaped bigint filter as an ordered
// list of disjoint inclusive intervals.
func bigintIntervals(f Filter) ([]int64Interval, bool) {
	switch f := f.(type) {
	case *BigintRange:
		return []int64Interval{{f.lower, f.upper}}, true
	case *NegatedBigintRange:
		var out []int64Interval
		if f.Lower() > math.MinInt64 {
			out = append(out, int64Interval{math.MinInt64, f.Lower() - 1})
		}
		if f.Upper() < math.MaxInt64 {
			out = append(out, int64Interval{f.Upper() + 1, math.MaxInt64})
		}

		return out, true
	case *BigintMultiRange:
		out := make([]int64Interval, len(f.ranges))
		for i, r := range f.ranges {
			out[i] = int64Interval{r.lower, r.upper}
		}

		return out, true
	default:
		return nil, false
	}
}

// bigintPoints renders a value-shaped bigint filter as its ascending
// member list plus whether membership is negated.
func bigintPoints(f Filter) (vals []int64, negated, ok bool) {
	switch f := f.(type) {
	case *BigintValuesUsingBitmask:
		return f.Values(), false, true
	case *BigintValuesUsingHashTable:
		return f.values, false, true
	case *NegatedBigintValuesUsingBitmask:
		return f.nonNegated.Values(), true, true
	case *NegatedBigintValuesUsingHashTable:
		return f.nonNegated.values, true, true
	default:
		return nil, false, false
	}
}

// mergeBigint intersects two filters from the bigint family. Filters of
// an unrelated type contribute no common values, leaving null as the
// only candidate.
func mergeBigint(f, other Filter) Filter {
	switch other.Kind() {
	case KindAlwaysTrue, KindAlwaysFalse, KindIsNull, KindIsNotNull:
		return other.MergeWith(f)
	}

	nullAllowed := f.TestNull() && other.TestNull()

	aIvals, aIsRange := bigintIntervals(f)
	bIvals, bIsRange := bigintIntervals(other)
	aVals, aNeg, aIsVals := bigintPoints(f)
	bVals, bNeg, bIsVals := bigintPoints(other)

	switch {
	case aIsRange && bIsRange:
		return filterFromIntervals(intersectIntervals(aIvals, bIvals), nullAllowed)

	case aIsVals && bIsVals:
		switch {
		case !aNeg && !bNeg:
			return NewBigintValues(intersectSorted(aVals, bVals), nullAllowed)
		case aNeg && bNeg:
			return NewNegatedBigintValues(unionSorted(aVals, bVals), nullAllowed)
		case aNeg:
			return NewBigintValues(subtractSorted(bVals, aVals), nullAllowed)
		default:
			return NewBigintValues(subtractSorted(aVals, bVals), nullAllowed)
		}

	case aIsVals && bIsRange:
		return mergePointsWithIntervals(aVals, aNeg, bIvals, nullAllowed)
	case bIsVals && aIsRange:
		return mergePointsWithIntervals(bVals, bNeg, aIvals, nullAllowed)

	default:
		return nullOrFalse(nullAllowed)
	}
}

func mergePointsWithIntervals(vals []int64, negated bool, ivals []int64Interval, nullAllowed bool) Filter {
	if !negated {
		kept := make([]int64, 0, len(vals))
		for _, v := range vals {
			for _, iv := range ivals {
				if v >= iv.lo && v <= iv.hi {
					kept = append(kept, v)

					break
				}
			}
		}

		return NewBigintValues(kept, nullAllowed)
	}

	return filterFromIntervals(subtractPoints(ivals, vals), nullAllowed)
}

// intersectIntervals sweeps two ordered disjoint interval lists and
// returns their ordered intersection.
func intersectIntervals(a, b []int64Interval) []int64Interval {
	var out []int64Interval
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		lo, hi := max(a[i].lo, b[j].lo), min(a[i].hi, b[j].hi)
		if lo <= hi {
			out = append(out, int64Interval{lo, hi})
		}
		if a[i].hi < b[j].hi {
			i++
		} else {
			j++
		}
	}

	return out
}

// subtractPoints removes individual values from an ordered interval
// list, splitting intervals around each removed point.
func subtractPoints(ivals []int64Interval, points []int64) []int64Interval {
	var out []int64Interval
	for _, iv := range ivals {
		lo := iv.lo
		start, _ := slices.BinarySearch(points, iv.lo)
		for _, p := range points[start:] {
			if p > iv.hi {
				break
			}
			if p > lo {
				out = append(out, int64Interval{lo, p - 1})
			}
			if p == math.MaxInt64 {
				return out
			}
			lo = p + 1
		}
		if lo <= iv.hi {
			out = append(out, int64Interval{lo, iv.hi})
		}
	}

	return out
}

// filterFromIntervals builds the most compact filter passing exactly
// the values covered by the ordered disjoint interval list.
func filterFromIntervals(ivals []int64Interval, nullAllowed bool) Filter {
	switch len(ivals) {
	case 0:
		return nullOrFalse(nullAllowed)
	case 1:
		iv := ivals[0]
		if iv.lo == math.MinInt64 && iv.hi == math.MaxInt64 {
			if nullAllowed {
				return NewAlwaysTrue()
			}

			return NewIsNotNull()
		}

		return NewBigintRange(iv.lo, iv.hi, nullAllowed)
	case 2:
		// Two intervals covering everything but one hole negate back
		// into a single range.
		if ivals[0].lo == math.MinInt64 && ivals[1].hi == math.MaxInt64 &&
			ivals[0].hi+1 <= ivals[1].lo-1 {
			return NewNegatedBigintRange(ivals[0].hi+1, ivals[1].lo-1, nullAllowed)
		}
	}

	ranges := make([]*BigintRange, len(ivals))
	for i, iv := range ivals {
		ranges[i] = NewBigintRange(iv.lo, iv.hi, false)
	}

	return NewBigintMultiRange(ranges, nullAllowed)
}

func intersectSorted(a, b []int64) []int64 {
	var out []int64
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}

	return out
}

func unionSorted(a, b []int64) []int64 {
	out := make([]int64, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
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

// subtractSorted returns the members of a absent from b.
func subtractSorted(a, b []int64) []int64 {
	var out []int64
	j := 0
	for _, v := range a {
		for j < len(b) && b[j] < v {
			j++
		}
		if j == len(b) || b[j] != v {
			out = append(out, v)
		}
	}

	return out
}
