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
	"slices"
	"sort"

	"github.com/apache/arrow-go/v18/arrow/bitutil"
	"github.com/apache/arrow-go/v18/arrow/decimal128"
)

const (
	// hashTableEmptyMarker is the reserved slot value of the bigint hash
	// table. A filter value equal to the marker is tracked out-of-band so
	// probing stays correct even for adversarial inputs.
	hashTableEmptyMarker = int64(-0x2152411045210113) // 0xdeadbeefbadefeed

	// Thresholds choosing the dense bitmask representation over the
	// hash table for bigint value sets.
	maxBitmaskValues = 128
	maxBitmaskSpan   = 64 * 1024
)

// BigintRange passes 64-bit integers in the inclusive range
// [Lower, Upper].
type BigintRange struct {
	baseFilter
	lower, upper int64
}

// NewBigintRange returns a filter passing values in [lower, upper].
// Panics if lower > upper.
func NewBigintRange(lower, upper int64, nullAllowed bool) *BigintRange {
	if lower > upper {
		panic(fmt.Errorf("%w: BigintRange requires lower <= upper, got [%d, %d]",
			ErrInvalidArgument, lower, upper))
	}

	return &BigintRange{
		baseFilter: baseFilter{kind: KindBigintRange, nullAllowed: nullAllowed},
		lower:      lower,
		upper:      upper,
	}
}

func (f *BigintRange) Lower() int64 { return f.lower }
func (f *BigintRange) Upper() int64 { return f.upper }

// IsSingleValue reports whether the range admits exactly one value.
func (f *BigintRange) IsSingleValue() bool { return f.lower == f.upper }

func (f *BigintRange) TestInt64(v int64) bool { return v >= f.lower && v <= f.upper }

func (f *BigintRange) TestInt64Range(lo, hi int64, hasNull bool) bool {
	if hasNull && f.nullAllowed {
		return true
	}

	return lo <= f.upper && hi >= f.lower
}

func (f *BigintRange) MergeWith(other Filter) Filter { return mergeBigint(f, other) }

func (f *BigintRange) Clone(nullAllowed ...bool) Filter {
	return NewBigintRange(f.lower, f.upper, nullAllowedOr(f.nullAllowed, nullAllowed))
}

func (f *BigintRange) String() string {
	return f.describe(fmt.Sprintf("min: %d, max: %d", f.lower, f.upper))
}

// NegatedBigintRange passes 64-bit integers outside the inclusive range
// [Lower, Upper].
type NegatedBigintRange struct {
	baseFilter
	nonNegated *BigintRange
}

// NewNegatedBigintRange returns a filter passing values outside
// [lower, upper]. Panics if lower > upper.
func NewNegatedBigintRange(lower, upper int64, nullAllowed bool) *NegatedBigintRange {
	return &NegatedBigintRange{
		baseFilter: baseFilter{kind: KindNegatedBigintRange, nullAllowed: nullAllowed},
		nonNegated: NewBigintRange(lower, upper, false),
	}
}

func (f *NegatedBigintRange) Lower() int64 { return f.nonNegated.lower }
func (f *NegatedBigintRange) Upper() int64 { return f.nonNegated.upper }

func (f *NegatedBigintRange) TestInt64(v int64) bool { return !f.nonNegated.TestInt64(v) }

func (f *NegatedBigintRange) TestInt64Range(lo, hi int64, hasNull bool) bool {
	if hasNull && f.nullAllowed {
		return true
	}
	// Only fails when every point of [lo, hi] is inside the hole.
	return !(lo >= f.Lower() && hi <= f.Upper())
}

func (f *NegatedBigintRange) MergeWith(other Filter) Filter { return mergeBigint(f, other) }

func (f *NegatedBigintRange) Clone(nullAllowed ...bool) Filter {
	return NewNegatedBigintRange(f.Lower(), f.Upper(),
		nullAllowedOr(f.nullAllowed, nullAllowed))
}

func (f *NegatedBigintRange) String() string {
	return f.describe(fmt.Sprintf("not in [%d, %d]", f.Lower(), f.Upper()))
}

// BigintValuesUsingBitmask passes a dense set of 64-bit integers, kept
// as a bitmap over the span [min, max].
type BigintValuesUsingBitmask struct {
	baseFilter
	min, max int64
	bitmap   []byte
	n        int
}

func newBigintBitmask(values []int64, nullAllowed bool) *BigintValuesUsingBitmask {
	min, max := values[0], values[len(values)-1]
	f := &BigintValuesUsingBitmask{
		baseFilter: baseFilter{kind: KindBigintValuesUsingBitmask, nullAllowed: nullAllowed},
		min:        min,
		max:        max,
		bitmap:     make([]byte, bitutil.BytesForBits(max-min+1)),
		n:          len(values),
	}
	for _, v := range values {
		bitutil.SetBit(f.bitmap, int(v-min))
	}

	return f
}

func (f *BigintValuesUsingBitmask) Min() int64 { return f.min }
func (f *BigintValuesUsingBitmask) Max() int64 { return f.max }

// Values returns the members in ascending order.
func (f *BigintValuesUsingBitmask) Values() []int64 {
	out := make([]int64, 0, f.n)
	for v := f.min; ; v++ {
		if bitutil.BitIsSet(f.bitmap, int(v-f.min)) {
			out = append(out, v)
		}
		if v == f.max {
			break
		}
	}

	return out
}

func (f *BigintValuesUsingBitmask) TestInt64(v int64) bool {
	if v < f.min || v > f.max {
		return false
	}

	return bitutil.BitIsSet(f.bitmap, int(v-f.min))
}

func (f *BigintValuesUsingBitmask) TestInt64Range(lo, hi int64, hasNull bool) bool {
	if hasNull && f.nullAllowed {
		return true
	}
	if lo > f.max || hi < f.min {
		return false
	}
	lo, hi = max(lo, f.min), min(hi, f.max)
	for v := lo; ; v++ {
		if bitutil.BitIsSet(f.bitmap, int(v-f.min)) {
			return true
		}
		if v == hi {
			break
		}
	}

	return false
}

func (f *BigintValuesUsingBitmask) MergeWith(other Filter) Filter { return mergeBigint(f, other) }

func (f *BigintValuesUsingBitmask) Clone(nullAllowed ...bool) Filter {
	return newBigintBitmask(f.Values(), nullAllowedOr(f.nullAllowed, nullAllowed))
}

func (f *BigintValuesUsingBitmask) String() string {
	return f.describe(fmt.Sprintf("%d values in [%d, %d]", f.n, f.min, f.max))
}

// BigintValuesUsingHashTable passes a sparse set of 64-bit integers,
// kept in an open-addressed hash table with linear probing, power-of-two
// size and at most 50% load.
type BigintValuesUsingHashTable struct {
	baseFilter
	min, max            int64
	hashTable           []int64
	sizeMask            uint64
	containsEmptyMarker bool
	values              []int64 // ascending, for range tests and merges
}

func newBigintHashTable(values []int64, nullAllowed bool) *BigintValuesUsingHashTable {
	size := uint64(1)
	for size < uint64(len(values))*2 {
		size <<= 1
	}

	f := &BigintValuesUsingHashTable{
		baseFilter: baseFilter{kind: KindBigintValuesUsingHashTable, nullAllowed: nullAllowed},
		min:        values[0],
		max:        values[len(values)-1],
		hashTable:  make([]int64, size),
		sizeMask:   size - 1,
		values:     slices.Clone(values),
	}
	for i := range f.hashTable {
		f.hashTable[i] = hashTableEmptyMarker
	}
	for _, v := range values {
		if v == hashTableEmptyMarker {
			f.containsEmptyMarker = true

			continue
		}
		pos := bigintHash(v) & f.sizeMask
		for f.hashTable[pos] != hashTableEmptyMarker {
			pos = (pos + 1) & f.sizeMask
		}
		f.hashTable[pos] = v
	}

	return f
}

// bigintHash is a multiplicative 64-bit hash; the constant is the
// murmur64a mixing multiplier.
func bigintHash(v int64) uint64 {
	return uint64(v) * 0xc6a4a7935bd1e995
}

func (f *BigintValuesUsingHashTable) Min() int64      { return f.min }
func (f *BigintValuesUsingHashTable) Max() int64      { return f.max }
func (f *BigintValuesUsingHashTable) Values() []int64 { return f.values }

func (f *BigintValuesUsingHashTable) TestInt64(v int64) bool {
	if v == hashTableEmptyMarker {
		return f.containsEmptyMarker
	}
	if v < f.min || v > f.max {
		return false
	}
	pos := bigintHash(v) & f.sizeMask
	for {
		entry := f.hashTable[pos]
		if entry == hashTableEmptyMarker {
			return false
		}
		if entry == v {
			return true
		}
		pos = (pos + 1) & f.sizeMask
	}
}

func (f *BigintValuesUsingHashTable) TestInt64Range(lo, hi int64, hasNull bool) bool {
	if hasNull && f.nullAllowed {
		return true
	}
	if lo == hi {
		return f.TestInt64(lo)
	}
	if lo > f.max || hi < f.min {
		return false
	}
	i, _ := slices.BinarySearch(f.values, lo)

	return i < len(f.values) && f.values[i] <= hi
}

func (f *BigintValuesUsingHashTable) MergeWith(other Filter) Filter { return mergeBigint(f, other) }

func (f *BigintValuesUsingHashTable) Clone(nullAllowed ...bool) Filter {
	return newBigintHashTable(f.values, nullAllowedOr(f.nullAllowed, nullAllowed))
}

func (f *BigintValuesUsingHashTable) String() string {
	return f.describe(fmt.Sprintf("%d values in [%d, %d]", len(f.values), f.min, f.max))
}

// NegatedBigintValuesUsingBitmask passes 64-bit integers absent from a
// dense rejected set.
type NegatedBigintValuesUsingBitmask struct {
	baseFilter
	nonNegated *BigintValuesUsingBitmask
}

func newNegatedBigintBitmask(values []int64, nullAllowed bool) *NegatedBigintValuesUsingBitmask {
	return &NegatedBigintValuesUsingBitmask{
		baseFilter: baseFilter{kind: KindNegatedBigintValuesUsingBitmask, nullAllowed: nullAllowed},
		nonNegated: newBigintBitmask(values, false),
	}
}

func (f *NegatedBigintValuesUsingBitmask) Values() []int64 { return f.nonNegated.Values() }

func (f *NegatedBigintValuesUsingBitmask) TestInt64(v int64) bool {
	return !f.nonNegated.TestInt64(v)
}

func (f *NegatedBigintValuesUsingBitmask) TestInt64Range(lo, hi int64, hasNull bool) bool {
	if hasNull && f.nullAllowed {
		return true
	}

	return !allValuesRejected(f.nonNegated.Values(), lo, hi)
}

func (f *NegatedBigintValuesUsingBitmask) MergeWith(other Filter) Filter {
	return mergeBigint(f, other)
}

func (f *NegatedBigintValuesUsingBitmask) Clone(nullAllowed ...bool) Filter {
	return newNegatedBigintBitmask(f.nonNegated.Values(),
		nullAllowedOr(f.nullAllowed, nullAllowed))
}

func (f *NegatedBigintValuesUsingBitmask) String() string {
	return f.describe(fmt.Sprintf("%d rejected values in [%d, %d]",
		f.nonNegated.n, f.nonNegated.min, f.nonNegated.max))
}

// NegatedBigintValuesUsingHashTable passes 64-bit integers absent from
// a sparse rejected set.
type NegatedBigintValuesUsingHashTable struct {
	baseFilter
	nonNegated *BigintValuesUsingHashTable
}

func newNegatedBigintHashTable(values []int64, nullAllowed bool) *NegatedBigintValuesUsingHashTable {
	return &NegatedBigintValuesUsingHashTable{
		baseFilter: baseFilter{kind: KindNegatedBigintValuesUsingHashTable, nullAllowed: nullAllowed},
		nonNegated: newBigintHashTable(values, false),
	}
}

func (f *NegatedBigintValuesUsingHashTable) Values() []int64 { return f.nonNegated.values }

func (f *NegatedBigintValuesUsingHashTable) TestInt64(v int64) bool {
	return !f.nonNegated.TestInt64(v)
}

func (f *NegatedBigintValuesUsingHashTable) TestInt64Range(lo, hi int64, hasNull bool) bool {
	if hasNull && f.nullAllowed {
		return true
	}

	return !allValuesRejected(f.nonNegated.values, lo, hi)
}

func (f *NegatedBigintValuesUsingHashTable) MergeWith(other Filter) Filter {
	return mergeBigint(f, other)
}

func (f *NegatedBigintValuesUsingHashTable) Clone(nullAllowed ...bool) Filter {
	return newNegatedBigintHashTable(f.nonNegated.values,
		nullAllowedOr(f.nullAllowed, nullAllowed))
}

func (f *NegatedBigintValuesUsingHashTable) String() string {
	return f.describe(fmt.Sprintf("%d rejected values in [%d, %d]",
		len(f.nonNegated.values), f.nonNegated.min, f.nonNegated.max))
}

// allValuesRejected reports whether every point of [lo, hi] appears in
// the ascending rejected list, i.e. whether nothing in the interval can
// pass a negated values filter.
func allValuesRejected(rejected []int64, lo, hi int64) bool {
	span := uint64(hi) - uint64(lo) + 1
	if span == 0 || span > uint64(len(rejected)) {
		return false
	}
	i, found := slices.BinarySearch(rejected, lo)
	if !found {
		return false
	}
	// Rejected values are distinct and sorted, so covering the interval
	// means exactly span consecutive entries starting at lo.
	j := i + int(span) - 1

	return j < len(rejected) && rejected[j] == hi
}

// BigintMultiRange passes 64-bit integers contained in any of an
// ordered list of disjoint ranges.
type BigintMultiRange struct {
	baseFilter
	ranges      []*BigintRange
	lowerBounds []int64
}

// NewBigintMultiRange returns the union of the given ranges. Ranges
// must be sorted ascending and pairwise disjoint. Panics on empty or
// unordered input.
func NewBigintMultiRange(ranges []*BigintRange, nullAllowed bool) *BigintMultiRange {
	if len(ranges) == 0 {
		panic(fmt.Errorf("%w: BigintMultiRange requires at least one range", ErrInvalidArgument))
	}

	f := &BigintMultiRange{
		baseFilter:  baseFilter{kind: KindBigintMultiRange, nullAllowed: nullAllowed},
		ranges:      slices.Clone(ranges),
		lowerBounds: make([]int64, len(ranges)),
	}
	for i, r := range ranges {
		f.lowerBounds[i] = r.lower
		if i > 0 && r.lower <= ranges[i-1].upper {
			panic(fmt.Errorf("%w: BigintMultiRange ranges must be disjoint and ordered",
				ErrInvalidArgument))
		}
	}

	return f
}

// Ranges returns the ordered disjoint member ranges.
func (f *BigintMultiRange) Ranges() []*BigintRange { return f.ranges }

func (f *BigintMultiRange) TestInt64(v int64) bool {
	i := sort.Search(len(f.lowerBounds), func(i int) bool { return f.lowerBounds[i] > v })
	if i == 0 {
		return false
	}

	return f.ranges[i-1].TestInt64(v)
}

func (f *BigintMultiRange) TestInt64Range(lo, hi int64, hasNull bool) bool {
	if hasNull && f.nullAllowed {
		return true
	}
	for _, r := range f.ranges {
		if r.TestInt64Range(lo, hi, hasNull) {
			return true
		}
	}

	return false
}

func (f *BigintMultiRange) MergeWith(other Filter) Filter { return mergeBigint(f, other) }

func (f *BigintMultiRange) Clone(nullAllowed ...bool) Filter {
	return NewBigintMultiRange(f.ranges, nullAllowedOr(f.nullAllowed, nullAllowed))
}

func (f *BigintMultiRange) String() string {
	return f.describe(fmt.Sprintf("%d ranges, min: %d, max: %d",
		len(f.ranges), f.ranges[0].lower, f.ranges[len(f.ranges)-1].upper))
}

// NewBigintValues returns the most compact filter passing exactly the
// given values: a range when contiguous, a bitmask when dense, a hash
// table otherwise.
func NewBigintValues(values []int64, nullAllowed bool) Filter {
	vals := slices.Clone(values)
	slices.Sort(vals)
	vals = slices.Compact(vals)

	switch {
	case len(vals) == 0:
		if nullAllowed {
			return NewIsNull()
		}

		return NewAlwaysFalse()
	case len(vals) == 1:
		return NewBigintRange(vals[0], vals[0], nullAllowed)
	}

	min, max := vals[0], vals[len(vals)-1]
	if uint64(max)-uint64(min) == uint64(len(vals))-1 {
		return NewBigintRange(min, max, nullAllowed)
	}
	if len(vals) <= maxBitmaskValues && uint64(max)-uint64(min) <= maxBitmaskSpan {
		return newBigintBitmask(vals, nullAllowed)
	}

	return newBigintHashTable(vals, nullAllowed)
}

// NewNegatedBigintValues returns the most compact filter rejecting
// exactly the given values.
func NewNegatedBigintValues(values []int64, nullAllowed bool) Filter {
	vals := slices.Clone(values)
	slices.Sort(vals)
	vals = slices.Compact(vals)

	switch {
	case len(vals) == 0:
		if nullAllowed {
			return NewAlwaysTrue()
		}

		return NewIsNotNull()
	}

	min, max := vals[0], vals[len(vals)-1]
	if uint64(max)-uint64(min) == uint64(len(vals))-1 {
		return NewNegatedBigintRange(min, max, nullAllowed)
	}
	if len(vals) <= maxBitmaskValues && uint64(max)-uint64(min) <= maxBitmaskSpan {
		return newNegatedBigintBitmask(vals, nullAllowed)
	}

	return newNegatedBigintHashTable(vals, nullAllowed)
}

// HugeintRange passes 128-bit integers in the inclusive range
// [Lower, Upper].
type HugeintRange struct {
	baseFilter
	lower, upper decimal128.Num
}

// NewHugeintRange returns a filter passing 128-bit values in
// [lower, upper]. Panics if lower > upper.
func NewHugeintRange(lower, upper decimal128.Num, nullAllowed bool) *HugeintRange {
	if cmpInt128(lower, upper) > 0 {
		panic(fmt.Errorf("%w: HugeintRange requires lower <= upper", ErrInvalidArgument))
	}

	return &HugeintRange{
		baseFilter: baseFilter{kind: KindHugeintRange, nullAllowed: nullAllowed},
		lower:      lower,
		upper:      upper,
	}
}

func (f *HugeintRange) Lower() decimal128.Num { return f.lower }
func (f *HugeintRange) Upper() decimal128.Num { return f.upper }

func (f *HugeintRange) TestInt128(v decimal128.Num) bool {
	return cmpInt128(v, f.lower) >= 0 && cmpInt128(v, f.upper) <= 0
}

func (f *HugeintRange) TestInt128Range(lo, hi decimal128.Num, hasNull bool) bool {
	if hasNull && f.nullAllowed {
		return true
	}

	return cmpInt128(lo, f.upper) <= 0 && cmpInt128(hi, f.lower) >= 0
}

func (f *HugeintRange) MergeWith(other Filter) Filter {
	switch other.Kind() {
	case KindAlwaysTrue, KindAlwaysFalse, KindIsNull, KindIsNotNull:
		return other.MergeWith(f)
	case KindHugeintRange:
		o := other.(*HugeintRange)
		nullAllowed := f.nullAllowed && o.nullAllowed
		lo, hi := maxInt128(f.lower, o.lower), minInt128(f.upper, o.upper)
		if cmpInt128(lo, hi) > 0 {
			return nullOrFalse(nullAllowed)
		}

		return NewHugeintRange(lo, hi, nullAllowed)
	default:
		return nullOrFalse(f.nullAllowed && other.TestNull())
	}
}

func (f *HugeintRange) Clone(nullAllowed ...bool) Filter {
	return NewHugeintRange(f.lower, f.upper, nullAllowedOr(f.nullAllowed, nullAllowed))
}

func (f *HugeintRange) String() string {
	return f.describe(fmt.Sprintf("min: %s, max: %s",
		f.lower.BigInt().String(), f.upper.BigInt().String()))
}

// cmpInt128 compares two 128-bit integers as signed values.
func cmpInt128(a, b decimal128.Num) int {
	if a.HighBits() != b.HighBits() {
		return cmp.Compare(a.HighBits(), b.HighBits())
	}

	return cmp.Compare(a.LowBits(), b.LowBits())
}

func minInt128(a, b decimal128.Num) decimal128.Num {
	if cmpInt128(a, b) <= 0 {
		return a
	}

	return b
}

func maxInt128(a, b decimal128.Num) decimal128.Num {
	if cmpInt128(a, b) >= 0 {
		return a
	}

	return b
}
