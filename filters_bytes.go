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
	"slices"

	"github.com/twmb/murmur3"
)

// BytesRange passes byte strings within possibly exclusive, possibly
// absent bounds, compared lexicographically.
type BytesRange struct {
	baseFilter
	lower, upper                   []byte
	lowerUnbounded, upperUnbounded bool
	lowerExclusive, upperExclusive bool
	singleValue                    bool
}

// NewBytesRange returns a filter over byte strings. An unbounded side
// ignores its bound value; an exclusive side rejects the bound itself.
// Panics if both sides are bounded and lower > upper.
func NewBytesRange(
	lower []byte, lowerUnbounded, lowerExclusive bool,
	upper []byte, upperUnbounded, upperExclusive bool,
	nullAllowed bool,
) *BytesRange {
	if !lowerUnbounded && !upperUnbounded && bytes.Compare(lower, upper) > 0 {
		panic(fmt.Errorf("%w: BytesRange requires lower <= upper, got [%q, %q]",
			ErrInvalidArgument, lower, upper))
	}

	return &BytesRange{
		baseFilter:     baseFilter{kind: KindBytesRange, nullAllowed: nullAllowed},
		lower:          slices.Clone(lower),
		upper:          slices.Clone(upper),
		lowerUnbounded: lowerUnbounded,
		upperUnbounded: upperUnbounded,
		lowerExclusive: lowerExclusive,
		upperExclusive: upperExclusive,
		singleValue: !lowerUnbounded && !upperUnbounded &&
			!lowerExclusive && !upperExclusive && bytes.Equal(lower, upper),
	}
}

func (f *BytesRange) Lower() []byte { return f.lower }
func (f *BytesRange) Upper() []byte { return f.upper }

// IsSingleValue reports whether the range admits exactly one string.
func (f *BytesRange) IsSingleValue() bool { return f.singleValue }

func (f *BytesRange) TestBytes(v []byte) bool {
	if f.singleValue {
		return bytes.Equal(v, f.lower)
	}
	if !f.lowerUnbounded {
		c := bytes.Compare(v, f.lower)
		if c < 0 || (f.lowerExclusive && c == 0) {
			return false
		}
	}
	if !f.upperUnbounded {
		c := bytes.Compare(v, f.upper)
		if c > 0 || (f.upperExclusive && c == 0) {
			return false
		}
	}

	return true
}

func (f *BytesRange) TestLength(n int) bool {
	return !f.singleValue || len(f.lower) == n
}

func (f *BytesRange) TestBytesRange(lo, hi []byte, hasNull bool) bool {
	if hasNull && f.nullAllowed {
		return true
	}
	if !f.lowerUnbounded && hi != nil {
		c := bytes.Compare(hi, f.lower)
		if c < 0 || (f.lowerExclusive && c == 0) {
			return false
		}
	}
	if !f.upperUnbounded && lo != nil {
		c := bytes.Compare(lo, f.upper)
		if c > 0 || (f.upperExclusive && c == 0) {
			return false
		}
	}

	return true
}

func (f *BytesRange) MergeWith(other Filter) Filter { return mergeBytes(f, other) }

func (f *BytesRange) Clone(nullAllowed ...bool) Filter {
	return NewBytesRange(f.lower, f.lowerUnbounded, f.lowerExclusive,
		f.upper, f.upperUnbounded, f.upperExclusive,
		nullAllowedOr(f.nullAllowed, nullAllowed))
}

func (f *BytesRange) String() string {
	lo, hi := "(...", "...)"
	if !f.lowerUnbounded {
		b := "["
		if f.lowerExclusive {
			b = "("
		}
		lo = fmt.Sprintf("%s%q", b, f.lower)
	}
	if !f.upperUnbounded {
		b := "]"
		if f.upperExclusive {
			b = ")"
		}
		hi = fmt.Sprintf("%q%s", f.upper, b)
	}

	return f.describe(fmt.Sprintf("%s, %s", lo, hi))
}

// NegatedBytesRange passes byte strings outside a bounded hole.
type NegatedBytesRange struct {
	baseFilter
	nonNegated *BytesRange
}

// NewNegatedBytesRange returns a filter passing strings outside the
// given range, with the same bound semantics as NewBytesRange.
func NewNegatedBytesRange(
	lower []byte, lowerUnbounded, lowerExclusive bool,
	upper []byte, upperUnbounded, upperExclusive bool,
	nullAllowed bool,
) *NegatedBytesRange {
	return &NegatedBytesRange{
		baseFilter: baseFilter{kind: KindNegatedBytesRange, nullAllowed: nullAllowed},
		nonNegated: NewBytesRange(lower, lowerUnbounded, lowerExclusive,
			upper, upperUnbounded, upperExclusive, false),
	}
}

func (f *NegatedBytesRange) Lower() []byte { return f.nonNegated.lower }
func (f *NegatedBytesRange) Upper() []byte { return f.nonNegated.upper }

func (f *NegatedBytesRange) TestBytes(v []byte) bool { return !f.nonNegated.TestBytes(v) }

func (f *NegatedBytesRange) TestLength(int) bool { return true }

func (f *NegatedBytesRange) TestBytesRange(lo, hi []byte, hasNull bool) bool {
	if hasNull && f.nullAllowed {
		return true
	}
	// Fails only when the whole stats interval sits inside the hole.
	return !(lo != nil && hi != nil &&
		f.nonNegated.TestBytes(lo) && f.nonNegated.TestBytes(hi))
}

func (f *NegatedBytesRange) MergeWith(other Filter) Filter { return mergeBytes(f, other) }

func (f *NegatedBytesRange) Clone(nullAllowed ...bool) Filter {
	return NewNegatedBytesRange(
		f.nonNegated.lower, f.nonNegated.lowerUnbounded, f.nonNegated.lowerExclusive,
		f.nonNegated.upper, f.nonNegated.upperUnbounded, f.nonNegated.upperExclusive,
		nullAllowedOr(f.nullAllowed, nullAllowed))
}

func (f *NegatedBytesRange) String() string {
	return f.describe(fmt.Sprintf("not in [%q, %q]", f.Lower(), f.Upper()))
}

// BytesValues passes byte strings that are members of a fixed set. The
// set is probed by 64-bit murmur3 hash with a length pre-test so most
// misses never touch the byte comparison.
type BytesValues struct {
	baseFilter
	values   [][]byte // ascending, deduped
	buckets  map[uint64][][]byte
	lengths  map[int]struct{}
	min, max []byte
}

// NewBytesValues returns a filter passing exactly the given strings.
// With no values only null can pass.
func NewBytesValues(values [][]byte, nullAllowed bool) Filter {
	vals := make([][]byte, 0, len(values))
	for _, v := range values {
		vals = append(vals, slices.Clone(v))
	}
	slices.SortFunc(vals, bytes.Compare)
	vals = slices.CompactFunc(vals, bytes.Equal)

	switch len(vals) {
	case 0:
		return nullOrFalse(nullAllowed)
	case 1:
		return NewBytesRange(vals[0], false, false, vals[0], false, false, nullAllowed)
	}

	f := &BytesValues{
		baseFilter: baseFilter{kind: KindBytesValues, nullAllowed: nullAllowed},
		values:     vals,
		buckets:    make(map[uint64][][]byte, len(vals)),
		lengths:    make(map[int]struct{}),
		min:        vals[0],
		max:        vals[len(vals)-1],
	}
	for _, v := range vals {
		h := murmur3.Sum64(v)
		f.buckets[h] = append(f.buckets[h], v)
		f.lengths[len(v)] = struct{}{}
	}

	return f
}

// Values returns the members in ascending order.
func (f *BytesValues) Values() [][]byte { return f.values }

func (f *BytesValues) TestBytes(v []byte) bool {
	if _, ok := f.lengths[len(v)]; !ok {
		return false
	}
	for _, m := range f.buckets[murmur3.Sum64(v)] {
		if bytes.Equal(m, v) {
			return true
		}
	}

	return false
}

func (f *BytesValues) TestLength(n int) bool {
	_, ok := f.lengths[n]

	return ok
}

func (f *BytesValues) TestBytesRange(lo, hi []byte, hasNull bool) bool {
	if hasNull && f.nullAllowed {
		return true
	}
	if lo != nil && hi != nil && bytes.Equal(lo, hi) {
		return f.TestBytes(lo)
	}
	if lo != nil && bytes.Compare(lo, f.max) > 0 {
		return false
	}
	if hi != nil && bytes.Compare(hi, f.min) < 0 {
		return false
	}

	return true
}

func (f *BytesValues) MergeWith(other Filter) Filter { return mergeBytes(f, other) }

func (f *BytesValues) Clone(nullAllowed ...bool) Filter {
	return NewBytesValues(f.values, nullAllowedOr(f.nullAllowed, nullAllowed))
}

func (f *BytesValues) String() string {
	return f.describe(fmt.Sprintf("%d values in [%q, %q]", len(f.values), f.min, f.max))
}

// NegatedBytesValues passes byte strings absent from a fixed rejected
// set.
type NegatedBytesValues struct {
	baseFilter
	nonNegated *BytesValues
}

// NewNegatedBytesValues returns a filter rejecting exactly the given
// strings.
func NewNegatedBytesValues(values [][]byte, nullAllowed bool) Filter {
	if len(values) == 0 {
		if nullAllowed {
			return NewAlwaysTrue()
		}

		return NewIsNotNull()
	}
	inner := NewBytesValues(values, false)
	positive, ok := inner.(*BytesValues)
	if !ok {
		// Single distinct value folds to a range; negate it directly.
		r := inner.(*BytesRange)

		return NewNegatedBytesRange(r.lower, false, false, r.upper, false, false, nullAllowed)
	}

	return &NegatedBytesValues{
		baseFilter: baseFilter{kind: KindNegatedBytesValues, nullAllowed: nullAllowed},
		nonNegated: positive,
	}
}

// Values returns the rejected strings in ascending order.
func (f *NegatedBytesValues) Values() [][]byte { return f.nonNegated.values }

func (f *NegatedBytesValues) TestBytes(v []byte) bool { return !f.nonNegated.TestBytes(v) }

func (f *NegatedBytesValues) TestLength(int) bool { return true }

func (f *NegatedBytesValues) TestBytesRange(lo, hi []byte, hasNull bool) bool {
	if hasNull && f.nullAllowed {
		return true
	}
	// A single-point interval is the only case stats can rule out.
	return !(lo != nil && hi != nil && bytes.Equal(lo, hi) && f.nonNegated.TestBytes(lo))
}

func (f *NegatedBytesValues) MergeWith(other Filter) Filter { return mergeBytes(f, other) }

func (f *NegatedBytesValues) Clone(nullAllowed ...bool) Filter {
	return NewNegatedBytesValues(f.nonNegated.values,
		nullAllowedOr(f.nullAllowed, nullAllowed))
}

func (f *NegatedBytesValues) String() string {
	return f.describe(fmt.Sprintf("%d rejected values", len(f.nonNegated.values)))
}

// TimestampRange passes timestamps in the inclusive range
// [Lower, Upper].
type TimestampRange struct {
	baseFilter
	lower, upper Timestamp
}

// NewTimestampRange returns a filter passing timestamps in
// [lower, upper]. Panics if lower > upper.
func NewTimestampRange(lower, upper Timestamp, nullAllowed bool) *TimestampRange {
	if lower.After(upper) {
		panic(fmt.Errorf("%w: TimestampRange requires lower <= upper, got [%s, %s]",
			ErrInvalidArgument, lower, upper))
	}

	return &TimestampRange{
		baseFilter: baseFilter{kind: KindTimestampRange, nullAllowed: nullAllowed},
		lower:      lower,
		upper:      upper,
	}
}

func (f *TimestampRange) Lower() Timestamp { return f.lower }
func (f *TimestampRange) Upper() Timestamp { return f.upper }

// IsSingleValue reports whether the range admits exactly one timestamp.
func (f *TimestampRange) IsSingleValue() bool { return f.lower == f.upper }

func (f *TimestampRange) TestTimestamp(v Timestamp) bool {
	return !v.Before(f.lower) && !v.After(f.upper)
}

func (f *TimestampRange) TestTimestampRange(lo, hi Timestamp, hasNull bool) bool {
	if hasNull && f.nullAllowed {
		return true
	}

	return !lo.After(f.upper) && !hi.Before(f.lower)
}

func (f *TimestampRange) MergeWith(other Filter) Filter {
	switch other := other.(type) {
	case *AlwaysTrue, *AlwaysFalse, *IsNull, *IsNotNull:
		return other.MergeWith(f)
	case *TimestampRange:
		nullAllowed := f.nullAllowed && other.nullAllowed
		lo, hi := f.lower, f.upper
		if other.lower.After(lo) {
			lo = other.lower
		}
		if other.upper.Before(hi) {
			hi = other.upper
		}
		if lo.After(hi) {
			return nullOrFalse(nullAllowed)
		}

		return NewTimestampRange(lo, hi, nullAllowed)
	default:
		return nullOrFalse(f.nullAllowed && other.TestNull())
	}
}

func (f *TimestampRange) Clone(nullAllowed ...bool) Filter {
	return NewTimestampRange(f.lower, f.upper, nullAllowedOr(f.nullAllowed, nullAllowed))
}

func (f *TimestampRange) String() string {
	return f.describe(fmt.Sprintf("min: %s, max: %s", f.lower, f.upper))
}
