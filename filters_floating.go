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
	"fmt"
	"math"
)

// floatingRange carries the bound bookkeeping shared by DoubleRange and
// FloatRange: either bound may be absent or exclusive, and NaN passes
// only when nanAllowed is set. NaN never satisfies an ordered bound, so
// it is handled before any comparison.
type floatingRange[T float32 | float64] struct {
	baseFilter
	lower, upper                   T
	lowerUnbounded, upperUnbounded bool
	lowerExclusive, upperExclusive bool
	nanAllowed                     bool
}

func newFloatingRange[T float32 | float64](
	kind FilterKind,
	lower T, lowerUnbounded, lowerExclusive bool,
	upper T, upperUnbounded, upperExclusive bool,
	nanAllowed, nullAllowed bool,
) floatingRange[T] {
	if !lowerUnbounded && math.IsNaN(float64(lower)) {
		panic(fmt.Errorf("%w: %s lower bound must not be NaN", ErrInvalidArgument, kind))
	}
	if !upperUnbounded && math.IsNaN(float64(upper)) {
		panic(fmt.Errorf("%w: %s upper bound must not be NaN", ErrInvalidArgument, kind))
	}
	if !lowerUnbounded && !upperUnbounded && lower > upper {
		panic(fmt.Errorf("%w: %s requires lower <= upper, got [%v, %v]",
			ErrInvalidArgument, kind, lower, upper))
	}

	return floatingRange[T]{
		baseFilter:     baseFilter{kind: kind, nullAllowed: nullAllowed},
		lower:          lower,
		upper:          upper,
		lowerUnbounded: lowerUnbounded,
		upperUnbounded: upperUnbounded,
		lowerExclusive: lowerExclusive,
		upperExclusive: upperExclusive,
		nanAllowed:     nanAllowed,
	}
}

// NanAllowed reports whether NaN passes the filter.
func (f *floatingRange[T]) NanAllowed() bool { return f.nanAllowed }

func (f *floatingRange[T]) testValue(v T) bool {
	if math.IsNaN(float64(v)) {
		return f.nanAllowed
	}
	if !f.lowerUnbounded {
		if v < f.lower || (f.lowerExclusive && v == f.lower) {
			return false
		}
	}
	if !f.upperUnbounded {
		if v > f.upper || (f.upperExclusive && v == f.upper) {
			return false
		}
	}

	return true
}

// testRange answers whether any value of a unit with min/max stats
// [lo, hi] could pass. Min/max stats do not account for NaN, so a
// NaN-accepting filter can never rule a unit out.
func (f *floatingRange[T]) testRange(lo, hi T) bool {
	if f.nanAllowed || math.IsNaN(float64(lo)) || math.IsNaN(float64(hi)) {
		return true
	}
	if !f.lowerUnbounded {
		if hi < f.lower || (f.lowerExclusive && hi == f.lower) {
			return false
		}
	}
	if !f.upperUnbounded {
		if lo > f.upper || (f.upperExclusive && lo == f.upper) {
			return false
		}
	}

	return true
}

func (f *floatingRange[T]) describeRange() string {
	lo, hi := "(-inf", fmt.Sprintf("%v]", f.upper)
	if !f.lowerUnbounded {
		b := "["
		if f.lowerExclusive {
			b = "("
		}
		lo = fmt.Sprintf("%s%v", b, f.lower)
	}
	if f.upperUnbounded {
		hi = "+inf)"
	} else if f.upperExclusive {
		hi = fmt.Sprintf("%v)", f.upper)
	}
	nan := "nan not allowed"
	if f.nanAllowed {
		nan = "nan allowed"
	}

	return fmt.Sprintf("%s, %s, %s", lo, hi, nan)
}

// mergeFloatingRanges intersects the bounds of two ranges of the same
// width. When the value interval empties but both sides still accept
// NaN, the result is the NaN-only range [+inf, +inf) exclusive on both
// sides.
func mergeFloatingRanges[T float32 | float64](a, b *floatingRange[T], kind FilterKind) Filter {
	nullAllowed := a.nullAllowed && b.nullAllowed
	nanAllowed := a.nanAllowed && b.nanAllowed

	lower, lowerUnbounded, lowerExclusive := a.lower, a.lowerUnbounded, a.lowerExclusive
	switch {
	case lowerUnbounded:
		lower, lowerUnbounded, lowerExclusive = b.lower, b.lowerUnbounded, b.lowerExclusive
	case !b.lowerUnbounded && b.lower > lower:
		lower, lowerExclusive = b.lower, b.lowerExclusive
	case !b.lowerUnbounded && b.lower == lower:
		lowerExclusive = lowerExclusive || b.lowerExclusive
	}

	upper, upperUnbounded, upperExclusive := a.upper, a.upperUnbounded, a.upperExclusive
	switch {
	case upperUnbounded:
		upper, upperUnbounded, upperExclusive = b.upper, b.upperUnbounded, b.upperExclusive
	case !b.upperUnbounded && b.upper < upper:
		upper, upperExclusive = b.upper, b.upperExclusive
	case !b.upperUnbounded && b.upper == upper:
		upperExclusive = upperExclusive || b.upperExclusive
	}

	empty := !lowerUnbounded && !upperUnbounded &&
		(lower > upper || (lower == upper && (lowerExclusive || upperExclusive)))
	if empty {
		if nanAllowed {
			inf := T(math.Inf(1))
			r := newFloatingRange(kind, inf, false, true, inf, false, true, true, nullAllowed)

			return wrapFloatingRange(&r)
		}

		return nullOrFalse(nullAllowed)
	}

	r := newFloatingRange(kind, lower, lowerUnbounded, lowerExclusive,
		upper, upperUnbounded, upperExclusive, nanAllowed, nullAllowed)

	return wrapFloatingRange(&r)
}

func wrapFloatingRange[T float32 | float64](r *floatingRange[T]) Filter {
	switch r.kind {
	case KindDoubleRange:
		return &DoubleRange{*(any(r).(*floatingRange[float64]))}
	default:
		return &FloatRange{*(any(r).(*floatingRange[float32]))}
	}
}

// DoubleRange passes 64-bit floating point values within possibly
// exclusive, possibly absent bounds.
type DoubleRange struct{ floatingRange[float64] }

// NewDoubleRange returns a filter over float64 values. An unbounded
// side ignores its bound value; an exclusive side rejects the bound
// itself. Panics on NaN bounds or lower > upper.
func NewDoubleRange(
	lower float64, lowerUnbounded, lowerExclusive bool,
	upper float64, upperUnbounded, upperExclusive bool,
	nanAllowed, nullAllowed bool,
) *DoubleRange {
	return &DoubleRange{newFloatingRange(KindDoubleRange,
		lower, lowerUnbounded, lowerExclusive,
		upper, upperUnbounded, upperExclusive,
		nanAllowed, nullAllowed)}
}

func (f *DoubleRange) Lower() float64 { return f.lower }
func (f *DoubleRange) Upper() float64 { return f.upper }

func (f *DoubleRange) TestDouble(v float64) bool { return f.testValue(v) }

func (f *DoubleRange) TestDoubleRange(lo, hi float64, hasNull bool) bool {
	if hasNull && f.nullAllowed {
		return true
	}

	return f.testRange(lo, hi)
}

func (f *DoubleRange) MergeWith(other Filter) Filter {
	switch other := other.(type) {
	case *AlwaysTrue, *AlwaysFalse, *IsNull, *IsNotNull:
		return other.MergeWith(f)
	case *DoubleRange:
		return mergeFloatingRanges(&f.floatingRange, &other.floatingRange, KindDoubleRange)
	case *MultiRange:
		return other.MergeWith(f)
	default:
		return nullOrFalse(f.nullAllowed && other.TestNull())
	}
}

func (f *DoubleRange) Clone(nullAllowed ...bool) Filter {
	return NewDoubleRange(f.lower, f.lowerUnbounded, f.lowerExclusive,
		f.upper, f.upperUnbounded, f.upperExclusive,
		f.nanAllowed, nullAllowedOr(f.nullAllowed, nullAllowed))
}

func (f *DoubleRange) String() string { return f.describe(f.describeRange()) }

// FloatRange passes 32-bit floating point values within possibly
// exclusive, possibly absent bounds.
type FloatRange struct{ floatingRange[float32] }

// NewFloatRange returns a filter over float32 values with the same
// bound semantics as NewDoubleRange.
func NewFloatRange(
	lower float32, lowerUnbounded, lowerExclusive bool,
	upper float32, upperUnbounded, upperExclusive bool,
	nanAllowed, nullAllowed bool,
) *FloatRange {
	return &FloatRange{newFloatingRange(KindFloatRange,
		lower, lowerUnbounded, lowerExclusive,
		upper, upperUnbounded, upperExclusive,
		nanAllowed, nullAllowed)}
}

func (f *FloatRange) Lower() float32 { return f.lower }
func (f *FloatRange) Upper() float32 { return f.upper }

func (f *FloatRange) TestFloat(v float32) bool { return f.testValue(v) }

func (f *FloatRange) TestDoubleRange(lo, hi float64, hasNull bool) bool {
	if hasNull && f.nullAllowed {
		return true
	}

	return f.testRange(float32(lo), float32(hi))
}

func (f *FloatRange) MergeWith(other Filter) Filter {
	switch other := other.(type) {
	case *AlwaysTrue, *AlwaysFalse, *IsNull, *IsNotNull:
		return other.MergeWith(f)
	case *FloatRange:
		return mergeFloatingRanges(&f.floatingRange, &other.floatingRange, KindFloatRange)
	case *MultiRange:
		return other.MergeWith(f)
	default:
		return nullOrFalse(f.nullAllowed && other.TestNull())
	}
}

func (f *FloatRange) Clone(nullAllowed ...bool) Filter {
	return NewFloatRange(f.lower, f.lowerUnbounded, f.lowerExclusive,
		f.upper, f.upperUnbounded, f.upperExclusive,
		f.nanAllowed, nullAllowedOr(f.nullAllowed, nullAllowed))
}

func (f *FloatRange) String() string { return f.describe(f.describeRange()) }
