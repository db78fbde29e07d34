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

	"github.com/apache/arrow-go/v18/arrow/decimal128"
)

// FilterKind identifies the concrete variant of a Filter. The set of
// kinds is closed; readers dispatch decode kernels on it and MergeWith
// uses it for pairwise intersection rules.
type FilterKind int

const (
	KindAlwaysFalse FilterKind = iota
	KindAlwaysTrue
	KindIsNull
	KindIsNotNull
	KindBoolValue
	KindBigintRange
	KindNegatedBigintRange
	KindBigintValuesUsingBitmask
	KindBigintValuesUsingHashTable
	KindNegatedBigintValuesUsingBitmask
	KindNegatedBigintValuesUsingHashTable
	KindBigintMultiRange
	KindHugeintRange
	KindDoubleRange
	KindFloatRange
	KindBytesRange
	KindNegatedBytesRange
	KindBytesValues
	KindNegatedBytesValues
	KindTimestampRange
	KindMultiRange
)

var filterKindNames = [...]string{
	"AlwaysFalse",
	"AlwaysTrue",
	"IsNull",
	"IsNotNull",
	"BoolValue",
	"BigintRange",
	"NegatedBigintRange",
	"BigintValuesUsingBitmask",
	"BigintValuesUsingHashTable",
	"NegatedBigintValuesUsingBitmask",
	"NegatedBigintValuesUsingHashTable",
	"BigintMultiRange",
	"HugeintRange",
	"DoubleRange",
	"FloatRange",
	"BytesRange",
	"NegatedBytesRange",
	"BytesValues",
	"NegatedBytesValues",
	"TimestampRange",
	"MultiRange",
}

func (k FilterKind) String() string {
	if int(k) < len(filterKindNames) {
		return filterKindNames[k]
	}

	return fmt.Sprintf("FilterKind(%d)", int(k))
}

// Filter is a pushdown predicate over a single column. Implementations
// form a closed family: the only way to obtain one is through the
// constructors in this package or through MergeWith.
//
// Test methods answer whether a single value passes the filter. Null is
// never conflated with a value test; it is tested exclusively through
// TestNull. Values of a type the filter does not understand never pass.
//
// TestXRange methods answer whether *any* value in the inclusive
// interval [lo, hi] could pass, given whether the containing unit also
// has nulls. They are used for stats-based skipping and must never
// return false when a passing value exists.
type Filter interface {
	fmt.Stringer

	Kind() FilterKind
	// NullAllowed reports whether null values pass this filter.
	NullAllowed() bool
	// Deterministic reports whether the filter gives the same result
	// for the same value on every call. All filters in this family are
	// deterministic; the method exists so readers can assume it.
	Deterministic() bool

	TestNull() bool
	// TestNonNull reports whether any non-null value could pass.
	TestNonNull() bool
	TestBool(v bool) bool
	TestInt64(v int64) bool
	TestInt128(v decimal128.Num) bool
	TestDouble(v float64) bool
	TestFloat(v float32) bool
	TestBytes(v []byte) bool
	// TestLength is a cheap pre-test on string/binary length used while
	// decoding dictionary and direct encodings.
	TestLength(n int) bool
	TestTimestamp(v Timestamp) bool

	TestInt64Range(lo, hi int64, hasNull bool) bool
	TestInt128Range(lo, hi decimal128.Num, hasNull bool) bool
	TestDoubleRange(lo, hi float64, hasNull bool) bool
	// TestBytesRange treats a nil bound as unbounded.
	TestBytesRange(lo, hi []byte, hasNull bool) bool
	TestTimestampRange(lo, hi Timestamp, hasNull bool) bool

	// MergeWith returns a filter that passes exactly the values (and
	// null) passing both this filter and other. Merge is commutative
	// and associative.
	MergeWith(other Filter) Filter
	// Clone returns a copy, optionally overriding the null policy.
	Clone(nullAllowed ...bool) Filter

	isFilter()
}

// baseFilter carries the kind and null policy shared by every variant
// and supplies the conservative defaults: scalar tests of a mismatched
// type fail, range tests cannot prove exclusion.
type baseFilter struct {
	kind        FilterKind
	nullAllowed bool
}

func (b *baseFilter) Kind() FilterKind    { return b.kind }
func (b *baseFilter) NullAllowed() bool   { return b.nullAllowed }
func (b *baseFilter) Deterministic() bool { return true }
func (b *baseFilter) TestNull() bool      { return b.nullAllowed }
func (b *baseFilter) TestNonNull() bool   { return true }

func (b *baseFilter) TestBool(bool) bool               { return false }
func (b *baseFilter) TestInt64(int64) bool             { return false }
func (b *baseFilter) TestInt128(decimal128.Num) bool   { return false }
func (b *baseFilter) TestDouble(float64) bool          { return false }
func (b *baseFilter) TestFloat(float32) bool           { return false }
func (b *baseFilter) TestBytes([]byte) bool            { return false }
func (b *baseFilter) TestLength(int) bool              { return false }
func (b *baseFilter) TestTimestamp(Timestamp) bool     { return false }

func (b *baseFilter) TestInt64Range(_, _ int64, _ bool) bool                  { return true }
func (b *baseFilter) TestInt128Range(_, _ decimal128.Num, _ bool) bool        { return true }
func (b *baseFilter) TestDoubleRange(_, _ float64, _ bool) bool               { return true }
func (b *baseFilter) TestBytesRange(_, _ []byte, _ bool) bool                 { return true }
func (b *baseFilter) TestTimestampRange(_, _ Timestamp, _ bool) bool          { return true }

func (b *baseFilter) isFilter() {}

func (b *baseFilter) describe(extra string) string {
	nulls := "null not allowed"
	if b.nullAllowed {
		nulls = "null allowed"
	}
	if extra != "" {
		return fmt.Sprintf("Filter(%s, deterministic, %s, %s)", b.kind, nulls, extra)
	}

	return fmt.Sprintf("Filter(%s, deterministic, %s)", b.kind, nulls)
}

// nullAllowedOr resolves the optional Clone override.
func nullAllowedOr(current bool, override []bool) bool {
	if len(override) > 0 {
		return override[0]
	}

	return current
}

// AlwaysTrue passes every value including null.
type AlwaysTrue struct{ baseFilter }

// NewAlwaysTrue returns the filter passing everything.
func NewAlwaysTrue() *AlwaysTrue {
	return &AlwaysTrue{baseFilter{kind: KindAlwaysTrue, nullAllowed: true}}
}

func (*AlwaysTrue) TestBool(bool) bool             { return true }
func (*AlwaysTrue) TestInt64(int64) bool           { return true }
func (*AlwaysTrue) TestInt128(decimal128.Num) bool { return true }
func (*AlwaysTrue) TestDouble(float64) bool        { return true }
func (*AlwaysTrue) TestFloat(float32) bool         { return true }
func (*AlwaysTrue) TestBytes([]byte) bool          { return true }
func (*AlwaysTrue) TestLength(int) bool            { return true }
func (*AlwaysTrue) TestTimestamp(Timestamp) bool   { return true }

func (f *AlwaysTrue) MergeWith(other Filter) Filter { return other.Clone() }
func (f *AlwaysTrue) Clone(nullAllowed ...bool) Filter {
	if !nullAllowedOr(true, nullAllowed) {
		return NewIsNotNull()
	}

	return NewAlwaysTrue()
}
func (f *AlwaysTrue) String() string { return f.describe("") }

// AlwaysFalse passes nothing, not even null.
type AlwaysFalse struct{ baseFilter }

// NewAlwaysFalse returns the filter rejecting everything.
func NewAlwaysFalse() *AlwaysFalse {
	return &AlwaysFalse{baseFilter{kind: KindAlwaysFalse}}
}

func (*AlwaysFalse) TestNonNull() bool { return false }

func (*AlwaysFalse) TestInt64Range(_, _ int64, _ bool) bool           { return false }
func (*AlwaysFalse) TestInt128Range(_, _ decimal128.Num, _ bool) bool { return false }
func (*AlwaysFalse) TestDoubleRange(_, _ float64, _ bool) bool        { return false }
func (*AlwaysFalse) TestBytesRange(_, _ []byte, _ bool) bool          { return false }
func (*AlwaysFalse) TestTimestampRange(_, _ Timestamp, _ bool) bool   { return false }

func (f *AlwaysFalse) MergeWith(Filter) Filter    { return NewAlwaysFalse() }
func (f *AlwaysFalse) Clone(...bool) Filter       { return NewAlwaysFalse() }
func (f *AlwaysFalse) String() string             { return f.describe("") }

// IsNull passes only null.
type IsNull struct{ baseFilter }

// NewIsNull returns the filter passing only null values.
func NewIsNull() *IsNull {
	return &IsNull{baseFilter{kind: KindIsNull, nullAllowed: true}}
}

func (*IsNull) TestNonNull() bool { return false }

func (*IsNull) TestInt64Range(_, _ int64, hasNull bool) bool           { return hasNull }
func (*IsNull) TestInt128Range(_, _ decimal128.Num, hasNull bool) bool { return hasNull }
func (*IsNull) TestDoubleRange(_, _ float64, hasNull bool) bool        { return hasNull }
func (*IsNull) TestBytesRange(_, _ []byte, hasNull bool) bool          { return hasNull }
func (*IsNull) TestTimestampRange(_, _ Timestamp, hasNull bool) bool   { return hasNull }

func (f *IsNull) MergeWith(other Filter) Filter {
	if other.TestNull() {
		return NewIsNull()
	}

	return NewAlwaysFalse()
}

func (f *IsNull) Clone(nullAllowed ...bool) Filter {
	if !nullAllowedOr(true, nullAllowed) {
		return NewAlwaysFalse()
	}

	return NewIsNull()
}
func (f *IsNull) String() string { return f.describe("") }

// IsNotNull passes every non-null value.
type IsNotNull struct{ baseFilter }

// NewIsNotNull returns the filter passing all non-null values.
func NewIsNotNull() *IsNotNull {
	return &IsNotNull{baseFilter{kind: KindIsNotNull}}
}

func (*IsNotNull) TestBool(bool) bool             { return true }
func (*IsNotNull) TestInt64(int64) bool           { return true }
func (*IsNotNull) TestInt128(decimal128.Num) bool { return true }
func (*IsNotNull) TestDouble(float64) bool        { return true }
func (*IsNotNull) TestFloat(float32) bool         { return true }
func (*IsNotNull) TestBytes([]byte) bool          { return true }
func (*IsNotNull) TestLength(int) bool            { return true }
func (*IsNotNull) TestTimestamp(Timestamp) bool   { return true }

func (f *IsNotNull) MergeWith(other Filter) Filter { return other.Clone(false) }
func (f *IsNotNull) Clone(nullAllowed ...bool) Filter {
	if nullAllowedOr(false, nullAllowed) {
		return NewAlwaysTrue()
	}

	return NewIsNotNull()
}
func (f *IsNotNull) String() string { return f.describe("") }

// BoolValue passes a single boolean value.
type BoolValue struct {
	baseFilter
	value bool
}

// NewBoolValue returns a filter passing only the given boolean.
func NewBoolValue(value, nullAllowed bool) *BoolValue {
	return &BoolValue{
		baseFilter: baseFilter{kind: KindBoolValue, nullAllowed: nullAllowed},
		value:      value,
	}
}

func (f *BoolValue) Value() bool          { return f.value }
func (f *BoolValue) TestBool(v bool) bool { return v == f.value }

func (f *BoolValue) MergeWith(other Filter) Filter {
	nullAllowed := f.nullAllowed && other.TestNull()
	switch other.Kind() {
	case KindAlwaysTrue, KindIsNotNull:
		return NewBoolValue(f.value, nullAllowed)
	case KindAlwaysFalse:
		return NewAlwaysFalse()
	case KindIsNull:
		if f.nullAllowed {
			return NewIsNull()
		}

		return NewAlwaysFalse()
	case KindBoolValue:
		if other.TestBool(f.value) {
			return NewBoolValue(f.value, nullAllowed)
		}
		if nullAllowed {
			return NewIsNull()
		}

		return NewAlwaysFalse()
	default:
		return NewAlwaysFalse()
	}
}

func (f *BoolValue) Clone(nullAllowed ...bool) Filter {
	return NewBoolValue(f.value, nullAllowedOr(f.nullAllowed, nullAllowed))
}

func (f *BoolValue) String() string {
	return f.describe(fmt.Sprintf("value: %t", f.value))
}
