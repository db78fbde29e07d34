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
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/bitutil"
)

// Batch kernels evaluate a filter over a whole column chunk at once,
// writing one bit per lane. Lane i of the output equals the scalar test
// of lane i; the kernels exist so hot filter kinds run as tight loops
// over concrete types instead of per-value interface dispatch.
//
// The output bitmap must hold at least len(values) bits. Bits are
// written unconditionally.

// TestInt64Batch evaluates f against a chunk of 64-bit integers.
func TestInt64Batch(f Filter, values []int64, out []byte) {
	switch f := f.(type) {
	case *BigintRange:
		lo, hi := f.lower, f.upper
		for i, v := range values {
			bitutil.SetBitTo(out, i, v >= lo && v <= hi)
		}
	case *NegatedBigintRange:
		lo, hi := f.Lower(), f.Upper()
		for i, v := range values {
			bitutil.SetBitTo(out, i, v < lo || v > hi)
		}
	case *BigintValuesUsingBitmask:
		for i, v := range values {
			bitutil.SetBitTo(out, i,
				v >= f.min && v <= f.max && bitutil.BitIsSet(f.bitmap, int(v-f.min)))
		}
	default:
		for i, v := range values {
			bitutil.SetBitTo(out, i, f.TestInt64(v))
		}
	}
}

// TestDoubleBatch evaluates f against a chunk of 64-bit floats.
func TestDoubleBatch(f Filter, values []float64, out []byte) {
	switch f := f.(type) {
	case *DoubleRange:
		for i, v := range values {
			bitutil.SetBitTo(out, i, f.testValue(v))
		}
	default:
		for i, v := range values {
			bitutil.SetBitTo(out, i, f.TestDouble(v))
		}
	}
}

// TestFloatBatch evaluates f against a chunk of 32-bit floats.
func TestFloatBatch(f Filter, values []float32, out []byte) {
	switch f := f.(type) {
	case *FloatRange:
		for i, v := range values {
			bitutil.SetBitTo(out, i, f.testValue(v))
		}
	default:
		for i, v := range values {
			bitutil.SetBitTo(out, i, f.TestFloat(v))
		}
	}
}

// TestBytesBatch evaluates f against a chunk of byte strings.
func TestBytesBatch(f Filter, values [][]byte, out []byte) {
	switch f := f.(type) {
	case *BytesValues:
		for i, v := range values {
			ok := f.TestLength(len(v)) && f.TestBytes(v)
			bitutil.SetBitTo(out, i, ok)
		}
	default:
		for i, v := range values {
			bitutil.SetBitTo(out, i, f.TestBytes(v))
		}
	}
}

// TestTimestampBatch evaluates f against a chunk of timestamps.
func TestTimestampBatch(f Filter, values []Timestamp, out []byte) {
	for i, v := range values {
		bitutil.SetBitTo(out, i, f.TestTimestamp(v))
	}
}

// TestArrayBatch evaluates f against an arrow array, handling nulls
// through TestNull and unknown physical types as a mismatch.
func TestArrayBatch(f Filter, arr arrow.Array, out []byte) {
	n := arr.Len()
	nullPasses := f.TestNull()

	switch arr := arr.(type) {
	case *array.Boolean:
		for i := 0; i < n; i++ {
			if arr.IsNull(i) {
				bitutil.SetBitTo(out, i, nullPasses)
			} else {
				bitutil.SetBitTo(out, i, f.TestBool(arr.Value(i)))
			}
		}
	case *array.Int8:
		testPromotedInts(f, arr.Int8Values(), arr, out, nullPasses)
	case *array.Int16:
		testPromotedInts(f, arr.Int16Values(), arr, out, nullPasses)
	case *array.Int32:
		testPromotedInts(f, arr.Int32Values(), arr, out, nullPasses)
	case *array.Int64:
		if arr.NullN() == 0 {
			TestInt64Batch(f, arr.Int64Values(), out)

			return
		}
		testPromotedInts(f, arr.Int64Values(), arr, out, nullPasses)
	case *array.Float32:
		if arr.NullN() == 0 {
			TestFloatBatch(f, arr.Float32Values(), out)

			return
		}
		for i := 0; i < n; i++ {
			if arr.IsNull(i) {
				bitutil.SetBitTo(out, i, nullPasses)
			} else {
				bitutil.SetBitTo(out, i, f.TestFloat(arr.Value(i)))
			}
		}
	case *array.Float64:
		if arr.NullN() == 0 {
			TestDoubleBatch(f, arr.Float64Values(), out)

			return
		}
		for i := 0; i < n; i++ {
			if arr.IsNull(i) {
				bitutil.SetBitTo(out, i, nullPasses)
			} else {
				bitutil.SetBitTo(out, i, f.TestDouble(arr.Value(i)))
			}
		}
	case *array.String:
		for i := 0; i < n; i++ {
			if arr.IsNull(i) {
				bitutil.SetBitTo(out, i, nullPasses)
			} else {
				bitutil.SetBitTo(out, i, f.TestBytes([]byte(arr.Value(i))))
			}
		}
	case *array.Binary:
		for i := 0; i < n; i++ {
			if arr.IsNull(i) {
				bitutil.SetBitTo(out, i, nullPasses)
			} else {
				bitutil.SetBitTo(out, i, f.TestBytes(arr.Value(i)))
			}
		}
	case *array.Decimal128:
		for i := 0; i < n; i++ {
			if arr.IsNull(i) {
				bitutil.SetBitTo(out, i, nullPasses)
			} else {
				bitutil.SetBitTo(out, i, f.TestInt128(arr.Value(i)))
			}
		}
	case *array.Timestamp:
		unit := arr.DataType().(*arrow.TimestampType).Unit
		for i := 0; i < n; i++ {
			if arr.IsNull(i) {
				bitutil.SetBitTo(out, i, nullPasses)
			} else {
				bitutil.SetBitTo(out, i, f.TestTimestamp(timestampFromArrow(arr.Value(i), unit)))
			}
		}
	default:
		for i := 0; i < n; i++ {
			if arr.IsNull(i) {
				bitutil.SetBitTo(out, i, nullPasses)
			} else {
				bitutil.SetBitTo(out, i, false)
			}
		}
	}
}

func testPromotedInts[T int8 | int16 | int32 | int64](f Filter, values []T, arr arrow.Array, out []byte, nullPasses bool) {
	for i, v := range values {
		if arr.IsNull(i) {
			bitutil.SetBitTo(out, i, nullPasses)
		} else {
			bitutil.SetBitTo(out, i, f.TestInt64(int64(v)))
		}
	}
}

// timestampFromArrow converts an arrow timestamp of the given unit.
func timestampFromArrow(v arrow.Timestamp, unit arrow.TimeUnit) Timestamp {
	switch unit {
	case arrow.Second:
		return Timestamp{Seconds: int64(v)}
	case arrow.Millisecond:
		return TimestampFromMillis(int64(v))
	case arrow.Microsecond:
		return timestampFromSubsecond(int64(v), 1_000_000, 1_000)
	default:
		return timestampFromSubsecond(int64(v), 1_000_000_000, 1)
	}
}

func timestampFromSubsecond(v, perSecond, nanosPer int64) Timestamp {
	sec := v / perSecond
	rem := v % perSecond
	if rem < 0 {
		sec--
		rem += perSecond
	}

	return Timestamp{Seconds: sec, Nanos: uint32(rem * nanosPer)}
}

// PassedCount returns how many of the first n lanes passed.
func PassedCount(bitmap []byte, n int) int {
	return bitutil.CountSetBits(bitmap, 0, n)
}

// SelectedIndices appends the indices of set lanes among the first n
// bits to dst and returns it, for use with take-style gathers.
func SelectedIndices(bitmap []byte, n int, dst []int32) []int32 {
	for i := 0; i < n; i++ {
		if bitutil.BitIsSet(bitmap, i) {
			dst = append(dst, int32(i))
		}
	}

	return dst
}
