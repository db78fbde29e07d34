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
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/bitutil"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Every kernel lane must agree with the scalar test of the same value.

func TestInt64BatchAgreesWithScalar(t *testing.T) {
	values := []int64{math.MinInt64, -5, 0, 3, 7, 10, 11, 64, 127, 128, math.MaxInt64}

	filters := []Filter{
		NewBigintRange(0, 64, false),
		NewNegatedBigintRange(3, 10, false),
		NewBigintValues([]int64{-5, 7, 128}, false),
		NewBigintValues(manyInts(150), false),
		NewNegatedBigintValues([]int64{0, 64}, false),
		NewAlwaysFalse(),
		NewIsNotNull(),
	}

	out := make([]byte, bitutil.BytesForBits(int64(len(values))))
	for _, f := range filters {
		TestInt64Batch(f, values, out)
		for i, v := range values {
			assert.Equal(t, f.TestInt64(v), bitutil.BitIsSet(out, i),
				"lane %d (%d) under %s", i, v, f)
		}
	}
}

func TestDoubleBatchAgreesWithScalar(t *testing.T) {
	values := []float64{math.Inf(-1), -1.5, 0, 1.2, 3.4, math.NaN(), math.Inf(1)}
	filters := []Filter{
		NewDoubleRange(0, false, true, 3.4, false, false, false, false),
		NewDoubleRange(0, true, false, 0, false, false, true, false),
	}

	out := make([]byte, bitutil.BytesForBits(int64(len(values))))
	for _, f := range filters {
		TestDoubleBatch(f, values, out)
		for i, v := range values {
			assert.Equal(t, f.TestDouble(v), bitutil.BitIsSet(out, i), "lane %d (%v)", i, v)
		}
	}
}

func TestBytesBatchAgreesWithScalar(t *testing.T) {
	values := [][]byte{[]byte("a"), []byte("apple"), nil, []byte("zz")}
	filters := []Filter{
		NewBytesValues([][]byte{[]byte("apple"), []byte("zz")}, false),
		NewBytesRange([]byte("b"), false, false, nil, true, false, false),
	}

	out := make([]byte, bitutil.BytesForBits(int64(len(values))))
	for _, f := range filters {
		TestBytesBatch(f, values, out)
		for i, v := range values {
			assert.Equal(t, f.TestBytes(v), bitutil.BitIsSet(out, i), "lane %d (%q)", i, v)
		}
	}
}

func TestArrayBatchInt64WithNulls(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer mem.AssertSize(t, 0)

	bld := array.NewInt64Builder(mem)
	defer bld.Release()
	bld.AppendValues([]int64{1, 2, 3, 4, 5}, []bool{true, false, true, true, false})
	arr := bld.NewInt64Array()
	defer arr.Release()

	out := make([]byte, bitutil.BytesForBits(int64(arr.Len())))

	f := NewBigintRange(2, 4, false)
	TestArrayBatch(f, arr, out)
	assert.True(t, bitutil.BitIsSet(out, 2))
	assert.True(t, bitutil.BitIsSet(out, 3))
	assert.False(t, bitutil.BitIsSet(out, 0))
	assert.False(t, bitutil.BitIsSet(out, 1), "null lane fails when nulls not allowed")
	assert.False(t, bitutil.BitIsSet(out, 4))

	nullOK := NewBigintRange(2, 4, true)
	TestArrayBatch(nullOK, arr, out)
	assert.True(t, bitutil.BitIsSet(out, 1), "null lane passes when nulls allowed")
	assert.Equal(t, 4, PassedCount(out, arr.Len()))
}

func TestArrayBatchStrings(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer mem.AssertSize(t, 0)

	bld := array.NewStringBuilder(mem)
	defer bld.Release()
	bld.AppendValues([]string{"apple", "pear", "zucchini"}, nil)
	arr := bld.NewStringArray()
	defer arr.Release()

	out := make([]byte, bitutil.BytesForBits(int64(arr.Len())))
	TestArrayBatch(NewBytesValues([][]byte{[]byte("pear")}, false), arr, out)

	require.Equal(t, 1, PassedCount(out, arr.Len()))
	assert.Equal(t, []int32{1}, SelectedIndices(out, arr.Len(), nil))
}

func TestArrayBatchTypeMismatch(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer mem.AssertSize(t, 0)

	bld := array.NewFloat64Builder(mem)
	defer bld.Release()
	bld.AppendValues([]float64{1, 2, 3}, nil)
	arr := bld.NewFloat64Array()
	defer arr.Release()

	out := make([]byte, bitutil.BytesForBits(int64(arr.Len())))
	TestArrayBatch(NewBytesValues([][]byte{[]byte("x")}, false), arr, out)
	assert.Zero(t, PassedCount(out, arr.Len()), "mismatched type never passes")
}

func TestTimestampFromArrowUnits(t *testing.T) {
	tests := []struct {
		unit arrow.TimeUnit
		v    int64
		want Timestamp
	}{
		{arrow.Second, 12, Timestamp{Seconds: 12}},
		{arrow.Millisecond, 1500, Timestamp{Seconds: 1, Nanos: 500_000_000}},
		{arrow.Millisecond, -1500, Timestamp{Seconds: -2, Nanos: 500_000_000}},
		{arrow.Microsecond, 1_000_001, Timestamp{Seconds: 1, Nanos: 1_000}},
		{arrow.Nanosecond, -1, Timestamp{Seconds: -1, Nanos: 999_999_999}},
	}

	for _, tt := range tests {
		got := timestampFromArrow(arrow.Timestamp(tt.v), tt.unit)
		assert.Equal(t, tt.want, got, "%d %s", tt.v, tt.unit)
	}
}
