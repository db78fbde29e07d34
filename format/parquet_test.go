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

package format

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vellum "github.com/vellumdata/vellum-go"
	vio "github.com/vellumdata/vellum-go/io"
)

var parquetFileSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int64},
	{Name: "small", Type: arrow.PrimitiveTypes.Int32},
	{Name: "name", Type: arrow.BinaryTypes.String},
	{Name: "score", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// writeParquetFixture produces a 100 row file in four 25 row groups.
func writeParquetFixture(t *testing.T) (vio.File, int64) {
	t.Helper()

	bld := array.NewRecordBuilder(memory.DefaultAllocator, parquetFileSchema)
	defer bld.Release()
	for i := 0; i < 100; i++ {
		bld.Field(0).(*array.Int64Builder).Append(int64(i))
		bld.Field(1).(*array.Int32Builder).Append(int32(i * 2))
		bld.Field(2).(*array.StringBuilder).Append(fmt.Sprintf("name-%03d", i))
		bld.Field(3).(*array.Float64Builder).Append(float64(i) / 2)
	}
	rec := bld.NewRecord()
	defer rec.Release()

	table := array.NewTableFromRecords(parquetFileSchema, []arrow.Record{rec})
	defer table.Release()

	path := filepath.Join(t.TempDir(), "fixture.parquet")
	fw, err := os.Create(path)
	require.NoError(t, err)
	// pqarrow.WriteTable closes fw itself.
	require.NoError(t, pqarrow.WriteTable(table, fw, 25, nil, pqarrow.DefaultWriterProps()))

	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	st, err := f.Stat()
	require.NoError(t, err)

	return f, st.Size()
}

func openParquetReader(t *testing.T, f vio.File, size int64, params OpenParams) Reader {
	t.Helper()

	params.File = f
	params.FileSize = size
	params.Path = "fixture.parquet"
	if params.Length == 0 {
		params.Length = size - params.Start
	}
	if params.Schema == nil {
		params.Schema = arrow.NewSchema([]arrow.Field{
			{Name: "id", Type: arrow.PrimitiveTypes.Int64},
			{Name: "name", Type: arrow.BinaryTypes.String},
		}, nil)
	}

	r, err := Open(context.Background(), FormatParquet, params)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	return r
}

func TestParquetReadAll(t *testing.T) {
	f, size := writeParquetFixture(t)
	r := openParquetReader(t, f, size, OpenParams{})

	var (
		total   int64
		nextRow int64
	)
	for {
		batch, err := r.Next(30, 1<<30)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		assert.Equal(t, nextRow, batch.StartRow())
		ids, err := batch.Column(0).Load()
		require.NoError(t, err)
		assert.Equal(t, nextRow, ids.(*array.Int64).Value(0))

		names, err := batch.Column(1).Load()
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("name-%03d", nextRow), names.(*array.String).Value(0))

		total += batch.NumRows()
		nextRow += batch.NumRows()
		batch.Release()
	}
	assert.EqualValues(t, 100, total)
}

func TestParquetMissingColumnIsNull(t *testing.T) {
	f, size := writeParquetFixture(t)
	r := openParquetReader(t, f, size, OpenParams{
		Schema: arrow.NewSchema([]arrow.Field{
			{Name: "id", Type: arrow.PrimitiveTypes.Int64},
			{Name: "added_later", Type: arrow.BinaryTypes.String, Nullable: true},
		}, nil),
	})

	batch, err := r.Next(10, 1<<30)
	require.NoError(t, err)
	defer batch.Release()

	extra, err := batch.Column(1).Load()
	require.NoError(t, err)
	assert.Equal(t, int(batch.NumRows()), extra.NullN())
}

func TestParquetWidensInt32(t *testing.T) {
	f, size := writeParquetFixture(t)
	r := openParquetReader(t, f, size, OpenParams{
		Schema: arrow.NewSchema([]arrow.Field{
			{Name: "small", Type: arrow.PrimitiveTypes.Int64},
		}, nil),
	})

	batch, err := r.Next(5, 1<<30)
	require.NoError(t, err)
	defer batch.Release()

	vals, err := batch.Column(0).Load()
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 2, 4, 6, 8}, vals.(*array.Int64).Int64Values())
}

func TestParquetStructuralMismatch(t *testing.T) {
	f, size := writeParquetFixture(t)
	_, err := Open(context.Background(), FormatParquet, OpenParams{
		File:     f,
		FileSize: size,
		Path:     "fixture.parquet",
		Length:   size,
		Schema: arrow.NewSchema([]arrow.Field{
			{Name: "name", Type: arrow.ListOf(arrow.PrimitiveTypes.Int64)},
		}, nil),
	})
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestParquetPushedFilter(t *testing.T) {
	f, size := writeParquetFixture(t)
	r := openParquetReader(t, f, size, OpenParams{
		Filters: map[string]vellum.Filter{
			"id": vellum.NewBigintRange(10, 19, false),
		},
		EmitRowNumbers: true,
	})

	var ids, rowNums []int64
	for {
		batch, err := r.Next(1024, 1<<30)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		arr, err := batch.Column(0).Load()
		require.NoError(t, err)
		ids = append(ids, arr.(*array.Int64).Int64Values()...)

		nums, err := batch.Column(2).Load()
		require.NoError(t, err)
		rowNums = append(rowNums, nums.(*array.Int64).Int64Values()...)
		batch.Release()
	}

	require.Len(t, ids, 10)
	assert.EqualValues(t, 10, ids[0])
	assert.EqualValues(t, 19, ids[9])
	assert.Equal(t, ids, rowNums)
}

type idThresholdSkipper struct {
	threshold int64
	seenMins  []int64
}

func (s *idThresholdSkipper) CanSkip(numRows int64, stats func(string) (ColumnStats, bool)) bool {
	cs, ok := stats("id")
	if !ok {
		return false
	}
	if mn, ok := cs.Min.(int64); ok {
		s.seenMins = append(s.seenMins, mn)
	}
	mx, ok := cs.Max.(int64)

	return ok && mx < s.threshold
}

func TestParquetStatsSkipping(t *testing.T) {
	f, size := writeParquetFixture(t)
	skipper := &idThresholdSkipper{threshold: 50}
	counters := &DecodeCounters{}

	r := openParquetReader(t, f, size, OpenParams{
		Skipper:  skipper,
		Counters: counters,
	})

	ids := readAllInt64(t, r, 0)
	require.Len(t, ids, 50)
	assert.EqualValues(t, 50, ids[0])
	assert.EqualValues(t, 99, ids[49])

	assert.EqualValues(t, 2, counters.SkippedStrides)
	assert.EqualValues(t, 0, counters.SkippedSplits)
	assert.EqualValues(t, 50, counters.RawInputRows)
	assert.Equal(t, []int64{0, 25, 50, 75}, skipper.seenMins)
}

// When statistics rule out every stride, the whole split is skipped
// and counted once at file level.
func TestParquetStatsSkipWholeFile(t *testing.T) {
	f, size := writeParquetFixture(t)
	counters := &DecodeCounters{}

	r := openParquetReader(t, f, size, OpenParams{
		Skipper:  &idThresholdSkipper{threshold: 1_000},
		Counters: counters,
	})

	_, err := r.Next(1024, 1<<30)
	assert.Equal(t, io.EOF, err)
	assert.EqualValues(t, 1, counters.SkippedSplits)
	assert.EqualValues(t, 0, counters.SkippedStrides)
	assert.EqualValues(t, 0, counters.RawInputRows)
}

func TestParquetSplitRangesPartitionRows(t *testing.T) {
	f, size := writeParquetFixture(t)
	half := size / 2

	first := openParquetReader(t, f, size, OpenParams{Start: 0, Length: half})
	second := openParquetReader(t, f, size, OpenParams{Start: half, Length: size - half})

	total := len(readAllInt64(t, first, 0)) + len(readAllInt64(t, second, 0))
	assert.Equal(t, 100, total)
}

func TestParquetFooterAccounting(t *testing.T) {
	f, size := writeParquetFixture(t)
	stats := &vio.ReadStats{}

	r := openParquetReader(t, f, size, OpenParams{Stats: stats})
	ids := readAllInt64(t, r, 0)
	require.Len(t, ids, 100)

	// The file is smaller than the speculative tail read, so one
	// storage read covers everything and the surplus is footer
	// overread.
	assert.EqualValues(t, size, stats.RawInputBytes.Load())
	assert.EqualValues(t, 1, stats.StorageReadCount.Load())
	assert.Positive(t, stats.FooterBufferOverread.Load())
}

func TestParquetSeek(t *testing.T) {
	f, size := writeParquetFixture(t)
	r := openParquetReader(t, f, size, OpenParams{})

	require.NoError(t, r.Seek(60))
	batch, err := r.Next(10, 1<<30)
	require.NoError(t, err)
	defer batch.Release()

	assert.EqualValues(t, 60, batch.StartRow())
	ids, err := batch.Column(0).Load()
	require.NoError(t, err)
	assert.EqualValues(t, 60, ids.(*array.Int64).Value(0))
}

func TestParquetFilterOnAbsentColumnSkipsSplit(t *testing.T) {
	f, size := writeParquetFixture(t)
	counters := &DecodeCounters{}

	r := openParquetReader(t, f, size, OpenParams{
		Filters: map[string]vellum.Filter{
			"ghost": vellum.NewIsNotNull(),
		},
		Counters: counters,
	})

	_, err := r.Next(10, 1<<30)
	assert.Equal(t, io.EOF, err)
	assert.EqualValues(t, 1, counters.SkippedSplits)
}
