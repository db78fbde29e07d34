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
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vellum "github.com/vellumdata/vellum-go"
	vio "github.com/vellumdata/vellum-go/io"
)

func localFile(t *testing.T, data []byte) (vio.File, int64) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	return f, int64(len(data))
}

var textSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int64},
	{Name: "name", Type: arrow.BinaryTypes.String},
	{Name: "score", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
}, nil)

const textData = "1,alpha,3.5\n2,beta,\\N\n3,gamma,1.25\n4,,9\n"

func openTextReader(t *testing.T, data string, params OpenParams) Reader {
	t.Helper()

	f, size := localFile(t, []byte(data))
	params.File = f
	params.FileSize = size
	params.Path = "test.csv"
	if params.Length == 0 {
		params.Length = size - params.Start
	}
	if params.Schema == nil {
		params.Schema = textSchema
	}
	if params.SerdeParameters == nil {
		params.SerdeParameters = map[string]string{SerdeFieldDelim: ","}
	}

	r, err := Open(context.Background(), FormatText, params)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	return r
}

func readAllInt64(t *testing.T, r Reader, col int) []int64 {
	t.Helper()

	var out []int64
	for {
		batch, err := r.Next(1024, 1<<20)
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)

		arr, err := batch.Column(col).Load()
		require.NoError(t, err)
		ids := arr.(*array.Int64)
		for i := 0; i < ids.Len(); i++ {
			out = append(out, ids.Value(i))
		}
		batch.Release()
	}
}

func TestTextReadAll(t *testing.T) {
	r := openTextReader(t, textData, OpenParams{})

	batch, err := r.Next(1024, 1<<20)
	require.NoError(t, err)
	require.EqualValues(t, 4, batch.NumRows())
	assert.EqualValues(t, 0, batch.StartRow())

	ids, err := batch.Column(0).Load()
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4}, ids.(*array.Int64).Int64Values())

	names, err := batch.Column(1).Load()
	require.NoError(t, err)
	strs := names.(*array.String)
	assert.Equal(t, "alpha", strs.Value(0))
	assert.Equal(t, "gamma", strs.Value(2))
	assert.Equal(t, "", strs.Value(3))
	assert.False(t, strs.IsNull(3))

	scores, err := batch.Column(2).Load()
	require.NoError(t, err)
	assert.True(t, scores.IsNull(1))
	assert.Equal(t, 3.5, scores.(*array.Float64).Value(0))

	batch.Release()

	_, err = r.Next(1024, 1<<20)
	assert.Equal(t, io.EOF, err)
}

func TestTextMaxRows(t *testing.T) {
	r := openTextReader(t, textData, OpenParams{})

	var rows []int64
	for {
		batch, err := r.Next(2, 1<<20)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.LessOrEqual(t, batch.NumRows(), int64(2))
		rows = append(rows, batch.NumRows())
		batch.Release()
	}
	assert.Equal(t, []int64{2, 2}, rows)
}

// Records are owned by the split their first byte falls in, so two
// adjacent splits partition the file's rows exactly.
func TestTextSplitBoundaries(t *testing.T) {
	first := openTextReader(t, textData, OpenParams{Start: 0, Length: 15})
	second := openTextReader(t, textData, OpenParams{Start: 15, Length: 25})

	assert.Equal(t, []int64{1, 2}, readAllInt64(t, first, 0))
	assert.Equal(t, []int64{3, 4}, readAllInt64(t, second, 0))
}

func TestTextEscapedDelimiter(t *testing.T) {
	r := openTextReader(t, "a\\,b,c\n", OpenParams{
		Schema: arrow.NewSchema([]arrow.Field{
			{Name: "x", Type: arrow.BinaryTypes.String},
			{Name: "y", Type: arrow.BinaryTypes.String},
		}, nil),
		SerdeParameters: map[string]string{
			SerdeFieldDelim: ",",
			SerdeEscapeChar: `\`,
		},
	})

	batch, err := r.Next(10, 1<<20)
	require.NoError(t, err)
	defer batch.Release()

	xs, err := batch.Column(0).Load()
	require.NoError(t, err)
	assert.Equal(t, "a,b", xs.(*array.String).Value(0))
	ys, err := batch.Column(1).Load()
	require.NoError(t, err)
	assert.Equal(t, "c", ys.(*array.String).Value(0))
}

func TestTextPushedFilter(t *testing.T) {
	r := openTextReader(t, textData, OpenParams{
		Filters: map[string]vellum.Filter{
			"id": vellum.NewBigintRange(2, 3, false),
		},
		EmitRowNumbers: true,
	})

	batch, err := r.Next(1024, 1<<20)
	require.NoError(t, err)
	defer batch.Release()

	require.EqualValues(t, 2, batch.NumRows())
	ids, err := batch.Column(0).Load()
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, ids.(*array.Int64).Int64Values())

	nums, err := batch.Column(3).Load()
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, nums.(*array.Int64).Int64Values())
}

func TestTextFilterOnAbsentColumn(t *testing.T) {
	r := openTextReader(t, textData, OpenParams{
		Filters: map[string]vellum.Filter{
			"not_a_column": vellum.NewIsNotNull(),
		},
	})

	_, err := r.Next(1024, 1<<20)
	assert.Equal(t, io.EOF, err)
}

func TestTextFilterTreatsNullAsNull(t *testing.T) {
	// Row 2's score is \N; an IsNull filter on score keeps only it.
	r := openTextReader(t, textData, OpenParams{
		Filters: map[string]vellum.Filter{
			"score": vellum.NewIsNull(),
		},
	})

	assert.Equal(t, []int64{2}, readAllInt64(t, r, 0))
}

func TestTextSeek(t *testing.T) {
	r := openTextReader(t, textData, OpenParams{})

	require.NoError(t, r.Seek(2))
	batch, err := r.Next(1024, 1<<20)
	require.NoError(t, err)
	assert.EqualValues(t, 2, batch.StartRow())
	ids, err := batch.Column(0).Load()
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4}, ids.(*array.Int64).Int64Values())
	batch.Release()

	// Seeking backwards rescans from the split boundary.
	require.NoError(t, r.Seek(0))
	assert.Equal(t, []int64{1, 2, 3, 4}, readAllInt64(t, r, 0))
}

func TestTextMalformedNumberIsNull(t *testing.T) {
	r := openTextReader(t, "oops,alpha,1\n", OpenParams{})

	batch, err := r.Next(10, 1<<20)
	require.NoError(t, err)
	defer batch.Release()

	ids, err := batch.Column(0).Load()
	require.NoError(t, err)
	assert.True(t, ids.IsNull(0))
}

func TestTextMissingTrailingFields(t *testing.T) {
	r := openTextReader(t, "5,solo\n", OpenParams{})

	batch, err := r.Next(10, 1<<20)
	require.NoError(t, err)
	defer batch.Release()

	scores, err := batch.Column(2).Load()
	require.NoError(t, err)
	assert.True(t, scores.IsNull(0))
}

func TestTextDefaultDelimiter(t *testing.T) {
	r := openTextReader(t, "9\x01x\x012.5\n", OpenParams{
		SerdeParameters: map[string]string{},
	})

	batch, err := r.Next(10, 1<<20)
	require.NoError(t, err)
	defer batch.Release()

	ids, err := batch.Column(0).Load()
	require.NoError(t, err)
	assert.Equal(t, []int64{9}, ids.(*array.Int64).Int64Values())
}

func TestTextSplitOverreadAccounting(t *testing.T) {
	var stats vio.ReadStats
	r := openTextReader(t, textData, OpenParams{Start: 15, Length: 10, Stats: &stats})

	batch, err := r.Next(1024, 1<<20)
	require.NoError(t, err)
	require.EqualValues(t, 1, batch.NumRows())
	ids, err := batch.Column(0).Load()
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, ids.(*array.Int64).Int64Values())
	batch.Release()

	// The boundary scan starts at Start-1 and the last record runs past
	// Start+Length; both read bytes outside the split, booked as
	// overread rather than raw input.
	assert.EqualValues(t, 13, stats.RawInputBytes.Load())
	assert.EqualValues(t, 31, stats.OverreadBytes.Load())
	assert.Equal(t, stats.RawInputBytes.Load()+stats.OverreadBytes.Load(),
		stats.StorageReadBytes())
}
