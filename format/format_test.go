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
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisteredFormats(t *testing.T) {
	names := RegisteredFormats()
	assert.Contains(t, names, FormatParquet)
	assert.Contains(t, names, FormatText)
}

func TestOpenUnknownFormat(t *testing.T) {
	_, err := Open(context.Background(), "orc-like-but-not", OpenParams{})
	assert.ErrorIs(t, err, ErrFormatNotFound)
}

func TestColumnLoadOnce(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer mem.AssertSize(t, 0)

	loads := 0
	col := NewColumn(arrow.Field{Name: "n", Type: arrow.PrimitiveTypes.Int64},
		func() (arrow.Array, error) {
			loads++
			bld := array.NewInt64Builder(mem)
			defer bld.Release()
			bld.AppendValues([]int64{1, 2, 3}, nil)

			return bld.NewInt64Array(), nil
		})

	first, err := col.Load()
	require.NoError(t, err)
	second, err := col.Load()
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, loads)
	assert.Equal(t, 3, first.Len())

	col.Release()
}

func TestColumnReleaseWithoutLoad(t *testing.T) {
	col := NewColumn(arrow.Field{Name: "n", Type: arrow.PrimitiveTypes.Int64},
		func() (arrow.Array, error) {
			t.Fatal("load should not run")

			return nil, nil
		})
	col.Release()
}

func TestBatchRecord(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer mem.AssertSize(t, 0)

	bld := array.NewInt64Builder(mem)
	bld.AppendValues([]int64{7, 8}, nil)
	arr := bld.NewInt64Array()
	bld.Release()

	batch := NewBatch(2, 100, []*Column{
		NewLoadedColumn(arrow.Field{Name: "v", Type: arrow.PrimitiveTypes.Int64}, arr),
	})
	assert.EqualValues(t, 2, batch.NumRows())
	assert.EqualValues(t, 100, batch.StartRow())

	rec, err := batch.Record()
	require.NoError(t, err)
	assert.EqualValues(t, 2, rec.NumRows())
	assert.Equal(t, "v", rec.Schema().Field(0).Name)

	rec.Release()
	batch.Release()
}
