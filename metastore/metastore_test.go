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

package metastore

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/driver/sqliteshim"

	vellum "github.com/vellumdata/vellum-go"
	"github.com/vellumdata/vellum-go/format"
	"github.com/vellumdata/vellum-go/scan"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewStore(context.Background(), db, SQLite)
	require.NoError(t, err)

	return store
}

func TestStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	in := &scan.FileStats{
		RowCount: 1234,
		Columns: map[string]format.ColumnStats{
			"id": {
				Min:        int64(0),
				Max:        int64(999),
				NullCount:  vellum.Some[int64](0),
				ValueCount: vellum.Some[int64](1234),
			},
			"score": {
				Min:      float64(-1.5),
				Max:      float64(7.25),
				HasNulls: true,
			},
			"name": {
				Min: []byte("alpha"),
				Max: []byte("zulu"),
			},
			"active": {Min: false, Max: true},
			"created": {
				Min: vellum.Timestamp{Seconds: 1_700_000_000, Nanos: 500},
				Max: vellum.Timestamp{Seconds: 1_700_086_400, Nanos: 0},
			},
			"unbounded": {
				HasNulls:  true,
				NullCount: vellum.Some[int64](1234),
			},
		},
	}
	require.NoError(t, store.PutFileStats(ctx, "hive", "/w/t/f.parquet", in))

	out, err := store.FileStats(ctx, "hive", "/w/t/f.parquet")
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.EqualValues(t, 1234, out.RowCount)
	require.Len(t, out.Columns, len(in.Columns))
	assert.Equal(t, in.Columns["id"], out.Columns["id"])
	assert.Equal(t, in.Columns["score"], out.Columns["score"])
	assert.Equal(t, in.Columns["name"], out.Columns["name"])
	assert.Equal(t, in.Columns["active"], out.Columns["active"])
	assert.Equal(t, in.Columns["created"], out.Columns["created"])
	assert.Equal(t, in.Columns["unbounded"], out.Columns["unbounded"])
}

func TestStoreUnknownFile(t *testing.T) {
	store := newTestStore(t)

	out, err := store.FileStats(context.Background(), "hive", "/nope.parquet")
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestStoreReplaceAndDrop(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutFileStats(ctx, "hive", "/f.parquet", &scan.FileStats{
		RowCount: 10,
		Columns:  map[string]format.ColumnStats{"id": {Min: int64(0), Max: int64(9)}},
	}))
	require.NoError(t, store.PutFileStats(ctx, "hive", "/f.parquet", &scan.FileStats{
		RowCount: 20,
		Columns:  map[string]format.ColumnStats{"other": {Min: int64(5), Max: int64(6)}},
	}))

	out, err := store.FileStats(ctx, "hive", "/f.parquet")
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.EqualValues(t, 20, out.RowCount)
	assert.NotContains(t, out.Columns, "id")
	assert.Contains(t, out.Columns, "other")

	require.NoError(t, store.DropFileStats(ctx, "hive", "/f.parquet"))
	out, err = store.FileStats(ctx, "hive", "/f.parquet")
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestStoreConnectorNamespacing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutFileStats(ctx, "hive", "/f.parquet", &scan.FileStats{RowCount: 1}))

	out, err := store.FileStats(ctx, "iceberg", "/f.parquet")
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestStoreRejectsUnsupportedStatType(t *testing.T) {
	store := newTestStore(t)

	err := store.PutFileStats(context.Background(), "hive", "/f.parquet", &scan.FileStats{
		RowCount: 1,
		Columns:  map[string]format.ColumnStats{"bad": {Min: int32(1), Max: int32(2)}},
	})
	assert.Error(t, err)
}
