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

package io

import (
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"
)

// countingIO wraps an IO and counts Open calls.
type countingIO struct {
	inner IO
	opens atomic.Int64
}

func (c *countingIO) Open(ctx context.Context, name string) (File, error) {
	c.opens.Add(1)

	return c.inner.Open(ctx, name)
}

func (c *countingIO) Remove(ctx context.Context, name string) error {
	return c.inner.Remove(ctx, name)
}

func memIO(t *testing.T, files map[string][]byte) *BlobIO {
	t.Helper()
	bucket := memblob.OpenBucket(nil)
	t.Cleanup(func() { bucket.Close() })
	io := NewBlobIO(bucket, &url.URL{Scheme: "mem", Host: "bkt"})
	for name, content := range files {
		require.NoError(t, io.WriteFile(context.Background(), name, content))
	}

	return io
}

func TestHandleCacheHitsAndMisses(t *testing.T) {
	ctx := context.Background()
	opener := &countingIO{inner: memIO(t, map[string][]byte{
		"a.parquet": []byte("aaaa"),
		"b.parquet": []byte("bbbbbbbb"),
	})}

	cache := NewHandleCache(4)
	defer cache.Shutdown()

	key := HandleKey{ConnectorID: "test", Path: "a.parquet"}

	h1, err := cache.Lookup(ctx, key, opener)
	require.NoError(t, err)
	assert.EqualValues(t, 4, h1.Size)

	h2, err := cache.Lookup(ctx, key, opener)
	require.NoError(t, err)
	assert.Same(t, h1, h2)
	assert.EqualValues(t, 1, opener.opens.Load())

	_, err = cache.Lookup(ctx, HandleKey{ConnectorID: "test", Path: "b.parquet"}, opener)
	require.NoError(t, err)

	stats := cache.Stats()
	assert.EqualValues(t, 3, stats.NumLookups)
	assert.EqualValues(t, 1, stats.NumHits)
	assert.Equal(t, 2, stats.CurSize)

	h1.Release()
	h2.Release()
}

func TestHandleCacheMissingFile(t *testing.T) {
	ctx := context.Background()
	opener := memIO(t, nil)

	cache := NewHandleCache(2)
	defer cache.Shutdown()

	_, err := cache.Lookup(ctx, HandleKey{ConnectorID: "c", Path: "nope"}, opener)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestHandleCacheEvictsUnpinnedOnly(t *testing.T) {
	ctx := context.Background()
	files := make(map[string][]byte)
	for i := 0; i < 4; i++ {
		files[fmt.Sprintf("f%d", i)] = []byte("x")
	}
	opener := &countingIO{inner: memIO(t, files)}

	cache := NewHandleCache(2)
	defer cache.Shutdown()

	pinned, err := cache.Lookup(ctx, HandleKey{ConnectorID: "c", Path: "f0"}, opener)
	require.NoError(t, err)

	for i := 1; i < 4; i++ {
		h, err := cache.Lookup(ctx, HandleKey{ConnectorID: "c", Path: fmt.Sprintf("f%d", i)}, opener)
		require.NoError(t, err)
		h.Release()
	}

	// The pinned handle must have survived every eviction round.
	h, err := cache.Lookup(ctx, HandleKey{ConnectorID: "c", Path: "f0"}, opener)
	require.NoError(t, err)
	assert.Same(t, pinned, h)
	assert.EqualValues(t, 4, opener.opens.Load(), "f0 opened exactly once")

	pinned.Release()
	h.Release()
}

func TestHandleCacheSingleflight(t *testing.T) {
	ctx := context.Background()
	opener := &countingIO{inner: memIO(t, map[string][]byte{"f": []byte("data")})}

	cache := NewHandleCache(4)
	defer cache.Shutdown()

	const workers = 16
	var wg sync.WaitGroup
	handles := make([]*Handle, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := cache.Lookup(ctx, HandleKey{ConnectorID: "c", Path: "f"}, opener)
			assert.NoError(t, err)
			handles[i] = h
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, opener.opens.Load(), "concurrent misses share one open")
	for _, h := range handles {
		h.Release()
	}
	assert.Equal(t, 1, cache.Stats().CurSize)
}

func TestHandleCacheShutdownRejectsLookups(t *testing.T) {
	cache := NewHandleCache(2)
	cache.Shutdown()

	_, err := cache.Lookup(context.Background(),
		HandleKey{ConnectorID: "c", Path: "f"}, memIO(t, nil))
	assert.Error(t, err)
}

func TestGlobalHandleCacheLifecycle(t *testing.T) {
	require.Nil(t, GlobalHandleCache())

	InitHandleCache(8)
	require.NotNil(t, GlobalHandleCache())
	assert.Panics(t, func() { InitHandleCache(8) })

	ShutdownHandleCache()
	assert.Nil(t, GlobalHandleCache())
	ShutdownHandleCache()
}
