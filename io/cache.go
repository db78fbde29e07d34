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
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// HandleKey identifies a cached file handle. The connector ID
// namespaces paths so two connectors never share handles.
type HandleKey struct {
	ConnectorID string
	Path        string
}

func (k HandleKey) String() string { return k.ConnectorID + ":" + k.Path }

// Handle is a pinned, cached open file. Callers must Release it when
// the read finishes; a pinned handle is never evicted or closed.
type Handle struct {
	File    File
	Size    int64
	ModTime time.Time

	cache *HandleCache
	key   HandleKey
	refs  int
	// evicted handles close on the final Release instead of returning
	// to the LRU.
	evicted bool
}

// Release unpins the handle.
func (h *Handle) Release() {
	if h.cache != nil {
		h.cache.release(h)
	}
}

// HandleCache is a process-wide LRU of open file handles, keyed by
// (connector ID, path). Concurrent lookups of the same key share one
// open call.
type HandleCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[HandleKey]*list.Element
	lru      *list.List // of *Handle, front = most recent
	sf       singleflight.Group

	lookups int64
	hits    int64
	closed  bool
}

// CacheStats is a point-in-time snapshot of cache counters.
type CacheStats struct {
	NumLookups int64
	NumHits    int64
	CurSize    int
}

// NewHandleCache returns a cache holding up to capacity unpinned
// handles.
func NewHandleCache(capacity int) *HandleCache {
	if capacity <= 0 {
		panic(fmt.Errorf("handle cache capacity must be positive, got %d", capacity))
	}

	return &HandleCache{
		capacity: capacity,
		entries:  make(map[HandleKey]*list.Element),
		lru:      list.New(),
	}
}

// Lookup returns a pinned handle for the keyed file, opening it
// through opener on a miss. Concurrent misses on the same key perform
// a single open, and every caller gets its own pin. Missing files
// surface as errors matching fs.ErrNotExist.
func (c *HandleCache) Lookup(ctx context.Context, key HandleKey, opener IO) (*Handle, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()

		return nil, fmt.Errorf("handle cache is shut down")
	}
	c.lookups++
	if h, ok := c.pinLocked(key); ok {
		c.hits++
		c.mu.Unlock()

		return h, nil
	}
	c.mu.Unlock()

	// The flight opens and inserts the handle unpinned; pinning happens
	// per caller below so shared flights account one pin each.
	_, err, _ := c.sf.Do(key.String(), func() (any, error) {
		c.mu.Lock()
		_, exists := c.entries[key]
		c.mu.Unlock()
		if exists {
			return nil, nil
		}

		f, err := opener.Open(ctx, key.Path)
		if err != nil {
			return nil, err
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()

			return nil, err
		}

		h := &Handle{
			File:    f,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			cache:   c,
			key:     key,
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			f.Close()

			return nil, fmt.Errorf("handle cache is shut down")
		}
		c.entries[key] = c.lru.PushFront(h)

		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.pinLocked(key); ok {
		c.evictLocked()

		return h, nil
	}

	// Evicted between insert and pin; open a one-shot uncached handle.
	c.mu.Unlock()
	f, err := opener.Open(ctx, key.Path)
	c.mu.Lock()
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()

		return nil, err
	}

	return &Handle{
		File: f, Size: info.Size(), ModTime: info.ModTime(),
		cache: c, key: key, refs: 1, evicted: true,
	}, nil
}

func (c *HandleCache) pinLocked(key HandleKey) (*Handle, bool) {
	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	h := elem.Value.(*Handle)
	h.refs++
	c.lru.MoveToFront(elem)

	return h, true
}

// evictLocked drops least-recently-used unpinned handles until the
// cache fits its capacity.
func (c *HandleCache) evictLocked() {
	for len(c.entries) > c.capacity {
		var victim *list.Element
		for e := c.lru.Back(); e != nil; e = e.Prev() {
			if e.Value.(*Handle).refs == 0 {
				victim = e

				break
			}
		}
		if victim == nil {
			// Everything is pinned; the cache temporarily overflows.
			return
		}
		h := victim.Value.(*Handle)
		c.lru.Remove(victim)
		delete(c.entries, h.key)
		h.File.Close()
	}
}

func (c *HandleCache) release(h *Handle) {
	c.mu.Lock()
	h.refs--
	closeNow := h.refs == 0 && h.evicted
	if h.refs == 0 && !h.evicted {
		c.evictLocked()
	}
	c.mu.Unlock()

	if closeNow {
		h.File.Close()
	}
}

// Stats returns a snapshot of the cache counters.
func (c *HandleCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CacheStats{NumLookups: c.lookups, NumHits: c.hits, CurSize: len(c.entries)}
}

// Shutdown closes every unpinned handle and marks pinned ones for
// closing on their final Release. The cache rejects lookups afterward.
func (c *HandleCache) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	for key, elem := range c.entries {
		h := elem.Value.(*Handle)
		if h.refs == 0 {
			h.File.Close()
		} else {
			h.evicted = true
		}
		delete(c.entries, key)
	}
	c.lru.Init()
}

var (
	globalCacheMu sync.Mutex
	globalCache   *HandleCache
)

// InitHandleCache installs the process-wide handle cache. It panics if
// one is already installed.
func InitHandleCache(capacity int) {
	globalCacheMu.Lock()
	defer globalCacheMu.Unlock()

	if globalCache != nil {
		panic("io: handle cache already initialized")
	}
	globalCache = NewHandleCache(capacity)
}

// ShutdownHandleCache tears down the process-wide cache. A no-op when
// none is installed.
func ShutdownHandleCache() {
	globalCacheMu.Lock()
	defer globalCacheMu.Unlock()

	if globalCache != nil {
		globalCache.Shutdown()
		globalCache = nil
	}
}

// GlobalHandleCache returns the installed cache, or nil when handle
// caching is disabled.
func GlobalHandleCache() *HandleCache {
	globalCacheMu.Lock()
	defer globalCacheMu.Unlock()

	return globalCache
}
