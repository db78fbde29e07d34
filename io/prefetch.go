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
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Buffer is a reference-counted byte buffer handed between the
// prefetch executor and readers. The creator owns one reference.
type Buffer struct {
	data []byte
	refs atomic.Int32
}

// NewBuffer wraps data with a single reference.
func NewBuffer(data []byte) *Buffer {
	b := &Buffer{data: data}
	b.refs.Store(1)

	return b
}

// Bytes returns the underlying bytes. Valid until the last Release.
func (b *Buffer) Bytes() []byte { return b.data }

// Retain adds a reference.
func (b *Buffer) Retain() { b.refs.Add(1) }

// Release drops a reference, freeing the buffer on the last one.
func (b *Buffer) Release() {
	if b.refs.Add(-1) == 0 {
		b.data = nil
	}
}

// Loader produces a loaded buffer, typically by reading a file's
// column regions.
type Loader func(ctx context.Context) (*Buffer, error)

// Executor runs loads with bounded parallelism. Submitting blocks only
// on the semaphore inside the spawned goroutine, so callers never wait
// for capacity.
type Executor struct {
	sem *semaphore.Weighted
}

// NewExecutor returns an executor running at most parallelism loads at
// once.
func NewExecutor(parallelism int64) *Executor {
	if parallelism <= 0 {
		panic(fmt.Errorf("executor parallelism must be positive, got %d", parallelism))
	}

	return &Executor{sem: semaphore.NewWeighted(parallelism)}
}

// PendingLoad is an in-flight background load. Exactly one of Wait or
// Cancel must eventually run for the buffer reference to settle.
type PendingLoad struct {
	done      chan struct{}
	buf       *Buffer
	err       error
	cancelled atomic.Bool
	claimed   atomic.Bool
}

// Start submits a load. The returned PendingLoad completes when the
// loader finishes or ctx is cancelled while waiting for a slot.
func (e *Executor) Start(ctx context.Context, load Loader) *PendingLoad {
	p := &PendingLoad{done: make(chan struct{})}

	go func() {
		defer close(p.done)

		if err := e.sem.Acquire(ctx, 1); err != nil {
			p.err = err

			return
		}
		defer e.sem.Release(1)

		if p.cancelled.Load() {
			p.err = context.Canceled

			return
		}

		buf, err := load(ctx)
		if err != nil {
			p.err = err

			return
		}
		// A cancellation observed after the load completes frees the
		// buffer instead of delivering it.
		if p.cancelled.Load() {
			buf.Release()
			p.err = context.Canceled

			return
		}
		p.buf = buf
	}()

	return p
}

// Cancel marks the load as unwanted. Nothing is delivered afterward;
// a buffer the load produced, or produces later, is released once the
// load settles. Cancel never blocks on the load itself.
func (p *PendingLoad) Cancel() {
	if p.cancelled.Swap(true) {
		return
	}
	go func() {
		<-p.done
		if p.buf != nil && p.claimed.CompareAndSwap(false, true) {
			p.buf.Release()
			p.buf = nil
		}
	}()
}

// Wait blocks until the load settles or ctx is done, whichever comes
// first. The caller owns the returned buffer's reference. Waiting does
// not extend the load's lifetime: a ctx expiry returns immediately and
// the load's buffer is freed by a later Cancel or completion check.
func (p *PendingLoad) Wait(ctx context.Context) (*Buffer, error) {
	select {
	case <-ctx.Done():
		p.Cancel()

		return nil, context.Cause(ctx)
	case <-p.done:
	}

	if p.err != nil {
		return nil, p.err
	}
	if p.cancelled.Load() || !p.claimed.CompareAndSwap(false, true) {
		return nil, context.Canceled
	}

	return p.buf, nil
}

// Done reports whether the load has settled.
func (p *PendingLoad) Done() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}
