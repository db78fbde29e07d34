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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutorDeliversBuffer(t *testing.T) {
	exec := NewExecutor(2)

	p := exec.Start(context.Background(), func(ctx context.Context) (*Buffer, error) {
		return NewBuffer([]byte("payload")), nil
	})

	buf, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), buf.Bytes())
	buf.Release()
}

func TestExecutorBoundsParallelism(t *testing.T) {
	exec := NewExecutor(2)

	var running, peak atomic.Int32
	gate := make(chan struct{})

	var pending []*PendingLoad
	for i := 0; i < 6; i++ {
		pending = append(pending, exec.Start(context.Background(),
			func(ctx context.Context) (*Buffer, error) {
				cur := running.Add(1)
				for {
					old := peak.Load()
					if cur <= old || peak.CompareAndSwap(old, cur) {
						break
					}
				}
				<-gate
				running.Add(-1)

				return NewBuffer(nil), nil
			}))
	}

	time.Sleep(50 * time.Millisecond)
	close(gate)

	for _, p := range pending {
		buf, err := p.Wait(context.Background())
		require.NoError(t, err)
		buf.Release()
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPendingLoadCancelBeforeRun(t *testing.T) {
	exec := NewExecutor(1)

	gate := make(chan struct{})
	blocker := exec.Start(context.Background(), func(ctx context.Context) (*Buffer, error) {
		<-gate

		return NewBuffer(nil), nil
	})

	var ran atomic.Bool
	p := exec.Start(context.Background(), func(ctx context.Context) (*Buffer, error) {
		ran.Store(true)

		return NewBuffer([]byte("x")), nil
	})
	p.Cancel()
	close(gate)

	_, err := p.Wait(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran.Load(), "cancelled load never runs")

	buf, err := blocker.Wait(context.Background())
	require.NoError(t, err)
	buf.Release()
}

func TestPendingLoadCancelAfterCompletion(t *testing.T) {
	exec := NewExecutor(1)

	buf := NewBuffer([]byte("y"))
	p := exec.Start(context.Background(), func(ctx context.Context) (*Buffer, error) {
		return buf, nil
	})

	// Let it settle, then cancel: the buffer reference is reclaimed and
	// nothing is delivered.
	for !p.Done() {
		time.Sleep(time.Millisecond)
	}
	p.Cancel()

	_, err := p.Wait(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Eventually(t, func() bool { return buf.refs.Load() == 0 },
		time.Second, time.Millisecond, "buffer freed after cancel")
}

func TestPendingLoadWaitHonorsContext(t *testing.T) {
	exec := NewExecutor(1)

	gate := make(chan struct{})
	defer close(gate)
	p := exec.Start(context.Background(), func(ctx context.Context) (*Buffer, error) {
		<-gate

		return NewBuffer(nil), nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBufferRefCounting(t *testing.T) {
	b := NewBuffer([]byte("abc"))
	b.Retain()
	b.Release()
	assert.NotNil(t, b.Bytes())
	b.Release()
	assert.Nil(t, b.Bytes())
}
