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

package scan

import (
	"context"
	"errors"
)

// ErrCancelled is the cause carried by a cancelled token's context.
var ErrCancelled = errors.New("scan cancelled")

// CancellationToken is polled cooperatively at split pickup, before
// each reader call and in load completions. It is context-backed so
// blocking waits can select on Done.
type CancellationToken struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
}

// NewCancellationToken derives a token from the task context. The
// token trips when either Cancel is called or parent is done.
func NewCancellationToken(parent context.Context) *CancellationToken {
	ctx, cancel := context.WithCancelCause(parent)

	return &CancellationToken{ctx: ctx, cancel: cancel}
}

// Cancel trips the token. Idempotent.
func (t *CancellationToken) Cancel() { t.cancel(ErrCancelled) }

// Cancelled reports whether the token has tripped.
func (t *CancellationToken) Cancelled() bool {
	select {
	case <-t.ctx.Done():
		return true
	default:
		return false
	}
}

// Done exposes the underlying cancellation channel.
func (t *CancellationToken) Done() <-chan struct{} { return t.ctx.Done() }

// Context returns the context blocking calls should run under.
func (t *CancellationToken) Context() context.Context { return t.ctx }

// Err returns the cancellation cause, or nil while live.
func (t *CancellationToken) Err() error {
	if !t.Cancelled() {
		return nil
	}
	if cause := context.Cause(t.ctx); cause != nil {
		return cause
	}

	return ErrCancelled
}
