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

// Package io provides the storage access layer for the scan pipeline:
// a URI-scheme file abstraction, a process-wide file handle cache,
// coalesced range reads and prefetch over a bounded executor.
package io

import (
	"context"
	"errors"
	"io"
	"io/fs"
)

// ErrSchemeNotFound is returned when a path's URI scheme has no
// registered IO implementation.
var ErrSchemeNotFound = errors.New("io: scheme not registered")

// IO is an interface to a file storage system, keyed by full path or
// URI. Implementations must be safe for concurrent use.
type IO interface {
	// Open opens the given file for reading. A missing file yields an
	// error matching fs.ErrNotExist.
	Open(ctx context.Context, name string) (File, error)
	// Remove deletes the named file.
	Remove(ctx context.Context, name string) error
}

// WriteIO is implemented by storage systems that can also create
// files.
type WriteIO interface {
	IO
	WriteFile(ctx context.Context, name string, content []byte) error
}

// File is a read-only random access file. Stat supplies the size and
// modification time used for cache keys and synthetic columns.
type File interface {
	fs.File
	io.ReaderAt
	io.Seeker
}
