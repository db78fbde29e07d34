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

// Package format defines the contract between the scan operator and
// file format readers, and provides the parquet and delimited-text
// implementations.
package format

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	vellum "github.com/vellumdata/vellum-go"
	vio "github.com/vellumdata/vellum-go/io"
)

var (
	// ErrSchemaMismatch is wrapped by errors caused by a file whose
	// physical type cannot produce a requested column type.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrFormatNotFound is returned for an unregistered format name.
	ErrFormatNotFound = errors.New("format not registered")
)

// Reader produces batches of rows from one file split. Readers are not
// safe for concurrent use; the scan operator drives one reader at a
// time per split.
type Reader interface {
	// Next returns the next batch with at most maxRows rows and a
	// decoded size of roughly maxBytes. io.EOF signals split end.
	Next(maxRows int64, maxBytes int64) (*Batch, error)
	// Seek positions the reader at the given file-relative row so the
	// next batch starts there. Implementations may skip whole strides.
	Seek(row int64) error
	Close() error
}

// ReaderFactory opens a reader over one split of a file.
type ReaderFactory func(ctx context.Context, params OpenParams) (Reader, error)

// OpenParams carries everything a format reader needs to produce the
// requested columns from one split.
type OpenParams struct {
	// File provides random access to the whole file.
	File vio.File
	// FileSize is the total file length in bytes.
	FileSize int64
	// Path is used in error messages only.
	Path string
	// Start and Length bound the split within the file.
	Start, Length int64

	// Schema lists the requested output columns in order.
	Schema *arrow.Schema
	// Filters are pushed value filters keyed by top-level column name.
	// Readers apply them during decode; rows failing any filter are
	// absent from produced batches.
	Filters map[string]vellum.Filter
	// Skipper, when non-nil, is consulted with per-stride column stats
	// before decoding a stride.
	Skipper UnitSkipper

	// SerdeParameters configure text parsing (field.delim et al).
	SerdeParameters map[string]string
	// LoadQuantum is the fixed read size for streaming formats.
	LoadQuantum int64
	// MaxCoalesceGap and MaxCoalesceBytes bound storage read merging.
	MaxCoalesceGap, MaxCoalesceBytes int64

	// CaseSensitive controls file-to-requested column name matching.
	CaseSensitive bool

	// EmitRowNumbers appends a trailing int64 column named
	// RowNumberColumn carrying each surviving row's file-relative
	// position, so callers can synthesize row indices across pushed
	// filters and skipped strides.
	EmitRowNumbers bool

	// Stats receives byte accounting; Counters receives decode
	// counters. Either may be nil.
	Stats    *vio.ReadStats
	Counters *DecodeCounters

	// Alloc is the arrow allocator for decoded batches.
	Alloc memory.Allocator
}

// DecodeCounters are decode-side counters a reader reports into.
// All fields are owned by the caller and only incremented here.
// RawInputRows counts rows decoded before pushed filters shrink them.
// When stats rule out every stride of a split the whole split is
// counted in SkippedSplits and no stride is double-counted.
type DecodeCounters struct {
	RawInputRows   int64
	SkippedStrides int64
	SkippedSplits  int64
}

// ColumnStats describes one column within one stride (row group,
// stripe or whole file) for stats-based skipping. Bounds are typed by
// the column; absent pieces are nil.
type ColumnStats struct {
	// Min and Max hold int64, float64, []byte, bool or
	// vellum.Timestamp when present.
	Min, Max   any
	HasNulls   bool
	NullCount  vellum.Optional[int64]
	ValueCount vellum.Optional[int64]
}

// UnitSkipper decides whether a stride can be skipped given its stats.
type UnitSkipper interface {
	// CanSkip returns true when no row of the stride can pass. stats
	// returns the stride's stats for a column, or false when the file
	// has none for it.
	CanSkip(numRows int64, stats func(column string) (ColumnStats, bool)) bool
}

var (
	formatsMu sync.Mutex
	formats   = map[string]ReaderFactory{}
)

// RegisterFormat adds a reader factory under the given format name,
// replacing any previous registration.
func RegisterFormat(name string, factory ReaderFactory) {
	if factory == nil {
		panic("format: RegisterFormat factory is nil")
	}
	formatsMu.Lock()
	defer formatsMu.Unlock()
	formats[name] = factory
}

// RegisteredFormats returns the registered format names.
func RegisteredFormats() []string {
	formatsMu.Lock()
	defer formatsMu.Unlock()

	return slices.Sorted(maps.Keys(formats))
}

// Open creates a reader for the named format.
func Open(ctx context.Context, name string, params OpenParams) (Reader, error) {
	formatsMu.Lock()
	factory, ok := formats[name]
	formatsMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFormatNotFound, name)
	}

	return factory(ctx, params)
}
