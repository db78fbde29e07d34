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

// Package scan drives file format readers over a queue of splits and
// assembles the requested output columns, constants and synthesized
// columns included.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/bitutil"
	"github.com/apache/arrow-go/v18/arrow/compute"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"

	vellum "github.com/vellumdata/vellum-go"
	"github.com/vellumdata/vellum-go/format"
	vio "github.com/vellumdata/vellum-go/io"
)

// FileStats are metastore-recorded whole-file statistics used to skip
// a split before its file is even opened.
type FileStats struct {
	RowCount int64
	Columns  map[string]format.ColumnStats
}

// Metastore supplies per-file statistics. Implementations return a
// nil FileStats when nothing is recorded for the path.
type Metastore interface {
	FileStats(ctx context.Context, connectorID, path string) (*FileStats, error)
}

type opState int

const (
	stateNeedsSplit opState = iota
	stateProducing
	stateFinished
	stateFailed
)

// errSkipSplit marks a split handled without producing rows.
var errSkipSplit = errors.New("split skipped")

// OperatorConfig wires one scan operator.
type OperatorConfig struct {
	Session *Session
	// Output lists the columns each produced record carries, in order.
	Output []ColumnHandle
	// FilterOnly columns are read so pushed filters and bucket
	// conversion can see them but are not part of the output. Bucket
	// conversion key columns must appear in Output or here.
	FilterOnly []ColumnHandle
	// Filters are the static pushed filters by column name.
	Filters map[string]vellum.Filter

	Queue     *SplitQueue
	IO        vio.IO
	Handles   *vio.HandleCache
	Metastore Metastore
	// Executor, when set, preloads upcoming splits' file handles.
	Executor *vio.Executor
	Alloc    memory.Allocator
}

// Operator is the scan operator: it pulls splits from the queue, opens
// a format reader per split and produces arrow records. Not safe for
// concurrent GetOutput calls; AddDynamicFilter and Stats may be called
// from other goroutines.
type Operator struct {
	id      string
	session *Session
	output  []ColumnHandle
	filters map[string]vellum.Filter
	queue   *SplitQueue
	fio     vio.IO
	handles *vio.HandleCache
	meta    Metastore
	exec    *vio.Executor
	alloc   memory.Allocator
	token   *CancellationToken
	stats   RuntimeStats

	readSchema     *arrow.Schema
	readColumns    []string
	outSchema      *arrow.Schema
	emitRowNumbers bool

	mu         sync.Mutex
	dynamic    map[string]vellum.Filter
	curSkipper *Skipper
	pending    map[vio.HandleKey]*vio.PendingLoad

	state       opState
	failure     error
	cur         *Split
	reader      format.Reader
	handle      *vio.Handle
	counters    format.DecodeCounters
	openDynamic map[string]vellum.Filter
}

// NewOperator validates the column set and builds the reader and
// output schemas. The operator owns a cancellation token derived from
// ctx; cancelling ctx cancels the scan.
func NewOperator(ctx context.Context, cfg OperatorConfig) (*Operator, error) {
	if cfg.Queue == nil {
		return nil, fmt.Errorf("%w: operator needs a split queue", vellum.ErrInvalidArgument)
	}
	if cfg.IO == nil {
		return nil, fmt.Errorf("%w: operator needs an IO", vellum.ErrInvalidArgument)
	}
	alloc := cfg.Alloc
	if alloc == nil {
		alloc = memory.DefaultAllocator
	}

	o := &Operator{
		id:      uuid.New().String(),
		session: cfg.Session.normalized(),
		output:  cfg.Output,
		filters: map[string]vellum.Filter{},
		queue:   cfg.Queue,
		fio:     cfg.IO,
		handles: cfg.Handles,
		meta:    cfg.Metastore,
		exec:    cfg.Executor,
		alloc:   alloc,
		token:   NewCancellationToken(ctx),
		dynamic: map[string]vellum.Filter{},
		pending: map[vio.HandleKey]*vio.PendingLoad{},
	}
	for name, f := range cfg.Filters {
		o.filters[name] = f
	}

	var readFields, outFields []arrow.Field
	seen := map[string]bool{}
	addRead := func(h ColumnHandle) {
		if seen[h.Name] {
			return
		}
		seen[h.Name] = true
		readFields = append(readFields, arrow.Field{Name: h.Name, Type: h.DataType, Nullable: true})
		o.readColumns = append(o.readColumns, h.Name)
	}
	for _, h := range cfg.Output {
		typ := h.DataType
		switch h.Kind {
		case ColumnRegular:
			addRead(h)
		case ColumnRowIndex:
			typ = arrow.PrimitiveTypes.Int64
			o.emitRowNumbers = true
		case ColumnRowID:
			typ = RowIDType
			o.emitRowNumbers = true
		case ColumnPartitionKey, ColumnSynthesized:
		default:
			return nil, fmt.Errorf("%w: unknown column kind for %q", vellum.ErrInvalidArgument, h.Name)
		}
		if typ == nil {
			return nil, fmt.Errorf("%w: column %q has no type", vellum.ErrInvalidArgument, h.Name)
		}
		outFields = append(outFields, arrow.Field{Name: h.Name, Type: typ, Nullable: true})
	}
	for _, h := range cfg.FilterOnly {
		if h.Kind != ColumnRegular {
			return nil, fmt.Errorf("%w: filter-only column %q must be a data column", vellum.ErrInvalidArgument, h.Name)
		}
		addRead(h)
	}
	for name := range o.filters {
		if !seen[name] {
			return nil, fmt.Errorf("%w: filter on unread column %q", vellum.ErrInvalidArgument, name)
		}
	}

	o.readSchema = arrow.NewSchema(readFields, nil)
	o.outSchema = arrow.NewSchema(outFields, nil)

	return o, nil
}

// ID is the operator's unique identifier, used in logs and stats keys.
func (o *Operator) ID() string { return o.id }

// Schema is the schema of every record GetOutput produces.
func (o *Operator) Schema() *arrow.Schema { return o.outSchema }

// Cancel aborts the scan. In-flight work stops at the next
// cancellation check and GetOutput reports a CANCELLED error.
func (o *Operator) Cancel() { o.token.Cancel() }

// Stats snapshots the runtime counters and queue gauges.
func (o *Operator) Stats() StatsSnapshot { return o.stats.Snapshot(o.queue) }

// AddDynamicFilter conjoins a filter produced elsewhere in the query
// (a join's build side, typically) into the scan. Future splits push
// it into the reader and the stride skipper; the split currently open
// applies it operator-side, so surviving rows keep their positions.
func (o *Operator) AddDynamicFilter(column string, f vellum.Filter) {
	o.mu.Lock()
	if cur, ok := o.dynamic[column]; ok {
		f = cur.MergeWith(f)
	}
	o.dynamic[column] = f
	sk := o.curSkipper
	o.mu.Unlock()

	if sk != nil {
		sk.Merge(column, f)
	}
}

// GetOutput produces the next record. A nil record with a nil error is
// a yield: the time limit elapsed before a batch was ready and the
// caller should call again. io.EOF means the scan is complete.
func (o *Operator) GetOutput(ctx context.Context) (arrow.Record, error) {
	started := time.Now()
	defer func() { o.stats.TotalScanTimeNano.Add(int64(time.Since(started))) }()
	deadline := started.Add(time.Duration(o.session.TableScanGetOutputTimeLimitMs) * time.Millisecond)

	for {
		if err := o.token.Err(); err != nil {
			return nil, o.fail(err)
		}
		if ctx.Err() != nil {
			return nil, o.fail(context.Cause(ctx))
		}

		switch o.state {
		case stateFinished:
			return nil, io.EOF
		case stateFailed:
			return nil, o.failure

		case stateNeedsSplit:
			split, more := o.queue.Next()
			if split == nil && more == nil {
				o.finish()

				continue
			}
			if split == nil {
				if !o.waitForSplit(ctx, more, deadline) {
					return o.yield()
				}

				continue
			}
			o.prefetchAhead()
			if err := o.openSplit(ctx, split); err != nil {
				if errors.Is(err, errSkipSplit) {
					o.queue.Finish(split)

					continue
				}

				return nil, o.fail(err)
			}
			o.state = stateProducing

		case stateProducing:
			if !time.Now().Before(deadline) {
				return o.yield()
			}
			batch, err := o.reader.Next(o.session.MaxOutputBatchRows, o.session.PreferredOutputBatchBytes)
			if err != nil {
				if errors.Is(err, io.EOF) {
					o.closeSplit()
					o.state = stateNeedsSplit

					continue
				}

				return nil, o.fail(wrapSplitError(o.cur.Path, err))
			}
			rec, err := o.assemble(ctx, batch)
			if err != nil {
				return nil, o.fail(wrapSplitError(o.cur.Path, err))
			}
			if rec == nil {
				continue
			}

			return rec, nil
		}
	}
}

// waitForSplit blocks until a split arrives, the deadline passes or
// the scan is cancelled. It reports whether waiting should continue.
func (o *Operator) waitForSplit(ctx context.Context, more ContinueFuture, deadline time.Time) bool {
	remain := time.Until(deadline)
	if remain <= 0 {
		return false
	}
	timer := time.NewTimer(remain)
	defer timer.Stop()

	waitStart := time.Now()
	defer func() { o.stats.IOWaitWallNanos.Add(int64(time.Since(waitStart))) }()

	select {
	case <-more:
		return true
	case <-timer.C:
		return false
	case <-o.token.Done():
		return true
	case <-ctx.Done():
		return true
	}
}

func (o *Operator) yield() (arrow.Record, error) {
	o.stats.YieldCount.Add(1)

	return nil, nil
}

func (o *Operator) finish() {
	o.cancelPrefetches()
	o.state = stateFinished
}

func (o *Operator) fail(err error) error {
	if o.state == stateFailed {
		return o.failure
	}
	path := ""
	if o.cur != nil {
		path = o.cur.Path
	}
	o.failure = wrapSplitError(path, err)
	if o.reader != nil {
		o.closeSplit()
	}
	o.cancelPrefetches()
	o.state = stateFailed

	return o.failure
}

// Close releases whatever the operator holds. Safe after any state.
func (o *Operator) Close() error {
	o.token.Cancel()
	o.cancelPrefetches()
	if o.reader != nil {
		o.closeSplit()
	}
	if o.state != stateFailed {
		o.state = stateFinished
	}

	return nil
}

// openSplit opens the split's file and format reader. errSkipSplit
// means the split produced nothing and the scan moves on.
func (o *Operator) openSplit(ctx context.Context, split *Split) (err error) {
	o.cur = split
	defer func() {
		if err != nil {
			o.cur = nil
		}
	}()

	if o.meta != nil {
		skipped, merr := o.metastoreSkip(ctx, split)
		if merr != nil {
			return wrapSplitError(split.Path, merr)
		}
		if skipped {
			o.stats.SkippedSplits.Add(1)

			return errSkipSplit
		}
	}

	handle, err := o.openHandle(ctx, split)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && o.session.IgnoreMissingFiles {
			return errSkipSplit
		}

		return wrapSplitError(split.Path, err)
	}

	o.mu.Lock()
	merged := make(map[string]vellum.Filter, len(o.filters)+len(o.dynamic))
	for name, f := range o.filters {
		merged[name] = f
	}
	openDynamic := make(map[string]vellum.Filter, len(o.dynamic))
	for name, f := range o.dynamic {
		openDynamic[name] = f
		if cur, ok := merged[name]; ok {
			merged[name] = cur.MergeWith(f)
		} else {
			merged[name] = f
		}
	}
	skipper := NewSkipper(o.readColumns, merged, o.session.ReadStatsBasedFilterReorderDisabled)
	o.curSkipper = skipper
	o.mu.Unlock()

	o.counters = format.DecodeCounters{}
	reader, err := format.Open(o.token.Context(), split.Format, format.OpenParams{
		File:             handle.File,
		FileSize:         handle.Size,
		Path:             split.Path,
		Start:            split.Start,
		Length:           split.Length,
		Schema:           o.readSchema,
		Filters:          merged,
		Skipper:          skipper,
		SerdeParameters:  split.SerdeParameters,
		LoadQuantum:      o.session.LoadQuantum,
		MaxCoalesceGap:   o.session.MaxCoalescedDistanceBytes,
		MaxCoalesceBytes: o.session.MaxCoalescedBytes,
		CaseSensitive:    !o.session.FileColumnNamesReadAsLowerCase,
		EmitRowNumbers:   o.emitRowNumbers,
		Stats:            &o.stats.Read,
		Counters:         &o.counters,
		Alloc:            o.alloc,
	})
	if err != nil {
		handle.Release()
		o.mu.Lock()
		o.curSkipper = nil
		o.mu.Unlock()

		return wrapSplitError(split.Path, err)
	}

	o.handle = handle
	o.reader = reader
	o.openDynamic = openDynamic

	return nil
}

// metastoreSkip consults recorded file-level stats with the current
// filter set. A metastore miss never fails the split.
func (o *Operator) metastoreSkip(ctx context.Context, split *Split) (bool, error) {
	fileStats, err := o.meta.FileStats(ctx, split.ConnectorID, split.Path)
	if err != nil || fileStats == nil {
		return false, err
	}

	o.mu.Lock()
	merged := make(map[string]vellum.Filter, len(o.filters)+len(o.dynamic))
	for name, f := range o.filters {
		merged[name] = f
	}
	for name, f := range o.dynamic {
		if cur, ok := merged[name]; ok {
			merged[name] = cur.MergeWith(f)
		} else {
			merged[name] = f
		}
	}
	o.mu.Unlock()

	skipper := NewSkipper(o.readColumns, merged, true)

	return skipper.CanSkip(fileStats.RowCount, func(column string) (ColumnStats, bool) {
		cs, ok := fileStats.Columns[column]

		return cs, ok
	}), nil
}

// openHandle resolves the split's file, through the handle cache when
// one is configured. Prefetched opens are awaited rather than redone.
func (o *Operator) openHandle(ctx context.Context, split *Split) (*vio.Handle, error) {
	key := vio.HandleKey{ConnectorID: split.ConnectorID, Path: split.Path}

	o.mu.Lock()
	pl := o.pending[key]
	delete(o.pending, key)
	o.mu.Unlock()

	waitStart := time.Now()
	defer func() { o.stats.IOWaitWallNanos.Add(int64(time.Since(waitStart))) }()

	if pl != nil {
		if buf, err := pl.Wait(ctx); err == nil {
			buf.Release()
		}
	}

	if o.handles != nil {
		return o.handles.Lookup(ctx, key, o.fio)
	}

	f, err := o.fio.Open(ctx, split.Path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()

		return nil, err
	}

	return &vio.Handle{File: f, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// prefetchAhead warms the handle cache for the next few queued splits.
func (o *Operator) prefetchAhead() {
	if o.exec == nil || o.handles == nil {
		return
	}
	for _, split := range o.queue.Peek(o.session.MaxSplitPreloadPerDriver) {
		key := vio.HandleKey{ConnectorID: split.ConnectorID, Path: split.Path}
		o.mu.Lock()
		_, inflight := o.pending[key]
		o.mu.Unlock()
		if inflight {
			continue
		}

		pl := o.exec.Start(o.token.Context(), func(ctx context.Context) (*vio.Buffer, error) {
			h, err := o.handles.Lookup(ctx, key, o.fio)
			if err != nil {
				return nil, err
			}
			h.Release()

			return vio.NewBuffer(nil), nil
		})

		o.mu.Lock()
		o.pending[key] = pl
		o.mu.Unlock()
		o.stats.PreloadedSplits.Add(1)
	}
}

func (o *Operator) cancelPrefetches() {
	o.mu.Lock()
	pending := o.pending
	o.pending = map[vio.HandleKey]*vio.PendingLoad{}
	o.mu.Unlock()

	for _, pl := range pending {
		pl.Cancel()
	}
}

// closeSplit folds the reader's counters into the runtime stats and
// retires the split.
func (o *Operator) closeSplit() {
	o.stats.RawInputRows.Add(o.counters.RawInputRows)
	o.stats.SkippedStrides.Add(o.counters.SkippedStrides)
	o.stats.SkippedSplits.Add(o.counters.SkippedSplits)
	o.counters = format.DecodeCounters{}

	if o.reader != nil {
		o.reader.Close()
		o.reader = nil
	}
	if o.handle != nil {
		o.handle.Release()
		o.handle = nil
	}
	o.mu.Lock()
	o.curSkipper = nil
	o.mu.Unlock()
	o.openDynamic = nil
	if o.cur != nil {
		o.queue.Finish(o.cur)
		o.cur = nil
	}
}

// assemble turns one reader batch into an output record, applying
// bucket conversion and late dynamic filters, then attaching constant
// and synthesized columns. A nil record means every row was dropped.
func (o *Operator) assemble(ctx context.Context, batch *format.Batch) (arrow.Record, error) {
	defer batch.Release()

	rec, err := batch.Record()
	if err != nil {
		return nil, err
	}
	o.stats.LoadedToValueHook.Add(int64(batch.NumColumns()))

	rec, err = o.applyRowMasks(ctx, rec)
	if err != nil || rec == nil {
		return nil, err
	}
	defer rec.Release()

	n := int(rec.NumRows())
	var rowNums *array.Int64
	if o.emitRowNumbers {
		idx := int(rec.NumCols()) - 1
		rowNums = rec.Column(idx).(*array.Int64)
	}

	cols := make([]arrow.Array, len(o.output))
	var created []arrow.Array
	defer func() {
		for _, a := range created {
			a.Release()
		}
	}()

	for i, h := range o.output {
		switch h.Kind {
		case ColumnRegular:
			idx := rec.Schema().FieldIndices(h.Name)
			cols[i] = rec.Column(idx[0])
		case ColumnRowIndex:
			cols[i] = rowNums
		case ColumnRowID:
			a := rowIDArray(o.alloc, rowNums, o.cur)
			created = append(created, a)
			cols[i] = a
		case ColumnPartitionKey:
			a, err := constantArray(o.alloc, h.DataType, o.cur.PartitionKeys[h.Name], n,
				o.session.ReadTimestampPartitionValueAsLocalTime)
			if err != nil {
				return nil, err
			}
			created = append(created, a)
			cols[i] = a
		case ColumnSynthesized:
			a, err := o.synthesizedArray(h, n)
			if err != nil {
				return nil, err
			}
			created = append(created, a)
			cols[i] = a
		}
	}

	return array.NewRecord(o.outSchema, cols, int64(n)), nil
}

// applyRowMasks drops rows failing bucket conversion or dynamic
// filters that arrived after the current reader opened. It consumes
// rec and returns a replacement, or nil when no row survives.
func (o *Operator) applyRowMasks(ctx context.Context, rec arrow.Record) (arrow.Record, error) {
	n := int(rec.NumRows())

	late := o.lateFilters()
	if o.cur.BucketConversion == nil && len(late) == 0 || n == 0 {
		return rec, nil
	}

	mask := make([]byte, bitutil.BytesForBits(int64(n)))
	bitutil.SetBitsTo(mask, 0, int64(n), true)

	if conv := o.cur.BucketConversion; conv != nil && o.cur.TableBucketNumber != nil {
		if err := bucketMask(rec, conv, *o.cur.TableBucketNumber, mask); err != nil {
			rec.Release()

			return nil, err
		}
	}

	if len(late) > 0 {
		scratch := make([]byte, len(mask))
		for name, f := range late {
			idx := rec.Schema().FieldIndices(name)
			if len(idx) == 0 {
				continue
			}
			vellum.TestArrayBatch(f, rec.Column(idx[0]), scratch)
			for i := range mask {
				mask[i] &= scratch[i]
			}
		}
	}

	passed := vellum.PassedCount(mask, n)
	if passed == n {
		return rec, nil
	}
	if passed == 0 {
		rec.Release()

		return nil, nil
	}

	sel := booleanMask(mask, n)
	defer sel.Release()
	filtered, err := compute.FilterRecordBatch(ctx, rec, sel, compute.DefaultFilterOptions())
	rec.Release()
	if err != nil {
		return nil, err
	}

	return filtered, nil
}

// lateFilters are dynamic filters the current reader was not opened
// with, applied operator-side until the next split picks them up.
func (o *Operator) lateFilters() map[string]vellum.Filter {
	o.mu.Lock()
	defer o.mu.Unlock()

	var late map[string]vellum.Filter
	for name, f := range o.dynamic {
		if o.openDynamic[name] == f {
			continue
		}
		if late == nil {
			late = map[string]vellum.Filter{}
		}
		late[name] = f
	}

	return late
}

func (o *Operator) synthesizedArray(h ColumnHandle, n int) (arrow.Array, error) {
	switch h.Name {
	case PathColumn:
		path := o.cur.Path

		return constantArray(o.alloc, arrow.BinaryTypes.String, &path, n, false)
	case BucketColumn:
		if o.cur.TableBucketNumber == nil {
			return array.MakeArrayOfNull(o.alloc, arrow.PrimitiveTypes.Int32, n), nil
		}
		bld := array.NewInt32Builder(o.alloc)
		defer bld.Release()
		for i := 0; i < n; i++ {
			bld.Append(int32(*o.cur.TableBucketNumber))
		}

		return bld.NewArray(), nil
	case FileSizeColumn:
		return constantInt64(o.alloc, o.handle.Size, n), nil
	case FileModifiedTimeColumn:
		return constantInt64(o.alloc, o.handle.ModTime.UnixMilli(), n), nil
	default:
		return nil, fmt.Errorf("%w: unknown synthesized column %q", vellum.ErrInvalidArgument, h.Name)
	}
}

func constantInt64(alloc memory.Allocator, v int64, n int) arrow.Array {
	bld := array.NewInt64Builder(alloc)
	defer bld.Release()
	for i := 0; i < n; i++ {
		bld.Append(v)
	}

	return bld.NewArray()
}

// booleanMask wraps a row bitmap as an arrow boolean array.
func booleanMask(bits []byte, n int) *array.Boolean {
	buf := memory.NewBufferBytes(bits)
	data := array.NewData(arrow.FixedWidthTypes.Boolean, n,
		[]*memory.Buffer{nil, buf}, nil, 0, 0)
	defer data.Release()

	return array.NewBooleanData(data)
}
