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
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/bitutil"
	"github.com/apache/arrow-go/v18/arrow/compute"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/metadata"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	vellum "github.com/vellumdata/vellum-go"
	vio "github.com/vellumdata/vellum-go/io"
)

// FormatParquet is the registered name of the parquet reader.
const FormatParquet = "parquet"

// RowNumberColumn is the name of the trailing int64 column appended
// when OpenParams.EmitRowNumbers is set. It carries the file-relative
// row position of each surviving row.
const RowNumberColumn = "$row_number"

const footerReadSize = 64 * 1024

func init() {
	RegisterFormat(FormatParquet, openParquet)
}

// rgInfo is one selected row group in file order.
type rgInfo struct {
	index    int
	startRow int64
	numRows  int64
}

// outField maps one requested output field to its source.
type outField struct {
	field    arrow.Field
	fileCol  int // index into the decoded record, -1 when absent
	needCast bool
}

type parquetReader struct {
	ctx    context.Context
	params OpenParams

	pf *file.Reader
	fr *pqarrow.FileReader

	leaves    []int    // selected leaf column indices
	groups    []rgInfo // row groups surviving split bounds and stats
	out       []outField
	filterCol map[string]int // decoded record column index per filter

	rr         pqarrow.RecordReader
	rrPos      int   // next entry of groups the stream will supply
	groupLeft  int64 // undelivered rows in the current group
	pending    arrow.Record
	pendingOff int64
	// nullsOnlyPass is false when a pushed filter on a column absent
	// from the file rejects nulls, making the whole split empty.
	nullsOnlyPass bool
}

func openParquet(ctx context.Context, params OpenParams) (Reader, error) {
	src, err := newFooterCachingSource(params.File, params.FileSize, params.Stats)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", params.Path, err)
	}

	alloc := params.Alloc
	if alloc == nil {
		alloc = memory.DefaultAllocator
	}

	pf, err := file.NewParquetReader(src,
		file.WithReadProps(parquet.NewReaderProperties(alloc)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", params.Path, err)
	}

	fr, err := pqarrow.NewFileReader(pf,
		pqarrow.ArrowReadProperties{BatchSize: 1 << 16}, alloc)
	if err != nil {
		pf.Close()

		return nil, fmt.Errorf("%s: %w", params.Path, err)
	}

	r := &parquetReader{
		ctx:           ctx,
		params:        params,
		pf:            pf,
		fr:            fr,
		nullsOnlyPass: true,
	}
	if err := r.plan(); err != nil {
		pf.Close()

		return nil, err
	}
	if !r.nullsOnlyPass && params.Counters != nil {
		params.Counters.SkippedSplits++
	}

	return r, nil
}

func (r *parquetReader) foldName(s string) string {
	if r.params.CaseSensitive {
		return s
	}

	return strings.ToLower(s)
}

// plan selects row groups and leaf columns and resolves the output
// projection against the file schema.
func (r *parquetReader) plan() error {
	fileSchema, err := r.fr.Schema()
	if err != nil {
		return fmt.Errorf("%s: %w", r.params.Path, err)
	}

	fileCols := map[string]int{}
	for i, f := range fileSchema.Fields() {
		fileCols[r.foldName(f.Name)] = i
	}

	// Columns the decode must produce: requested fields present in the
	// file plus filter-only columns, in file order.
	needed := map[int]bool{}
	for _, f := range r.params.Schema.Fields() {
		if i, ok := fileCols[r.foldName(f.Name)]; ok {
			needed[i] = true
		}
	}
	r.filterCol = map[string]int{}
	for name, f := range r.params.Filters {
		i, ok := fileCols[r.foldName(name)]
		if !ok {
			// The file predates the column. Every value is null.
			if !f.TestNull() {
				r.nullsOnlyPass = false
			}

			continue
		}
		needed[i] = true
	}

	recCols := map[int]int{} // file field index -> decoded record index
	next := 0
	for i := range fileSchema.Fields() {
		if needed[i] {
			recCols[i] = next
			next++
		}
	}
	for name := range r.params.Filters {
		if i, ok := fileCols[r.foldName(name)]; ok {
			r.filterCol[name] = recCols[i]
		}
	}

	r.out = make([]outField, len(r.params.Schema.Fields()))
	for i, f := range r.params.Schema.Fields() {
		fi, ok := fileCols[r.foldName(f.Name)]
		if !ok {
			r.out[i] = outField{field: f, fileCol: -1}

			continue
		}
		fileType := fileSchema.Field(fi).Type
		needCast := !arrow.TypeEqual(fileType, f.Type)
		if needCast && !compute.CanCast(fileType, f.Type) {
			return fmt.Errorf("%w: %s: column %q has type %s, requested %s",
				ErrSchemaMismatch, r.params.Path, f.Name, fileType, f.Type)
		}
		r.out[i] = outField{field: f, fileCol: recCols[fi], needCast: needCast}
	}

	r.planLeaves(fileSchema, needed)

	return r.planRowGroups(fileSchema)
}

// planLeaves selects the parquet leaf columns whose root field is
// needed. Nested fields contribute all of their leaves.
func (r *parquetReader) planLeaves(fileSchema *arrow.Schema, needed map[int]bool) {
	rootIdx := map[string]int{}
	for i, f := range fileSchema.Fields() {
		rootIdx[r.foldName(f.Name)] = i
	}

	md := r.pf.MetaData()
	if md.NumRowGroups() == 0 {
		return
	}
	rg := md.RowGroup(0)
	for leaf := 0; leaf < rg.NumColumns(); leaf++ {
		cc, err := rg.ColumnChunk(leaf)
		if err != nil {
			continue
		}
		root, _, _ := strings.Cut(cc.PathInSchema().String(), ".")
		if i, ok := rootIdx[r.foldName(root)]; ok && needed[i] {
			r.leaves = append(r.leaves, leaf)
		}
	}
}

// planRowGroups keeps row groups whose byte midpoint falls inside the
// split and which stats-based skipping cannot rule out.
func (r *parquetReader) planRowGroups(fileSchema *arrow.Schema) error {
	md := r.pf.MetaData()
	splitEnd := r.params.Start + r.params.Length

	var (
		startRow int64
		inRange  int
		skipped  int
	)
	for rg := 0; rg < md.NumRowGroups(); rg++ {
		rgMeta := md.RowGroup(rg)
		numRows := rgMeta.NumRows()
		rowBase := startRow
		startRow += numRows
		if numRows == 0 {
			continue
		}

		mid, err := rowGroupMidpoint(rgMeta)
		if err != nil {
			return fmt.Errorf("%s: %w", r.params.Path, err)
		}
		if mid < r.params.Start || mid >= splitEnd {
			continue
		}
		inRange++

		if r.params.Skipper != nil {
			stats := func(column string) (ColumnStats, bool) {
				return rowGroupColumnStats(rgMeta, fileSchema, column, r.params.CaseSensitive)
			}
			if r.params.Skipper.CanSkip(numRows, stats) {
				skipped++

				continue
			}
		}

		r.groups = append(r.groups, rgInfo{index: rg, startRow: rowBase, numRows: numRows})
	}

	// Stats ruling out the whole split count once at file level.
	if r.params.Counters != nil && skipped > 0 {
		if skipped == inRange {
			r.params.Counters.SkippedSplits++
		} else {
			r.params.Counters.SkippedStrides += int64(skipped)
		}
	}

	return nil
}

// rowGroupMidpoint returns the byte offset halfway through a row
// group's compressed data.
func rowGroupMidpoint(rgMeta *metadata.RowGroupMetaData) (int64, error) {
	cc, err := rgMeta.ColumnChunk(0)
	if err != nil {
		return 0, err
	}
	offset := cc.DataPageOffset()
	if cc.HasDictionaryPage() && cc.DictionaryPageOffset() > 0 && cc.DictionaryPageOffset() < offset {
		offset = cc.DictionaryPageOffset()
	}

	var size int64
	for i := 0; i < rgMeta.NumColumns(); i++ {
		cc, err := rgMeta.ColumnChunk(i)
		if err != nil {
			return 0, err
		}
		size += cc.TotalCompressedSize()
	}

	return offset + size/2, nil
}

// rowGroupColumnStats extracts min/max and null counts for one
// top-level primitive column of a row group.
func rowGroupColumnStats(rgMeta *metadata.RowGroupMetaData, fileSchema *arrow.Schema, column string, caseSensitive bool) (ColumnStats, bool) {
	fold := func(s string) string {
		if caseSensitive {
			return s
		}

		return strings.ToLower(s)
	}

	for i := 0; i < rgMeta.NumColumns(); i++ {
		cc, err := rgMeta.ColumnChunk(i)
		if err != nil {
			continue
		}
		path := cc.PathInSchema().String()
		if strings.Contains(path, ".") || fold(path) != fold(column) {
			continue
		}

		set, err := cc.StatsSet()
		if err != nil || !set {
			return ColumnStats{}, false
		}
		stats, err := cc.Statistics()
		if err != nil || stats == nil {
			return ColumnStats{}, false
		}

		cs := ColumnStats{
			ValueCount: vellum.Some(stats.NumValues()),
		}
		if stats.HasNullCount() {
			cs.NullCount = vellum.Some(stats.NullCount())
			cs.HasNulls = stats.NullCount() > 0
		} else {
			cs.HasNulls = true
		}
		if stats.HasMinMax() {
			var unit arrow.TimeUnit = -1
			for _, f := range fileSchema.Fields() {
				if fold(f.Name) != fold(column) {
					continue
				}
				if ts, ok := f.Type.(*arrow.TimestampType); ok {
					unit = ts.Unit
				}

				break
			}
			cs.Min = decodePlainStat(stats.Type(), stats.EncodeMin(), unit)
			cs.Max = decodePlainStat(stats.Type(), stats.EncodeMax(), unit)
		}

		return cs, true
	}

	return ColumnStats{}, false
}

// decodePlainStat turns a plain-encoded statistics bound into its Go
// value. tsUnit >= 0 marks an INT64 column that is a timestamp.
func decodePlainStat(typ parquet.Type, b []byte, tsUnit arrow.TimeUnit) any {
	switch typ {
	case parquet.Types.Boolean:
		if len(b) < 1 {
			return nil
		}

		return b[0] != 0
	case parquet.Types.Int32:
		if len(b) < 4 {
			return nil
		}

		return int64(int32(binary.LittleEndian.Uint32(b)))
	case parquet.Types.Int64:
		if len(b) < 8 {
			return nil
		}
		v := int64(binary.LittleEndian.Uint64(b))
		if tsUnit >= 0 {
			return timestampFromUnit(v, tsUnit)
		}

		return v
	case parquet.Types.Float:
		if len(b) < 4 {
			return nil
		}

		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case parquet.Types.Double:
		if len(b) < 8 {
			return nil
		}

		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	case parquet.Types.ByteArray, parquet.Types.FixedLenByteArray:
		return append([]byte(nil), b...)
	default:
		return nil
	}
}

func timestampFromUnit(v int64, unit arrow.TimeUnit) vellum.Timestamp {
	switch unit {
	case arrow.Second:
		return vellum.Timestamp{Seconds: v}
	case arrow.Millisecond:
		return vellum.TimestampFromMillis(v)
	case arrow.Microsecond:
		sec := v / 1_000_000
		micros := v % 1_000_000
		if micros < 0 {
			sec--
			micros += 1_000_000
		}

		return vellum.Timestamp{Seconds: sec, Nanos: uint32(micros) * 1000}
	default:
		sec := v / 1_000_000_000
		nanos := v % 1_000_000_000
		if nanos < 0 {
			sec--
			nanos += 1_000_000_000
		}

		return vellum.Timestamp{Seconds: sec, Nanos: uint32(nanos)}
	}
}

func (r *parquetReader) Next(maxRows, maxBytes int64) (*Batch, error) {
	if !r.nullsOnlyPass {
		return nil, io.EOF
	}
	if maxRows <= 0 {
		maxRows = 1
	}

	for {
		if r.pending == nil {
			if err := r.fill(); err != nil {
				return nil, err
			}
		}

		// A slice never crosses a row group boundary so its rows map
		// to one contiguous file row range.
		avail := min(r.pending.NumRows()-r.pendingOff, r.groupLeft)
		take := min(avail, maxRows)
		if maxBytes > 0 {
			perRow := recordDataSize(r.pending) / max(r.pending.NumRows(), 1)
			if perRow > 0 {
				take = min(take, max(maxBytes/perRow, 1))
			}
		}

		startRow := r.currentRow()
		slice := r.pending.NewSlice(r.pendingOff, r.pendingOff+take)
		r.advance(take)

		batch, err := r.buildBatch(slice, startRow, take)
		slice.Release()
		if err != nil {
			return nil, err
		}
		if batch != nil {
			return batch, nil
		}
		// Every row was filtered out. Read on.
	}
}

// currentRow is the file-relative row position of the next undelivered
// row.
func (r *parquetReader) currentRow() int64 {
	g := r.groups[r.rrPos-1]

	return g.startRow + (g.numRows - r.groupLeft)
}

func (r *parquetReader) advance(n int64) {
	r.pendingOff += n
	r.groupLeft -= n
	if r.groupLeft == 0 && r.rrPos < len(r.groups) {
		r.rrPos++
		r.groupLeft = r.groups[r.rrPos-1].numRows
	}
	if r.pendingOff == r.pending.NumRows() {
		r.pending.Release()
		r.pending, r.pendingOff = nil, 0
	}
}

// fill loads the next decoded record into pending.
func (r *parquetReader) fill() error {
	if r.rr == nil {
		if len(r.groups) == 0 {
			return io.EOF
		}
		rgList := make([]int, len(r.groups))
		for i, g := range r.groups {
			rgList[i] = g.index
		}
		rr, err := r.fr.GetRecordReader(r.ctx, r.leaves, rgList)
		if err != nil {
			return fmt.Errorf("%s: %w", r.params.Path, err)
		}
		r.rr = rr
		r.rrPos = 1
		r.groupLeft = r.groups[0].numRows
	}

	if !r.rr.Next() {
		if err := r.rr.Err(); err != nil && err != io.EOF {
			return fmt.Errorf("%s: %w", r.params.Path, err)
		}

		return io.EOF
	}
	rec := r.rr.Record()
	rec.Retain()
	r.pending, r.pendingOff = rec, 0

	return nil
}

// buildBatch applies pushed filters to a decoded slice, projects it to
// the requested schema and wraps the result. Returns nil when no row
// survives.
func (r *parquetReader) buildBatch(rec arrow.Record, startRow, numRows int64) (*Batch, error) {
	if r.params.Counters != nil {
		r.params.Counters.RawInputRows += numRows
	}
	alloc := r.params.Alloc
	if alloc == nil {
		alloc = memory.DefaultAllocator
	}

	var rowNums arrow.Array
	if r.params.EmitRowNumbers {
		bld := array.NewInt64Builder(alloc)
		defer bld.Release()
		bld.Reserve(int(numRows))
		for i := int64(0); i < numRows; i++ {
			bld.UnsafeAppend(startRow + i)
		}
		rowNums = bld.NewInt64Array()
		defer rowNums.Release()
	}

	kept := rec
	kept.Retain()
	keptRows := rowNums

	if len(r.filterCol) > 0 {
		mask := make([]byte, bitutil.BytesForBits(numRows))
		bitutil.SetBitsTo(mask, 0, numRows, true)
		scratch := make([]byte, len(mask))
		for name, col := range r.filterCol {
			f := r.params.Filters[name]
			vellum.TestArrayBatch(f, rec.Column(col), scratch)
			for i := range mask {
				mask[i] &= scratch[i]
			}
		}

		passed := vellum.PassedCount(mask, int(numRows))
		if passed == 0 {
			kept.Release()

			return nil, nil
		}
		if int64(passed) < numRows {
			sel := newBooleanMask(mask, numRows)
			defer sel.Release()

			filtered, err := compute.FilterRecordBatch(r.ctx, kept, sel, compute.DefaultFilterOptions())
			kept.Release()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", r.params.Path, err)
			}
			kept = filtered

			if rowNums != nil {
				d, err := compute.FilterArray(r.ctx, rowNums, sel, *compute.DefaultFilterOptions())
				if err != nil {
					kept.Release()

					return nil, fmt.Errorf("%s: %w", r.params.Path, err)
				}
				keptRows = d
				defer keptRows.Release()
			}
		}
	}

	defer kept.Release()

	columns := make([]*Column, 0, len(r.out)+1)
	for _, of := range r.out {
		col, err := r.outputColumn(of, kept)
		if err != nil {
			for _, c := range columns {
				c.Release()
			}

			return nil, err
		}
		columns = append(columns, col)
	}
	if r.params.EmitRowNumbers {
		keptRows.Retain()
		columns = append(columns, NewLoadedColumn(
			arrow.Field{Name: RowNumberColumn, Type: arrow.PrimitiveTypes.Int64}, keptRows))
	}

	return NewBatch(kept.NumRows(), startRow, columns), nil
}

// outputColumn wraps one requested field of a filtered record,
// synthesizing nulls for fields the file lacks and casting widened
// types.
func (r *parquetReader) outputColumn(of outField, rec arrow.Record) (*Column, error) {
	alloc := r.params.Alloc
	if alloc == nil {
		alloc = memory.DefaultAllocator
	}
	numRows := int(rec.NumRows())

	if of.fileCol < 0 {
		typ := of.field.Type

		return NewColumn(of.field, func() (arrow.Array, error) {
			return array.MakeArrayOfNull(alloc, typ, numRows), nil
		}), nil
	}

	arr := rec.Column(of.fileCol)
	if !of.needCast {
		arr.Retain()

		return NewLoadedColumn(of.field, arr), nil
	}

	out, err := compute.CastArray(r.ctx, arr, compute.SafeCastOptions(of.field.Type))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: column %q: %v", ErrSchemaMismatch, r.params.Path, of.field.Name, err)
	}

	return NewLoadedColumn(of.field, out), nil
}

// Seek positions the reader so the next batch starts at the given
// file-relative row, skipping over filtered strides as needed.
func (r *parquetReader) Seek(row int64) error {
	if row < 0 {
		return fmt.Errorf("%w: seek to negative row %d", vellum.ErrInvalidArgument, row)
	}
	if !r.nullsOnlyPass {
		return nil
	}

	// Restart the stream when seeking backwards.
	if r.rr != nil && row < r.currentRow() {
		r.rr.Release()
		r.rr = nil
		if r.pending != nil {
			r.pending.Release()
			r.pending, r.pendingOff = nil, 0
		}
	}

	for {
		if r.pending == nil {
			if err := r.fill(); err != nil {
				if err == io.EOF {
					return nil
				}

				return err
			}
		}
		cur := r.currentRow()
		if row <= cur {
			return nil
		}
		avail := r.pending.NumRows() - r.pendingOff
		inGroup := min(r.groupLeft, avail)
		skip := min(row-cur, inGroup)
		r.advance(skip)
	}
}

func (r *parquetReader) Close() error {
	if r.pending != nil {
		r.pending.Release()
		r.pending = nil
	}
	if r.rr != nil {
		r.rr.Release()
		r.rr = nil
	}

	return r.pf.Close()
}

// newBooleanMask wraps a validity-style bitmap as an arrow boolean
// array without copying.
func newBooleanMask(bits []byte, n int64) *array.Boolean {
	buf := memory.NewBufferBytes(bits)
	data := array.NewData(arrow.FixedWidthTypes.Boolean, int(n),
		[]*memory.Buffer{nil, buf}, nil, 0, 0)
	defer data.Release()

	return array.NewBooleanData(data)
}

// recordDataSize sums the buffer bytes behind a record, nested
// children included.
func recordDataSize(rec arrow.Record) int64 {
	var total int64
	for _, col := range rec.Columns() {
		total += arrayDataSize(col.Data())
	}

	return total
}

func arrayDataSize(data arrow.ArrayData) int64 {
	var total int64
	for _, buf := range data.Buffers() {
		if buf != nil {
			total += int64(buf.Len())
		}
	}
	for _, child := range data.Children() {
		total += arrayDataSize(child)
	}
	// Dictionary returns a typed-nil interface when absent, so check the
	// concrete *array.Data for nil too.
	if dict, ok := data.Dictionary().(*array.Data); ok && dict != nil {
		total += arrayDataSize(dict)
	}

	return total
}

// footerCachingSource serves the file through a byte-counting ReaderAt
// with the footer region pre-read and cached, so the footer parse hits
// memory and tail overread is accounted separately.
type footerCachingSource struct {
	file    vio.File
	stats   *vio.ReadStats
	size    int64
	tailOff int64
	tail    []byte
	pos     int64
}

func newFooterCachingSource(f vio.File, size int64, stats *vio.ReadStats) (*footerCachingSource, error) {
	if size < 8 {
		return nil, fmt.Errorf("%w: file too small for a parquet footer (%d bytes)", ErrSchemaMismatch, size)
	}

	tail, err := vio.ReadTail(f, size, footerReadSize, stats)
	if err != nil {
		return nil, err
	}
	if string(tail[len(tail)-4:]) != "PAR1" {
		return nil, fmt.Errorf("%w: missing parquet magic", ErrSchemaMismatch)
	}

	footerLen := int64(binary.LittleEndian.Uint32(tail[len(tail)-8 : len(tail)-4]))
	needed := footerLen + 8
	if needed > int64(len(tail)) {
		tail, err = vio.ReadTail(f, size, needed, stats)
		if err != nil {
			return nil, err
		}
	} else if stats != nil {
		stats.FooterBufferOverread.Add(int64(len(tail)) - needed)
	}

	return &footerCachingSource{
		file:    f,
		stats:   stats,
		size:    size,
		tailOff: size - int64(len(tail)),
		tail:    tail,
	}, nil
}

func (s *footerCachingSource) ReadAt(p []byte, off int64) (int, error) {
	// Serve the cached tail without touching storage.
	if off >= s.tailOff {
		n := copy(p, s.tail[off-s.tailOff:])
		if n < len(p) {
			return n, io.EOF
		}

		return n, nil
	}
	if off+int64(len(p)) > s.tailOff {
		head := int(s.tailOff - off)
		n, err := s.readStorage(p[:head], off)
		if err != nil {
			return n, err
		}

		return head + copy(p[head:], s.tail), nil
	}

	return s.readStorage(p, off)
}

func (s *footerCachingSource) readStorage(p []byte, off int64) (int, error) {
	n, err := s.file.ReadAt(p, off)
	if s.stats != nil && n > 0 {
		s.stats.RawInputBytes.Add(int64(n))
		s.stats.StorageReadCount.Add(1)
	}

	return n, err
}

func (s *footerCachingSource) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		s.pos = offset
	case io.SeekCurrent:
		s.pos += offset
	case io.SeekEnd:
		s.pos = s.size + offset
	}
	if s.pos < 0 {
		return 0, fmt.Errorf("%w: seek before start", vellum.ErrInvalidArgument)
	}

	return s.pos, nil
}

func (s *footerCachingSource) Read(p []byte) (int, error) {
	n, err := s.ReadAt(p, s.pos)
	s.pos += int64(n)

	return n, err
}
