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
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	vellum "github.com/vellumdata/vellum-go"
)

// FormatText is the registered name of the delimited text reader.
const FormatText = "text"

// Serde parameter keys understood by the text reader.
const (
	SerdeFieldDelim = "field.delim"
	SerdeEscapeChar = "escape.delim"
	SerdeNullFormat = "serialization.null.format"
)

const (
	defaultFieldDelim  = '\x01'
	defaultNullFormat  = `\N`
	defaultLoadQuantum = 8 << 20
)

func init() {
	RegisterFormat(FormatText, openText)
}

// textReader decodes newline-terminated records with positional
// columns. Rows are addressed by their split-relative position: text
// carries no index, so absolute file rows are unknowable without
// scanning the whole prefix.
type textReader struct {
	params OpenParams

	fieldDelim byte
	escape     byte
	hasEscape  bool
	nullSeq    []byte
	quantum    int64

	// filterIdx maps each pushed filter to its positional column, -1
	// when the filter names no schema column.
	filterIdx map[string]int

	firstRecord int64 // file offset of the first whole record
	pos         int64 // file offset of the next unparsed record
	row         int64 // split-relative position of the next record
	buf         []byte
	eof         bool
	done        bool
}

func openText(_ context.Context, params OpenParams) (Reader, error) {
	r := &textReader{
		params:     params,
		fieldDelim: defaultFieldDelim,
		nullSeq:    []byte(defaultNullFormat),
		quantum:    params.LoadQuantum,
	}
	if r.quantum <= 0 {
		r.quantum = defaultLoadQuantum
	}
	if v, ok := params.SerdeParameters[SerdeFieldDelim]; ok && v != "" {
		r.fieldDelim = v[0]
	}
	if v, ok := params.SerdeParameters[SerdeEscapeChar]; ok && v != "" {
		r.escape = v[0]
		r.hasEscape = true
	}
	if v, ok := params.SerdeParameters[SerdeNullFormat]; ok {
		r.nullSeq = []byte(v)
	}

	r.filterIdx = map[string]int{}
	for name := range params.Filters {
		r.filterIdx[name] = -1
		for i, f := range params.Schema.Fields() {
			if strings.EqualFold(f.Name, name) {
				r.filterIdx[name] = i

				break
			}
		}
	}

	if err := r.seekToBoundary(); err != nil {
		return nil, err
	}

	return r, nil
}

// seekToBoundary positions the reader at the first record that starts
// inside the split. A split starting mid-file owns records beginning
// after its first line delimiter.
func (r *textReader) seekToBoundary() error {
	r.pos = r.params.Start
	if r.params.Start > 0 {
		off := r.params.Start - 1
		for {
			n := min(r.quantum, r.params.FileSize-off)
			if n <= 0 {
				r.done = true

				return nil
			}
			chunk, err := r.load(off, n)
			if err != nil {
				return err
			}
			if i := bytes.IndexByte(chunk, '\n'); i >= 0 {
				r.pos = off + int64(i) + 1

				break
			}
			off += n
		}
	}
	r.firstRecord = r.pos
	if r.pos >= r.params.Start+r.params.Length || r.pos >= r.params.FileSize {
		r.done = true
	}

	return nil
}

// load reads one quantum. Bytes outside [Start, Start+Length) are the
// boundary scan and the tail of the split's last record; they count as
// overread, not raw input.
func (r *textReader) load(off, n int64) ([]byte, error) {
	buf := make([]byte, n)
	read, err := r.params.File.ReadAt(buf, off)
	if r.params.Stats != nil && read > 0 {
		splitEnd := r.params.Start + r.params.Length
		inRange := min(off+int64(read), splitEnd) - max(off, r.params.Start)
		inRange = min(max(inRange, 0), int64(read))
		r.params.Stats.RawInputBytes.Add(inRange)
		r.params.Stats.OverreadBytes.Add(int64(read) - inRange)
		r.params.Stats.StorageReadCount.Add(1)
	}
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("%s: %w", r.params.Path, err)
	}

	return buf[:read], nil
}

// nextLine returns the next raw record, loading quanta as needed. The
// last record of a split may extend past Start+Length; it is consumed
// whole.
func (r *textReader) nextLine() ([]byte, bool, error) {
	if r.done || r.pos >= r.params.Start+r.params.Length {
		return nil, false, nil
	}

	for {
		if i := bytes.IndexByte(r.buf, '\n'); i >= 0 {
			line := r.buf[:i]
			r.buf = r.buf[i+1:]
			r.pos += int64(i) + 1

			return line, true, nil
		}
		if r.eof {
			if len(r.buf) == 0 {
				return nil, false, nil
			}
			line := r.buf
			r.pos += int64(len(r.buf))
			r.buf = nil

			return line, true, nil
		}

		off := r.pos + int64(len(r.buf))
		n := min(r.quantum, r.params.FileSize-off)
		if n <= 0 {
			r.eof = true

			continue
		}
		chunk, err := r.load(off, n)
		if err != nil {
			return nil, false, err
		}
		if int64(len(chunk)) < n {
			r.eof = true
		}
		r.buf = append(r.buf, chunk...)
	}
}

// splitFields cuts a record into columns, honoring the escape byte.
// Escaped delimiters are unescaped in place of the escape byte.
func (r *textReader) splitFields(line []byte) [][]byte {
	var fields [][]byte
	if !r.hasEscape {
		for {
			i := bytes.IndexByte(line, r.fieldDelim)
			if i < 0 {
				return append(fields, line)
			}
			fields = append(fields, line[:i])
			line = line[i+1:]
		}
	}

	cur := make([]byte, 0, len(line))
	for i := 0; i < len(line); i++ {
		switch {
		case line[i] == r.escape && i+1 < len(line):
			i++
			cur = append(cur, line[i])
		case line[i] == r.fieldDelim:
			fields = append(fields, cur)
			cur = nil
		default:
			cur = append(cur, line[i])
		}
	}

	return append(fields, cur)
}

func (r *textReader) isNull(field []byte, present bool) bool {
	return !present || bytes.Equal(field, r.nullSeq)
}

// rowPasses evaluates pushed filters against one record's raw fields,
// parsing each filtered field per its requested type.
func (r *textReader) rowPasses(fields [][]byte) bool {
	for name, f := range r.params.Filters {
		idx := r.filterIdx[name]
		if idx < 0 {
			if !f.TestNull() {
				return false
			}

			continue
		}

		var field []byte
		present := idx < len(fields)
		if present {
			field = fields[idx]
		}
		if r.isNull(field, present) {
			if !f.TestNull() {
				return false
			}

			continue
		}
		if !testTextValue(f, r.params.Schema.Field(idx).Type, field) {
			return false
		}
	}

	return true
}

func testTextValue(f vellum.Filter, typ arrow.DataType, field []byte) bool {
	s := string(field)
	switch typ.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return f.TestNull()
		}

		return f.TestInt64(v)
	case arrow.FLOAT32:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return f.TestNull()
		}

		return f.TestFloat(float32(v))
	case arrow.FLOAT64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return f.TestNull()
		}

		return f.TestDouble(v)
	case arrow.BOOL:
		v, err := strconv.ParseBool(s)
		if err != nil {
			return f.TestNull()
		}

		return f.TestBool(v)
	case arrow.TIMESTAMP:
		ts, err := parseTextTimestamp(s)
		if err != nil {
			return f.TestNull()
		}

		return f.TestTimestamp(ts)
	default:
		return f.TestBytes(field)
	}
}

var textTimestampLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTextTimestamp(s string) (vellum.Timestamp, error) {
	for _, layout := range textTimestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return vellum.TimestampFromTime(t), nil
		}
	}

	return vellum.Timestamp{}, fmt.Errorf("unparseable timestamp %q", s)
}

func (r *textReader) Next(maxRows, maxBytes int64) (*Batch, error) {
	if maxRows <= 0 {
		maxRows = 1
	}
	if maxBytes <= 0 {
		maxBytes = int64(^uint64(0) >> 1)
	}

	var (
		rows     [][][]byte
		rowNums  []int64
		rawBytes int64
	)
	for int64(len(rows)) < maxRows && rawBytes < maxBytes {
		line, ok, err := r.nextLine()
		if err != nil {
			return nil, err
		}
		if !ok {
			r.done = true

			break
		}
		pos := r.row
		r.row++
		if r.params.Counters != nil {
			r.params.Counters.RawInputRows++
		}

		fields := r.splitFields(line)
		if !r.rowPasses(fields) {
			continue
		}
		rows = append(rows, fields)
		rowNums = append(rowNums, pos)
		rawBytes += int64(len(line))
	}

	if len(rows) == 0 {
		return nil, io.EOF
	}

	columns := make([]*Column, 0, len(r.params.Schema.Fields())+1)
	for i, f := range r.params.Schema.Fields() {
		columns = append(columns, r.lazyColumn(f, i, rows))
	}
	if r.params.EmitRowNumbers {
		columns = append(columns, r.rowNumberColumn(rowNums))
	}

	return NewBatch(int64(len(rows)), rowNums[0], columns), nil
}

// lazyColumn defers parsing one positional column until it is loaded.
func (r *textReader) lazyColumn(field arrow.Field, idx int, rows [][][]byte) *Column {
	alloc := r.params.Alloc
	if alloc == nil {
		alloc = memory.DefaultAllocator
	}

	return NewColumn(field, func() (arrow.Array, error) {
		bld := array.NewBuilder(alloc, field.Type)
		defer bld.Release()

		for _, fields := range rows {
			var cell []byte
			present := idx < len(fields)
			if present {
				cell = fields[idx]
			}
			if r.isNull(cell, present) {
				bld.AppendNull()

				continue
			}
			if err := bld.AppendValueFromString(string(cell)); err != nil {
				bld.AppendNull()
			}
		}

		return bld.NewArray(), nil
	})
}

func (r *textReader) rowNumberColumn(rowNums []int64) *Column {
	alloc := r.params.Alloc
	if alloc == nil {
		alloc = memory.DefaultAllocator
	}

	return NewColumn(
		arrow.Field{Name: RowNumberColumn, Type: arrow.PrimitiveTypes.Int64},
		func() (arrow.Array, error) {
			bld := array.NewInt64Builder(alloc)
			defer bld.Release()
			bld.AppendValues(rowNums, nil)

			return bld.NewInt64Array(), nil
		})
}

// Seek positions the reader at the given split-relative row. Seeking
// backwards rescans from the split boundary.
func (r *textReader) Seek(row int64) error {
	if row < 0 {
		return fmt.Errorf("%w: seek to negative row %d", vellum.ErrInvalidArgument, row)
	}
	if row < r.row {
		r.pos = r.firstRecord
		r.row = 0
		r.buf = nil
		r.eof = false
		r.done = r.firstRecord >= r.params.Start+r.params.Length || r.firstRecord >= r.params.FileSize
	}

	for r.row < row {
		_, ok, err := r.nextLine()
		if err != nil {
			return err
		}
		if !ok {
			r.done = true

			return nil
		}
		r.row++
	}

	return nil
}

func (r *textReader) Close() error {
	r.buf = nil
	r.done = true

	return nil
}
