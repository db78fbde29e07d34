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
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// Column is one lazily materialized column of a batch. Load decodes at
// most once; the result is cached for the batch lifetime.
type Column struct {
	field arrow.Field

	once sync.Once
	load func() (arrow.Array, error)
	arr  arrow.Array
	err  error
}

// NewColumn creates a lazy column. load runs the first time Load is
// called and must produce an array of the column's row count.
func NewColumn(field arrow.Field, load func() (arrow.Array, error)) *Column {
	return &Column{field: field, load: load}
}

// NewLoadedColumn wraps an already decoded array.
func NewLoadedColumn(field arrow.Field, arr arrow.Array) *Column {
	c := &Column{field: field, arr: arr}
	c.once.Do(func() {})

	return c
}

func (c *Column) Field() arrow.Field { return c.field }

// Load materializes the column, decoding on first call.
func (c *Column) Load() (arrow.Array, error) {
	c.once.Do(func() {
		c.arr, c.err = c.load()
		c.load = nil
	})

	return c.arr, c.err
}

// Release drops the decoded array if one was materialized.
func (c *Column) Release() {
	c.once.Do(func() { c.load = nil })
	if c.arr != nil {
		c.arr.Release()
		c.arr = nil
	}
}

// Batch is one unit of reader output: a row count, the file-relative
// row position of its first row, and one lazy column per requested
// schema field.
type Batch struct {
	numRows  int64
	startRow int64
	columns  []*Column
}

// NewBatch wraps the given columns. startRow is the file-relative
// position of the batch's first surviving row before filtering.
func NewBatch(numRows, startRow int64, columns []*Column) *Batch {
	return &Batch{numRows: numRows, startRow: startRow, columns: columns}
}

func (b *Batch) NumRows() int64       { return b.numRows }
func (b *Batch) StartRow() int64      { return b.startRow }
func (b *Batch) NumColumns() int      { return len(b.columns) }
func (b *Batch) Column(i int) *Column { return b.columns[i] }

// Record materializes every column into an arrow record. The caller
// owns the returned record; the batch keeps its own references.
func (b *Batch) Record() (arrow.Record, error) {
	fields := make([]arrow.Field, len(b.columns))
	arrs := make([]arrow.Array, len(b.columns))
	for i, c := range b.columns {
		a, err := c.Load()
		if err != nil {
			return nil, err
		}
		fields[i], arrs[i] = c.field, a
	}
	schema := arrow.NewSchema(fields, nil)

	return array.NewRecord(schema, arrs, b.numRows), nil
}

// Release drops all materialized columns.
func (b *Batch) Release() {
	for _, c := range b.columns {
		c.Release()
	}
}
