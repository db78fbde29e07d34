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
	"fmt"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	vellum "github.com/vellumdata/vellum-go"
)

// ColumnKind says where a requested column's values come from.
type ColumnKind int

const (
	// ColumnRegular is read from file data.
	ColumnRegular ColumnKind = iota
	// ColumnPartitionKey is a constant injected from the split's
	// partition map, never read from data.
	ColumnPartitionKey
	// ColumnSynthesized is a per-split constant like $path.
	ColumnSynthesized
	// ColumnRowIndex carries the reader's running row position.
	ColumnRowIndex
	// ColumnRowID materializes the row_id struct from the split's
	// RowIDProperties.
	ColumnRowID
)

// Synthesized column names.
const (
	PathColumn             = "$path"
	BucketColumn           = "$bucket"
	FileSizeColumn         = "$file_size"
	FileModifiedTimeColumn = "$file_modified_time"
)

// ColumnHandle names one requested output column.
type ColumnHandle struct {
	Name     string
	Kind     ColumnKind
	DataType arrow.DataType
	// RequiredSubfields prune the projection of nested columns; an
	// empty list reads the whole column.
	RequiredSubfields []vellum.Subfield
}

// RowIDType is the struct produced for ColumnRowID columns.
var RowIDType = arrow.StructOf(
	arrow.Field{Name: "row_number", Type: arrow.PrimitiveTypes.Int64},
	arrow.Field{Name: "row_group_id", Type: arrow.BinaryTypes.String},
	arrow.Field{Name: "metadata_version", Type: arrow.PrimitiveTypes.Int64},
	arrow.Field{Name: "partition_id", Type: arrow.PrimitiveTypes.Int64},
	arrow.Field{Name: "table_guid", Type: arrow.BinaryTypes.String},
)

// SyntheticColumn returns the handle for one of the $-columns, or
// false for any other name.
func SyntheticColumn(name string) (ColumnHandle, bool) {
	switch name {
	case PathColumn:
		return ColumnHandle{Name: name, Kind: ColumnSynthesized, DataType: arrow.BinaryTypes.String}, true
	case BucketColumn:
		return ColumnHandle{Name: name, Kind: ColumnSynthesized, DataType: arrow.PrimitiveTypes.Int32}, true
	case FileSizeColumn:
		return ColumnHandle{Name: name, Kind: ColumnSynthesized, DataType: arrow.PrimitiveTypes.Int64}, true
	case FileModifiedTimeColumn:
		return ColumnHandle{Name: name, Kind: ColumnSynthesized, DataType: arrow.PrimitiveTypes.Int64}, true
	default:
		return ColumnHandle{}, false
	}
}

const partitionTimestampLayout = "2006-01-02 15:04:05"

// constantArray materializes n copies of a partition key or synthetic
// value. value nil produces all nulls. Timestamps honor the
// read-as-local-time session flag.
func constantArray(alloc memory.Allocator, typ arrow.DataType, value *string, n int, asLocalTime bool) (arrow.Array, error) {
	if value == nil {
		return array.MakeArrayOfNull(alloc, typ, n), nil
	}

	if ts, ok := typ.(*arrow.TimestampType); ok {
		loc := time.UTC
		if asLocalTime {
			loc = time.Local
		}
		parsed, err := time.ParseInLocation(partitionTimestampLayout, *value, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: partition timestamp %q: %v", vellum.ErrInvalidArgument, *value, err)
		}
		v, err := arrow.TimestampFromTime(parsed, ts.Unit)
		if err != nil {
			return nil, err
		}

		bld := array.NewTimestampBuilder(alloc, ts)
		defer bld.Release()
		for i := 0; i < n; i++ {
			bld.Append(v)
		}

		return bld.NewArray(), nil
	}

	bld := array.NewBuilder(alloc, typ)
	defer bld.Release()
	for i := 0; i < n; i++ {
		if err := bld.AppendValueFromString(*value); err != nil {
			return nil, fmt.Errorf("%w: partition value %q for %s: %v", vellum.ErrInvalidArgument, *value, typ, err)
		}
	}

	return bld.NewArray(), nil
}

// rowIDArray builds the row_id struct column for one batch from the
// surviving rows' file positions.
func rowIDArray(alloc memory.Allocator, rowNumbers *array.Int64, split *Split) arrow.Array {
	props := split.RowIDProperties
	if props == nil {
		props = &RowIDProperties{}
	}
	groupID := rowGroupID(split.Path)

	bld := array.NewStructBuilder(alloc, RowIDType)
	defer bld.Release()
	rowNum := bld.FieldBuilder(0).(*array.Int64Builder)
	group := bld.FieldBuilder(1).(*array.StringBuilder)
	metaVer := bld.FieldBuilder(2).(*array.Int64Builder)
	partID := bld.FieldBuilder(3).(*array.Int64Builder)
	guid := bld.FieldBuilder(4).(*array.StringBuilder)

	for i := 0; i < rowNumbers.Len(); i++ {
		bld.Append(true)
		rowNum.Append(rowNumbers.Value(i))
		group.Append(groupID)
		metaVer.Append(props.MetadataVersion)
		partID.Append(props.PartitionID)
		guid.Append(props.TableGUID)
	}

	return bld.NewArray()
}

// rowGroupID is the file name portion of the split path.
func rowGroupID(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}

	return path
}
