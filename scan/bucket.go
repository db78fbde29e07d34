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
	"math"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/bitutil"

	vellum "github.com/vellumdata/vellum-go"
)

// Hive-compatible per-value hashes. These must match the writer's
// bucketing function bit for bit or conversion silently drops the
// wrong rows.

func hiveHashInt64(v int64) int32 {
	return int32(uint64(v) ^ (uint64(v) >> 32))
}

func hiveHashBytes(b []byte) int32 {
	var h int32
	for _, c := range b {
		h = h*31 + int32(int8(c))
	}

	return h
}

func hiveHashBool(v bool) int32 {
	if v {
		return 1
	}

	return 0
}

func hiveHashValue(arr arrow.Array, row int) (int32, error) {
	if arr.IsNull(row) {
		return 0, nil
	}
	switch a := arr.(type) {
	case *array.Int8:
		return int32(a.Value(row)), nil
	case *array.Int16:
		return int32(a.Value(row)), nil
	case *array.Int32:
		return a.Value(row), nil
	case *array.Int64:
		return hiveHashInt64(a.Value(row)), nil
	case *array.Float32:
		return int32(math.Float32bits(a.Value(row))), nil
	case *array.Float64:
		return hiveHashInt64(int64(math.Float64bits(a.Value(row)))), nil
	case *array.String:
		return hiveHashBytes([]byte(a.Value(row))), nil
	case *array.Binary:
		return hiveHashBytes(a.Value(row)), nil
	case *array.Boolean:
		return hiveHashBool(a.Value(row)), nil
	case *array.Timestamp:
		return hiveHashInt64(int64(a.Value(row))), nil
	default:
		return 0, fmt.Errorf("%w: unsupported bucket key type %s", vellum.ErrInvalidArgument, arr.DataType())
	}
}

// bucketMask marks the rows of rec whose re-hashed bucket, computed
// over the conversion's key columns at the new bucket count, equals
// the split's bucket. out is a bitmap of at least rec.NumRows() bits.
func bucketMask(rec arrow.Record, conv *BucketConversion, splitBucket int, out []byte) error {
	if conv.NewBucketCount <= 0 {
		return fmt.Errorf("%w: bucket conversion with count %d", vellum.ErrInvalidArgument, conv.NewBucketCount)
	}
	target := int32(splitBucket % conv.NewBucketCount)

	keys := make([]arrow.Array, len(conv.KeyColumns))
	for i, name := range conv.KeyColumns {
		idx := rec.Schema().FieldIndices(name)
		if len(idx) == 0 {
			return fmt.Errorf("%w: bucket key column %q not read", vellum.ErrInvalidArgument, name)
		}
		keys[i] = rec.Column(idx[0])
	}

	n := int(rec.NumRows())
	for row := 0; row < n; row++ {
		var h int32
		for _, arr := range keys {
			vh, err := hiveHashValue(arr, row)
			if err != nil {
				return err
			}
			h = h*31 + vh
		}
		bucket := (h & math.MaxInt32) % int32(conv.NewBucketCount)
		bitutil.SetBitTo(out, row, bucket == target)
	}

	return nil
}
