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

package main

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vellumdata/vellum-go/format"
	"github.com/vellumdata/vellum-go/scan"
)

func TestInferFormat(t *testing.T) {
	assert.Equal(t, format.FormatParquet, inferFormat("/w/part-00000.parquet"))
	assert.Equal(t, format.FormatText, inferFormat("/w/data.csv"))
	assert.Equal(t, format.FormatText, inferFormat("/w/data"))
}

func TestParseSchema(t *testing.T) {
	schema, err := parseSchema("id:bigint, name:varchar,score:double,ok:boolean")
	require.NoError(t, err)
	require.Equal(t, 4, schema.NumFields())
	assert.Equal(t, arrow.PrimitiveTypes.Int64, schema.Field(0).Type)
	assert.Equal(t, arrow.BinaryTypes.String, schema.Field(1).Type)
	assert.Equal(t, arrow.PrimitiveTypes.Float64, schema.Field(2).Type)
	assert.Equal(t, arrow.FixedWidthTypes.Boolean, schema.Field(3).Type)

	_, err = parseSchema("id")
	assert.Error(t, err)
	_, err = parseSchema("id:decimal")
	assert.Error(t, err)
}

func TestParseFilterExpressions(t *testing.T) {
	col, f, err := parseFilter("id >= 10")
	require.NoError(t, err)
	assert.Equal(t, "id", col)
	assert.False(t, f.TestInt64(9))
	assert.True(t, f.TestInt64(10))

	col, f, err = parseFilter("id<=5")
	require.NoError(t, err)
	assert.Equal(t, "id", col)
	assert.True(t, f.TestInt64(5))
	assert.False(t, f.TestInt64(6))

	col, f, err = parseFilter("name = alpha")
	require.NoError(t, err)
	assert.Equal(t, "name", col)
	assert.True(t, f.TestBytes([]byte("alpha")))
	assert.False(t, f.TestBytes([]byte("beta")))

	col, f, err = parseFilter("score >= 1.5")
	require.NoError(t, err)
	assert.Equal(t, "score", col)
	assert.True(t, f.TestDouble(2.0))
	assert.False(t, f.TestDouble(1.0))

	col, f, err = parseFilter("tag is null")
	require.NoError(t, err)
	assert.Equal(t, "tag", col)
	assert.True(t, f.TestNull())

	col, f, err = parseFilter("tag not null")
	require.NoError(t, err)
	assert.Equal(t, "tag", col)
	assert.False(t, f.TestNull())

	_, _, err = parseFilter("garbage")
	assert.Error(t, err)
}

func TestParseFiltersAddsFilterOnlyColumns(t *testing.T) {
	schema, err := parseSchema("id:bigint,name:varchar")
	require.NoError(t, err)
	output := []scan.ColumnHandle{
		{Name: "name", Kind: scan.ColumnRegular, DataType: arrow.BinaryTypes.String},
	}

	filters, filterOnly, err := parseFilters([]string{"id >= 3"}, schema, output)
	require.NoError(t, err)
	assert.Contains(t, filters, "id")
	require.Len(t, filterOnly, 1)
	assert.Equal(t, "id", filterOnly[0].Name)

	_, _, err = parseFilters([]string{"ghost >= 3"}, schema, output)
	assert.Error(t, err)
}

func TestProjectColumns(t *testing.T) {
	schema, err := parseSchema("id:bigint,name:varchar")
	require.NoError(t, err)

	all, err := projectColumns(schema, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	some, err := projectColumns(schema, []string{"name", "$path"})
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, scan.ColumnRegular, some[0].Kind)
	assert.Equal(t, scan.ColumnSynthesized, some[1].Kind)

	_, err = projectColumns(schema, []string{"nope"})
	assert.Error(t, err)
}
