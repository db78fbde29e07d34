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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vellumdata/vellum-go/scan"
)

func TestParseConfig(t *testing.T) {
	doc := []byte(`
session:
  ignore_missing_files: true
  max_output_batch_rows: 2048
handle-cache-size: 64
io:
  s3.region: us-east-1
`)
	cfg := ParseConfig(doc)

	require.NotNil(t, cfg.Session)
	assert.True(t, cfg.Session.IgnoreMissingFiles)
	assert.EqualValues(t, 2048, cfg.Session.MaxOutputBatchRows)
	assert.Equal(t, 64, cfg.HandleCacheSize)
	assert.Equal(t, "us-east-1", cfg.IOProperties["s3.region"])
	assert.Equal(t, scan.DefaultSession().MaxSplitPreloadPerDriver, cfg.PreloadWorkers)
}

func TestParseConfigDefaults(t *testing.T) {
	for _, doc := range [][]byte{nil, []byte("not: [valid")} {
		cfg := ParseConfig(doc)
		assert.Equal(t, scan.DefaultSession(), cfg.Session)
		assert.Equal(t, defaultHandleCacheSize, cfg.HandleCacheSize)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	assert.Nil(t, LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")))
}

func TestLoadConfigExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("handle-cache-size: 7\n"), 0o644))

	cfg := ParseConfig(LoadConfig(path))
	assert.Equal(t, 7, cfg.HandleCacheSize)
}
