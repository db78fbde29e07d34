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

// Session holds the per-query knobs the scan recognizes. Field names
// follow the session property names; zero values are replaced by
// DefaultSession defaults when loaded from config.
type Session struct {
	MaxPartitionsPerWriters                int   `yaml:"max_partitions_per_writers"`
	IgnoreMissingFiles                     bool  `yaml:"ignore_missing_files"`
	FileColumnNamesReadAsLowerCase         bool  `yaml:"file_column_names_read_as_lower_case"`
	ReadTimestampPartitionValueAsLocalTime bool  `yaml:"read_timestamp_partition_value_as_local_time"`
	OrcUseColumnNames                      bool  `yaml:"orc_use_column_names"`
	MaxCoalescedBytes                      int64 `yaml:"max_coalesced_bytes"`
	MaxCoalescedDistanceBytes              int64 `yaml:"max_coalesced_distance_bytes"`
	LoadQuantum                            int64 `yaml:"load_quantum"`
	ReadStatsBasedFilterReorderDisabled    bool  `yaml:"read_stats_based_filter_reorder_disabled"`
	MaxSplitPreloadPerDriver               int   `yaml:"max_split_preload_per_driver"`
	PreferredOutputBatchBytes              int64 `yaml:"preferred_output_batch_bytes"`
	MaxOutputBatchRows                     int64 `yaml:"max_output_batch_rows"`
	TableScanGetOutputTimeLimitMs          int64 `yaml:"table_scan_get_output_time_limit_ms"`
	CachePrefetchMinPct                    int   `yaml:"cache_prefetch_min_pct"`
}

// DefaultSession returns the defaults used when no config overrides
// them.
func DefaultSession() *Session {
	return &Session{
		MaxPartitionsPerWriters:       100,
		MaxCoalescedBytes:             128 << 20,
		MaxCoalescedDistanceBytes:     512 << 10,
		LoadQuantum:                   8 << 20,
		MaxSplitPreloadPerDriver:      2,
		PreferredOutputBatchBytes:     10 << 20,
		MaxOutputBatchRows:            10_000,
		TableScanGetOutputTimeLimitMs: 5_000,
		CachePrefetchMinPct:           80,
	}
}

// normalized fills zero fields from the defaults so partially
// specified sessions behave.
func (s *Session) normalized() *Session {
	if s == nil {
		return DefaultSession()
	}
	out := *s
	def := DefaultSession()
	if out.MaxCoalescedBytes <= 0 {
		out.MaxCoalescedBytes = def.MaxCoalescedBytes
	}
	if out.MaxCoalescedDistanceBytes <= 0 {
		out.MaxCoalescedDistanceBytes = def.MaxCoalescedDistanceBytes
	}
	if out.LoadQuantum <= 0 {
		out.LoadQuantum = def.LoadQuantum
	}
	if out.PreferredOutputBatchBytes <= 0 {
		out.PreferredOutputBatchBytes = def.PreferredOutputBatchBytes
	}
	if out.MaxOutputBatchRows <= 0 {
		out.MaxOutputBatchRows = def.MaxOutputBatchRows
	}
	if out.TableScanGetOutputTimeLimitMs <= 0 {
		out.TableScanGetOutputTimeLimitMs = def.TableScanGetOutputTimeLimitMs
	}

	return &out
}
