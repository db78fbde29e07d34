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

// Package vellum implements the value-level filter algebra used by the
// columnar scan pipeline: a closed family of pushdown predicates with
// scalar and batch test kernels, range testing against [min, max]
// statistics, merging (intersection) and null-policy manipulation.
//
// Filters are immutable value types. They are constructed once by a
// planner, borrowed by readers during decoding and merged with dynamic
// filters at runtime. None of the test methods ever return an error;
// a value of the wrong type simply does not pass.
package vellum

import (
	"runtime/debug"
	"strings"
)

var version string

func init() {
	version = "(unknown version)"
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, dep := range info.Deps {
			if strings.HasPrefix(dep.Path, "github.com/vellumdata/vellum-go") {
				version = dep.Version

				break
			}
		}
	}
}

func Version() string { return version }

// Optional represents a typed value that could be null.
type Optional[T any] struct {
	Val   T
	Valid bool
}

// Some wraps a present value.
func Some[T any](v T) Optional[T] { return Optional[T]{Val: v, Valid: true} }
