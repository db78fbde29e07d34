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

package vellum

import "errors"

var (
	// ErrInvalidArgument is wrapped by errors (and constructor panics)
	// caused by invalid caller-supplied arguments.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrType indicates a value or filter of an unexpected type.
	ErrType = errors.New("invalid type")
	// ErrInvalidSubfield indicates a subfield path that failed to parse.
	ErrInvalidSubfield = errors.New("invalid subfield path")
)
