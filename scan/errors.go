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
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/vellumdata/vellum-go/format"
)

// ErrorCode classifies scan failures for the task-level handler.
type ErrorCode string

const (
	CodeFileNotFound   ErrorCode = "FILE_NOT_FOUND"
	CodeUserError      ErrorCode = "USER_ERROR"
	CodeCancelled      ErrorCode = "CANCELLED"
	CodeSchemaMismatch ErrorCode = "SCHEMA_MISMATCH"
)

// Error is a scan failure annotated with its code and, when the
// failure is split-local, the file path being read.
type Error struct {
	Code ErrorCode
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Path, e.Err)
	}

	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// wrapSplitError classifies an error from a split's open or read and
// attaches the file path.
func wrapSplitError(path string, err error) error {
	var se *Error
	if errors.As(err, &se) {
		return err
	}

	code := CodeUserError
	switch {
	case errors.Is(err, fs.ErrNotExist):
		code = CodeFileNotFound
	case errors.Is(err, format.ErrSchemaMismatch):
		code = CodeSchemaMismatch
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		code = CodeCancelled
	}

	return &Error{Code: code, Path: path, Err: err}
}

// CodeOf extracts the error code, defaulting to USER_ERROR.
func CodeOf(err error) ErrorCode {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}

	return CodeUserError
}
