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
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/pterm/pterm"

	"github.com/vellumdata/vellum-go/scan"
)

type Output interface {
	Record(arrow.Record)
	Stats(scan.StatsSnapshot)
	Formats([]string)
	Error(error)
}

type textOutput struct{}

func (textOutput) Record(rec arrow.Record) {
	data := pterm.TableData{}
	header := make([]string, rec.NumCols())
	for i, f := range rec.Schema().Fields() {
		header[i] = f.Name
	}
	data = append(data, header)

	for row := 0; row < int(rec.NumRows()); row++ {
		line := make([]string, rec.NumCols())
		for col := range line {
			c := rec.Column(col)
			if c.IsNull(row) {
				line[col] = "NULL"
			} else {
				line[col] = c.ValueStr(row)
			}
		}
		data = append(data, line)
	}

	if err := pterm.DefaultTable.
		WithHasHeader(true).
		WithHeaderRowSeparator("-").
		WithData(data).Render(); err != nil {
		log.Fatal(err)
	}
}

func (textOutput) Stats(s scan.StatsSnapshot) {
	data := pterm.TableData{
		{"counter", "value"},
		{"raw input rows", strconv.FormatInt(s.RawInputRows, 10)},
		{"raw input bytes", strconv.FormatInt(s.RawInputBytes, 10)},
		{"overread bytes", strconv.FormatInt(s.OverreadBytes, 10)},
		{"storage read bytes", strconv.FormatInt(s.StorageReadBytes, 10)},
		{"storage reads", strconv.FormatInt(s.NumStorageRead, 10)},
		{"footer buffer overread", strconv.FormatInt(s.FooterBufferOverread, 10)},
		{"skipped splits", strconv.FormatInt(s.SkippedSplits, 10)},
		{"skipped strides", strconv.FormatInt(s.SkippedStrides, 10)},
		{"preloaded splits", strconv.FormatInt(s.PreloadedSplits, 10)},
		{"yields", strconv.FormatInt(s.YieldCount, 10)},
		{"io wait wall nanos", strconv.FormatInt(s.IOWaitWallNanos, 10)},
		{"total scan nanos", strconv.FormatInt(s.TotalScanTimeNanos, 10)},
	}

	if err := pterm.DefaultTable.
		WithBoxed(true).
		WithHasHeader(true).
		WithHeaderRowSeparator("-").
		WithData(data).Render(); err != nil {
		log.Fatal(err)
	}
}

func (textOutput) Formats(names []string) {
	data := pterm.TableData{{"format"}}
	for _, n := range names {
		data = append(data, []string{n})
	}

	if err := pterm.DefaultTable.
		WithBoxed(true).
		WithHasHeader(true).
		WithHeaderRowSeparator("-").
		WithData(data).Render(); err != nil {
		log.Fatal(err)
	}
}

func (textOutput) Error(err error) {
	pterm.Error.Println(err.Error())
}

type jsonOutput struct{}

func (jsonOutput) Record(rec arrow.Record) {
	enc := json.NewEncoder(os.Stdout)
	if err := enc.Encode(rec); err != nil {
		log.Fatal(err)
	}
}

func (jsonOutput) Stats(s scan.StatsSnapshot) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		log.Fatal(err)
	}
}

func (jsonOutput) Formats(names []string) {
	if err := json.NewEncoder(os.Stdout).Encode(names); err != nil {
		log.Fatal(err)
	}
}

func (jsonOutput) Error(err error) {
	if werr := json.NewEncoder(os.Stderr).Encode(map[string]string{
		"error": err.Error(),
		"code":  string(scan.CodeOf(err)),
	}); werr != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}
