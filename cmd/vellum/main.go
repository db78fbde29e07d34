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
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/docopt/docopt-go"

	vellum "github.com/vellumdata/vellum-go"
	"github.com/vellumdata/vellum-go/config"
	"github.com/vellumdata/vellum-go/format"
	vio "github.com/vellumdata/vellum-go/io"
	"github.com/vellumdata/vellum-go/scan"
)

const usage = `vellum.

Usage:
  vellum scan [options] FILE [COLUMN...]
  vellum formats
  vellum -h | --help | --version

Commands:
  scan      Scan a data file and print its rows and runtime stats.
  formats   List the registered file formats.

Arguments:
  FILE      path or URI of the file to scan
  COLUMN    columns to project (default: all)

Options:
  -h --help          show this help message and exit
  --format TEXT      file format; inferred from the extension if unset
  --schema TEXT      column types for schemaless formats, as name:type
                     pairs separated by commas (types: bigint, double,
                     varchar, boolean)
                     Ex: "id:bigint,name:varchar"
  --filter TEXT ...  pushed filter, one of COL=N, COL>=N, COL<=N,
                     "COL is null", "COL not null"; repeatable
  --delim TEXT       field delimiter for text files
  --limit N          stop after printing N rows [default: 100]
  --row-index        include the file row position of each row
  --no-stats         do not print the runtime stats table
  --output TYPE      output type (json/text) [default: text]
  --config TEXT      path to the configuration file`

type cliConfig struct {
	Scan    bool `docopt:"scan"`
	Formats bool `docopt:"formats"`

	File    string   `docopt:"FILE"`
	Columns []string `docopt:"COLUMN"`

	Format     string   `docopt:"--format"`
	SchemaStr  string   `docopt:"--schema"`
	Filters    []string `docopt:"--filter"`
	Delim      string   `docopt:"--delim"`
	Limit      int64    `docopt:"--limit"`
	RowIndex   bool     `docopt:"--row-index"`
	NoStats    bool     `docopt:"--no-stats"`
	Output     string   `docopt:"--output"`
	ConfigPath string   `docopt:"--config"`
}

func main() {
	args, err := docopt.ParseArgs(usage, os.Args[1:], vellum.Version())
	if err != nil {
		log.Fatal(err)
	}

	var cfg cliConfig
	if err := args.Bind(&cfg); err != nil {
		log.Fatal(err)
	}

	var out Output
	switch strings.ToLower(cfg.Output) {
	case "json":
		out = jsonOutput{}
	case "text", "":
		out = textOutput{}
	default:
		log.Fatal("output type must be json or text")
	}

	if err := run(context.Background(), cfg, out); err != nil {
		out.Error(err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg cliConfig, out Output) error {
	if cfg.Formats {
		out.Formats(format.RegisteredFormats())

		return nil
	}

	fileCfg := config.ParseConfig(config.LoadConfig(cfg.ConfigPath))

	fio, err := vio.LoadIO(ctx, cfg.File, fileCfg.IOProperties)
	if err != nil {
		return err
	}

	formatName := cfg.Format
	if formatName == "" {
		formatName = inferFormat(cfg.File)
	}

	schema, err := resolveSchema(ctx, formatName, cfg, fio)
	if err != nil {
		return err
	}

	output, err := projectColumns(schema, cfg.Columns)
	if err != nil {
		return err
	}
	if cfg.RowIndex {
		output = append(output, scan.ColumnHandle{Name: "row_index", Kind: scan.ColumnRowIndex})
	}

	filters, filterOnly, err := parseFilters(cfg.Filters, schema, output)
	if err != nil {
		return err
	}

	split, err := wholeFileSplit(ctx, fio, cfg.File, formatName, cfg.Delim)
	if err != nil {
		return err
	}
	queue := scan.NewSplitQueue()
	queue.Add(split)
	queue.NoMoreSplits()

	op, err := scan.NewOperator(ctx, scan.OperatorConfig{
		Session:    fileCfg.Session,
		Output:     output,
		FilterOnly: filterOnly,
		Filters:    filters,
		Queue:      queue,
		IO:         fio,
	})
	if err != nil {
		return err
	}
	defer op.Close()

	limit := cfg.Limit
	if limit <= 0 {
		limit = math.MaxInt64
	}
	var printed int64
	for printed < limit {
		rec, err := op.GetOutput(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if rec == nil {
			continue
		}
		if remain := limit - printed; rec.NumRows() > remain {
			sliced := rec.NewSlice(0, remain)
			rec.Release()
			rec = sliced
		}
		out.Record(rec)
		printed += rec.NumRows()
		rec.Release()
	}

	if !cfg.NoStats {
		out.Stats(op.Stats())
	}

	return nil
}

func inferFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		return format.FormatParquet
	default:
		return format.FormatText
	}
}

// resolveSchema reads the file schema for self-describing formats and
// parses --schema for the rest.
func resolveSchema(ctx context.Context, formatName string, cfg cliConfig, fio vio.IO) (*arrow.Schema, error) {
	if formatName == format.FormatParquet {
		return parquetFileSchema(ctx, fio, cfg.File)
	}
	if cfg.SchemaStr == "" {
		return nil, fmt.Errorf("format %s needs --schema", formatName)
	}

	return parseSchema(cfg.SchemaStr)
}

func parquetFileSchema(ctx context.Context, fio vio.IO, path string) (*arrow.Schema, error) {
	f, err := fio.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pf, err := file.NewParquetReader(f)
	if err != nil {
		return nil, err
	}
	defer pf.Close()

	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, err
	}

	return fr.Schema()
}

func parseSchema(s string) (*arrow.Schema, error) {
	var fields []arrow.Field
	for _, part := range strings.Split(s, ",") {
		name, typ, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("malformed schema entry %q, want name:type", part)
		}
		dt, err := dataTypeFor(typ)
		if err != nil {
			return nil, err
		}
		fields = append(fields, arrow.Field{Name: name, Type: dt, Nullable: true})
	}
	if len(fields) == 0 {
		return nil, errors.New("empty schema")
	}

	return arrow.NewSchema(fields, nil), nil
}

func dataTypeFor(typ string) (arrow.DataType, error) {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "bigint", "int64":
		return arrow.PrimitiveTypes.Int64, nil
	case "double", "float64":
		return arrow.PrimitiveTypes.Float64, nil
	case "varchar", "string":
		return arrow.BinaryTypes.String, nil
	case "boolean", "bool":
		return arrow.FixedWidthTypes.Boolean, nil
	default:
		return nil, fmt.Errorf("unsupported column type %q", typ)
	}
}

func projectColumns(schema *arrow.Schema, requested []string) ([]scan.ColumnHandle, error) {
	if len(requested) == 0 {
		handles := make([]scan.ColumnHandle, schema.NumFields())
		for i, f := range schema.Fields() {
			handles[i] = scan.ColumnHandle{Name: f.Name, Kind: scan.ColumnRegular, DataType: f.Type}
		}

		return handles, nil
	}

	handles := make([]scan.ColumnHandle, 0, len(requested))
	for _, name := range requested {
		if h, ok := scan.SyntheticColumn(name); ok {
			handles = append(handles, h)

			continue
		}
		idx := schema.FieldIndices(name)
		if len(idx) == 0 {
			return nil, fmt.Errorf("column %q not in schema", name)
		}
		f := schema.Field(idx[0])
		handles = append(handles, scan.ColumnHandle{Name: f.Name, Kind: scan.ColumnRegular, DataType: f.Type})
	}

	return handles, nil
}

// parseFilters turns --filter expressions into pushed filters, and
// reports which filtered columns need reading beyond the projection.
func parseFilters(exprs []string, schema *arrow.Schema, output []scan.ColumnHandle) (map[string]vellum.Filter, []scan.ColumnHandle, error) {
	if len(exprs) == 0 {
		return nil, nil, nil
	}

	projected := map[string]bool{}
	for _, h := range output {
		projected[h.Name] = true
	}

	filters := map[string]vellum.Filter{}
	var filterOnly []scan.ColumnHandle
	for _, expr := range exprs {
		col, f, err := parseFilter(expr)
		if err != nil {
			return nil, nil, err
		}
		if cur, ok := filters[col]; ok {
			f = cur.MergeWith(f)
		}
		filters[col] = f

		if !projected[col] {
			idx := schema.FieldIndices(col)
			if len(idx) == 0 {
				return nil, nil, fmt.Errorf("filter column %q not in schema", col)
			}
			fld := schema.Field(idx[0])
			filterOnly = append(filterOnly, scan.ColumnHandle{Name: fld.Name, Kind: scan.ColumnRegular, DataType: fld.Type})
			projected[col] = true
		}
	}

	return filters, filterOnly, nil
}

func parseFilter(expr string) (string, vellum.Filter, error) {
	expr = strings.TrimSpace(expr)
	switch {
	case strings.HasSuffix(expr, " is null"):
		return strings.TrimSpace(strings.TrimSuffix(expr, " is null")), vellum.NewIsNull(), nil
	case strings.HasSuffix(expr, " not null"):
		return strings.TrimSpace(strings.TrimSuffix(expr, " not null")), vellum.NewIsNotNull(), nil
	}

	for _, op := range []string{">=", "<=", "="} {
		col, val, ok := strings.Cut(expr, op)
		if !ok {
			continue
		}
		col, val = strings.TrimSpace(col), strings.TrimSpace(val)
		f, err := rangeFilter(op, val)
		if err != nil {
			return "", nil, fmt.Errorf("filter %q: %w", expr, err)
		}

		return col, f, nil
	}

	return "", nil, fmt.Errorf("cannot parse filter %q", expr)
}

func rangeFilter(op, val string) (vellum.Filter, error) {
	if n, err := strconv.ParseInt(val, 10, 64); err == nil {
		switch op {
		case ">=":
			return vellum.NewBigintRange(n, math.MaxInt64, false), nil
		case "<=":
			return vellum.NewBigintRange(math.MinInt64, n, false), nil
		default:
			return vellum.NewBigintRange(n, n, false), nil
		}
	}
	if x, err := strconv.ParseFloat(val, 64); err == nil {
		switch op {
		case ">=":
			return vellum.NewDoubleRange(x, false, false, 0, true, false, false, false), nil
		case "<=":
			return vellum.NewDoubleRange(0, true, false, x, false, false, false, false), nil
		default:
			return vellum.NewDoubleRange(x, false, false, x, false, false, false, false), nil
		}
	}
	if op != "=" {
		return nil, fmt.Errorf("%s needs a numeric bound", op)
	}

	return vellum.NewBytesValues([][]byte{[]byte(strings.Trim(val, `'"`))}, false), nil
}

func wholeFileSplit(ctx context.Context, fio vio.IO, path, formatName, delim string) (*scan.Split, error) {
	f, err := fio.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	split := &scan.Split{
		ConnectorID: "cli",
		Path:        path,
		Format:      formatName,
		Start:       0,
		Length:      info.Size(),
	}
	if delim != "" {
		split.SerdeParameters = map[string]string{format.SerdeFieldDelim: delim}
	}

	return split, nil
}
