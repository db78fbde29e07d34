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

// Package metastore persists whole-file column statistics in a SQL
// database so scans can discard splits before opening their files.
package metastore

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/schema"

	vellum "github.com/vellumdata/vellum-go"
	"github.com/vellumdata/vellum-go/format"
	"github.com/vellumdata/vellum-go/scan"
)

type SupportedDialect string

const (
	Postgres SupportedDialect = "postgres"
	MySQL    SupportedDialect = "mysql"
	SQLite   SupportedDialect = "sqlite"
)

var (
	dialects  = map[SupportedDialect]schema.Dialect{}
	dialectMx sync.Mutex
)

func getDialect(d SupportedDialect) (schema.Dialect, error) {
	dialectMx.Lock()
	defer dialectMx.Unlock()
	if ret, ok := dialects[d]; ok {
		return ret, nil
	}

	var ret schema.Dialect
	switch d {
	case Postgres:
		ret = pgdialect.New()
	case MySQL:
		ret = mysqldialect.New()
	case SQLite:
		ret = sqlitedialect.New()
	default:
		return nil, fmt.Errorf("%w: unsupported sql dialect %q", vellum.ErrInvalidArgument, d)
	}
	dialects[d] = ret

	return ret, nil
}

// Stat value type tags stored alongside encoded bounds.
const (
	tagBigint    = "bigint"
	tagDouble    = "double"
	tagBytes     = "bytes"
	tagBool      = "bool"
	tagTimestamp = "timestamp"
)

type fileStatRow struct {
	bun.BaseModel `bun:"table:vellum_file_stats"`

	ConnectorID string `bun:",pk"`
	Path        string `bun:",pk"`
	RowCount    int64
}

type columnStatRow struct {
	bun.BaseModel `bun:"table:vellum_column_stats"`

	ConnectorID string `bun:",pk"`
	Path        string `bun:",pk"`
	ColumnName  string `bun:",pk"`
	TypeTag     string
	MinValue    sql.NullString
	MaxValue    sql.NullString
	HasNulls    bool
	NullCount   sql.NullInt64
	ValueCount  sql.NullInt64
}

var _ scan.Metastore = (*Store)(nil)

// Store is a SQL-backed file statistics store. It satisfies
// scan.Metastore; unknown files report no statistics rather than an
// error.
type Store struct {
	db *bun.DB
}

// NewStore wraps an open database handle. The environment variable
// VELLUM_SQL_DEBUG logs queries (1 logs failures only, 2 logs all).
// Stats tables are created when missing.
func NewStore(ctx context.Context, db *sql.DB, dialect SupportedDialect) (*Store, error) {
	d, err := getDialect(dialect)
	if err != nil {
		return nil, err
	}

	s := &Store{db: bun.NewDB(db, d)}
	s.db.AddQueryHook(bundebug.NewQueryHook(
		bundebug.WithEnabled(false),
		bundebug.FromEnv("VELLUM_SQL_DEBUG")))

	return s, s.createTables(ctx)
}

func (s *Store) createTables(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*fileStatRow)(nil)).
		IfNotExists().Exec(ctx); err != nil {
		return err
	}
	_, err := s.db.NewCreateTable().Model((*columnStatRow)(nil)).
		IfNotExists().Exec(ctx)

	return err
}

// PutFileStats records the statistics for one file, replacing any
// previous entry.
func (s *Store) PutFileStats(ctx context.Context, connectorID, path string, stats *scan.FileStats) error {
	rows := make([]columnStatRow, 0, len(stats.Columns))
	for name, cs := range stats.Columns {
		row, err := encodeColumnStats(connectorID, path, name, cs)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if err := deleteFile(ctx, tx, connectorID, path); err != nil {
			return err
		}
		if _, err := tx.NewInsert().Model(&fileStatRow{
			ConnectorID: connectorID,
			Path:        path,
			RowCount:    stats.RowCount,
		}).Exec(ctx); err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		_, err := tx.NewInsert().Model(&rows).Exec(ctx)

		return err
	})
}

// DropFileStats removes any recorded statistics for the file.
func (s *Store) DropFileStats(ctx context.Context, connectorID, path string) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return deleteFile(ctx, tx, connectorID, path)
	})
}

func deleteFile(ctx context.Context, tx bun.Tx, connectorID, path string) error {
	if _, err := tx.NewDelete().Model((*fileStatRow)(nil)).
		Where("connector_id = ?", connectorID).
		Where("path = ?", path).Exec(ctx); err != nil {
		return err
	}
	_, err := tx.NewDelete().Model((*columnStatRow)(nil)).
		Where("connector_id = ?", connectorID).
		Where("path = ?", path).Exec(ctx)

	return err
}

// FileStats implements scan.Metastore.
func (s *Store) FileStats(ctx context.Context, connectorID, path string) (*scan.FileStats, error) {
	var file fileStatRow
	err := s.db.NewSelect().Model(&file).
		Where("connector_id = ?", connectorID).
		Where("path = ?", path).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cols []columnStatRow
	if err := s.db.NewSelect().Model(&cols).
		Where("connector_id = ?", connectorID).
		Where("path = ?", path).Scan(ctx); err != nil {
		return nil, err
	}

	out := &scan.FileStats{
		RowCount: file.RowCount,
		Columns:  make(map[string]format.ColumnStats, len(cols)),
	}
	for _, row := range cols {
		cs, err := decodeColumnStats(row)
		if err != nil {
			return nil, err
		}
		out.Columns[row.ColumnName] = cs
	}

	return out, nil
}

func encodeColumnStats(connectorID, path, column string, cs format.ColumnStats) (columnStatRow, error) {
	row := columnStatRow{
		ConnectorID: connectorID,
		Path:        path,
		ColumnName:  column,
		HasNulls:    cs.HasNulls,
	}
	if cs.NullCount.Valid {
		row.NullCount = sql.NullInt64{Int64: cs.NullCount.Val, Valid: true}
	}
	if cs.ValueCount.Valid {
		row.ValueCount = sql.NullInt64{Int64: cs.ValueCount.Val, Valid: true}
	}

	tag, minv, err := encodeStatValue(cs.Min)
	if err != nil {
		return row, fmt.Errorf("column %s min: %w", column, err)
	}
	maxTag, maxv, err := encodeStatValue(cs.Max)
	if err != nil {
		return row, fmt.Errorf("column %s max: %w", column, err)
	}
	if tag != "" && maxTag != "" && tag != maxTag {
		return row, fmt.Errorf("%w: column %s bounds disagree on type", vellum.ErrInvalidArgument, column)
	}
	if tag == "" {
		tag = maxTag
	}
	row.TypeTag = tag
	row.MinValue = minv
	row.MaxValue = maxv

	return row, nil
}

func encodeStatValue(v any) (string, sql.NullString, error) {
	switch v := v.(type) {
	case nil:
		return "", sql.NullString{}, nil
	case int64:
		return tagBigint, sql.NullString{String: strconv.FormatInt(v, 10), Valid: true}, nil
	case float64:
		return tagDouble, sql.NullString{String: strconv.FormatFloat(v, 'g', -1, 64), Valid: true}, nil
	case []byte:
		return tagBytes, sql.NullString{String: base64.StdEncoding.EncodeToString(v), Valid: true}, nil
	case bool:
		return tagBool, sql.NullString{String: strconv.FormatBool(v), Valid: true}, nil
	case vellum.Timestamp:
		enc := strconv.FormatInt(v.Seconds, 10) + ":" + strconv.FormatUint(uint64(v.Nanos), 10)

		return tagTimestamp, sql.NullString{String: enc, Valid: true}, nil
	default:
		return "", sql.NullString{}, fmt.Errorf("%w: unsupported stat value type %T", vellum.ErrInvalidArgument, v)
	}
}

func decodeColumnStats(row columnStatRow) (format.ColumnStats, error) {
	cs := format.ColumnStats{HasNulls: row.HasNulls}
	if row.NullCount.Valid {
		cs.NullCount = vellum.Some(row.NullCount.Int64)
	}
	if row.ValueCount.Valid {
		cs.ValueCount = vellum.Some(row.ValueCount.Int64)
	}

	var err error
	if cs.Min, err = decodeStatValue(row.TypeTag, row.MinValue); err != nil {
		return cs, fmt.Errorf("column %s min: %w", row.ColumnName, err)
	}
	if cs.Max, err = decodeStatValue(row.TypeTag, row.MaxValue); err != nil {
		return cs, fmt.Errorf("column %s max: %w", row.ColumnName, err)
	}

	return cs, nil
}

func decodeStatValue(tag string, v sql.NullString) (any, error) {
	if !v.Valid {
		return nil, nil
	}
	switch tag {
	case tagBigint:
		return strconv.ParseInt(v.String, 10, 64)
	case tagDouble:
		return strconv.ParseFloat(v.String, 64)
	case tagBytes:
		return base64.StdEncoding.DecodeString(v.String)
	case tagBool:
		return strconv.ParseBool(v.String)
	case tagTimestamp:
		secs, nanos, ok := strings.Cut(v.String, ":")
		if !ok {
			return nil, fmt.Errorf("%w: malformed timestamp stat %q", vellum.ErrInvalidArgument, v.String)
		}
		s, err := strconv.ParseInt(secs, 10, 64)
		if err != nil {
			return nil, err
		}
		n, err := strconv.ParseUint(nanos, 10, 32)
		if err != nil {
			return nil, err
		}

		return vellum.Timestamp{Seconds: s, Nanos: uint32(n)}, nil
	default:
		return nil, fmt.Errorf("%w: unknown stat type tag %q", vellum.ErrInvalidArgument, tag)
	}
}
