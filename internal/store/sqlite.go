package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/kjstillabower/weather-history-api/internal/models"
	"github.com/kjstillabower/weather-history-api/internal/observability"
)

// Reading columns carry no declared type so that numbers and the "N/A" placeholder are
// stored as given.
const createTableSQL = `
CREATE TABLE IF NOT EXISTS %[1]s (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  city        TEXT,
  temperature,
  description TEXT,
  humidity,
  wind_speed,
  created_at  TEXT NOT NULL DEFAULT (strftime('%%Y-%%m-%%dT%%H:%%M:%%fZ','now'))
);
CREATE INDEX IF NOT EXISTS idx_%[1]s_created_at ON %[1]s(created_at);
`

// SQLiteStore keeps weather records in a local SQLite database. It stands in for the
// hosted store in development and tests.
type SQLiteStore struct {
	db      *sql.DB
	table   string
	columns map[string]struct{}
	logger  *zap.Logger
}

// OpenSQLite opens (creating if needed) the database at path. Use ":memory:" for a
// throwaway database.
func OpenSQLite(ctx context.Context, path, table string, logger *zap.Logger) (*SQLiteStore, error) {
	if table == "" {
		table = DefaultTable
	}
	if err := checkIdent("table", table); err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dsn, err := buildDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes writes.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(createTableSQL, table)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create table %s: %w", table, err)
	}

	columns := make(map[string]struct{}, len(models.Columns))
	for _, c := range models.Columns {
		columns[c] = struct{}{}
	}
	return &SQLiteStore{db: db, table: table, columns: columns, logger: logger}, nil
}

func buildDSN(path string) (string, error) {
	if path == "" || path == ":memory:" {
		return ":memory:", nil
	}
	if strings.HasPrefix(path, "file:") {
		return path, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", nil
}

// Insert implements Store.Insert.
func (s *SQLiteStore) Insert(ctx context.Context, row map[string]any) (models.Record, error) {
	start := time.Now()
	rec, err := s.insert(ctx, row)
	observability.ObserveStoreOperation(BackendSQLite, "insert", time.Since(start).Seconds(), err)
	return rec, err
}

// InsertArbitrary implements Store.InsertArbitrary. Fields are not validated, but like
// PostgREST the table rejects columns it does not have.
func (s *SQLiteStore) InsertArbitrary(ctx context.Context, fields map[string]any) error {
	start := time.Now()
	_, err := s.insert(ctx, fields)
	observability.ObserveStoreOperation(BackendSQLite, "insert_arbitrary", time.Since(start).Seconds(), err)
	return err
}

func (s *SQLiteStore) insert(ctx context.Context, row map[string]any) (models.Record, error) {
	names := make([]string, 0, len(row))
	for name := range row {
		if _, ok := s.columns[name]; !ok {
			return nil, fmt.Errorf("%w %q in table %s", ErrUnknownColumn, name, s.table)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var query string
	args := make([]any, 0, len(names))
	if len(names) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s", s.table, strings.Join(models.Columns, ", "))
	} else {
		placeholders := make([]string, len(names))
		for i, name := range names {
			placeholders[i] = "?"
			v, err := bindValue(row[name])
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", name, err)
			}
			args = append(args, v)
		}
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
			s.table, strings.Join(names, ", "), strings.Join(placeholders, ", "), strings.Join(models.Columns, ", "))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", s.table, err)
	}
	defer s.closeRows(rows)

	records, err := scanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", s.table, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("insert into %s: no row returned", s.table)
	}
	return records[0], nil
}

// ListAll implements Store.ListAll.
func (s *SQLiteStore) ListAll(ctx context.Context, opts ListOptions) ([]models.Record, error) {
	start := time.Now()
	records, err := s.list(ctx, opts)
	observability.ObserveStoreOperation(BackendSQLite, "list", time.Since(start).Seconds(), err)
	return records, err
}

func (s *SQLiteStore) list(ctx context.Context, opts ListOptions) ([]models.Record, error) {
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(models.Columns, ", "), s.table)
	if opts.OrderBy != "" {
		if _, ok := s.columns[opts.OrderBy]; !ok {
			return nil, fmt.Errorf("%w %q in table %s", ErrUnknownColumn, opts.OrderBy, s.table)
		}
		dir := "ASC"
		if opts.Desc {
			dir = "DESC"
		}
		// id breaks ties between rows created within the same millisecond.
		query += fmt.Sprintf(" ORDER BY %s %s, id %s", opts.OrderBy, dir, dir)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", s.table, err)
	}
	defer s.closeRows(rows)
	return scanRecords(rows)
}

// DeleteByID implements Store.DeleteByID.
func (s *SQLiteStore) DeleteByID(ctx context.Context, id int64) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.table), id)
	if err != nil {
		err = fmt.Errorf("delete from %s: %w", s.table, err)
	}
	observability.ObserveStoreOperation(BackendSQLite, "delete", time.Since(start).Seconds(), err)
	return err
}

// Ping implements Store.Ping.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements Store.Close.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		s.logger.Error("close rows", zap.String("table", s.table), zap.Error(err))
	}
}

// bindValue converts a decoded JSON value into something the driver accepts. Objects and
// arrays are stored as JSON text.
func bindValue(v any) (any, error) {
	switch t := v.(type) {
	case nil, string, float64, int64, int, bool:
		return t, nil
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, nil
		}
		return t.Float64()
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		return string(raw), nil
	}
}

func scanRecords(rows *sql.Rows) ([]models.Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := []models.Record{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(models.Record, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				rec[c] = string(b)
				continue
			}
			rec[c] = values[i]
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
