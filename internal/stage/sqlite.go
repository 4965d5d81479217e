package stage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "modernc.org/sqlite" // sqlite driver

	"github.com/leapstack-labs/dante/internal/expr"
	"github.com/leapstack-labs/dante/internal/session"
	"github.com/leapstack-labs/dante/pkg/core"
)

// readOnlyDSN names path as a SQLite URI so the driver honours mode=ro.
func readOnlyDSN(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path), RawQuery: "mode=ro"}
	return u.String()
}

func openReadOnly(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", readOnlyDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite source: %w", err)
	}
	return db, nil
}

// ReadSQLite stages one table of a SQLite database file. An empty table name
// selects the only table in the file.
func ReadSQLite(ctx context.Context, path, table string) (*core.Table, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open source: %w", err)
	}

	db, err := openReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	if table == "" {
		tables, err := sqliteTables(ctx, db)
		if err != nil {
			return nil, err
		}
		if len(tables) != 1 {
			return nil, fmt.Errorf("%s: source table required, file has %d tables (%s)",
				path, len(tables), strings.Join(tables, ", "))
		}
		table = tables[0]
	}

	rows, err := db.QueryContext(ctx, "SELECT * FROM "+expr.QuoteIdent(table))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read table %s: %w", path, table, err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	t := &core.Table{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		record := make([]string, len(values))
		for i, v := range values {
			record[i] = cellText(v)
		}
		t.Rows = append(t.Rows, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return t, nil
}

// SQLiteTables lists the user tables of a SQLite file.
func SQLiteTables(ctx context.Context, path string) ([]string, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open source: %w", err)
	}
	db, err := openReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()
	return sqliteTables(ctx, db)
}

func sqliteTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func cellText(v any) string {
	switch x := v.(type) {
	case nil:
		return session.NA
	case []byte:
		return string(x)
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return session.FormatNumber(x)
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	default:
		return fmt.Sprint(x)
	}
}
