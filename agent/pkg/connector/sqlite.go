package connector

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite" // cgo-free sqlite driver

	"github.com/xentoshi/insight/agent/pkg/pipeline"
)

// SQLiteConnector talks to a SQLite database file via database/sql.
type SQLiteConnector struct {
	db   *sql.DB
	path string
}

func openSQLite(ctx context.Context, path string) (*SQLiteConnector, error) {
	// The driver creates missing files on first use; stat up front so a
	// typo'd path fails as a connection error instead of leaving an empty
	// database file behind.
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("sqlite database %s not found: %w", path, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// Single write-free consumer; one connection avoids locking surprises.
	db.SetMaxOpenConns(1)

	c := &SQLiteConnector{db: db, path: path}
	if err := c.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *SQLiteConnector) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite ping failed: %w", err)
	}
	// A zero-table file is either freshly created or not a real database;
	// treat it as unreachable rather than reporting an empty schema later.
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT count(*) FROM sqlite_master WHERE type = 'table'`).Scan(&n)
	if err != nil {
		return fmt.Errorf("sqlite ping failed: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("sqlite database %s has no tables (missing or empty file)", c.path)
	}
	return nil
}

func (c *SQLiteConnector) Close() error {
	return c.db.Close()
}

// FetchSchema renders every user table with columns, approximate row count
// and foreign keys.
func (c *SQLiteConnector) FetchSchema(ctx context.Context) (string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return "", fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return "", err
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, table := range tables {
		count, err := c.tableRowCount(ctx, table)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&sb, "%s (~%d rows):\n", table, count)

		if err := c.writeColumns(ctx, &sb, table); err != nil {
			return "", err
		}
		if err := c.writeForeignKeys(ctx, &sb, table); err != nil {
			return "", err
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func (c *SQLiteConnector) tableRowCount(ctx context.Context, table string) (int, error) {
	var count int
	// Table names come from sqlite_master, not user input.
	err := c.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %q`, table)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count rows in %s: %w", table, err)
	}
	return count, nil
}

func (c *SQLiteConnector) writeColumns(ctx context.Context, sb *strings.Builder, table string) error {
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%q)`, table))
	if err != nil {
		return fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid, notnull, pk int
			name, ctype      string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return err
		}
		if ctype == "" {
			ctype = "ANY"
		}
		fmt.Fprintf(sb, "  - %s (%s)\n", name, ctype)
	}
	return rows.Err()
}

func (c *SQLiteConnector) writeForeignKeys(ctx context.Context, sb *strings.Builder, table string) error {
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA foreign_key_list(%q)`, table))
	if err != nil {
		return fmt.Errorf("failed to read foreign keys of %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, seq                      int
			refTable, from, to           string
			onUpdate, onDelete, matching string
		)
		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &matching); err != nil {
			return err
		}
		fmt.Fprintf(sb, "  FK: %s -> %s(%s)\n", from, refTable, to)
	}
	return rows.Err()
}

// Query executes a read-only statement and returns positional rows.
func (c *SQLiteConnector) Query(ctx context.Context, query string, maxRows int) (*pipeline.QueryResult, error) {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSQLRows(rows, maxRows)
}
