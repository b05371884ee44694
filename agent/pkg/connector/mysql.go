package connector

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/go-sql-driver/mysql" // MySQL driver

	"github.com/xentoshi/insight/agent/pkg/pipeline"
)

// MySQLConnector talks to a MySQL database via database/sql.
type MySQLConnector struct {
	db *sql.DB
}

func openMySQL(ctx context.Context, dsn string) (*MySQLConnector, error) {
	driverDSN, err := mysqlDriverDSN(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", driverDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql database: %w", err)
	}
	db.SetMaxOpenConns(4)

	c := &MySQLConnector{db: db}
	if err := c.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// mysqlDriverDSN converts a mysql:// URL into the go-sql-driver format
// "user:pass@tcp(host:port)/dbname".
func mysqlDriverDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid mysql DSN: %w", err)
	}

	host := u.Host
	if u.Port() == "" {
		host += ":3306"
	}
	dbName := strings.TrimPrefix(u.Path, "/")
	if dbName == "" {
		return "", fmt.Errorf("mysql DSN %q has no database name", dsn)
	}

	auth := ""
	if u.User != nil {
		auth = u.User.Username()
		if pass, ok := u.User.Password(); ok {
			auth += ":" + pass
		}
		auth += "@"
	}
	out := fmt.Sprintf("%stcp(%s)/%s?parseTime=true", auth, host, dbName)
	if q := u.RawQuery; q != "" {
		out += "&" + q
	}
	return out, nil
}

func (c *MySQLConnector) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("mysql ping failed: %w", err)
	}
	return nil
}

func (c *MySQLConnector) Close() error {
	return c.db.Close()
}

// FetchSchema renders the current database's tables with columns,
// estimated row counts and foreign keys.
func (c *MySQLConnector) FetchSchema(ctx context.Context) (string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT c.table_name, c.column_name, c.data_type,
		       COALESCE(t.table_rows, 0)
		FROM information_schema.columns c
		JOIN information_schema.tables t
		  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
		WHERE c.table_schema = DATABASE() AND t.table_type = 'BASE TABLE'
		ORDER BY c.table_name, c.ordinal_position
	`)
	if err != nil {
		return "", fmt.Errorf("failed to fetch columns: %w", err)
	}
	defer rows.Close()

	type column struct {
		table, name, typ string
		tableRows        int64
	}
	var columns []column
	for rows.Next() {
		var col column
		if err := rows.Scan(&col.table, &col.name, &col.typ, &col.tableRows); err != nil {
			return "", err
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	fks, err := c.foreignKeys(ctx)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	current := ""
	for _, col := range columns {
		if col.table != current {
			if current != "" {
				for _, fk := range fks[current] {
					sb.WriteString("  FK: " + fk + "\n")
				}
				sb.WriteString("\n")
			}
			current = col.table
			fmt.Fprintf(&sb, "%s (~%d rows):\n", current, col.tableRows)
		}
		fmt.Fprintf(&sb, "  - %s (%s)\n", col.name, col.typ)
	}
	if current != "" {
		for _, fk := range fks[current] {
			sb.WriteString("  FK: " + fk + "\n")
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func (c *MySQLConnector) foreignKeys(ctx context.Context) (map[string][]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT table_name, column_name, referenced_table_name, referenced_column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = DATABASE() AND referenced_table_name IS NOT NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch foreign keys: %w", err)
	}
	defer rows.Close()

	fks := make(map[string][]string)
	for rows.Next() {
		var table, col, refTable, refCol string
		if err := rows.Scan(&table, &col, &refTable, &refCol); err != nil {
			return nil, err
		}
		fks[table] = append(fks[table], fmt.Sprintf("%s -> %s(%s)", col, refTable, refCol))
	}
	return fks, rows.Err()
}

// Query executes a read-only statement and returns positional rows.
func (c *MySQLConnector) Query(ctx context.Context, query string, maxRows int) (*pipeline.QueryResult, error) {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSQLRows(rows, maxRows)
}
