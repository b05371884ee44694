package connector

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xentoshi/insight/agent/pkg/pipeline"
)

// PostgresConnector talks to a PostgreSQL database via a pgx pool.
type PostgresConnector struct {
	pool *pgxpool.Pool
}

func openPostgres(ctx context.Context, dsn string) (*PostgresConnector, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres DSN: %w", err)
	}
	cfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	c := &PostgresConnector{pool: pool}
	if err := c.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return c, nil
}

func (c *PostgresConnector) Ping(ctx context.Context) error {
	if err := c.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

func (c *PostgresConnector) Close() error {
	c.pool.Close()
	return nil
}

// FetchSchema renders public-schema tables with columns, estimated row
// counts and foreign keys.
func (c *PostgresConnector) FetchSchema(ctx context.Context) (string, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT c.table_name, c.column_name, c.data_type
		FROM information_schema.columns c
		JOIN information_schema.tables t
		  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
		WHERE c.table_schema = 'public' AND t.table_type = 'BASE TABLE'
		ORDER BY c.table_name, c.ordinal_position
	`)
	if err != nil {
		return "", fmt.Errorf("failed to fetch columns: %w", err)
	}
	defer rows.Close()

	type column struct{ table, name, typ string }
	var columns []column
	for rows.Next() {
		var col column
		if err := rows.Scan(&col.table, &col.name, &col.typ); err != nil {
			return "", err
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	counts, err := c.rowEstimates(ctx)
	if err != nil {
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
			fmt.Fprintf(&sb, "%s (~%d rows):\n", current, counts[current])
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

// rowEstimates reads planner row estimates, which are cheap and close
// enough for the large-table heuristic.
func (c *PostgresConnector) rowEstimates(ctx context.Context) (map[string]int64, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT relname, GREATEST(reltuples, 0)::bigint
		FROM pg_class
		WHERE relnamespace = 'public'::regnamespace AND relkind = 'r'
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch row estimates: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var name string
		var n int64
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		counts[name] = n
	}
	return counts, rows.Err()
}

func (c *PostgresConnector) foreignKeys(ctx context.Context) (map[string][]string, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT tc.table_name, kcu.column_name, ccu.table_name, ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON kcu.constraint_name = tc.constraint_name AND kcu.table_schema = tc.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = 'public'
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
func (c *PostgresConnector) Query(ctx context.Context, query string, maxRows int) (*pipeline.QueryResult, error) {
	rows, err := c.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	res := &pipeline.QueryResult{Columns: make([]string, len(fields))}
	for i, fd := range fields {
		res.Columns[i] = fd.Name
	}

	for rows.Next() {
		if maxRows > 0 && len(res.Rows) >= maxRows {
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		row := make([]any, len(values))
		for i, v := range values {
			row[i] = toJSONSafe(v)
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	res.Count = len(res.Rows)
	return res, nil
}
