//go:build evals

package evals_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func init() {
	possiblePaths := []string{".env", "../../.env"}

	for _, path := range possiblePaths {
		if err := godotenv.Load(path); err == nil {
			break
		}
	}
}

func testLogger(t *testing.T) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// requireAPIKey skips the eval when no Anthropic key is configured.
func requireAPIKey(t *testing.T) {
	t.Helper()
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		t.Skip("ANTHROPIC_API_KEY not set, skipping eval test")
	}
}

// evalDatabase creates a small SQLite sales database for evals and returns
// its path.
func evalDatabase(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "eval_sales.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	stmts := []string{
		`CREATE TABLE categories (
			category_id INTEGER PRIMARY KEY,
			category_name TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE products (
			product_id INTEGER PRIMARY KEY,
			product_name TEXT NOT NULL,
			category_id INTEGER NOT NULL,
			price REAL NOT NULL,
			FOREIGN KEY (category_id) REFERENCES categories(category_id)
		)`,
		`CREATE TABLE sales (
			sale_id INTEGER PRIMARY KEY,
			product_id INTEGER NOT NULL,
			quantity INTEGER NOT NULL,
			sale_date DATE NOT NULL,
			total_amount REAL NOT NULL,
			FOREIGN KEY (product_id) REFERENCES products(product_id)
		)`,
		`INSERT INTO categories VALUES (1, 'Electronics'), (2, 'Books')`,
		`INSERT INTO products VALUES
			(1, 'Laptop', 1, 999.99),
			(2, 'Headphones', 1, 149.99),
			(3, 'Go Programming', 2, 39.99)`,
		`INSERT INTO sales VALUES
			(1, 1, 1, '2025-06-01', 999.99),
			(2, 2, 2, '2025-06-02', 299.98),
			(3, 3, 1, '2025-06-03', 39.99),
			(4, 1, 1, '2025-06-10', 999.99)`,
	}
	for _, stmt := range stmts {
		_, err := db.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}
	return path
}
