package connector

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/xentoshi/insight/agent/pkg/pipeline"
)

// scanSQLRows drains a database/sql row set into a positional QueryResult,
// fetching at most maxRows rows. Every row has the same arity as the
// projection list.
func scanSQLRows(rows *sql.Rows, maxRows int) (*pipeline.QueryResult, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	res := &pipeline.QueryResult{Columns: cols}
	for rows.Next() {
		if maxRows > 0 && len(res.Rows) >= maxRows {
			break
		}

		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}

		row := make([]any, len(cols))
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

// toJSONSafe converts driver values into types that survive JSON encoding:
// NaN/Inf become nil, byte slices become strings, timestamps become RFC3339.
func toJSONSafe(v any) any {
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil
		}
		return val
	case float32:
		return toJSONSafe(float64(val))
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return v
	}
}
