package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// execute runs the validated SQL against the database with a hard timeout.
// Runs only when the safety gate passed. Never retried: re-running a query
// against a live database without re-validation is not safe.
func (p *Pipeline) execute(ctx context.Context, st *State) *StageError {
	queryCtx, cancel := context.WithTimeout(ctx, p.cfg.QueryTimeout)
	defer cancel()

	res, err := p.cfg.DB.Query(queryCtx, st.SQL, p.cfg.MaxRows)
	if err != nil {
		detail := fmt.Sprintf("query failed: %v", err)
		if errors.Is(err, context.DeadlineExceeded) {
			detail = fmt.Sprintf("query timed out after %s", p.cfg.QueryTimeout)
		}
		return &StageError{Stage: StageExecution, Kind: KindExecution, Detail: detail}
	}

	st.Results = res
	st.addMessage(fmt.Sprintf("Query executed successfully: %d rows returned", res.Count))
	p.logInfo("pipeline: query executed", "rows", res.Count, "columns", len(res.Columns))
	return nil
}
