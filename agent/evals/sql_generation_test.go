//go:build evals

package evals_test

import (
	"context"
	"strings"
	"testing"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/require"

	"github.com/xentoshi/insight/agent/pkg/connector"
	"github.com/xentoshi/insight/agent/pkg/pipeline"
)

// TestInsight_Evals_Anthropic_FullWorkflow runs the complete workflow
// against a live model and a seeded SQLite database, and checks the
// generated SQL is accepted, executed and reported.
func TestInsight_Evals_Anthropic_FullWorkflow(t *testing.T) {
	t.Parallel()
	requireAPIKey(t)

	ctx := context.Background()
	dbPath := evalDatabase(t)

	db, err := connector.Open(ctx, dbPath)
	require.NoError(t, err)
	defer db.Close()

	p, err := pipeline.New(pipeline.Config{
		Logger:    testLogger(t),
		LLM:       pipeline.NewAnthropicLLMClient(anthropic.ModelClaudeHaiku4_5, 1024),
		DB:        db,
		ReportDir: t.TempDir(),
	})
	require.NoError(t, err)

	testCases := []struct {
		name        string
		question    string
		mustContain []string // generated SQL must contain these, case-insensitively
	}{
		{
			name:        "aggregate revenue by category",
			question:    "What is the total sales revenue per category?",
			mustContain: []string{"SELECT", "categor", "JOIN"},
		},
		{
			name:        "top product by revenue",
			question:    "Which product earned the most revenue?",
			mustContain: []string{"SELECT", "product"},
		},
		{
			name:        "simple count",
			question:    "How many sales were recorded?",
			mustContain: []string{"COUNT", "sales"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			st, err := p.Run(ctx, tc.question, dbPath)
			require.NoError(t, err)

			upper := strings.ToUpper(st.SQL)
			for _, want := range tc.mustContain {
				require.Contains(t, upper, strings.ToUpper(want),
					"generated SQL %q should mention %q", st.SQL, want)
			}

			require.NotNil(t, st.Validation)
			require.True(t, st.Validation.SafeToExecute,
				"generated SQL should pass validation: %v", st.Validation.Findings)
			require.NotNil(t, st.Results)
			require.NotEmpty(t, st.PDFFile)
		})
	}
}

// TestInsight_Evals_Anthropic_RefusesOffTopicQuestion checks the model
// declines questions the schema cannot answer instead of inventing tables.
func TestInsight_Evals_Anthropic_RefusesOffTopicQuestion(t *testing.T) {
	t.Parallel()
	requireAPIKey(t)

	ctx := context.Background()
	dbPath := evalDatabase(t)

	db, err := connector.Open(ctx, dbPath)
	require.NoError(t, err)
	defer db.Close()

	p, err := pipeline.New(pipeline.Config{
		Logger:    testLogger(t),
		LLM:       pipeline.NewAnthropicLLMClient(anthropic.ModelClaudeHaiku4_5, 1024),
		DB:        db,
		ReportDir: t.TempDir(),
	})
	require.NoError(t, err)

	st, err := p.Run(ctx, "What was the average rainfall in Berlin last March?", dbPath)
	if err == nil {
		// The model may still emit a query; validation must then reject any
		// reference to tables outside the schema.
		require.NotNil(t, st.Validation)
		if st.Validation.SafeToExecute {
			t.Fatalf("off-topic question produced an executable query: %s", st.SQL)
		}
		return
	}

	var serr *pipeline.StageError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, pipeline.KindGeneration, serr.Kind)
}
