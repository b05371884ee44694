package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLLM replays a scripted sequence of responses, one per Complete call.
type fakeLLM struct {
	responses []string
	errs      []error
	calls     int
}

func (f *fakeLLM) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	i := f.calls
	f.calls++
	if i >= len(f.responses) {
		return "", fmt.Errorf("unexpected LLM call %d", i+1)
	}
	if f.errs != nil && f.errs[i] != nil {
		return "", f.errs[i]
	}
	return f.responses[i], nil
}

type fakeDB struct {
	schema    string
	schemaErr error
	result    *QueryResult
	queryErr  error

	gotSQL     string
	gotMaxRows int
}

func (f *fakeDB) FetchSchema(ctx context.Context) (string, error) {
	return f.schema, f.schemaErr
}

func (f *fakeDB) Query(ctx context.Context, sql string, maxRows int) (*QueryResult, error) {
	f.gotSQL = sql
	f.gotMaxRows = maxRows
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.result, nil
}

const revenueSQL = "SELECT p.product_name, SUM(s.total_amount) AS revenue " +
	"FROM sales s JOIN products p ON p.product_id = s.product_id " +
	"GROUP BY p.product_name ORDER BY revenue DESC LIMIT 10"

func revenueResult() *QueryResult {
	return &QueryResult{
		Columns: []string{"product_name", "revenue"},
		Rows: [][]any{
			{"Laptop Pro 15-inch", 25999.80},
			{"Smartphone X Pro", 17999.80},
			{"Headphones Wireless", 4499.70},
		},
		Count: 3,
	}
}

const analysisJSON = "```json\n" + `{
	"summary": "Laptops dominate revenue, ahead of phones and audio gear.",
	"key_metrics": [
		{"metric": "top product revenue", "value": 25999.80, "unit": "USD"},
		{"metric": "products in ranking", "value": 3}
	],
	"visualizations": [
		{"type": "bar", "x_col": "product_name", "y_col": "revenue", "title": "Revenue by product"}
	],
	"insights": ["The top product earns more than the next two combined."]
}` + "\n```"

func newTestPipeline(t *testing.T, llm *fakeLLM, db *fakeDB) (*Pipeline, string) {
	t.Helper()
	dir := t.TempDir()
	p, err := New(Config{
		LLM:       llm,
		DB:        db,
		Clock:     clockwork.NewFakeClock(),
		ReportDir: dir,
	})
	require.NoError(t, err)
	return p, dir
}

func TestRun_FullWorkflow(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		"products, sales",
		"```sql\n" + revenueSQL + "\n```",
		analysisJSON,
	}}
	db := &fakeDB{schema: testSchema, result: revenueResult()}
	p, dir := newTestPipeline(t, llm, db)

	st, err := p.Run(context.Background(), "Which products earn the most revenue?", "sqlite:///demo_sales.db")
	require.NoError(t, err)
	require.Nil(t, st.Err)

	assert.Equal(t, revenueSQL, st.SQL)
	assert.Equal(t, revenueSQL, db.gotSQL)
	assert.Equal(t, defaultMaxRows, db.gotMaxRows)

	require.NotNil(t, st.Validation)
	assert.True(t, st.Validation.SafeToExecute)

	require.NotNil(t, st.Results)
	assert.Equal(t, 3, st.Results.Count)

	require.NotNil(t, st.Analysis)
	assert.Contains(t, st.Analysis.Summary, "Laptops dominate")
	assert.Len(t, st.Analysis.KeyMetrics, 2)

	require.NotEmpty(t, st.PDFFile)
	_, statErr := os.Stat(filepath.Join(dir, st.PDFFile))
	require.NoError(t, statErr)

	// Chart images are embedded and then removed: only the PDF remains.
	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	require.Len(t, entries, 1)
	assert.Equal(t, st.PDFFile, entries[0].Name())

	assert.Equal(t, 3, llm.calls)
	assert.NotEmpty(t, st.Messages)
	assert.Contains(t, st.Messages, "Generated SQL: "+revenueSQL)
	assert.Contains(t, st.Messages, "Query executed successfully: 3 rows returned")
}

func TestRun_ValidationRejection(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		"products, sales",
		"SELECT * FROM payroll LIMIT 10",
	}}
	db := &fakeDB{schema: testSchema}
	p, dir := newTestPipeline(t, llm, db)

	st, err := p.Run(context.Background(), "Show me the payroll", "demo_sales.db")
	require.NoError(t, err, "a rejected query is a reportable outcome, not a failure")

	require.NotNil(t, st.Validation)
	assert.False(t, st.Validation.SafeToExecute)

	// Execution, analysis and visualization were all skipped.
	assert.Nil(t, st.Results)
	assert.Nil(t, st.Analysis)
	assert.Empty(t, st.Charts)
	assert.Equal(t, 2, llm.calls)
	assert.Empty(t, db.gotSQL)

	// The report still documents the rejection.
	require.NotEmpty(t, st.PDFFile)
	_, statErr := os.Stat(filepath.Join(dir, st.PDFFile))
	require.NoError(t, statErr)

	found := false
	for _, m := range st.Messages {
		if strings.HasPrefix(m, "Validation: query rejected:") {
			found = true
		}
	}
	assert.True(t, found, "messages should record the rejection: %v", st.Messages)
}

func TestRun_HallucinatedColumnRejected(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		"products",
		"SELECT nonexistent_col FROM products LIMIT 5",
	}}
	db := &fakeDB{schema: testSchema}
	p, dir := newTestPipeline(t, llm, db)

	st, err := p.Run(context.Background(), "List products", "demo_sales.db")
	require.NoError(t, err, "a rejected query is a reportable outcome, not a failure")

	require.NotNil(t, st.Validation)
	assert.False(t, st.Validation.SafeToExecute)
	assert.Empty(t, db.gotSQL, "the statement must never reach the database")

	require.NotEmpty(t, st.PDFFile)
	_, statErr := os.Stat(filepath.Join(dir, st.PDFFile))
	require.NoError(t, statErr)
}

func TestRun_ZeroRows(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		"sales",
		"SELECT * FROM sales WHERE total_amount > 999999 LIMIT 10",
	}}
	db := &fakeDB{
		schema: testSchema,
		result: &QueryResult{Columns: []string{"sale_id"}, Rows: nil, Count: 0},
	}
	p, dir := newTestPipeline(t, llm, db)

	st, err := p.Run(context.Background(), "Any sales over a million?", "demo_sales.db")
	require.NoError(t, err)

	// The canned no-data summary is produced without a model call.
	assert.Equal(t, 2, llm.calls)
	require.NotNil(t, st.Analysis)
	assert.Equal(t, "The query executed successfully but returned no matching data.", st.Analysis.Summary)
	assert.Empty(t, st.Charts)
	assert.Contains(t, st.Messages, "Analysis: no matching data found")
	assert.Contains(t, st.Messages, "Visualization: skipped, no data to chart")

	require.NotEmpty(t, st.PDFFile)
	_, statErr := os.Stat(filepath.Join(dir, st.PDFFile))
	require.NoError(t, statErr)
}

func TestRun_GenerationRetry(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		"products",
		"I would suggest looking at the products table first.",
		"SELECT product_name FROM products LIMIT 5",
		analysisJSON,
	}}
	db := &fakeDB{schema: testSchema, result: revenueResult()}
	p, _ := newTestPipeline(t, llm, db)

	st, err := p.Run(context.Background(), "List some products", "demo_sales.db")
	require.NoError(t, err)
	assert.Equal(t, "SELECT product_name FROM products LIMIT 5", st.SQL)
	assert.Equal(t, 4, llm.calls)

	found := false
	for _, m := range st.Messages {
		if strings.HasPrefix(m, "SQL Generation: retrying") {
			found = true
		}
	}
	assert.True(t, found, "messages should record the retry: %v", st.Messages)
}

func TestRun_GenerationFailsTwice(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		"products",
		"no query here",
		"still no query",
	}}
	db := &fakeDB{schema: testSchema}
	p, _ := newTestPipeline(t, llm, db)

	st, err := p.Run(context.Background(), "List some products", "demo_sales.db")
	require.Error(t, err)

	var serr *StageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, StageGeneration, serr.Stage)
	assert.Equal(t, KindGeneration, serr.Kind)
	assert.Empty(t, st.PDFFile)
}

func TestRun_Refusal(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		"products",
		"CANNOT_ANSWER: the database has no weather observations",
	}}
	db := &fakeDB{schema: testSchema}
	p, _ := newTestPipeline(t, llm, db)

	_, err := p.Run(context.Background(), "What was the weather yesterday?", "demo_sales.db")
	require.Error(t, err)

	var serr *StageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, KindGeneration, serr.Kind)
	assert.Contains(t, serr.Detail, "no weather observations")
}

func TestRun_SchemaFetchError(t *testing.T) {
	llm := &fakeLLM{}
	db := &fakeDB{schemaErr: errors.New("connection refused")}
	p, _ := newTestPipeline(t, llm, db)

	st, err := p.Run(context.Background(), "Anything", "demo_sales.db")
	require.Error(t, err)

	var serr *StageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, StageSchemaAnalysis, serr.Stage)
	assert.Equal(t, KindSchema, serr.Kind)
	assert.Equal(t, 0, llm.calls)
	assert.NotNil(t, st.Err)
}

func TestRun_EmptySchema(t *testing.T) {
	llm := &fakeLLM{}
	db := &fakeDB{schema: "   \n"}
	p, _ := newTestPipeline(t, llm, db)

	_, err := p.Run(context.Background(), "Anything", "demo_sales.db")
	require.Error(t, err)

	var serr *StageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, KindSchema, serr.Kind)
	assert.Contains(t, serr.Detail, "no tables")
}

func TestRun_ExecutionError(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		"products",
		"SELECT product_name FROM products LIMIT 5",
	}}
	db := &fakeDB{schema: testSchema, queryErr: errors.New("database is locked")}
	p, _ := newTestPipeline(t, llm, db)

	st, err := p.Run(context.Background(), "List products", "demo_sales.db")
	require.Error(t, err)

	var serr *StageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, StageExecution, serr.Stage)
	assert.Equal(t, KindExecution, serr.Kind)
	assert.Contains(t, serr.Detail, "database is locked")

	// No report is produced on terminal failure; the trace records the error.
	assert.Empty(t, st.PDFFile)
	require.NotEmpty(t, st.Messages)
	assert.Contains(t, st.Messages[len(st.Messages)-1], "Error in query_execution")
}

// blockingDB hangs every query until the caller's context expires.
type blockingDB struct {
	schema string
}

func (b *blockingDB) FetchSchema(ctx context.Context) (string, error) {
	return b.schema, nil
}

func (b *blockingDB) Query(ctx context.Context, sql string, maxRows int) (*QueryResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRun_ExecutionTimeout(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		"products",
		"SELECT product_name FROM products LIMIT 5",
	}}
	db := &blockingDB{schema: testSchema}
	p, err := New(Config{
		LLM:          llm,
		DB:           db,
		Clock:        clockwork.NewFakeClock(),
		ReportDir:    t.TempDir(),
		QueryTimeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	st, err := p.Run(context.Background(), "List products", "demo_sales.db")
	require.Error(t, err)

	var serr *StageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, StageExecution, serr.Stage)
	assert.Equal(t, KindExecution, serr.Kind)
	assert.Contains(t, serr.Detail, "timed out after")
	assert.Empty(t, st.PDFFile)
}

func TestRun_AnalysisDegradesGracefully(t *testing.T) {
	llm := &fakeLLM{
		responses: []string{"products", "SELECT product_name, price FROM products LIMIT 5", ""},
		errs:      []error{nil, nil, errors.New("model overloaded")},
	}
	db := &fakeDB{schema: testSchema, result: revenueResult()}
	p, dir := newTestPipeline(t, llm, db)

	st, err := p.Run(context.Background(), "List products with prices", "demo_sales.db")
	require.NoError(t, err, "analysis failure must not fail the run")

	require.NotNil(t, st.Analysis)
	assert.Contains(t, st.Analysis.Summary, "could not be produced")

	require.NotEmpty(t, st.PDFFile)
	_, statErr := os.Stat(filepath.Join(dir, st.PDFFile))
	require.NoError(t, statErr)
}

func TestRun_TableSelectionFailureKeepsFullSchema(t *testing.T) {
	llm := &fakeLLM{
		responses: []string{"", "SELECT name FROM users LIMIT 5", analysisJSON},
		errs:      []error{errors.New("model overloaded"), nil, nil},
	}
	db := &fakeDB{schema: testSchema, result: revenueResult()}
	p, _ := newTestPipeline(t, llm, db)

	st, err := p.Run(context.Background(), "List user names", "demo_sales.db")
	require.NoError(t, err)
	assert.Equal(t, testSchema, st.RelevantSchema)
	assert.Contains(t, st.Messages, "Schema Analysis: Using all 3 tables")
}

func TestRun_ReportNamesUniqueUnderFixedClock(t *testing.T) {
	db := &fakeDB{schema: testSchema, result: revenueResult()}
	responses := []string{"products", "SELECT product_name FROM products LIMIT 5", analysisJSON}

	llm := &fakeLLM{responses: responses}
	p, _ := newTestPipeline(t, llm, db)

	first, err := p.Run(context.Background(), "List products", "demo_sales.db")
	require.NoError(t, err)

	// Same pipeline, same fake clock timestamp: the per-request id must
	// still keep the filenames apart.
	llm.responses = responses
	llm.calls = 0
	second, err := p.Run(context.Background(), "List products", "demo_sales.db")
	require.NoError(t, err)

	require.NotEmpty(t, first.PDFFile)
	require.NotEmpty(t, second.PDFFile)
	assert.NotEqual(t, first.PDFFile, second.PDFFile)
}

func TestNew_RequiredConfig(t *testing.T) {
	llm := &fakeLLM{}
	db := &fakeDB{}

	_, err := New(Config{DB: db, ReportDir: "r"})
	assert.Error(t, err)

	_, err = New(Config{LLM: llm, ReportDir: "r"})
	assert.Error(t, err)

	_, err = New(Config{LLM: llm, DB: db})
	assert.Error(t, err)

	p, err := New(Config{LLM: llm, DB: db, ReportDir: "r"})
	require.NoError(t, err)
	assert.Equal(t, defaultMaxRows, p.cfg.MaxRows)
	assert.Equal(t, defaultLargeTableThreshold, p.cfg.LargeTableThreshold)
	assert.Equal(t, defaultQueryTimeout, p.cfg.QueryTimeout)
	assert.Equal(t, defaultLLMTimeout, p.cfg.LLMTimeout)
}
