package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// LLMClient is the interface for text-generation calls.
// Implementations must respect context cancellation.
type LLMClient interface {
	// Complete sends a system prompt and user prompt, returning the text response.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Database is the interface the pipeline uses to talk to the target database.
// Implementations live in the connector package.
type Database interface {
	// FetchSchema returns a human-readable schema description of all tables:
	// names, columns with types, foreign keys, and approximate row counts.
	FetchSchema(ctx context.Context) (string, error)

	// Query executes a read-only SQL statement and returns at most maxRows rows.
	Query(ctx context.Context, sql string, maxRows int) (*QueryResult, error)
}

// QueryResult holds the rows returned by a query. Rows are positional: cell
// order follows the query's projection list and every row has the same arity.
type QueryResult struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
	Count   int      `json:"count"`
}

// ValidationResult is the output of the safety gate. Once written to the
// state it is never overwritten.
type ValidationResult struct {
	SafeToExecute bool     `json:"safe_to_execute"`
	Findings      []string `json:"findings"`
}

// KeyMetric is a single headline number extracted from the results.
type KeyMetric struct {
	Metric string `json:"metric"`
	Value  any    `json:"value"`
	Unit   string `json:"unit,omitempty"`
}

// ChartSpec describes one chart to render from the result rows.
type ChartSpec struct {
	Type        string `json:"type"` // bar, horizontal_bar, line, pie
	XCol        string `json:"x_col"`
	YCol        string `json:"y_col"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Analysis is the structured output of the analysis stage.
type Analysis struct {
	Summary        string      `json:"summary"`
	KeyMetrics     []KeyMetric `json:"key_metrics"`
	Visualizations []ChartSpec `json:"visualizations,omitempty"`
	Insights       []string    `json:"insights,omitempty"`
}

// Stage names, used in errors and logs.
const (
	StageSchemaAnalysis = "schema_analysis"
	StageGeneration     = "sql_generation"
	StageValidation     = "validation"
	StageExecution      = "query_execution"
	StageAnalysis       = "analysis"
	StageVisualization  = "visualization"
	StageReport         = "report_generation"
)

// Error kinds for terminal stage failures.
const (
	KindConnection = "connection_error"
	KindSchema     = "schema_error"
	KindGeneration = "generation_error"
	KindExecution  = "execution_error"
	KindReport     = "report_error"
)

// StageError is a terminal pipeline failure. Once set on the state, no
// further stage runs.
type StageError struct {
	Stage  string `json:"stage"`
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Detail)
}

// State is the mutable record threaded through all stages of one request.
// It is owned by the pipeline for the lifetime of the request and never
// shared across concurrent requests.
type State struct {
	Question string `json:"question"`
	Database string `json:"database"`

	RelevantSchema string            `json:"relevant_schema,omitempty"`
	SQL            string            `json:"sql_query,omitempty"`
	Validation     *ValidationResult `json:"validation_result,omitempty"`
	Results        *QueryResult      `json:"query_results,omitempty"`
	Analysis       *Analysis         `json:"analysis,omitempty"`
	Charts         []string          `json:"charts,omitempty"`
	PDFFile        string            `json:"pdf_file,omitempty"`

	// Messages is the append-only chronological trace of what each stage did.
	Messages []string `json:"messages"`

	Err *StageError `json:"error,omitempty"`

	// id is a short per-request identifier used to keep generated file
	// names unique under concurrent requests.
	id string
}

// addMessage appends a trace message in chronological order.
func (s *State) addMessage(msg string) {
	s.Messages = append(s.Messages, msg)
}

// Config holds the pipeline dependencies and tuning knobs.
type Config struct {
	Logger *slog.Logger
	LLM    LLMClient
	DB     Database
	Clock  clockwork.Clock

	// ReportDir is the directory report PDFs and chart images are written to.
	ReportDir string

	// MaxRows caps the number of rows fetched by the execution stage.
	MaxRows int

	// LargeTableThreshold is the approximate row count above which a table
	// is considered large and unbounded queries against it are rejected.
	LargeTableThreshold int

	// QueryTimeout bounds schema introspection and query execution.
	QueryTimeout time.Duration

	// LLMTimeout bounds each text-generation call.
	LLMTimeout time.Duration
}

const (
	defaultMaxRows             = 1000
	defaultLargeTableThreshold = 10000
	defaultQueryTimeout        = 30 * time.Second
	defaultLLMTimeout          = 60 * time.Second
)

// Pipeline runs the analysis workflow for one question at a time. A single
// Pipeline handles one request; stages execute strictly in order.
type Pipeline struct {
	cfg     Config
	prompts *Prompts
}

// New creates a Pipeline, validating required dependencies and applying
// defaults for the rest.
func New(cfg Config) (*Pipeline, error) {
	if cfg.LLM == nil {
		return nil, fmt.Errorf("LLM client is required")
	}
	if cfg.DB == nil {
		return nil, fmt.Errorf("database is required")
	}
	if cfg.ReportDir == "" {
		return nil, fmt.Errorf("report directory is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = defaultMaxRows
	}
	if cfg.LargeTableThreshold <= 0 {
		cfg.LargeTableThreshold = defaultLargeTableThreshold
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = defaultQueryTimeout
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = defaultLLMTimeout
	}

	prompts, err := LoadPrompts()
	if err != nil {
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}

	return &Pipeline{cfg: cfg, prompts: prompts}, nil
}

func (p *Pipeline) logInfo(msg string, args ...any) {
	if p.cfg.Logger != nil {
		p.cfg.Logger.Info(msg, args...)
	}
}

func (p *Pipeline) logWarn(msg string, args ...any) {
	if p.cfg.Logger != nil {
		p.cfg.Logger.Warn(msg, args...)
	}
}

// truncate shortens s to at most n runes for logging.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
