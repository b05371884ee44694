// Package handlers implements the REST boundary of the analysis service.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/semaphore"

	"github.com/xentoshi/insight/agent/pkg/connector"
	"github.com/xentoshi/insight/agent/pkg/pipeline"
	"github.com/xentoshi/insight/api/config"
)

// runFunc executes one analysis pipeline. It is a field so tests can swap
// the whole pipeline for a stub.
type runFunc func(ctx context.Context, question, database string) (*pipeline.State, error)

// Server holds the request handlers and their shared, lifetime-scoped
// resources. One Server serves all requests; per-request state lives in the
// pipeline.
type Server struct {
	cfg   *config.Config
	log   *slog.Logger
	clock clockwork.Clock

	// sem bounds the number of concurrently running pipelines.
	sem *semaphore.Weighted

	run runFunc
}

// New creates a Server from the loaded configuration.
func New(cfg *config.Config, log *slog.Logger) *Server {
	s := &Server{
		cfg:   cfg,
		log:   log,
		clock: clockwork.NewRealClock(),
		sem:   semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}
	s.run = s.runPipeline
	return s
}

// Routes registers the API routes on the router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/api/analyze", s.Analyze)
	r.Get("/api/download/{filename}", s.Download)
	r.Get("/api/reports", s.ListReports)
	r.Get("/api/version", GetVersion)
}

// runPipeline opens a connector for the requested database and drives the
// workflow end to end. The connector lives for exactly one request.
func (s *Server) runPipeline(ctx context.Context, question, database string) (*pipeline.State, error) {
	db, err := connector.Open(ctx, database)
	if err != nil {
		return nil, &pipeline.StageError{
			Stage:  pipeline.StageSchemaAnalysis,
			Kind:   pipeline.KindConnection,
			Detail: fmt.Sprintf("failed to connect to database: %v", SanitizeError(err)),
		}
	}
	defer db.Close()

	llm := pipeline.NewAnthropicLLMClient(anthropic.Model(s.cfg.AnthropicModel), s.cfg.MaxTokens)

	p, err := pipeline.New(pipeline.Config{
		Logger:              s.log,
		LLM:                 llm,
		DB:                  db,
		Clock:               s.clock,
		ReportDir:           s.cfg.ReportDir,
		MaxRows:             s.cfg.MaxRows,
		LargeTableThreshold: s.cfg.LargeTableThreshold,
		QueryTimeout:        s.cfg.QueryTimeout,
		LLMTimeout:          s.cfg.LLMTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}

	return p.Run(ctx, question, database)
}

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("JSON encoding error", "error", err)
	}
}
