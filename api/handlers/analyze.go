package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/xentoshi/insight/agent/pkg/pipeline"
	"github.com/xentoshi/insight/api/metrics"
)

// AnalyzeRequest is the body of POST /api/analyze.
type AnalyzeRequest struct {
	Question string `json:"question"`
	Database string `json:"database"`
}

// AnalyzeData is the success payload. Query results are positional row
// arrays; column headers are not transmitted and clients synthesize
// "Column N" labels from row arity.
type AnalyzeData struct {
	SQLQuery         string                     `json:"sql_query"`
	ValidationResult *pipeline.ValidationResult `json:"validation_result,omitempty"`
	Analysis         *pipeline.Analysis         `json:"analysis,omitempty"`
	QueryResults     [][]any                    `json:"query_results,omitempty"`
	Messages         []string                   `json:"messages"`
	PDFFile          string                     `json:"pdf_file,omitempty"`
}

// AnalyzeResponse is the envelope for both outcomes.
type AnalyzeResponse struct {
	Success bool         `json:"success"`
	Data    *AnalyzeData `json:"data,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// Analyze runs the full question-to-report workflow for one request.
//
// A validation rejection is not an error: the response is success with
// safe_to_execute=false and a report documenting the findings. Terminal
// stage failures return success=false with a sanitized message.
func (s *Server) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, AnalyzeResponse{Error: "invalid JSON body"})
		return
	}

	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		writeJSON(w, http.StatusBadRequest, AnalyzeResponse{Error: "question is required"})
		return
	}
	if req.Database == "" {
		req.Database = s.cfg.DefaultDatabase
	}

	// Bound concurrent pipelines; a saturated server sheds load instead of
	// queueing LLM and database work indefinitely.
	if !s.sem.TryAcquire(1) {
		writeJSON(w, http.StatusServiceUnavailable, AnalyzeResponse{Error: "server is busy, try again shortly"})
		return
	}
	defer s.sem.Release(1)

	s.log.Info("analyze request", "question", req.Question, "database", redactIdentifier(req.Database))

	st, err := s.run(r.Context(), req.Question, req.Database)
	if err != nil {
		var serr *pipeline.StageError
		if errors.As(err, &serr) {
			metrics.AnalysisOutcomes.WithLabelValues("failed").Inc()
			metrics.StageFailures.WithLabelValues(serr.Stage).Inc()
			writeJSON(w, http.StatusInternalServerError, AnalyzeResponse{Error: userMessage(serr)})
			return
		}
		metrics.AnalysisOutcomes.WithLabelValues("failed").Inc()
		writeJSON(w, http.StatusInternalServerError, AnalyzeResponse{
			Error: internalError("analysis failed", err),
		})
		return
	}

	data := &AnalyzeData{
		SQLQuery:         st.SQL,
		ValidationResult: st.Validation,
		Analysis:         st.Analysis,
		Messages:         st.Messages,
		PDFFile:          st.PDFFile,
	}
	if st.Results != nil {
		data.QueryResults = st.Results.Rows
	}

	outcome := "completed"
	if st.Validation != nil && !st.Validation.SafeToExecute {
		outcome = "rejected"
	}
	metrics.AnalysisOutcomes.WithLabelValues(outcome).Inc()
	if st.PDFFile != "" {
		metrics.ReportsGenerated.Inc()
	}

	writeJSON(w, http.StatusOK, AnalyzeResponse{Success: true, Data: data})
}

// userMessage turns a terminal stage error into a short, user-actionable
// message without internal details.
func userMessage(serr *pipeline.StageError) string {
	switch serr.Kind {
	case pipeline.KindConnection:
		return "could not connect to the requested database"
	case pipeline.KindSchema:
		return "could not read the database schema: " + serr.Detail
	case pipeline.KindGeneration:
		return "could not generate a query for this question: " + serr.Detail
	case pipeline.KindExecution:
		return "query execution failed: " + serr.Detail
	case pipeline.KindReport:
		return "the report could not be written"
	default:
		return serr.Detail
	}
}

// redactIdentifier strips credentials from a DSN for logging.
func redactIdentifier(id string) string {
	if at := strings.Index(id, "@"); at != -1 {
		if proto := strings.Index(id, "://"); proto != -1 && proto < at {
			return id[:proto+3] + "***@" + id[at+1:]
		}
	}
	return id
}
