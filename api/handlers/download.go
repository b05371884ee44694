package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Download serves a generated report PDF by filename.
// GET /api/download/{filename}
func (s *Server) Download(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	if !validReportName(filename) {
		writeJSON(w, http.StatusBadRequest, AnalyzeResponse{Error: "invalid filename"})
		return
	}

	path := filepath.Join(s.cfg.ReportDir, filename)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		writeJSON(w, http.StatusNotFound, AnalyzeResponse{Error: "report not found"})
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	http.ServeFile(w, r, path)
}

// validReportName accepts only plain report file names, rejecting path
// traversal and anything outside the report naming scheme.
func validReportName(name string) bool {
	if name == "" ||
		strings.Contains(name, "..") ||
		strings.ContainsAny(name, `/\`) {
		return false
	}
	return strings.HasPrefix(name, "report_") && strings.HasSuffix(name, ".pdf")
}

// ReportInfo describes one generated report file.
type ReportInfo struct {
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Created   string `json:"created"`
}

// ListReportsResponse is the body of GET /api/reports.
type ListReportsResponse struct {
	Reports []ReportInfo `json:"reports"`
}

// ListReports returns the generated reports, newest first.
// GET /api/reports
func (s *Server) ListReports(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.cfg.ReportDir)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, AnalyzeResponse{
			Error: internalError("failed to list reports", err),
		})
		return
	}

	reports := make([]ReportInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !validReportName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		reports = append(reports, ReportInfo{
			Filename:  e.Name(),
			SizeBytes: info.Size(),
			Created:   info.ModTime().UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].Created > reports[j].Created })

	writeJSON(w, http.StatusOK, ListReportsResponse{Reports: reports})
}
