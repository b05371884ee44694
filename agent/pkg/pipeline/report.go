package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-pdf/fpdf"
)

const (
	reportMaxColumns = 8
	reportMaxRows    = 20
)

// generateReport assembles the PDF document from the full workflow state.
// It always runs, whether the query executed or was rejected, so the user
// receives a document either way. Chart images are removed from disk after
// being embedded.
func (p *Pipeline) generateReport(st *State) *StageError {
	if err := os.MkdirAll(p.cfg.ReportDir, 0o755); err != nil {
		return &StageError{Stage: StageReport, Kind: KindReport, Detail: fmt.Sprintf("report directory unavailable: %v", err)}
	}

	filename := fmt.Sprintf("report_%s_%s.pdf", p.cfg.Clock.Now().Format("20060102_150405"), st.id)
	path := filepath.Join(p.cfg.ReportDir, filename)

	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 12, "Data Analysis Report", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	section := func(num int, title string) {
		pdf.SetFont("Helvetica", "B", 13)
		pdf.CellFormat(0, 8, fmt.Sprintf("%d. %s", num, title), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
	}
	body := func(text string) {
		pdf.MultiCell(0, 5, tr(text), "", "L", false)
		pdf.Ln(3)
	}

	section(1, "Question")
	body(st.Question)

	section(2, "Generated SQL Query")
	pdf.SetFont("Courier", "", 9)
	if st.SQL != "" {
		pdf.MultiCell(0, 4.5, tr(st.SQL), "", "L", false)
	} else {
		pdf.MultiCell(0, 4.5, "No SQL query was generated.", "", "L", false)
	}
	pdf.Ln(3)

	section(3, "Validation")
	if st.Validation != nil {
		verdict := "REJECTED - the query was not executed"
		if st.Validation.SafeToExecute {
			verdict = "PASSED - the query was judged safe to execute"
		}
		lines := []string{verdict}
		for _, f := range st.Validation.Findings {
			lines = append(lines, "- "+f)
		}
		body(strings.Join(lines, "\n"))
	} else {
		body("Validation was not reached.")
	}

	section(4, "Summary")
	if st.Analysis != nil && st.Analysis.Summary != "" {
		body(st.Analysis.Summary)
	} else {
		body("No analysis summary is available.")
	}

	section(5, "Key Metrics")
	if st.Analysis != nil && len(st.Analysis.KeyMetrics) > 0 {
		var lines []string
		for _, m := range st.Analysis.KeyMetrics {
			line := fmt.Sprintf("- %s: %s", m.Metric, formatValue(m.Value))
			if m.Unit != "" {
				line += " " + m.Unit
			}
			lines = append(lines, line)
		}
		body(strings.Join(lines, "\n"))
	} else {
		body("No key metrics were extracted.")
	}

	section(6, "Query Results")
	if st.Results != nil && st.Results.Count > 0 {
		writeResultsTable(pdf, tr, st.Results)
	} else if st.Validation != nil && !st.Validation.SafeToExecute {
		body("The query was rejected by validation and no results were fetched.")
	} else {
		body("The query returned no rows.")
	}

	section(7, "Charts")
	if len(st.Charts) > 0 {
		for _, chartPath := range st.Charts {
			opts := fpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}
			pdf.ImageOptions(chartPath, 20, pdf.GetY(), 170, 0, true, opts, 0, "")
			pdf.Ln(4)
		}
	} else {
		body("No charts were generated for this result.")
	}

	section(8, "Insights")
	if st.Analysis != nil && len(st.Analysis.Insights) > 0 {
		var lines []string
		for _, ins := range st.Analysis.Insights {
			lines = append(lines, "- "+ins)
		}
		body(strings.Join(lines, "\n"))
	} else {
		body("No additional insights are available.")
	}

	section(9, "Processing Log")
	body(strings.Join(st.Messages, "\n"))

	if err := pdf.OutputFileAndClose(path); err != nil {
		return &StageError{Stage: StageReport, Kind: KindReport, Detail: fmt.Sprintf("failed to write report: %v", err)}
	}

	// Chart files only exist to be embedded; drop them once the PDF is out.
	for _, chartPath := range st.Charts {
		if err := os.Remove(chartPath); err != nil {
			p.logWarn("pipeline: failed to remove chart file", "path", chartPath, "error", err)
		}
	}

	st.PDFFile = filename
	st.addMessage("Report generated: " + filename)
	p.logInfo("pipeline: report generated", "file", filename)
	return nil
}

// writeResultsTable renders the result rows on a landscape page, capped at
// reportMaxColumns x reportMaxRows with truncation indicators.
func writeResultsTable(pdf *fpdf.Fpdf, tr func(string) string, res *QueryResult) {
	ncols := min(reportMaxColumns, len(res.Columns))
	nrows := min(reportMaxRows, len(res.Rows))

	pdf.AddPageFormat("L", fpdf.SizeType{Wd: 210, Ht: 297})

	usable := 297.0 - 20.0 // landscape A4 minus margins
	colW := usable / float64(ncols)

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for i := range ncols {
		pdf.CellFormat(colW, 7, tr(truncate(res.Columns[i], 24)), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 8)
	for r := range nrows {
		for c := range ncols {
			pdf.CellFormat(colW, 6, tr(truncate(formatValue(res.Rows[r][c]), 28)), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.SetFont("Helvetica", "I", 8)
	var notes []string
	if len(res.Columns) > ncols {
		notes = append(notes, fmt.Sprintf("showing %d of %d columns", ncols, len(res.Columns)))
	}
	if len(res.Rows) > nrows {
		notes = append(notes, fmt.Sprintf("showing %d of %d rows", nrows, len(res.Rows)))
	}
	if len(notes) > 0 {
		pdf.Ln(2)
		pdf.CellFormat(0, 5, tr("Note: "+strings.Join(notes, ", ")), "", 1, "L", false, 0, "")
	}

	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 10)
}
