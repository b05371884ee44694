package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// analysisSampleRows caps how many result rows are shown to the model.
const analysisSampleRows = 20

// analyze derives a natural-language summary and key metrics from the
// result rows. This stage never fails terminally: zero rows yields a canned
// summary, and any model or parse failure degrades to a placeholder.
func (p *Pipeline) analyze(ctx context.Context, st *State) {
	if st.Results == nil || st.Results.Count == 0 {
		st.Analysis = &Analysis{
			Summary:    "The query executed successfully but returned no matching data.",
			KeyMetrics: []KeyMetric{},
		}
		st.addMessage("Analysis: no matching data found")
		return
	}

	llmCtx, cancel := context.WithTimeout(ctx, p.cfg.LLMTimeout)
	defer cancel()

	user := buildAnalyzePrompt(st.Question, st.SQL, st.Results)
	resp, err := p.cfg.LLM.Complete(llmCtx, p.prompts.Analyze, user)
	if err != nil {
		p.degradeAnalysis(st, err)
		return
	}

	analysis, err := parseAnalysisResponse(resp)
	if err != nil {
		p.degradeAnalysis(st, err)
		return
	}

	st.Analysis = analysis
	st.addMessage(fmt.Sprintf("Analysis: generated summary with %d key metrics", len(analysis.KeyMetrics)))
	p.logInfo("pipeline: analysis complete", "metrics", len(analysis.KeyMetrics), "charts", len(analysis.Visualizations))
}

// degradeAnalysis substitutes a placeholder so report generation can proceed.
func (p *Pipeline) degradeAnalysis(st *State, err error) {
	st.Analysis = &Analysis{
		Summary:    fmt.Sprintf("The query returned %d rows. A detailed analysis could not be produced for this result set.", st.Results.Count),
		KeyMetrics: []KeyMetric{},
	}
	st.addMessage("Analysis: skipped detailed analysis, using summary placeholder")
	p.logWarn("pipeline: analysis degraded", "error", err)
}

// buildAnalyzePrompt packs the question, SQL and a bounded sample of rows.
func buildAnalyzePrompt(question, sql string, res *QueryResult) string {
	var sb strings.Builder
	sb.WriteString("## Question\n\n" + question + "\n\n")
	sb.WriteString("## SQL\n\n```sql\n" + sql + "\n```\n\n")
	fmt.Fprintf(&sb, "## Results (%d rows total, showing up to %d)\n\n", res.Count, analysisSampleRows)
	sb.WriteString(formatSampleRows(res, analysisSampleRows))
	return sb.String()
}

// formatSampleRows renders rows as pipe-separated text for the model.
func formatSampleRows(res *QueryResult, maxRows int) string {
	var sb strings.Builder
	sb.WriteString(strings.Join(res.Columns, " | ") + "\n")
	sb.WriteString(strings.Repeat("-", 40) + "\n")

	n := min(maxRows, len(res.Rows))
	for i := range n {
		cells := make([]string, len(res.Rows[i]))
		for j, v := range res.Rows[i] {
			cells[j] = formatValue(v)
		}
		sb.WriteString(strings.Join(cells, " | ") + "\n")
	}
	if len(res.Rows) > n {
		fmt.Fprintf(&sb, "... and %d more rows\n", len(res.Rows)-n)
	}
	return sb.String()
}

// formatValue renders a single cell as plain text. Floats are rounded to
// two decimal places to avoid long decimal tails.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%.0f", val)
		}
		return fmt.Sprintf("%.2f", val)
	case float32:
		return formatValue(float64(val))
	case []byte:
		return string(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// parseAnalysisResponse extracts the JSON analysis object from the model
// response, tolerating markdown fences and surrounding prose.
func parseAnalysisResponse(response string) (*Analysis, error) {
	jsonStr := extractJSON(response)
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var a Analysis
	if err := json.Unmarshal([]byte(jsonStr), &a); err != nil {
		return nil, fmt.Errorf("failed to parse analysis JSON: %w", err)
	}
	if strings.TrimSpace(a.Summary) == "" {
		return nil, fmt.Errorf("analysis response has no summary")
	}
	if a.KeyMetrics == nil {
		a.KeyMetrics = []KeyMetric{}
	}
	return &a, nil
}

// extractJSON finds the outermost JSON object in a response that may be
// wrapped in markdown fences or prose.
func extractJSON(response string) string {
	response = strings.TrimSpace(response)

	if start := strings.Index(response, "```json"); start != -1 {
		rest := response[start+7:]
		if end := strings.Index(rest, "```"); end != -1 {
			response = strings.TrimSpace(rest[:end])
		}
	} else if start := strings.Index(response, "```"); start != -1 {
		rest := response[start+3:]
		if end := strings.Index(rest, "```"); end != -1 {
			response = strings.TrimSpace(rest[:end])
		}
	}

	first := strings.Index(response, "{")
	last := strings.LastIndex(response, "}")
	if first == -1 || last == -1 || last <= first {
		return ""
	}
	return response[first : last+1]
}
