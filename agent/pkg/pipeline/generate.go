package pipeline

import (
	"context"
	"fmt"
	"strings"
)

// generateSQL asks the model for one SQL statement answering the question.
// A malformed response is retried once with the parse error fed back; a
// second failure is terminal.
func (p *Pipeline) generateSQL(ctx context.Context, st *State) *StageError {
	systemPrompt := buildGeneratePrompt(p.prompts.Generate, st.RelevantSchema)
	userPrompt := "Question: " + st.Question

	sql, err := p.completeSQL(ctx, systemPrompt, userPrompt)
	if err != nil {
		// One explicit, logged retry with the failure fed back.
		st.addMessage(fmt.Sprintf("SQL Generation: retrying after malformed response (%v)", err))
		p.logWarn("pipeline: sql generation retry", "error", err)

		retryPrompt := userPrompt + fmt.Sprintf("\n\nYour previous response could not be used (%v). Respond with only the SQL query.", err)
		sql, err = p.completeSQL(ctx, systemPrompt, retryPrompt)
		if err != nil {
			return &StageError{Stage: StageGeneration, Kind: KindGeneration, Detail: fmt.Sprintf("failed to generate SQL: %v", err)}
		}
	}

	if reason, refused := refusalReason(sql); refused {
		return &StageError{Stage: StageGeneration, Kind: KindGeneration, Detail: "question cannot be answered from this database: " + reason}
	}

	st.SQL = sql
	st.addMessage("Generated SQL: " + sql)
	p.logInfo("pipeline: sql generated", "sql", truncate(sql, 200))
	return nil
}

// completeSQL performs one generation call and parses the result.
func (p *Pipeline) completeSQL(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	llmCtx, cancel := context.WithTimeout(ctx, p.cfg.LLMTimeout)
	defer cancel()

	resp, err := p.cfg.LLM.Complete(llmCtx, systemPrompt, userPrompt)
	if err != nil {
		return "", fmt.Errorf("LLM completion failed: %w", err)
	}
	return parseSQLResponse(resp)
}

// refusalReason reports whether the model declined to generate a query.
func refusalReason(sql string) (string, bool) {
	if rest, ok := strings.CutPrefix(strings.TrimSpace(sql), "CANNOT_ANSWER"); ok {
		reason := strings.TrimSpace(strings.TrimLeft(rest, ":- "))
		if reason == "" {
			reason = "the model could not produce a query for this question"
		}
		return reason, true
	}
	return "", false
}

// parseSQLResponse extracts a single SQL statement from the model response.
func parseSQLResponse(response string) (string, error) {
	response = strings.TrimSpace(response)
	if response == "" {
		return "", fmt.Errorf("empty response")
	}

	if strings.HasPrefix(response, "CANNOT_ANSWER") {
		return response, nil
	}

	if sql := extractSQLFromCodeBlocks(response); sql != "" {
		return sql, nil
	}

	if looksLikeSQL(response) {
		return cleanSQL(response), nil
	}

	return "", fmt.Errorf("could not extract SQL from response")
}

// extractSQLFromCodeBlocks finds SQL in markdown code blocks.
func extractSQLFromCodeBlocks(response string) string {
	if start := strings.Index(response, "```sql"); start != -1 {
		start += 6 // len("```sql")
		if end := strings.Index(response[start:], "```"); end != -1 {
			return cleanSQL(response[start : start+end])
		}
	}

	if start := strings.Index(response, "```"); start != -1 {
		start += 3
		if end := strings.Index(response[start:], "```"); end != -1 {
			content := strings.TrimSpace(response[start : start+end])
			if looksLikeSQL(content) {
				return cleanSQL(content)
			}
		}
	}

	return ""
}

// looksLikeSQL checks if text appears to be a SQL statement.
func looksLikeSQL(text string) bool {
	upper := strings.ToUpper(strings.TrimSpace(text))
	for _, kw := range []string{"SELECT", "WITH", "INSERT", "UPDATE", "DELETE", "CREATE", "ALTER", "DROP"} {
		if strings.HasPrefix(upper, kw) {
			return true
		}
	}
	return false
}

// cleanSQL normalizes SQL by trimming whitespace and a trailing semicolon.
func cleanSQL(sql string) string {
	sql = strings.TrimSpace(sql)
	sql = strings.TrimSuffix(sql, ";")
	return strings.TrimSpace(sql)
}

// buildGeneratePrompt combines the static prompt with the schema fragment.
func buildGeneratePrompt(staticPrompt, schema string) string {
	return staticPrompt + "\n\n## Database Schema\n\n```\n" + schema + "\n```"
}
