package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// analyzeSchema fetches the database schema and narrows it to the tables
// relevant to the question. Narrowing is best effort: if the model call
// fails or selects nothing usable, the full schema is kept.
func (p *Pipeline) analyzeSchema(ctx context.Context, st *State) *StageError {
	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.QueryTimeout)
	defer cancel()

	full, err := p.cfg.DB.FetchSchema(fetchCtx)
	if err != nil {
		return &StageError{Stage: StageSchemaAnalysis, Kind: KindSchema, Detail: fmt.Sprintf("failed to inspect database schema: %v", err)}
	}
	if strings.TrimSpace(full) == "" {
		return &StageError{Stage: StageSchemaAnalysis, Kind: KindSchema, Detail: "database contains no tables"}
	}

	all := schemaTables(full)
	selected := p.selectRelevantTables(ctx, st.Question, full, all)

	if len(selected) == 0 || len(selected) == len(all) {
		st.RelevantSchema = full
		st.addMessage(fmt.Sprintf("Schema Analysis: Using all %d tables", len(all)))
	} else {
		st.RelevantSchema = filterSchema(full, selected)
		st.addMessage(fmt.Sprintf("Schema Analysis: Found %d relevant tables: %s", len(selected), strings.Join(selected, ", ")))
	}

	p.logInfo("pipeline: schema analyzed", "tables", len(all), "selected", len(selected))
	return nil
}

// selectRelevantTables asks the model which tables matter for the question.
// Returns nil when the answer is unusable, which keeps the full schema.
func (p *Pipeline) selectRelevantTables(ctx context.Context, question, schema string, all []schemaTable) []string {
	llmCtx, cancel := context.WithTimeout(ctx, p.cfg.LLMTimeout)
	defer cancel()

	user := "## Database Schema\n\n```\n" + schema + "\n```\n\n## Question\n\n" + question
	resp, err := p.cfg.LLM.Complete(llmCtx, p.prompts.Schema, user)
	if err != nil {
		p.logWarn("pipeline: table selection failed, keeping full schema", "error", err)
		return nil
	}

	known := make(map[string]bool, len(all))
	for _, t := range all {
		known[strings.ToLower(t.Name)] = true
	}

	var selected []string
	seen := make(map[string]bool)
	for _, part := range strings.FieldsFunc(resp, func(r rune) bool { return r == ',' || r == '\n' }) {
		name := strings.Trim(strings.TrimSpace(part), "`\"'")
		if name == "" || !known[strings.ToLower(name)] || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true
		selected = append(selected, name)
	}
	return selected
}

// schemaTable is one table parsed out of the schema text.
type schemaTable struct {
	Name string
	Rows int // approximate row count, -1 when unknown
}

var tableHeaderRe = regexp.MustCompile(`^(\w+)(?:\s+\(~(\d+)\s+rows\))?:\s*$`)

// schemaTables parses table names and approximate row counts from the
// schema text format produced by the connector package: a table header line
// ("name (~N rows):") followed by indented column lines.
func schemaTables(schema string) []schemaTable {
	var tables []schemaTable
	for _, line := range strings.Split(schema, "\n") {
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			continue
		}
		m := tableHeaderRe.FindStringSubmatch(strings.TrimRight(line, " "))
		if m == nil {
			continue
		}
		t := schemaTable{Name: m[1], Rows: -1}
		if m[2] != "" {
			if n, err := strconv.Atoi(m[2]); err == nil {
				t.Rows = n
			}
		}
		tables = append(tables, t)
	}
	return tables
}

var columnLineRe = regexp.MustCompile(`^\s+-\s+(\w+)\s+\(`)

// schemaColumns collects the lowercase column names of every table in the
// schema text. The set is global across tables; callers do not resolve
// which table an unqualified column belongs to.
func schemaColumns(schema string) map[string]bool {
	cols := make(map[string]bool)
	for _, line := range strings.Split(schema, "\n") {
		if m := columnLineRe.FindStringSubmatch(line); m != nil {
			cols[strings.ToLower(m[1])] = true
		}
	}
	return cols
}

// filterSchema keeps only the blocks of the named tables, preserving their
// original order in the schema text.
func filterSchema(schema string, keep []string) string {
	want := make(map[string]bool, len(keep))
	for _, name := range keep {
		want[strings.ToLower(name)] = true
	}

	var sb strings.Builder
	keeping := false
	for _, line := range strings.Split(schema, "\n") {
		if !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") {
			if m := tableHeaderRe.FindStringSubmatch(strings.TrimRight(line, " ")); m != nil {
				keeping = want[strings.ToLower(m[1])]
			}
		}
		if keeping {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n") + "\n"
}
