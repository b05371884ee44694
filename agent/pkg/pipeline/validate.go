package pipeline

import (
	"fmt"
	"regexp"
	"strings"
)

// validate runs the deterministic safety checks on the generated SQL. The
// verdict is a pure function of (sql, schema, config); no model call is
// involved in the pass/fail decision.
func (p *Pipeline) validate(st *State) {
	st.Validation = validateStatement(st.SQL, st.RelevantSchema, p.cfg.MaxRows, p.cfg.LargeTableThreshold)

	if st.Validation.SafeToExecute {
		st.addMessage("Validation: query is safe to execute")
	} else {
		st.addMessage("Validation: query rejected: " + strings.Join(st.Validation.Findings, "; "))
	}
}

// forbiddenVerbs are the data-definition and data-mutation keywords that
// must not appear outside a string literal or comment.
var forbiddenVerbs = []string{
	"DROP", "DELETE", "TRUNCATE", "UPDATE", "INSERT",
	"ALTER", "CREATE", "GRANT", "REVOKE", "EXEC", "EXECUTE",
}

var (
	forbiddenRes = func() map[string]*regexp.Regexp {
		m := make(map[string]*regexp.Regexp, len(forbiddenVerbs))
		for _, v := range forbiddenVerbs {
			m[v] = regexp.MustCompile(`\b` + v + `\b`)
		}
		return m
	}()

	tableRefRe = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+([A-Za-z_][A-Za-z0-9_.]*)`)
	cteNameRe  = regexp.MustCompile(`(?i)\b([A-Za-z_][A-Za-z0-9_]*)\s+AS\s*\(`)
	limitRe    = regexp.MustCompile(`(?i)\b(?:LIMIT\s+\d+|FETCH\s+FIRST|TOP\s+\d+)\b`)

	identRe      = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)
	tableAliasRe = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+[A-Za-z_][A-Za-z0-9_.]*\s+(?:AS\s+)?([A-Za-z_][A-Za-z0-9_]*)`)
	asAliasRe    = regexp.MustCompile(`(?i)\bAS\s+([A-Za-z_][A-Za-z0-9_]*)`)
)

// sqlKeywords are skipped when scanning identifiers for column references.
var sqlKeywords = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "JOIN": true,
	"INNER": true, "LEFT": true, "RIGHT": true, "OUTER": true,
	"FULL": true, "CROSS": true, "NATURAL": true, "ON": true,
	"USING": true, "AND": true, "OR": true, "NOT": true, "IN": true,
	"AS": true, "GROUP": true, "BY": true, "ORDER": true,
	"HAVING": true, "LIMIT": true, "OFFSET": true, "ASC": true,
	"DESC": true, "DISTINCT": true, "CASE": true, "WHEN": true,
	"THEN": true, "ELSE": true, "END": true, "NULL": true,
	"IS": true, "LIKE": true, "ILIKE": true, "BETWEEN": true,
	"UNION": true, "ALL": true, "ANY": true, "EXISTS": true,
	"WITH": true, "FETCH": true, "FIRST": true, "NEXT": true,
	"ROW": true, "ROWS": true, "ONLY": true, "TOP": true,
	"INTERVAL": true, "TRUE": true, "FALSE": true, "ESCAPE": true,
	"OVER": true, "PARTITION": true, "CURRENT_DATE": true,
	"CURRENT_TIMESTAMP": true,
}

// validateStatement applies the rule set and returns the verdict with
// ordered human-readable findings. Findings may be non-empty even when the
// statement is accepted.
func validateStatement(sql, schema string, rowCap, largeThreshold int) *ValidationResult {
	res := &ValidationResult{}
	masked := maskSQL(sql)
	upper := strings.ToUpper(masked)

	// Must be a read statement.
	first := firstWord(upper)
	if first != "SELECT" && first != "WITH" {
		res.Findings = append(res.Findings, fmt.Sprintf("statement must be a SELECT query, found %q", first))
	}

	// Forbidden verbs outside literals and comments.
	for _, v := range forbiddenVerbs {
		if forbiddenRes[v].MatchString(upper) {
			res.Findings = append(res.Findings, "statement contains forbidden keyword "+v)
		}
	}

	// Statement chaining.
	if strings.Contains(strings.TrimRight(strings.TrimSpace(masked), ";"), ";") {
		res.Findings = append(res.Findings, "multiple SQL statements are not allowed")
	}

	unsafe := len(res.Findings) > 0
	// Identifier analysis is only meaningful for a well-formed single
	// read statement.
	wellFormed := !unsafe

	// Referenced tables must exist in the analyzed schema.
	known := make(map[string]schemaTable)
	for _, t := range schemaTables(schema) {
		known[strings.ToLower(t.Name)] = t
	}
	ctes := cteNames(masked)
	refs := referencedTables(masked)
	for _, ref := range refs {
		if ctes[ref] {
			continue
		}
		if _, ok := known[ref]; !ok {
			res.Findings = append(res.Findings, fmt.Sprintf("references table %q which is not present in the analyzed schema", ref))
			unsafe = true
		}
	}

	// Referenced columns must exist somewhere in the analyzed schema.
	// Quoted identifiers are blanked by maskSQL and escape this check.
	if wellFormed {
		knownNames := make(map[string]bool, len(known))
		for name := range known {
			knownNames[name] = true
		}
		for _, col := range unknownColumnRefs(masked, schemaColumns(schema), knownNames, ctes) {
			res.Findings = append(res.Findings, fmt.Sprintf("references column %q which is not present in the analyzed schema", col))
			unsafe = true
		}
	}

	// Bounding clause heuristic.
	if !limitRe.MatchString(masked) {
		large := ""
		for _, ref := range refs {
			if t, ok := known[ref]; ok && t.Rows >= largeThreshold {
				large = fmt.Sprintf("%s (~%d rows)", t.Name, t.Rows)
				break
			}
		}
		if large != "" {
			res.Findings = append(res.Findings, "unbounded query against large table "+large)
			unsafe = true
		} else {
			res.Findings = append(res.Findings, fmt.Sprintf("no row limit specified, results will be capped at %d rows", rowCap))
		}
	}

	res.SafeToExecute = !unsafe
	if res.SafeToExecute && len(res.Findings) == 0 {
		res.Findings = append(res.Findings, "query passed all safety checks")
	}
	return res
}

// maskSQL blanks out the contents of string literals, quoted identifiers
// and comments so keyword checks only see executable SQL.
func maskSQL(sql string) string {
	b := []byte(sql)
	out := make([]byte, len(b))
	copy(out, b)

	for i := 0; i < len(b); {
		switch {
		case b[i] == '\'':
			j := i + 1
			for j < len(b) {
				if b[j] == '\'' {
					if j+1 < len(b) && b[j+1] == '\'' {
						j += 2 // escaped quote
						continue
					}
					break
				}
				j++
			}
			for k := i + 1; k < j && k < len(b); k++ {
				out[k] = ' '
			}
			i = j + 1

		case b[i] == '"' || b[i] == '`':
			q := b[i]
			j := i + 1
			for j < len(b) && b[j] != q {
				j++
			}
			for k := i + 1; k < j && k < len(b); k++ {
				out[k] = ' '
			}
			i = j + 1

		case b[i] == '-' && i+1 < len(b) && b[i+1] == '-':
			j := i
			for j < len(b) && b[j] != '\n' {
				j++
			}
			for k := i; k < j; k++ {
				out[k] = ' '
			}
			i = j

		case b[i] == '/' && i+1 < len(b) && b[i+1] == '*':
			j := i + 2
			for j+1 < len(b) && !(b[j] == '*' && b[j+1] == '/') {
				j++
			}
			end := min(j+2, len(b))
			for k := i; k < end; k++ {
				out[k] = ' '
			}
			i = end

		default:
			i++
		}
	}
	return string(out)
}

// referencedTables extracts deduplicated lowercase table names following
// FROM and JOIN keywords. Subqueries contribute their inner references
// through the same scan; schema-qualified names keep the last component.
func referencedTables(masked string) []string {
	var refs []string
	seen := make(map[string]bool)
	for _, m := range tableRefRe.FindAllStringSubmatch(masked, -1) {
		name := strings.ToLower(m[1])
		if i := strings.LastIndex(name, "."); i != -1 {
			name = name[i+1:]
		}
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		refs = append(refs, name)
	}
	return refs
}

// cteNames collects lowercase names defined by common table expressions so
// references to them are not mistaken for unknown tables.
func cteNames(masked string) map[string]bool {
	names := make(map[string]bool)
	for _, m := range cteNameRe.FindAllStringSubmatch(masked, -1) {
		names[strings.ToLower(m[1])] = true
	}
	return names
}

// unknownColumnRefs scans the masked statement for identifiers used as
// column references and returns, in order of first appearance, the ones
// absent from the schema. Keywords, function calls, dotted qualifiers,
// table references, CTE names and aliases are skipped; a qualified
// reference is checked by its final component.
func unknownColumnRefs(masked string, columns, tables, ctes map[string]bool) []string {
	aliases := queryAliases(masked)

	// Byte ranges captured as FROM/JOIN targets; unknown tables are
	// reported by the table check, not here.
	tableRefPos := make(map[int]bool)
	for _, loc := range tableRefRe.FindAllStringSubmatchIndex(masked, -1) {
		for i := loc[2]; i < loc[3]; i++ {
			tableRefPos[i] = true
		}
	}

	var unknown []string
	seen := make(map[string]bool)
	for _, loc := range identRe.FindAllStringIndex(masked, -1) {
		word := masked[loc[0]:loc[1]]
		if sqlKeywords[strings.ToUpper(word)] || tableRefPos[loc[0]] {
			continue
		}
		// A qualifier ("p" in p.price) or a function name.
		if next := nextNonSpace(masked, loc[1]); next == '.' || next == '(' {
			continue
		}
		name := strings.ToLower(word)
		if columns[name] || tables[name] || ctes[name] || aliases[name] || seen[name] {
			continue
		}
		seen[name] = true
		unknown = append(unknown, name)
	}
	return unknown
}

// queryAliases collects lowercase names bound by FROM/JOIN table aliases
// and AS expressions.
func queryAliases(masked string) map[string]bool {
	aliases := make(map[string]bool)
	for _, re := range []*regexp.Regexp{tableAliasRe, asAliasRe} {
		for _, m := range re.FindAllStringSubmatch(masked, -1) {
			name := strings.ToLower(m[1])
			// tableAliasRe overshoots into the next clause when the
			// table has no alias (FROM sales WHERE captures WHERE).
			if sqlKeywords[strings.ToUpper(name)] {
				continue
			}
			aliases[name] = true
		}
	}
	return aliases
}

func nextNonSpace(s string, i int) byte {
	for ; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
		default:
			return s[i]
		}
	}
	return 0
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], "(;")
}
