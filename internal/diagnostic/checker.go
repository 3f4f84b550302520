package diagnostic

import (
	"fmt"
	"regexp"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

var (
	nearToken       = regexp.MustCompile(`at or near "([^"]+)"`)
	columnLine      = regexp.MustCompile(`^\w+\s+\w+`)
	identStart      = regexp.MustCompile(`^\w+`)
	unterminatedEnd = regexp.MustCompile(`\)\s*\n\s*(CREATE|ALTER|DROP|INSERT)\b`)
	createTableName = regexp.MustCompile(`(?i)CREATE TABLE\s+(\w+)`)
)

var keywordTypos = map[string]string{
	"TABEL":      "TABLE",
	"TALBE":      "TABLE",
	"PRIMAY":     "PRIMARY",
	"PRIMERY":    "PRIMARY",
	"FORIEGN":    "FOREIGN",
	"FOREGIN":    "FOREIGN",
	"REFERNCES":  "REFERENCES",
	"TIMESTAMPZ": "TIMESTAMPTZ",
	"NOTNULL":    "NOT NULL",
	"INTEGR":     "INTEGER",
	"DEFALT":     "DEFAULT",
	"UNQUE":      "UNIQUE",
	"UNIUQE":     "UNIQUE",
	"COLUM":      "COLUMN",
}

// failure is one statement that PostgreSQL could not parse.
type failure struct {
	stmt    string
	message string
	token   string
	pos     Position
}

type analyzer func(f failure) string

var analyzers = []analyzer{
	analyzeMySQLSyntax,
	analyzeTypo,
	analyzeMissingComma,
	analyzeTrailingComma,
	analyzeMissingSemicolon,
	analyzeMissingParenthesis,
	analyzeIncompleteStatement,
}

// CheckPostgres parses every statement of a PostgreSQL script. It returns an
// error for each statement that does not parse and a warning for each one
// that takes a blocking table lock. Positions are relative to the whole
// script.
func CheckPostgres(source, script string) []Diagnostic {
	c := NewCollector(source, script)

	stmts, err := pg_query.SplitWithScanner(script, true)
	if err != nil {
		c.AddErrorAtOffset(0, 1, "scan_error", err.Error())
		return c.All()
	}

	found, cursor := 0, 0
	for _, stmt := range stmts {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		base := cursor
		if i := strings.Index(script[cursor:], stmt); i >= 0 {
			base = cursor + i
			cursor = base + len(stmt)
		}
		tree, err := pg_query.Parse(stmt)
		if err != nil {
			found++
			checkFailure(c, script, base, stmt, err)
			continue
		}
		found += len(tree.GetStmts())
		for _, h := range lockHazards(stmt) {
			c.AddWarningAtOffset(base, len(stmt), h.code, h.message)
		}
	}
	if found == 0 {
		c.AddWarningAtOffset(0, 0, "empty_script", "script contains no statements")
	}
	return c.All()
}

func checkFailure(c *Collector, script string, base int, stmt string, err error) {
	message := strings.TrimPrefix(err.Error(), "failed to parse SQL: ")

	f := failure{stmt: stmt, message: message}
	if m := nearToken.FindStringSubmatch(message); len(m) > 1 {
		f.token = m[1]
	}
	switch {
	case f.token != "" && strings.Contains(stmt, f.token):
		f.pos = PositionFromOffset(stmt, strings.Index(stmt, f.token))
	case strings.Contains(message, "at end of input"):
		f.pos = PositionFromOffset(stmt, len(stmt))
	}

	hint := ""
	for _, a := range analyzers {
		if hint = a(f); hint != "" {
			break
		}
	}
	if hint == "" {
		hint = message
	}

	abs := base + f.pos.Offset
	if ctx := codeContext(script, PositionFromOffset(script, abs).Line); ctx != "" {
		hint += "\n" + ctx
	}
	c.AddErrorAtOffset(abs, max(1, len(f.token)), "syntax_error", hint)
}

func analyzeMySQLSyntax(f failure) string {
	if strings.Contains(f.stmt, "`") {
		return "backticks are MySQL syntax; quote identifiers with double quotes in PostgreSQL"
	}
	upper := strings.ToUpper(f.stmt)
	if strings.Contains(upper, "AUTO_INCREMENT") {
		return "AUTO_INCREMENT is MySQL syntax; use GENERATED ALWAYS AS IDENTITY or BIGSERIAL"
	}
	return ""
}

func analyzeTypo(f failure) string {
	if suggestion, ok := keywordTypos[strings.ToUpper(f.token)]; ok {
		return fmt.Sprintf("invalid keyword %q, did you mean %s?", f.token, suggestion)
	}
	return ""
}

func analyzeMissingComma(f failure) string {
	lines := strings.Split(f.stmt, "\n")
	if f.pos.Line <= 0 || f.pos.Line >= len(lines) {
		return ""
	}
	prev := strings.TrimSpace(lines[f.pos.Line-1])
	cur := strings.TrimSpace(lines[f.pos.Line])
	if columnLine.MatchString(prev) &&
		!strings.HasSuffix(prev, ",") &&
		!strings.HasSuffix(prev, "(") &&
		!strings.HasPrefix(prev, "--") &&
		identStart.MatchString(cur) {
		return fmt.Sprintf("missing comma after %q", prev)
	}
	return ""
}

func analyzeTrailingComma(f failure) string {
	if f.token != ")" {
		return ""
	}
	before := strings.TrimRight(f.stmt[:f.pos.Offset], " \t\r\n")
	if strings.HasSuffix(before, ",") {
		return "trailing comma before closing parenthesis"
	}
	return ""
}

func analyzeMissingSemicolon(f failure) string {
	if unterminatedEnd.MatchString(f.stmt) {
		return "missing semicolon after the previous statement"
	}
	return ""
}

func analyzeMissingParenthesis(f failure) string {
	lines := strings.Split(f.stmt, "\n")
	if f.pos.Line > 0 && f.pos.Line < len(lines) {
		prev := lines[f.pos.Line-1]
		if m := createTableName.FindStringSubmatch(prev); len(m) > 1 && !strings.Contains(prev, "(") {
			return fmt.Sprintf("missing opening parenthesis after CREATE TABLE %s", m[1])
		}
	}
	return ""
}

func analyzeIncompleteStatement(f failure) string {
	if !strings.Contains(f.message, "at end of input") {
		return ""
	}
	upper := strings.ToUpper(f.stmt)
	switch {
	case strings.Contains(upper, "CREATE INDEX") && !strings.Contains(upper, " ON "):
		return "incomplete CREATE INDEX, expected ON table_name (column)"
	case strings.Count(f.stmt, "(") > strings.Count(f.stmt, ")"):
		return "statement ends before its closing parenthesis"
	case strings.HasSuffix(strings.TrimSpace(upper), "REFERENCES"):
		return "incomplete REFERENCES clause, expected REFERENCES table_name (column)"
	}
	return ""
}

// codeContext renders the line with the problem and its neighbours.
func codeContext(script string, line int) string {
	lines := strings.Split(script, "\n")
	if line < 0 || line >= len(lines) {
		return ""
	}

	var b strings.Builder
	for i := max(0, line-1); i < min(len(lines), line+2); i++ {
		marker := "  "
		if i == line {
			marker = "→ "
		}
		fmt.Fprintf(&b, "  %s%3d: %s\n", marker, i+1, lines[i])
	}
	return strings.TrimRight(b.String(), "\n")
}
