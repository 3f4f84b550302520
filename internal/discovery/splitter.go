package discovery

import (
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/lockplane/ksmigrate/internal/keyspace"
)

// SplitStatements splits a script into statements for the backend.
// PostgreSQL scripts go through the PostgreSQL scanner; CQL and the SQLite
// family use SplitCQL.
func SplitStatements(script string, backend keyspace.Backend) ([]string, error) {
	if backend == keyspace.BackendPostgres {
		stmts, err := pg_query.SplitWithScanner(script, true)
		if err != nil {
			return nil, err
		}
		var out []string
		for _, s := range stmts {
			s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), ";"))
			if s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	}
	return SplitCQL(script), nil
}

// SplitCQL splits on semicolons outside string literals, quoted identifiers,
// dollar-quoted bodies and comments. Comments are dropped from the output.
// Semicolons inside a CQL BEGIN BATCH ... APPLY BATCH block and inside the
// BEGIN ... END body of a SQLite trigger do not end the statement.
func SplitCQL(script string) []string {
	var (
		stmts []string
		cur   strings.Builder
		// code mirrors cur with literals blanked out, for keyword matching.
		code strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
		code.Reset()
	}
	literal := func(text string) {
		cur.WriteString(text)
		code.WriteByte(' ')
	}

	n := len(script)
	for i := 0; i < n; i++ {
		c := script[i]
		switch {
		case c == '\'' || c == '"':
			end := closingQuote(script, i, c)
			literal(script[i:end])
			i = end - 1
		case c == '$' && i+1 < n && script[i+1] == '$':
			end := strings.Index(script[i+2:], "$$")
			if end < 0 {
				literal(script[i:])
				i = n
				continue
			}
			end += i + 4
			literal(script[i:end])
			i = end - 1
		case (c == '-' && i+1 < n && script[i+1] == '-') || (c == '/' && i+1 < n && script[i+1] == '/'):
			nl := strings.IndexByte(script[i:], '\n')
			if nl < 0 {
				i = n
				continue
			}
			cur.WriteByte('\n')
			code.WriteByte('\n')
			i += nl
		case c == '/' && i+1 < n && script[i+1] == '*':
			end := strings.Index(script[i+2:], "*/")
			if end < 0 {
				i = n
				continue
			}
			cur.WriteByte(' ')
			code.WriteByte(' ')
			i += end + 3
		case c == ';':
			if insideBlock(code.String()) {
				cur.WriteByte(c)
				code.WriteByte(' ')
				continue
			}
			flush()
		default:
			cur.WriteByte(c)
			code.WriteByte(c)
		}
	}
	flush()
	return stmts
}

// insideBlock reports whether a semicolon after code belongs to an open
// batch or trigger body rather than ending the statement.
func insideBlock(code string) bool {
	words := strings.FieldsFunc(strings.ToUpper(code), func(r rune) bool {
		return !(r == '_' || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'))
	})
	if len(words) < 2 {
		return false
	}

	if words[0] == "BEGIN" {
		batch := words[1] == "BATCH" ||
			(len(words) > 2 && (words[1] == "UNLOGGED" || words[1] == "COUNTER") && words[2] == "BATCH")
		if !batch {
			return false
		}
		last := len(words) - 1
		return !(words[last] == "BATCH" && words[last-1] == "APPLY")
	}

	if words[0] != "CREATE" || !isTrigger(words[1:]) {
		return false
	}
	depth, opened := 0, false
	for _, w := range words {
		switch w {
		case "BEGIN":
			depth++
			opened = true
		case "CASE":
			if opened {
				depth++
			}
		case "END":
			if opened {
				depth--
			}
		}
	}
	return opened && depth > 0
}

// isTrigger matches [TEMP|TEMPORARY] TRIGGER after CREATE.
func isTrigger(words []string) bool {
	if len(words) > 0 && (words[0] == "TEMP" || words[0] == "TEMPORARY") {
		words = words[1:]
	}
	return len(words) > 0 && words[0] == "TRIGGER"
}

// closingQuote returns the index just past the quote that closes the literal
// starting at start. A doubled quote is an escaped quote.
func closingQuote(s string, start int, quote byte) int {
	for i := start + 1; i < len(s); i++ {
		if s[i] != quote {
			continue
		}
		if i+1 < len(s) && s[i+1] == quote {
			i++
			continue
		}
		return i + 1
	}
	return len(s)
}
