package diagnostic

import (
	"regexp"
	"strings"
)

var alterColumnType = regexp.MustCompile(`ALTER\s+COLUMN\s+\S+\s+(SET\s+DATA\s+)?TYPE\b`)

// hazard is a statement that parses but holds a table lock long enough to
// block traffic on a live PostgreSQL database.
type hazard struct {
	code    string
	message string
}

// lockHazards inspects one statement for lock-heavy DDL.
func lockHazards(stmt string) []hazard {
	var code []string
	for _, line := range strings.Split(stmt, "\n") {
		if !strings.HasPrefix(strings.TrimSpace(line), "--") {
			code = append(code, line)
		}
	}
	upper := strings.Join(strings.Fields(strings.ToUpper(strings.Join(code, "\n"))), " ")

	var out []hazard
	if (strings.HasPrefix(upper, "CREATE INDEX") || strings.HasPrefix(upper, "CREATE UNIQUE INDEX")) &&
		!strings.Contains(upper, "CONCURRENTLY") {
		out = append(out, hazard{
			code:    "lock_share",
			message: "CREATE INDEX holds a SHARE lock that blocks writes while the index builds; consider CREATE INDEX CONCURRENTLY",
		})
	}
	if !strings.HasPrefix(upper, "ALTER TABLE") {
		return out
	}
	if strings.Contains(upper, "ADD CONSTRAINT") && !strings.Contains(upper, "NOT VALID") &&
		(strings.Contains(upper, "FOREIGN KEY") || strings.Contains(upper, "CHECK")) {
		out = append(out, hazard{
			code:    "lock_validate",
			message: "ADD CONSTRAINT scans every row under an ACCESS EXCLUSIVE lock; add it NOT VALID and VALIDATE CONSTRAINT separately",
		})
	}
	if alterColumnType.MatchString(upper) {
		out = append(out, hazard{
			code:    "lock_rewrite",
			message: "changing a column type may rewrite the table under an ACCESS EXCLUSIVE lock",
		})
	}
	return out
}
