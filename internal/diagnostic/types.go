// Package diagnostic reports syntax problems in SQL migration scripts with
// their position in the file and a hint at the likely fix.
package diagnostic

import "fmt"

// Severity indicates how serious a diagnostic is
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return "unknown"
	}
}

// Position is a 0-indexed location in a script.
type Position struct {
	Line      int
	Character int
	Offset    int
}

// Range is a span of text in a script.
type Range struct {
	Start Position
	End   Position
}

// Diagnostic is a single problem found in a script.
type Diagnostic struct {
	Source   string
	Range    Range
	Severity Severity
	Code     string
	Message  string
}

// NewDiagnostic creates a diagnostic for source.
func NewDiagnostic(source string, r Range, severity Severity, code, message string) Diagnostic {
	return Diagnostic{
		Source:   source,
		Range:    r,
		Severity: severity,
		Code:     code,
		Message:  message,
	}
}

// String formats the diagnostic as source:line:col: severity: message with a
// 1-indexed line and column.
func (d Diagnostic) String() string {
	return fmt.Sprintf("%s:%d:%d: %s: %s",
		d.Source,
		d.Range.Start.Line+1,
		d.Range.Start.Character+1,
		d.Severity,
		d.Message)
}

// PositionFromOffset converts a byte offset into a Position. Offsets outside
// the content are clamped.
func PositionFromOffset(content string, offset int) Position {
	offset = max(0, min(offset, len(content)))

	line, lineStart := 0, 0
	for i := 0; i < offset; i++ {
		if content[i] == '\n' {
			line++
			lineStart = i + 1
		}
	}
	return Position{Line: line, Character: offset - lineStart, Offset: offset}
}

// RangeFromOffsets creates a Range from start and end byte offsets.
func RangeFromOffsets(content string, start, end int) Range {
	return Range{
		Start: PositionFromOffset(content, start),
		End:   PositionFromOffset(content, end),
	}
}
