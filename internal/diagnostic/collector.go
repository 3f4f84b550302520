package diagnostic

import "sort"

// Collector gathers the diagnostics found in one script.
type Collector struct {
	diagnostics []Diagnostic
	source      string
	content     string
}

// NewCollector creates a collector for the script at source.
func NewCollector(source, content string) *Collector {
	return &Collector{source: source, content: content}
}

func (c *Collector) Add(diag Diagnostic) {
	c.diagnostics = append(c.diagnostics, diag)
}

// AddErrorAtOffset adds an error covering length bytes from offset.
func (c *Collector) AddErrorAtOffset(offset, length int, code, message string) {
	r := RangeFromOffsets(c.content, offset, offset+length)
	c.Add(NewDiagnostic(c.source, r, SeverityError, code, message))
}

// AddWarningAtOffset adds a warning covering length bytes from offset.
func (c *Collector) AddWarningAtOffset(offset, length int, code, message string) {
	r := RangeFromOffsets(c.content, offset, offset+length)
	c.Add(NewDiagnostic(c.source, r, SeverityWarning, code, message))
}

// All returns every diagnostic sorted by position.
func (c *Collector) All() []Diagnostic {
	sort.SliceStable(c.diagnostics, func(i, j int) bool {
		return c.diagnostics[i].Range.Start.Offset < c.diagnostics[j].Range.Start.Offset
	})
	return c.diagnostics
}

// Errors returns only error-level diagnostics
func (c *Collector) Errors() []Diagnostic {
	var errs []Diagnostic
	for _, d := range c.diagnostics {
		if d.Severity == SeverityError {
			errs = append(errs, d)
		}
	}
	return errs
}

func (c *Collector) HasErrors() bool {
	return len(c.Errors()) > 0
}

func (c *Collector) Count() int {
	return len(c.diagnostics)
}
