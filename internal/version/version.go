// Package version implements migration version identities.
//
// A version is an ordered sequence of non-negative integers parsed from a
// dot or underscore delimited string ("2.1.3", "3_0"). Versions compare
// component-wise with the shorter sequence padded with zeros, so "2.1" and
// "2.1.0" order equally while keeping distinct canonical strings.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is an immutable migration version.
// The zero value means "no version" and sorts below every parsed version.
type Version struct {
	parts  []uint64
	text   string
	latest bool
}

// Latest compares greater than every parsed version. It is only used as a
// "no cutoff" target and is never persisted.
var Latest = Version{latest: true, text: "latest"}

// MalformedVersionError is returned when a version string cannot be parsed.
type MalformedVersionError struct {
	Text   string
	Reason string
}

func (e *MalformedVersionError) Error() string {
	return fmt.Sprintf("malformed version %q: %s", e.Text, e.Reason)
}

// Parse parses a dot or underscore delimited version string.
func Parse(text string) (Version, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Version{}, &MalformedVersionError{Text: text, Reason: "empty version"}
	}

	fields := strings.FieldsFunc(trimmed, func(r rune) bool { return r == '.' || r == '_' })
	// FieldsFunc collapses separators, so count them to catch "1..2" and "1."
	if len(fields) != strings.Count(trimmed, ".")+strings.Count(trimmed, "_")+1 {
		return Version{}, &MalformedVersionError{Text: text, Reason: "empty component"}
	}

	parts := make([]uint64, len(fields))
	for i, field := range fields {
		for _, r := range field {
			if r < '0' || r > '9' {
				return Version{}, &MalformedVersionError{
					Text:   text,
					Reason: fmt.Sprintf("component %q is not numeric", field),
				}
			}
		}
		n, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			return Version{}, &MalformedVersionError{
				Text:   text,
				Reason: fmt.Sprintf("component %q is out of range", field),
			}
		}
		parts[i] = n
	}

	return Version{parts: parts, text: strings.Join(fields, ".")}, nil
}

// MustParse is like Parse but panics on malformed input. Intended for tests
// and compiled-in migrations.
func MustParse(text string) Version {
	v, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return v
}

// Compare returns -1, 0 or +1 depending on whether a sorts before, equal to
// or after b.
func Compare(a, b Version) int {
	switch {
	case a.latest && b.latest:
		return 0
	case a.latest:
		return 1
	case b.latest:
		return -1
	}

	n := len(a.parts)
	if len(b.parts) > n {
		n = len(b.parts)
	}
	for i := 0; i < n; i++ {
		x, y := a.component(i), b.component(i)
		if x < y {
			return -1
		}
		if x > y {
			return 1
		}
	}

	// all components equal; a parsed version still sorts above "none"
	switch {
	case a.IsZero() && !b.IsZero():
		return -1
	case !a.IsZero() && b.IsZero():
		return 1
	}
	return 0
}

func (v Version) component(i int) uint64 {
	if i < len(v.parts) {
		return v.parts[i]
	}
	return 0
}

// Equal reports whether v and other order equally.
func (v Version) Equal(other Version) bool { return Compare(v, other) == 0 }

// Less reports whether v sorts before other.
func (v Version) Less(other Version) bool { return Compare(v, other) < 0 }

// IsLatest reports whether v is the Latest sentinel.
func (v Version) IsLatest() bool { return v.latest }

// IsZero reports whether v is the "no version" value.
func (v Version) IsZero() bool { return !v.latest && len(v.parts) == 0 }

// String returns the canonical form: the original components joined with dots.
func (v Version) String() string {
	if v.IsZero() {
		return "<none>"
	}
	return v.text
}

// Key returns a normalized identity shared by all versions that compare
// equal, suitable for use as a map key.
func (v Version) Key() string {
	if v.latest {
		return "latest"
	}
	end := len(v.parts)
	for end > 1 && v.parts[end-1] == 0 {
		end--
	}
	keys := make([]string, end)
	for i := 0; i < end; i++ {
		keys[i] = strconv.FormatUint(v.parts[i], 10)
	}
	return strings.Join(keys, ".")
}

// Parts returns a copy of the numeric components.
func (v Version) Parts() []uint64 {
	out := make([]uint64, len(v.parts))
	copy(out, v.parts)
	return out
}
