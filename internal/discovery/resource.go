package discovery

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const filesystemPrefix = "filesystem:"

// Location is a directory that is scanned for migration scripts.
type Location struct {
	Path string
}

// ParseLocation accepts "filesystem:<path>" or a bare path.
func ParseLocation(s string) (Location, error) {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, filesystemPrefix); ok {
		s = rest
	} else if i := strings.Index(s, ":"); i > 1 && !filepath.IsAbs(s) {
		return Location{}, fmt.Errorf("unsupported location prefix %q in %q", s[:i+1], s)
	}
	if s == "" {
		return Location{}, fmt.Errorf("empty scripts location")
	}
	return Location{Path: filepath.Clean(s)}, nil
}

func (l Location) String() string {
	return filesystemPrefix + l.Path
}

// Resource is a script file found under a location. Location is the path
// relative to the scanned directory; Filename is its last element.
type Resource struct {
	root     string
	location string
}

// NewResource returns a resource for a slash-separated location relative to
// root.
func NewResource(root, location string) Resource {
	return Resource{root: root, location: filepath.ToSlash(location)}
}

// Location returns the resource path relative to its scan root.
func (r Resource) Location() string { return r.location }

// Filename returns the name of the file without any directories.
func (r Resource) Filename() string { return path.Base(r.location) }

// Path returns the path of the file on disk.
func (r Resource) Path() string {
	return filepath.Join(r.root, filepath.FromSlash(r.location))
}

func (r Resource) String() string { return r.Path() }

// Read returns the raw bytes of the resource.
func (r Resource) Read() ([]byte, error) {
	data, err := os.ReadFile(r.Path())
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", r.Path(), err)
	}
	return data, nil
}
