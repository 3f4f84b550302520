// Package discovery finds migration scripts on disk and turns them, together
// with migrations written in Go, into descriptors for the planner.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"code.cloudfoundry.org/lager/v3"
	"golang.org/x/text/encoding"

	"github.com/lockplane/ksmigrate/internal/keyspace"
	"github.com/lockplane/ksmigrate/internal/messages"
	"github.com/lockplane/ksmigrate/internal/migration"
	"github.com/lockplane/ksmigrate/internal/planner"
	"github.com/lockplane/ksmigrate/internal/version"
)

// GoMigration is a migration implemented in Go. It is recorded with type GO
// and checksum 0, so edits to its code are not detected as drift.
type GoMigration struct {
	Version     string
	Description string
	Up          migration.Func
}

// Scanner discovers migrations from script locations and registered Go
// migrations.
type Scanner struct {
	Locations    []string
	Encoding     string
	Backend      keyspace.Backend
	GoMigrations []GoMigration
	Logger       lager.Logger
}

// ScriptSuffix returns the script file extension for a backend.
func ScriptSuffix(backend keyspace.Backend) string {
	if backend.IsSQL() {
		return ".sql"
	}
	return ".cql"
}

func scriptType(backend keyspace.Backend) migration.ScriptType {
	if backend.IsSQL() {
		return migration.TypeSQL
	}
	return migration.TypeCQL
}

// Scan returns every discovered migration sorted by version. Missing
// locations are skipped. Two migrations with the same version fail the scan.
func (s *Scanner) Scan(ctx context.Context) ([]*migration.Descriptor, error) {
	logger := s.Logger
	if logger == nil {
		logger = lager.NewLogger("ksmigrate")
	}
	logger = logger.Session("discover")

	enc, err := LookupEncoding(s.Encoding)
	if err != nil {
		return nil, err
	}

	var found []*migration.Descriptor
	for _, raw := range s.Locations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		loc, err := ParseLocation(raw)
		if err != nil {
			return nil, err
		}
		ds, err := s.scanLocation(logger, loc, enc)
		if err != nil {
			logger.Error(messages.ErrFailedToScanLocation, err, lager.Data{"location": loc.String()})
			return nil, err
		}
		found = append(found, ds...)
	}

	for _, gm := range s.GoMigrations {
		d, err := gm.descriptor()
		if err != nil {
			return nil, err
		}
		found = append(found, d)
	}

	if err := migration.CheckDuplicates(found); err != nil {
		return nil, err
	}
	planner.SortByVersion(found)

	for _, d := range found {
		logger.Debug(messages.DiscoveredMigration, lager.Data{
			"version": d.Version.String(),
			"type":    string(d.Type),
			"source":  d.Source,
		})
	}
	return found, nil
}

func (s *Scanner) scanLocation(logger lager.Logger, loc Location, enc encoding.Encoding) ([]*migration.Descriptor, error) {
	info, err := os.Stat(loc.Path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info(messages.ScannedLocation, lager.Data{"location": loc.String(), "missing": true})
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scripts location %s is not a directory", loc.Path)
	}

	suffix := ScriptSuffix(s.Backend)
	var resources []Resource
	err = fs.WalkDir(os.DirFS(loc.Path), ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		resources = append(resources, NewResource(loc.Path, p))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", loc.Path, err)
	}

	var out []*migration.Descriptor
	for _, r := range resources {
		v, desc, ok, err := ParseFilename(r.Filename(), suffix)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		d, err := s.load(r, v, desc, enc)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}

	logger.Info(messages.ScannedLocation, lager.Data{"location": loc.String(), "migrations": len(out)})
	return out, nil
}

func (s *Scanner) load(r Resource, v version.Version, desc string, enc encoding.Encoding) (*migration.Descriptor, error) {
	raw, err := r.Read()
	if err != nil {
		return nil, err
	}
	text, err := Decode(raw, enc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", r.Path(), err)
	}
	stmts, err := SplitStatements(text, s.Backend)
	if err != nil {
		return nil, fmt.Errorf("failed to split %s: %w", r.Path(), err)
	}

	return &migration.Descriptor{
		Version:     v,
		Description: desc,
		Type:        scriptType(s.Backend),
		Checksum:    Checksum(text),
		Script:      migration.Statements(stmts),
		Source:      filepath.ToSlash(r.Path()),
	}, nil
}

func (gm GoMigration) descriptor() (*migration.Descriptor, error) {
	v, err := version.Parse(gm.Version)
	if err != nil {
		return nil, fmt.Errorf("invalid version for Go migration %q: %w", gm.Description, err)
	}
	if gm.Up == nil {
		return nil, fmt.Errorf("migration %s has no Up function", v)
	}
	return &migration.Descriptor{
		Version:     v,
		Description: gm.Description,
		Type:        migration.TypeGo,
		Checksum:    0,
		Script:      gm.Up,
		Source:      "go:" + v.String(),
	}, nil
}
