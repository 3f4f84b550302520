// Package engine ties discovery output, the ledger, the planner and the
// executor together into the operations exposed by the command line.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"code.cloudfoundry.org/lager/v3"

	"github.com/lockplane/ksmigrate/internal/config"
	"github.com/lockplane/ksmigrate/internal/executor"
	"github.com/lockplane/ksmigrate/internal/keyspace"
	"github.com/lockplane/ksmigrate/internal/ledger"
	"github.com/lockplane/ksmigrate/internal/messages"
	"github.com/lockplane/ksmigrate/internal/migration"
	"github.com/lockplane/ksmigrate/internal/planner"
)

// Engine runs migrations for one keyspace.
type Engine struct {
	Session     keyspace.Session
	Store       ledger.Store
	Options     planner.Options
	InstalledBy string

	// Clock defaults to time.Now.
	Clock  func() time.Time
	Logger lager.Logger
}

// New builds an Engine from a resolved configuration.
func New(session keyspace.Session, store ledger.Store, cfg config.Configuration, logger lager.Logger) *Engine {
	return &Engine{
		Session: session,
		Store:   store,
		Options: planner.Options{
			Target:          cfg.Target,
			AllowOutOfOrder: cfg.AllowOutOfOrder,
		},
		InstalledBy: cfg.Ledger.InstalledBy,
		Logger:      logger,
	}
}

func (e *Engine) logger() lager.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return lager.NewLogger("ksmigrate")
}

func (e *Engine) now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

// Initialize makes sure the ledger table exists. It is safe to call on every
// run.
func Initialize(ctx context.Context, store ledger.Store, logger lager.Logger) error {
	logger = logger.Session("initialize")
	logger.Debug(messages.Starting)
	defer logger.Debug(messages.Finished)

	if err := store.EnsureInitialized(ctx); err != nil {
		var incompatible *ledger.IncompatibleTableError
		if errors.As(err, &incompatible) {
			logger.Error(messages.ErrIncompatibleTable, err, lager.Data{"missing": incompatible.Missing})
		} else {
			logger.Error(messages.ErrFailedToCreateTable, err)
		}
		return err
	}
	return nil
}

// load initializes the store and reads a ledger snapshot.
func (e *Engine) load(ctx context.Context) (*ledger.Ledger, error) {
	logger := e.logger()
	if err := Initialize(ctx, e.Store, logger); err != nil {
		return nil, err
	}
	l, err := e.Store.Load(ctx)
	if err != nil {
		logger.Error(messages.ErrFailedToLoadLedger, err)
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	logger.Debug(messages.LoadedLedger, lager.Data{
		"records": l.Len(),
		"current": l.CurrentVersion().String(),
		"dirty":   l.IsDirty(),
	})
	return l, nil
}

// Plan returns what Migrate would execute, without executing it.
func (e *Engine) Plan(ctx context.Context, candidates []*migration.Descriptor) (*planner.Plan, error) {
	l, err := e.load(ctx)
	if err != nil {
		return nil, err
	}
	return e.build(candidates, l)
}

func (e *Engine) build(candidates []*migration.Descriptor, l *ledger.Ledger) (*planner.Plan, error) {
	logger := e.logger().Session("plan", lager.Data{
		"candidates":   len(candidates),
		"target":       e.Options.Target.String(),
		"out_of_order": e.Options.AllowOutOfOrder,
	})
	plan, err := planner.Build(candidates, l, e.Options)
	if err != nil {
		logger.Error(messages.ErrFailedToBuildPlan, err)
		return nil, err
	}
	logger.Debug(messages.BuiltPlan, lager.Data{"planned": plan.Len()})
	return plan, nil
}

// Migrate applies every pending migration up to the target. The run stops
// at the first failing migration; the returned result lists what was
// recorded before it.
func (e *Engine) Migrate(ctx context.Context, candidates []*migration.Descriptor) (*executor.ExecutionResult, error) {
	plan, err := e.Plan(ctx, candidates)
	if err != nil {
		return nil, err
	}
	if plan.Empty() {
		e.logger().Info(messages.NothingToMigrate)
		return &executor.ExecutionResult{Success: true, Records: []migration.Record{}}, nil
	}

	exec := &executor.Executor{
		Session:     e.Session,
		Store:       e.Store,
		InstalledBy: e.InstalledBy,
		Clock:       e.Clock,
		Logger:      e.logger(),
	}
	return exec.Run(ctx, plan)
}

// Validate runs the planning checks against the ledger without executing
// anything. It returns the plan that a migrate would execute.
func (e *Engine) Validate(ctx context.Context, candidates []*migration.Descriptor) (*planner.Plan, error) {
	plan, err := e.Plan(ctx, candidates)
	if err != nil {
		e.logger().Info(messages.ErrValidationFailed, lager.Data{"error": err.Error()})
		return nil, err
	}
	return plan, nil
}

// Repair clears a dirty ledger by appending a REPAIR marker for the failed
// version. The failed record is kept. It reports false when the ledger was
// not dirty.
func (e *Engine) Repair(ctx context.Context) (migration.Record, bool, error) {
	logger := e.logger().Session("repair")

	l, err := e.load(ctx)
	if err != nil {
		return migration.Record{}, false, err
	}
	if !l.IsDirty() {
		logger.Info(messages.NothingToRepair)
		return migration.Record{}, false, nil
	}

	failed, _ := l.Last()
	marker := migration.Record{
		Version:     failed.Version,
		Description: failed.Description,
		Type:        migration.TypeRepair,
		Checksum:    failed.Checksum,
		InstalledBy: e.InstalledBy,
		InstalledOn: e.now(),
		Success:     true,
	}
	stored, err := e.Store.Append(ctx, marker)
	if err != nil {
		logger.Error(messages.ErrFailedToAppendRecord, err)
		return migration.Record{}, false, fmt.Errorf("failed to record repair of %s: %w", failed.Version, err)
	}

	logger.Info(messages.RepairedLedger, lager.Data{
		"version":     failed.Version.String(),
		"failed_rank": failed.Rank,
		"rank":        stored.Rank,
	})
	return stored, true, nil
}
