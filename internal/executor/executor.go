// Package executor runs planned migrations one at a time and records every
// attempt in the ledger.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"code.cloudfoundry.org/lager/v3"

	"github.com/lockplane/ksmigrate/internal/keyspace"
	"github.com/lockplane/ksmigrate/internal/ledger"
	"github.com/lockplane/ksmigrate/internal/messages"
	"github.com/lockplane/ksmigrate/internal/migration"
	"github.com/lockplane/ksmigrate/internal/planner"
)

// ExecutionResult tracks the outcome of executing a plan
type ExecutionResult struct {
	Success           bool               `json:"success"`
	MigrationsApplied int                `json:"migrations_applied"`
	Records           []migration.Record `json:"records"`
	Errors            []string           `json:"errors,omitempty"`
}

// Executor applies migrations against a keyspace session.
type Executor struct {
	Session     keyspace.Session
	Store       ledger.Store
	InstalledBy string

	// Clock defaults to time.Now.
	Clock  func() time.Time
	Logger lager.Logger
}

func (e *Executor) now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

func (e *Executor) logger() lager.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return lager.NewLogger("ksmigrate")
}

// Execute applies one migration and appends its record. A migration is never
// interrupted once started, so the script and the ledger append ignore
// cancellation of ctx.
func (e *Executor) Execute(ctx context.Context, d *migration.Descriptor) (migration.Record, error) {
	logger := e.logger().Session("execute", lager.Data{
		"version":     d.Version.String(),
		"description": d.Description,
		"type":        string(d.Type),
	})
	logger.Debug(messages.Starting)

	runCtx := context.WithoutCancel(ctx)
	started := e.now()
	applyErr := d.Script.Apply(runCtx, e.Session)
	elapsed := e.now().Sub(started)

	record := migration.Record{
		Version:       d.Version,
		Description:   d.Description,
		Type:          d.Type,
		Checksum:      d.Checksum,
		InstalledBy:   e.InstalledBy,
		InstalledOn:   started,
		ExecutionTime: elapsed,
		Success:       applyErr == nil,
	}

	stored, err := e.Store.Append(runCtx, record)
	if err != nil {
		logger.Error(messages.ErrFailedToRecordMigration, err, lager.Data{"success": record.Success})
		if applyErr != nil {
			return record, &migration.MigrationExecutionError{Version: d.Version, Cause: errors.Join(applyErr, err)}
		}
		return record, fmt.Errorf("migration %s applied but could not be recorded: %w", d.Version, err)
	}

	if applyErr != nil {
		logger.Error(messages.ErrFailedToApplyMigration, applyErr, lager.Data{"rank": stored.Rank})
		return stored, &migration.MigrationExecutionError{Version: d.Version, Cause: applyErr}
	}

	logger.Info(messages.AppliedMigration, lager.Data{
		"rank":              stored.Rank,
		"execution_time_ms": elapsed.Milliseconds(),
	})
	return stored, nil
}

// Run executes the plan in order and stops at the first failure. Cancelling
// ctx stops the run between migrations.
func (e *Executor) Run(ctx context.Context, plan *planner.Plan) (*ExecutionResult, error) {
	logger := e.logger().Session("run", lager.Data{"planned": plan.Len()})
	result := &ExecutionResult{Success: true, Records: []migration.Record{}}

	for _, item := range plan.Items {
		if err := ctx.Err(); err != nil {
			logger.Info(messages.StoppedByCancel, lager.Data{"applied": result.MigrationsApplied})
			result.Success = false
			result.Errors = append(result.Errors, err.Error())
			return result, err
		}

		if item.Reason == planner.ReasonOutOfOrder {
			logger.Info(messages.ApplyingOutOfOrder, lager.Data{"version": item.Descriptor.Version.String()})
		}

		record, err := e.Execute(ctx, item.Descriptor)
		if record.Rank > 0 {
			result.Records = append(result.Records, record)
		}
		if err != nil {
			result.Success = false
			result.Errors = append(result.Errors, err.Error())
			return result, err
		}
		result.MigrationsApplied++
	}

	logger.Debug(messages.Finished, lager.Data{"applied": result.MigrationsApplied})
	return result, nil
}
