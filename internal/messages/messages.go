// Package messages holds the lager message names logged by ksmigrate.
package messages

const (
	Starting = "starting"
	Finished = "finished"
	Success  = "success"
)

const (
	CreatedLedgerTable  = "created-ledger-table"
	LoadedLedger        = "loaded-ledger"
	AppendedRecord      = "appended-record"
	ScannedLocation     = "scanned-location"
	DiscoveredMigration = "discovered-migration"
	BuiltPlan           = "built-plan"
	NothingToMigrate    = "nothing-to-migrate"
	AppliedMigration    = "applied-migration"
	ApplyingOutOfOrder  = "applying-out-of-order"
	RepairedLedger      = "repaired-ledger"
	NothingToRepair     = "nothing-to-repair"
	StoppedByCancel     = "stopped-by-cancellation"
	RetryingConnection  = "retrying-connection"
)

const (
	ErrFailedToCreateTable     = "failed-to-create-ledger-table"
	ErrIncompatibleTable       = "incompatible-ledger-table"
	ErrFailedToLoadLedger      = "failed-to-load-ledger"
	ErrFailedToAppendRecord    = "failed-to-append-record"
	ErrFailedToBuildPlan       = "failed-to-build-plan"
	ErrFailedToApplyMigration  = "failed-to-apply-migration"
	ErrFailedToRecordMigration = "failed-to-record-migration"
	ErrFailedToScanLocation    = "failed-to-scan-location"
	ErrValidationFailed        = "validation-failed"
)
