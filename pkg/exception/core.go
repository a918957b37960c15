package exception

import "errors"

// Position store errors. Trigger/mode mismatches are programming errors, not
// recoverable runtime conditions.
var (
	ErrCapitalAlreadySeeded   = errors.New("position: initial capital already seeded")
	ErrCapitalNotSeeded       = errors.New("position: initial capital not seeded")
	ErrTriggerModeMismatch    = errors.New("position: trigger invalid for run mode")
	ErrTriggerMissingDeltas   = errors.New("position: trigger requires deltas")
	ErrTriggerUnknown         = errors.New("position: unknown trigger")
	ErrConcurrentApply        = errors.New("position: concurrent apply detected")
	ErrResultAlreadySettled   = errors.New("reconcile: execution result already settled")
	ErrRefreshWhilePending    = errors.New("reconcile: refresh overlaps pending settlement")
	ErrReconciliationMismatch = errors.New("reconcile: balance drift beyond tolerance")
)

// Engine and health errors.
var (
	ErrSystemFailure      = errors.New("health: system failure, instance must restart")
	ErrEngineNotSeeded    = errors.New("engine: run started without initial capital")
	ErrEngineStopped      = errors.New("engine: stop requested")
	ErrSinkQueueFull      = errors.New("sink: queue full")
	ErrSinkClosed         = errors.New("sink: queue closed")
	ErrResultsStoreClosed = errors.New("results: store closed")
)
