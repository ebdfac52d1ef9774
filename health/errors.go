package health

import "errors"

var (
	// ErrCheckFailed indicates a health check failed.
	ErrCheckFailed = errors.New("health: check failed")

	// ErrCheckTimeout indicates a health check exceeded its deadline.
	ErrCheckTimeout = errors.New("health: check timed out")

	// ErrCheckerNotFound indicates a checker was not found.
	ErrCheckerNotFound = errors.New("health: checker not registered")

	// ErrNoCheckers indicates an aggregator's Checker() was invoked
	// with nothing registered — e.g. before NewPipelineChecker has
	// been added, or after the last checker was unregistered.
	ErrNoCheckers = errors.New("health: no checkers registered")
)
