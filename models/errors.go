package models

import "errors"

// Error taxonomy shared by the pipeline. Callers wrap these with fmt.Errorf("%w")
// and test with errors.Is.
var (
	// ErrConfiguration means required credentials or settings are missing. Fatal.
	ErrConfiguration = errors.New("configuration error")

	// ErrData means upstream data was malformed or incomplete. Aborts the current cycle.
	ErrData = errors.New("data error")

	// ErrAdvisor means the advisor call or its response failed. Recovered by the
	// signal generator, never returned from it.
	ErrAdvisor = errors.New("advisor error")

	// ErrExecution means the exchange refused or failed an order submission. Not retried.
	ErrExecution = errors.New("execution error")
)
