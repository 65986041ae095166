package services

import "fmt"

// ValidationError rejects bad input before anything is persisted
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// UpstreamFetchError wraps a failed quote or option-chain fetch. It is
// caught at the scheduler boundary and recorded as a per-symbol failure;
// it never crashes the process.
type UpstreamFetchError struct {
	Symbol string
	Err    error
}

func (e *UpstreamFetchError) Error() string {
	return fmt.Sprintf("upstream fetch failed for %s: %v", e.Symbol, e.Err)
}

func (e *UpstreamFetchError) Unwrap() error {
	return e.Err
}

// PersistenceError wraps a failed snapshot write. It is fatal for the
// tick that produced it and must propagate to the caller.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports a missing collaborator or data store.
// Refreshes cannot proceed until the configuration is fixed, so it is
// surfaced immediately rather than retried.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return e.Msg
}
