package crawler

import (
	"errors"
	"fmt"
)

// RunStatus is the final status code of a run.
type RunStatus string

// Run status codes. The first three are written to the run log; the failure
// codes only surface on the returned error because a failed run writes no row.
const (
	StatusSucceeded                 RunStatus = "succeeded"
	StatusDeniedByTarget            RunStatus = "denied_by_target"
	StatusFieldExtractionIncomplete RunStatus = "field_extraction_incomplete"
	StatusTransportFailure          RunStatus = "transport_failure"
	StatusPersistenceFailure        RunStatus = "persistence_failure"
	StatusSecretFailure             RunStatus = "secret_failure"
	StatusInternalFailure           RunStatus = "internal_failure"
)

// Sentinel errors wrapped by fatal failures.
var (
	ErrTransport   = errors.New("transport failure")
	ErrPersistence = errors.New("persistence failure")
	ErrSecret      = errors.New("secret resolution failure")
	ErrInternal    = errors.New("internal failure")
)

// RunError is returned when a run aborts.
type RunError struct {
	Status  RunStatus
	Keyword string
	Err     error
}

// NewRunError classifies err by the sentinel it wraps.
func NewRunError(keyword string, err error) *RunError {
	return &RunError{Status: StatusFor(err), Keyword: keyword, Err: err}
}

func (e *RunError) Error() string {
	if e.Keyword == "" {
		return fmt.Sprintf("run aborted (%s): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("run aborted on keyword %q (%s): %v", e.Keyword, e.Status, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// StatusFor maps an error to its run status code.
func StatusFor(err error) RunStatus {
	var runErr *RunError
	switch {
	case err == nil:
		return StatusSucceeded
	case errors.As(err, &runErr):
		return runErr.Status
	case errors.Is(err, ErrSecret):
		return StatusSecretFailure
	case errors.Is(err, ErrPersistence):
		return StatusPersistenceFailure
	case errors.Is(err, ErrInternal):
		return StatusInternalFailure
	default:
		return StatusTransportFailure
	}
}

// Transport wraps err as a transport failure.
func Transport(err error) error {
	return fmt.Errorf("%w: %w", ErrTransport, err)
}

// Internal wraps err as a failure that is neither network nor storage, such
// as an unbuildable search URL or an unparsable document.
func Internal(err error) error {
	return fmt.Errorf("%w: %w", ErrInternal, err)
}

// Persistence wraps err as a persistence failure.
func Persistence(err error) error {
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}
