package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrBackendUnavailable covers storage connectivity and timeout failures.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrNoNodeAvailable means no node of the service is eligible.
	ErrNoNodeAvailable = errors.New("no node available")
	// ErrClaimConflict means the node stopped being eligible between selection and claim.
	ErrClaimConflict = errors.New("node claim conflict")
	// ErrAlreadyAssigned is returned by AllocateNode when the user already has a node.
	ErrAlreadyAssigned = errors.New("node already assigned")
	// ErrDuplicateAssignment is the storage-level uniqueness violation on (email, service).
	ErrDuplicateAssignment = errors.New("duplicate assignment")
	// ErrDuplicateMetadata is the storage-level uniqueness violation on (service, name).
	ErrDuplicateMetadata = errors.New("duplicate metadata")
	// ErrNodeNotFound means no node row matches (service, node).
	ErrNodeNotFound = errors.New("node not found")
	// ErrNotFound means the requested record is absent.
	ErrNotFound = errors.New("not found")
	// ErrUnknownService means no backend is configured for the service.
	ErrUnknownService = errors.New("unknown service")
	// ErrInvalidArgument rejects empty identities and malformed input.
	ErrInvalidArgument = errors.New("invalid argument")
)

// BackendError wraps a storage failure. The driver error is kept for
// logging only and is not reachable through errors.Unwrap.
type BackendError struct {
	Op    string
	cause string
}

// NewBackendError builds a BackendError for op from a raw storage error.
func NewBackendError(op string, err error) *BackendError {
	cause := "unknown"
	if err != nil {
		cause = err.Error()
	}
	return &BackendError{Op: op, cause: cause}
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrBackendUnavailable, e.Op, e.cause)
}

func (e *BackendError) Unwrap() error { return ErrBackendUnavailable }
