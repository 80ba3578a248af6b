package mirror

import (
	"errors"
	"fmt"
)

var (
	// ErrRemoteUnavailable means the remote service could not be reached.
	// Retryable at the run level; already-synced files are unaffected.
	ErrRemoteUnavailable = errors.New("mirror: remote unavailable")

	// ErrRemoteAuth means the link or credentials were rejected. Fatal;
	// the run aborts before any action executes.
	ErrRemoteAuth = errors.New("mirror: remote auth rejected")

	// ErrRemoteInconsistent means the remote listing contradicted itself
	// (duplicate path, revisit, or a kind conflict). Fatal for the
	// affected subtree only.
	ErrRemoteInconsistent = errors.New("mirror: remote listing inconsistent")

	// ErrIntegrity means downloaded bytes did not match the expected
	// fingerprint. Retried with backoff before being recorded as failed.
	ErrIntegrity = errors.New("mirror: content verification failed")

	// ErrManifestCorrupt means the persisted manifest could not be read.
	// Policy is to back it up and start empty (full re-sync), not abort.
	ErrManifestCorrupt = errors.New("mirror: manifest corrupt")

	// ErrLocked means another run holds the mirror lock.
	ErrLocked = errors.New("mirror: locked by another process")
)

// ActionError records a single failed action: path plus error kind, enough
// detail to retry selectively.
type ActionError struct {
	Path string
	Op   ActionOp
	Err  error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// errKind maps an error onto the taxonomy name used in reports.
func errKind(err error) string {
	switch {
	case errors.Is(err, ErrRemoteAuth):
		return "RemoteAuthError"
	case errors.Is(err, ErrRemoteUnavailable):
		return "RemoteUnavailable"
	case errors.Is(err, ErrRemoteInconsistent):
		return "RemoteInconsistent"
	case errors.Is(err, ErrIntegrity):
		return "IntegrityError"
	case errors.Is(err, ErrManifestCorrupt):
		return "ManifestCorrupt"
	default:
		return "LocalIOError"
	}
}

// retryable reports whether a fetch failure is worth another attempt.
// Auth rejections and local filesystem errors are not.
func retryable(err error) bool {
	return errors.Is(err, ErrIntegrity) || errors.Is(err, ErrRemoteUnavailable)
}
