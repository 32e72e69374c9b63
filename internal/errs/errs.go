// Package errs defines the error categories shared by the ledger packages.
// Callers wrap these with fmt.Errorf("...: %w", ...) and test with errors.Is.
package errs

import "errors"

var (
	// ErrNotFound reports a missing session, branch, or ref.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput reports a value that failed validation, such as an
	// unknown tracking policy.
	ErrInvalidInput = errors.New("invalid input")

	// ErrPreconditionFailed reports an operation attempted against state that
	// does not allow it, such as updating a session that was never opened.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrUpstreamTool reports a failing external tool invocation (git).
	ErrUpstreamTool = errors.New("upstream tool failure")
)
