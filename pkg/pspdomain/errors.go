// Package pspdomain holds the error-kind taxonomy shared by every component,
// following the donor's package-level sentinel-error convention
// (internal/audit/domain.ErrInvalidOrganization and siblings) rather than
// bespoke error types per package.
package pspdomain

import "errors"

// Error kinds from the error handling design. Components wrap these with
// fmt.Errorf("%w: ...") for detail; callers inspect with errors.Is.
var (
	// ErrInvalidInput: amount <= 0, same debit/credit, bad enum value. Reject
	// caller; no side effects; no retry.
	ErrInvalidInput = errors.New("psp: invalid input")

	// ErrNotFound: referenced id does not exist for this tenant.
	ErrNotFound = errors.New("psp: not found")

	// ErrBadState: instruction/settlement/pay-run in the wrong state for the
	// requested operation.
	ErrBadState = errors.New("psp: bad state")

	// ErrProvider: a rail adapter raised or returned failure.
	ErrProvider = errors.New("psp: provider error")

	// ErrStorage: a database error. Caller should abort and may retry.
	ErrStorage = errors.New("psp: storage failure")

	// ErrInvariantViolation: a CHECK/trigger rejected an illegal mutation.
	// Treated as a bug, never expected in normal operation.
	ErrInvariantViolation = errors.New("psp: invariant violation")
)
