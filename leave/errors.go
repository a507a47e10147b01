/*
errors.go - Error kinds for the leave engine

PURPOSE:
  Every failure the engine reports belongs to exactly one kind. The
  presentation layer maps kinds to transport codes; the engine never
  deals in HTTP statuses.

ERROR KINDS:
  ErrNotFound       - employee or leave request does not exist
  ErrInvalidRequest - malformed input, bad range, joining-date violation,
                      insufficient balance at apply time, bad filter/page
  ErrConflict       - duplicate email, overlapping window, deciding a
                      non-PENDING request, insufficient balance at approval
  ErrForbidden      - non-HR decider, self-approval

USAGE:
  if errors.Is(err, leave.ErrConflict) { ... }

  var ib *leave.InsufficientBalanceError
  if errors.As(err, &ib) { fmt.Println(ib.Remaining, ib.Requested) }

SEE ALSO:
  - api/errors.go: Kind to HTTP status mapping
*/
package leave

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrConflict       = errors.New("conflict")
	ErrForbidden      = errors.New("forbidden")

	// ErrConcurrentModification is returned by a store when a transition's
	// compare-and-set finds the request no longer in the expected status.
	ErrConcurrentModification = &Error{Kind: ErrConflict, Message: "concurrent modification detected"}

	// ErrEmailTaken is returned by a store when the unique email index rejects
	// an insert.
	ErrEmailTaken = &Error{Kind: ErrConflict, Message: "email already exists"}
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// Error is a failure of a known kind with a caller-facing message.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Kind }

func notFoundf(format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

func invalidf(format string, args ...any) error {
	return &Error{Kind: ErrInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

func conflictf(format string, args ...any) error {
	return &Error{Kind: ErrConflict, Message: fmt.Sprintf(format, args...)}
}

func forbiddenf(format string, args ...any) error {
	return &Error{Kind: ErrForbidden, Message: fmt.Sprintf(format, args...)}
}

// InsufficientBalanceError reports a request that does not fit the
// remaining balance of its start year.
type InsufficientBalanceError struct {
	EmployeeID EmployeeID
	Year       int
	Remaining  int
	Requested  int

	// AtApproval is set when the shortfall was found while approving.
	// It is a Conflict there and an InvalidRequest at apply time.
	AtApproval bool
}

func (e *InsufficientBalanceError) Error() string {
	if e.AtApproval {
		return fmt.Sprintf("insufficient balance at approval time: remaining=%d, requested=%d",
			e.Remaining, e.Requested)
	}
	return fmt.Sprintf("insufficient balance: remaining=%d, requested=%d", e.Remaining, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error {
	if e.AtApproval {
		return ErrConflict
	}
	return ErrInvalidRequest
}

// OverlapError reports an existing PENDING or APPROVED request of the same
// employee intersecting the requested range.
type OverlapError struct {
	EmployeeID EmployeeID
	StartDate  time.Time
	EndDate    time.Time
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("overlapping leave exists for %s in %s..%s",
		e.EmployeeID, FormatDate(e.StartDate), FormatDate(e.EndDate))
}

func (e *OverlapError) Unwrap() error { return ErrConflict }

// =============================================================================
// ERROR HELPERS
// =============================================================================

func IsNotFound(err error) bool  { return errors.Is(err, ErrNotFound) }
func IsInvalid(err error) bool   { return errors.Is(err, ErrInvalidRequest) }
func IsConflict(err error) bool  { return errors.Is(err, ErrConflict) }
func IsForbidden(err error) bool { return errors.Is(err, ErrForbidden) }

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
