/*
store.go - Persistence contract for employees and leave requests

PURPOSE:
  Defines the interface between the engine and the database. The engine
  only ever reads and writes through these methods, so any backend that
  honours the contract (SQLite, in-memory) can host it.

KEY INTERFACES:
  EmployeeStore: create, lookup, email existence
  RequestStore:  create, lookup, transition, overlap, approved-day sum, list
  TxStore:       runs a callback against a transactional view of the store

NOT-FOUND CONVENTION:
  Get* methods return (nil, nil) when the row does not exist. The engine
  turns that into ErrNotFound with the id in the message.

TRANSITIONS:
  TransitionRequest is compare-and-set: it only writes when the stored
  status still equals `from`, and returns ErrConcurrentModification when it
  does not. Combined with WithTx this keeps two concurrent approvals of the
  same request from both committing.

IMPLEMENTATIONS:
  - leave/store/memory.go: In-memory, for tests and demos
  - store/sqlite/sqlite.go: SQLite with embedded migrations
*/
package leave

import (
	"context"
	"time"
)

// =============================================================================
// STORE INTERFACES
// =============================================================================

type EmployeeStore interface {
	// CreateEmployee inserts a new employee. Returns ErrEmailTaken when the
	// email is already registered.
	CreateEmployee(ctx context.Context, e *Employee) error

	GetEmployee(ctx context.Context, id EmployeeID) (*Employee, error)

	EmailExists(ctx context.Context, email string) (bool, error)
}

type RequestStore interface {
	CreateRequest(ctx context.Context, r *LeaveRequest) error

	GetRequest(ctx context.Context, id RequestID) (*LeaveRequest, error)

	// TransitionRequest persists status, approver, note and UpdatedAt of r
	// if the stored status is still `from`.
	TransitionRequest(ctx context.Context, r *LeaveRequest, from Status) error

	// HasOverlap reports whether any request of the employee with one of
	// the given statuses satisfies end >= start AND start <= end.
	HasOverlap(ctx context.Context, employeeID EmployeeID, statuses []Status, start, end time.Time) (bool, error)

	// SumApprovedDays sums Days over APPROVED requests of the employee whose
	// StartDate lies in [from, to]. Zero when nothing matches.
	SumApprovedDays(ctx context.Context, employeeID EmployeeID, from, to time.Time) (int, error)

	// ListRequests returns one page of matching requests ordered by
	// CreatedAt descending (ties in insertion order) and the total number
	// of matches.
	ListRequests(ctx context.Context, filter RequestFilter) ([]LeaveRequest, int, error)
}

// RequestFilter selects requests for ListRequests. Nil fields do not filter.
type RequestFilter struct {
	Status     *Status
	EmployeeID *EmployeeID
	Offset     int
	Limit      int
}

// Store is the full persistence surface used by the engine.
type Store interface {
	EmployeeStore
	RequestStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
