/*
Package leave provides the leave request lifecycle and balance-accounting engine.

PURPOSE:
  Employees apply for leave against one annual allocation. HR decides each
  request. The engine owns the rules for when a request may be created or
  transitioned, and how the remaining balance is derived at each step.

KEY CONCEPTS IN THIS FILE (types.go):
  - Employee: identity, joining date, HR flag, annual allocation
  - LeaveRequest: a dated request with a frozen day-count and a status
  - Status: PENDING -> APPROVED | REJECTED (both terminal)
  - Balance: allocation minus approved days in a calendar year (derived)

DESIGN PRINCIPLES:
  1. Derived balance: consumed days are summed from APPROVED requests on
     every read. There is no running counter on the employee.
  2. Frozen day-count: Days is computed once at apply time and persisted.
  3. Same shape, two roles: the subject and the approver are both Employees.

SEE ALSO:
  - lifecycle.go: The state machine
  - ledger.go: Balance derivation
  - store.go: Persistence contract
*/
package leave

import (
	"strings"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type RequestID string

// =============================================================================
// EMPLOYEE
// =============================================================================

// DefaultAnnualAllocation is used when registration omits an allocation.
const DefaultAnnualAllocation = 18

// Employee is both the subject of a leave request and, when HR is set,
// a possible approver.
type Employee struct {
	ID               EmployeeID
	Name             string
	Email            string
	Department       string
	JoiningDate      time.Time
	HR               bool
	AnnualAllocation int
	CreatedAt        time.Time
}

// NewEmployee is the input to Directory.Create.
type NewEmployee struct {
	Name             string
	Email            string
	Department       string
	JoiningDate      time.Time
	HR               bool
	AnnualAllocation int
}

// =============================================================================
// LEAVE REQUEST
// =============================================================================

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// ParseStatus accepts any letter case. Blank input is not a status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusPending, StatusApproved, StatusRejected:
		return st, nil
	}
	return "", invalidf("invalid status: %s", s)
}

type Type string

const (
	TypeAnnual Type = "ANNUAL"
	TypeSick   Type = "SICK"
	TypeUnpaid Type = "UNPAID"
)

// ParseType maps blank input to TypeAnnual.
func ParseType(s string) (Type, error) {
	if strings.TrimSpace(s) == "" {
		return TypeAnnual, nil
	}
	switch t := Type(strings.ToUpper(strings.TrimSpace(s))); t {
	case TypeAnnual, TypeSick, TypeUnpaid:
		return t, nil
	}
	return "", invalidf("invalid leave type: %s", s)
}

// LeaveRequest is one request for a contiguous range of days.
type LeaveRequest struct {
	ID         RequestID
	EmployeeID EmployeeID
	Type       Type
	Status     Status

	StartDate time.Time
	EndDate   time.Time

	// Days is fixed at creation. It is the unit counted toward the
	// balance once the request is APPROVED.
	Days int

	Reason string

	// Set only when the request is decided.
	ApproverID   *EmployeeID
	DecisionNote *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Overlaps reports whether [start, end] intersects the request's range,
// endpoints included.
func (r *LeaveRequest) Overlaps(start, end time.Time) bool {
	return !r.EndDate.Before(start) && !r.StartDate.After(end)
}

// ApplyInput is the input to Lifecycle.Apply.
type ApplyInput struct {
	EmployeeID EmployeeID
	StartDate  time.Time
	EndDate    time.Time
	Reason     string
	Type       string
}

// DecisionInput is the input to Lifecycle.Approve and Lifecycle.Reject.
type DecisionInput struct {
	LeaveID    RequestID
	ApproverID EmployeeID
	Note       string
}

// =============================================================================
// BALANCE AND PROJECTIONS
// =============================================================================

// Balance is an employee's standing for one calendar year. Always derived.
type Balance struct {
	EmployeeID EmployeeID
	Year       int
	Allocation int
	Consumed   int
	Remaining  int
}

// LeaveDetail is a request with its employee and approver resolved.
type LeaveDetail struct {
	LeaveRequest
	EmployeeName string
	Department   string
	ApproverName string
}

// Page is one page of a listing.
type Page struct {
	Items []LeaveDetail
	Page  int
	Size  int
	Total int
}
