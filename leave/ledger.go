/*
ledger.go - Derived leave balance

PURPOSE:
  The Ledger answers "how many approved days has this employee used in
  this year" by summing the persisted day-counts of APPROVED requests.
  It keeps no state of its own, so the balance can never drift from the
  individual decisions it is built from.

YEAR WINDOW:
  Requests are attributed to the calendar year of their start date. A
  request from Dec 30 to Jan 2 counts 4 days against the earlier year.

EXAMPLE FLOW:
  1. Employee allocation: 18
  2. Request A (5 days, March) approved
  3. Request B (3 days, April) pending
  4. Request C (2 days, May) rejected

  Standing(2025) = {Allocation: 18, Consumed: 5, Remaining: 13}

SEE ALSO:
  - lifecycle.go: Calls Standing at apply time and again at approval time
*/
package leave

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// LEDGER - Pure read over persisted request state
// =============================================================================

type Ledger struct {
	store RequestStore
}

func NewLedger(store RequestStore) *Ledger {
	return &Ledger{store: store}
}

// ApprovedDaysInYear sums Days over the employee's APPROVED requests whose
// start date is in [yearStart, yearEnd].
func (l *Ledger) ApprovedDaysInYear(ctx context.Context, employeeID EmployeeID, yearStart, yearEnd time.Time) (int, error) {
	days, err := l.store.SumApprovedDays(ctx, employeeID, DateOf(yearStart), DateOf(yearEnd))
	if err != nil {
		return 0, fmt.Errorf("failed to sum approved days: %w", err)
	}
	return days, nil
}

// Standing computes the employee's balance for the calendar year of anchor,
// using the allocation carried by e.
func (l *Ledger) Standing(ctx context.Context, e *Employee, anchor time.Time) (Balance, error) {
	consumed, err := l.ApprovedDaysInYear(ctx, e.ID, YearStart(anchor), YearEnd(anchor))
	if err != nil {
		return Balance{}, err
	}
	return Balance{
		EmployeeID: e.ID,
		Year:       anchor.Year(),
		Allocation: e.AnnualAllocation,
		Consumed:   consumed,
		Remaining:  e.AnnualAllocation - consumed,
	}, nil
}
