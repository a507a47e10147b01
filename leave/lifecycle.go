/*
lifecycle.go - Leave request state machine

PURPOSE:
  Creates leave requests and moves them from PENDING to a terminal state.
  Every call runs in one store transaction, so the checks and the write
  see the same data.

STATE MACHINE:
  PENDING ──approve──> APPROVED (terminal)
     └─────reject────> REJECTED (terminal)

APPLY VALIDATION ORDER (first failure wins):
  1. employee exists                               NotFound
  2. both dates present                            InvalidRequest
  3. end >= start                                  InvalidRequest
  4. start >= joining date                         InvalidRequest
  5. known type, reason within MaxReasonLength     InvalidRequest
  6. no PENDING/APPROVED overlap                   Conflict
  7. days = inclusive day count
  8. remaining = allocation - approved in start year
  9. days <= remaining                             InvalidRequest

APPROVAL:
  The balance is checked again when approving. Two requests can both be
  PENDING against the same remaining days; only the approvals that still
  fit are allowed through. Days are only "spent" by the APPROVED status.

  Self-approval is forbidden. Self-rejection is not.

SEE ALSO:
  - ledger.go: Balance derivation shared by apply, approve and Balance
  - store.go: TransitionRequest compare-and-set
*/
package leave

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// MaxReasonLength bounds the free-text reason on a request.
const MaxReasonLength = 200

// blockingStatuses are the statuses that reserve a date range.
var blockingStatuses = []Status{StatusPending, StatusApproved}

// =============================================================================
// LIFECYCLE
// =============================================================================

type Lifecycle struct {
	store  TxStore
	clock  Clock
	ids    IDGenerator
	logger *zap.Logger
}

func NewLifecycle(store TxStore, opts ...Option) *Lifecycle {
	o := newOptions(opts)
	return &Lifecycle{
		store:  store,
		clock:  o.clock,
		ids:    o.ids,
		logger: o.logger.Named("leave.lifecycle"),
	}
}

// Apply creates a PENDING request after running the apply checks in order.
func (l *Lifecycle) Apply(ctx context.Context, in ApplyInput) (*LeaveRequest, error) {
	log := l.logger.With(zap.String("employee_id", string(in.EmployeeID)))
	log.Debug("apply leave start",
		zap.Time("start_date", in.StartDate),
		zap.Time("end_date", in.EndDate),
		zap.String("type", in.Type),
	)

	var created *LeaveRequest
	err := l.store.WithTx(ctx, func(tx Store) error {
		emp, err := NewDirectory(tx).GetOrFail(ctx, in.EmployeeID)
		if err != nil {
			return err
		}

		if in.StartDate.IsZero() || in.EndDate.IsZero() {
			return invalidf("startDate and endDate are required")
		}
		start, end := DateOf(in.StartDate), DateOf(in.EndDate)
		if end.Before(start) {
			return invalidf("endDate must be >= startDate")
		}
		if start.Before(emp.JoiningDate) {
			return invalidf("startDate %s is before joining date %s",
				FormatDate(start), FormatDate(emp.JoiningDate))
		}

		leaveType, err := ParseType(in.Type)
		if err != nil {
			return err
		}
		if len([]rune(in.Reason)) > MaxReasonLength {
			return invalidf("reason must be at most %d characters", MaxReasonLength)
		}

		overlap, err := tx.HasOverlap(ctx, emp.ID, blockingStatuses, start, end)
		if err != nil {
			return fmt.Errorf("failed to check overlap: %w", err)
		}
		if overlap {
			return &OverlapError{EmployeeID: emp.ID, StartDate: start, EndDate: end}
		}

		days, err := InclusiveDays(start, end)
		if err != nil {
			return err
		}

		standing, err := NewLedger(tx).Standing(ctx, emp, start)
		if err != nil {
			return err
		}
		if days > standing.Remaining {
			return &InsufficientBalanceError{
				EmployeeID: emp.ID,
				Year:       standing.Year,
				Remaining:  standing.Remaining,
				Requested:  days,
			}
		}

		now := l.clock.Now()
		r := &LeaveRequest{
			ID:         RequestID(l.ids.New()),
			EmployeeID: emp.ID,
			Type:       leaveType,
			Status:     StatusPending,
			StartDate:  start,
			EndDate:    end,
			Days:       days,
			Reason:     strings.TrimSpace(in.Reason),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.CreateRequest(ctx, r); err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		created = r
		return nil
	})
	if err != nil {
		l.logFailure(log, "apply leave", err)
		return nil, err
	}

	log.Info("apply leave success",
		zap.String("leave_id", string(created.ID)),
		zap.Int("days", created.Days),
	)
	return created, nil
}

// Approve moves a PENDING request to APPROVED.
func (l *Lifecycle) Approve(ctx context.Context, in DecisionInput) (*LeaveRequest, error) {
	return l.decide(ctx, in, StatusApproved)
}

// Reject moves a PENDING request to REJECTED. The approver may reject
// their own request.
func (l *Lifecycle) Reject(ctx context.Context, in DecisionInput) (*LeaveRequest, error) {
	return l.decide(ctx, in, StatusRejected)
}

func (l *Lifecycle) decide(ctx context.Context, in DecisionInput, to Status) (*LeaveRequest, error) {
	verb := "approve"
	if to == StatusRejected {
		verb = "reject"
	}
	log := l.logger.With(
		zap.String("leave_id", string(in.LeaveID)),
		zap.String("approver_id", string(in.ApproverID)),
	)
	log.Debug(verb + " leave start")

	var decided *LeaveRequest
	err := l.store.WithTx(ctx, func(tx Store) error {
		r, err := tx.GetRequest(ctx, in.LeaveID)
		if err != nil {
			return fmt.Errorf("failed to get request: %w", err)
		}
		if r == nil {
			return notFoundf("leave not found: %s", in.LeaveID)
		}
		if r.Status != StatusPending {
			return conflictf("only PENDING can be %s, current status is %s", pastTense(to), r.Status)
		}

		dir := NewDirectory(tx)
		approver, err := dir.GetOrFail(ctx, in.ApproverID)
		if err != nil {
			return err
		}
		if !approver.HR {
			return forbiddenf("approver %s is not HR", approver.ID)
		}

		if to == StatusApproved {
			if approver.ID == r.EmployeeID {
				return forbiddenf("self-approval not allowed")
			}
			subject, err := dir.GetOrFail(ctx, r.EmployeeID)
			if err != nil {
				return err
			}
			standing, err := NewLedger(tx).Standing(ctx, subject, r.StartDate)
			if err != nil {
				return err
			}
			if r.Days > standing.Remaining {
				return &InsufficientBalanceError{
					EmployeeID: subject.ID,
					Year:       standing.Year,
					Remaining:  standing.Remaining,
					Requested:  r.Days,
					AtApproval: true,
				}
			}
		}

		note := in.Note
		approverID := approver.ID
		r.Status = to
		r.ApproverID = &approverID
		r.DecisionNote = &note
		r.UpdatedAt = l.clock.Now()

		if err := tx.TransitionRequest(ctx, r, StatusPending); err != nil {
			if errors.Is(err, ErrConcurrentModification) {
				return err
			}
			return fmt.Errorf("failed to transition request: %w", err)
		}
		decided = r
		return nil
	})
	if err != nil {
		l.logFailure(log, verb+" leave", err)
		return nil, err
	}

	log.Info(verb+" leave success",
		zap.String("employee_id", string(decided.EmployeeID)),
		zap.String("status", string(decided.Status)),
		zap.Int("days", decided.Days),
	)
	return decided, nil
}

// Balance returns the employee's standing for the current calendar year.
func (l *Lifecycle) Balance(ctx context.Context, employeeID EmployeeID) (Balance, error) {
	emp, err := NewDirectory(l.store).GetOrFail(ctx, employeeID)
	if err != nil {
		return Balance{}, err
	}
	return NewLedger(l.store).Standing(ctx, emp, l.clock.Now())
}

// logFailure logs business-rule rejections at Warn and anything else at Error.
func (l *Lifecycle) logFailure(log *zap.Logger, op string, err error) {
	var known *Error
	var ib *InsufficientBalanceError
	var ov *OverlapError
	if errors.As(err, &known) || errors.As(err, &ib) || errors.As(err, &ov) {
		log.Warn(op+" rejected", zap.Error(err))
		return
	}
	log.Error(op+" failed", zap.Error(err))
}

func pastTense(s Status) string {
	if s == StatusRejected {
		return "rejected"
	}
	return "approved"
}
