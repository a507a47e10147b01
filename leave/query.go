package leave

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// =============================================================================
// QUERY - Read-only projections of leave requests
// =============================================================================

// MaxPageSize bounds ListQuery.Size.
const MaxPageSize = 200

// ListQuery selects one page of requests. Blank Status and EmployeeID do
// not filter.
type ListQuery struct {
	Status     string
	EmployeeID EmployeeID
	Page       int
	Size       int
}

type Query struct {
	store Store
}

func NewQuery(store Store) *Query {
	return &Query{store: store}
}

// Get returns the request with employee and approver names resolved.
func (q *Query) Get(ctx context.Context, id RequestID) (*LeaveDetail, error) {
	r, err := q.store.GetRequest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	if r == nil {
		return nil, notFoundf("leave not found: %s", id)
	}
	d, err := q.project(ctx, []LeaveRequest{*r})
	if err != nil {
		return nil, err
	}
	return &d[0], nil
}

// List returns requests newest first.
func (q *Query) List(ctx context.Context, lq ListQuery) (*Page, error) {
	if lq.Page < 0 {
		return nil, invalidf("page must be >= 0")
	}
	if lq.Size <= 0 || lq.Size > MaxPageSize {
		return nil, invalidf("size must be between 1 and %d", MaxPageSize)
	}

	if lq.Page > (math.MaxInt-lq.Size)/lq.Size {
		return nil, invalidf("page %d is out of range for size %d", lq.Page, lq.Size)
	}

	filter := RequestFilter{
		Offset: lq.Page * lq.Size,
		Limit:  lq.Size,
	}
	if strings.TrimSpace(lq.Status) != "" {
		st, err := ParseStatus(lq.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = &st
	}
	if lq.EmployeeID != "" {
		id := lq.EmployeeID
		filter.EmployeeID = &id
	}

	rows, total, err := q.store.ListRequests(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	items, err := q.project(ctx, rows)
	if err != nil {
		return nil, err
	}
	return &Page{Items: items, Page: lq.Page, Size: lq.Size, Total: total}, nil
}

// project resolves names, looking each employee up once.
func (q *Query) project(ctx context.Context, rows []LeaveRequest) ([]LeaveDetail, error) {
	seen := make(map[EmployeeID]*Employee)
	lookup := func(id EmployeeID) (*Employee, error) {
		if e, ok := seen[id]; ok {
			return e, nil
		}
		e, err := q.store.GetEmployee(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to get employee: %w", err)
		}
		seen[id] = e
		return e, nil
	}

	out := make([]LeaveDetail, 0, len(rows))
	for _, r := range rows {
		d := LeaveDetail{LeaveRequest: r}
		emp, err := lookup(r.EmployeeID)
		if err != nil {
			return nil, err
		}
		if emp != nil {
			d.EmployeeName = emp.Name
			d.Department = emp.Department
		}
		if r.ApproverID != nil {
			approver, err := lookup(*r.ApproverID)
			if err != nil {
				return nil, err
			}
			if approver != nil {
				d.ApproverName = approver.Name
			}
		}
		out = append(out, d)
	}
	return out, nil
}
