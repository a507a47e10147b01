// Package store provides in-memory leave.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	employees map[leave.EmployeeID]leave.Employee
	emails    map[string]leave.EmployeeID
	// requests is kept in insertion order; index maps id to position.
	requests []leave.LeaveRequest
	index    map[leave.RequestID]int
}

func NewMemory() *Memory {
	return &Memory{
		employees: make(map[leave.EmployeeID]leave.Employee),
		emails:    make(map[string]leave.EmployeeID),
		index:     make(map[leave.RequestID]int),
	}
}

func (m *Memory) CreateEmployee(_ context.Context, e *leave.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createEmployeeLocked(e)
}

func (m *Memory) GetEmployee(_ context.Context, id leave.EmployeeID) (*leave.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getEmployeeLocked(id), nil
}

func (m *Memory) EmailExists(_ context.Context, email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.emails[email]
	return ok, nil
}

func (m *Memory) CreateRequest(_ context.Context, r *leave.LeaveRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createRequestLocked(r)
	return nil
}

func (m *Memory) GetRequest(_ context.Context, id leave.RequestID) (*leave.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRequestLocked(id), nil
}

func (m *Memory) TransitionRequest(_ context.Context, r *leave.LeaveRequest, from leave.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(r, from)
}

func (m *Memory) HasOverlap(_ context.Context, employeeID leave.EmployeeID, statuses []leave.Status, start, end time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hasOverlapLocked(employeeID, statuses, start, end), nil
}

func (m *Memory) SumApprovedDays(_ context.Context, employeeID leave.EmployeeID, from, to time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sumApprovedLocked(employeeID, from, to), nil
}

func (m *Memory) ListRequests(_ context.Context, f leave.RequestFilter) ([]leave.LeaveRequest, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items, total := m.listLocked(f)
	return items, total, nil
}

// ===== locked helpers, shared with the transactional view =====

func (m *Memory) createEmployeeLocked(e *leave.Employee) error {
	if _, ok := m.emails[e.Email]; ok {
		return leave.ErrEmailTaken
	}
	m.employees[e.ID] = *e
	m.emails[e.Email] = e.ID
	return nil
}

func (m *Memory) getEmployeeLocked(id leave.EmployeeID) *leave.Employee {
	e, ok := m.employees[id]
	if !ok {
		return nil
	}
	return &e
}

func (m *Memory) createRequestLocked(r *leave.LeaveRequest) {
	m.index[r.ID] = len(m.requests)
	m.requests = append(m.requests, cloneRequest(*r))
}

func (m *Memory) getRequestLocked(id leave.RequestID) *leave.LeaveRequest {
	i, ok := m.index[id]
	if !ok {
		return nil
	}
	r := cloneRequest(m.requests[i])
	return &r
}

func (m *Memory) transitionLocked(r *leave.LeaveRequest, from leave.Status) error {
	i, ok := m.index[r.ID]
	if !ok || m.requests[i].Status != from {
		return leave.ErrConcurrentModification
	}
	stored := &m.requests[i]
	stored.Status = r.Status
	stored.ApproverID = r.ApproverID
	stored.DecisionNote = r.DecisionNote
	stored.UpdatedAt = r.UpdatedAt
	*stored = cloneRequest(*stored)
	return nil
}

func (m *Memory) hasOverlapLocked(employeeID leave.EmployeeID, statuses []leave.Status, start, end time.Time) bool {
	for i := range m.requests {
		r := &m.requests[i]
		if r.EmployeeID != employeeID || !hasStatus(statuses, r.Status) {
			continue
		}
		if r.Overlaps(start, end) {
			return true
		}
	}
	return false
}

func (m *Memory) sumApprovedLocked(employeeID leave.EmployeeID, from, to time.Time) int {
	total := 0
	for _, r := range m.requests {
		if r.EmployeeID != employeeID || r.Status != leave.StatusApproved {
			continue
		}
		if !r.StartDate.Before(from) && !r.StartDate.After(to) {
			total += r.Days
		}
	}
	return total
}

func (m *Memory) listLocked(f leave.RequestFilter) ([]leave.LeaveRequest, int) {
	var matched []leave.LeaveRequest
	for _, r := range m.requests {
		if f.Status != nil && r.Status != *f.Status {
			continue
		}
		if f.EmployeeID != nil && r.EmployeeID != *f.EmployeeID {
			continue
		}
		matched = append(matched, cloneRequest(r))
	}
	// Stable keeps insertion order among equal timestamps.
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if f.Offset < 0 || f.Offset >= total {
		return []leave.LeaveRequest{}, total
	}
	end := total
	if f.Limit > 0 && f.Limit < total-f.Offset {
		end = f.Offset + f.Limit
	}
	return matched[f.Offset:end], total
}

func hasStatus(statuses []leave.Status, s leave.Status) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

// cloneRequest copies the pointer fields so callers cannot mutate stored state.
func cloneRequest(r leave.LeaveRequest) leave.LeaveRequest {
	if r.ApproverID != nil {
		id := *r.ApproverID
		r.ApproverID = &id
	}
	if r.DecisionNote != nil {
		n := *r.DecisionNote
		r.DecisionNote = &n
	}
	return r
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(_ context.Context, fn func(leave.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(&txMemoryView{parent: tm}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	employees map[leave.EmployeeID]leave.Employee
	emails    map[string]leave.EmployeeID
	requests  []leave.LeaveRequest
	index     map[leave.RequestID]int
}

func (tm *TxMemory) snapshot() memorySnapshot {
	s := memorySnapshot{
		employees: make(map[leave.EmployeeID]leave.Employee, len(tm.employees)),
		emails:    make(map[string]leave.EmployeeID, len(tm.emails)),
		requests:  make([]leave.LeaveRequest, len(tm.requests)),
		index:     make(map[leave.RequestID]int, len(tm.index)),
	}
	for k, v := range tm.employees {
		s.employees[k] = v
	}
	for k, v := range tm.emails {
		s.emails[k] = v
	}
	for i, r := range tm.requests {
		s.requests[i] = cloneRequest(r)
	}
	for k, v := range tm.index {
		s.index[k] = v
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.employees = s.employees
	tm.emails = s.emails
	tm.requests = s.requests
	tm.index = s.index
}

// txMemoryView runs against the parent while WithTx holds its lock.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) CreateEmployee(_ context.Context, e *leave.Employee) error {
	return tv.parent.createEmployeeLocked(e)
}

func (tv *txMemoryView) GetEmployee(_ context.Context, id leave.EmployeeID) (*leave.Employee, error) {
	return tv.parent.getEmployeeLocked(id), nil
}

func (tv *txMemoryView) EmailExists(_ context.Context, email string) (bool, error) {
	_, ok := tv.parent.emails[email]
	return ok, nil
}

func (tv *txMemoryView) CreateRequest(_ context.Context, r *leave.LeaveRequest) error {
	tv.parent.createRequestLocked(r)
	return nil
}

func (tv *txMemoryView) GetRequest(_ context.Context, id leave.RequestID) (*leave.LeaveRequest, error) {
	return tv.parent.getRequestLocked(id), nil
}

func (tv *txMemoryView) TransitionRequest(_ context.Context, r *leave.LeaveRequest, from leave.Status) error {
	return tv.parent.transitionLocked(r, from)
}

func (tv *txMemoryView) HasOverlap(_ context.Context, employeeID leave.EmployeeID, statuses []leave.Status, start, end time.Time) (bool, error) {
	return tv.parent.hasOverlapLocked(employeeID, statuses, start, end), nil
}

func (tv *txMemoryView) SumApprovedDays(_ context.Context, employeeID leave.EmployeeID, from, to time.Time) (int, error) {
	return tv.parent.sumApprovedLocked(employeeID, from, to), nil
}

func (tv *txMemoryView) ListRequests(_ context.Context, f leave.RequestFilter) ([]leave.LeaveRequest, int, error) {
	items, total := tv.parent.listLocked(f)
	return items, total, nil
}

var (
	_ leave.TxStore = (*TxMemory)(nil)
	_ leave.Store   = (*txMemoryView)(nil)
)
