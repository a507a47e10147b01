package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/sqlite"
	"github.com/warp/leave-engine/testutil"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedEmployee(t *testing.T, s *sqlite.Store, id, email string, hr bool) *leave.Employee {
	t.Helper()
	e := &leave.Employee{
		ID:               leave.EmployeeID(id),
		Name:             "Name " + id,
		Email:            email,
		Department:       "Finance",
		JoiningDate:      leave.NewDate(2024, 1, 1),
		HR:               hr,
		AnnualAllocation: 18,
		CreatedAt:        time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.CreateEmployee(context.Background(), e))
	return e
}

func seedRequest(t *testing.T, s *sqlite.Store, id, emp string, start, end time.Time, status leave.Status, created time.Time) *leave.LeaveRequest {
	t.Helper()
	days, err := leave.InclusiveDays(start, end)
	require.NoError(t, err)
	r := &leave.LeaveRequest{
		ID:         leave.RequestID(id),
		EmployeeID: leave.EmployeeID(emp),
		Type:       leave.TypeAnnual,
		Status:     status,
		StartDate:  start,
		EndDate:    end,
		Days:       days,
		Reason:     "r",
		CreatedAt:  created,
		UpdatedAt:  created,
	}
	require.NoError(t, s.CreateRequest(context.Background(), r))
	return r
}

var t0 = time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)

// =============================================================================
// EMPLOYEES
// =============================================================================

func TestStore_EmployeeRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	want := seedEmployee(t, s, "e1", "e1@example.com", true)

	got, err := s.GetEmployee(ctx, "e1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.Name, got.Name)
	assert.True(t, got.HR)
	assert.Equal(t, leave.NewDate(2024, 1, 1), got.JoiningDate)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))

	missing, err := s.GetEmployee(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_EmailUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedEmployee(t, s, "e1", "dup@example.com", false)

	exists, err := s.EmailExists(ctx, "dup@example.com")
	require.NoError(t, err)
	assert.True(t, exists)

	err = s.CreateEmployee(ctx, &leave.Employee{
		ID: "e2", Name: "x", Email: "dup@example.com", Department: "d",
		JoiningDate: leave.NewDate(2024, 1, 1), AnnualAllocation: 5, CreatedAt: t0,
	})
	assert.ErrorIs(t, err, leave.ErrEmailTaken)
	assert.True(t, leave.IsConflict(err))
}

// =============================================================================
// REQUESTS
// =============================================================================

func TestStore_RequestRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedEmployee(t, s, "e1", "e1@example.com", false)
	seedRequest(t, s, "r1", "e1", leave.NewDate(2025, 3, 10), leave.NewDate(2025, 3, 14), leave.StatusPending, t0)

	got, err := s.GetRequest(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 5, got.Days)
	assert.Equal(t, leave.NewDate(2025, 3, 10), got.StartDate)
	assert.Equal(t, leave.NewDate(2025, 3, 14), got.EndDate)
	assert.Nil(t, got.ApproverID)
	assert.Nil(t, got.DecisionNote)

	missing, err := s.GetRequest(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_TransitionCompareAndSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedEmployee(t, s, "e1", "e1@example.com", false)
	seedEmployee(t, s, "hr", "hr@example.com", true)
	r := seedRequest(t, s, "r1", "e1", leave.NewDate(2025, 3, 10), leave.NewDate(2025, 3, 14), leave.StatusPending, t0)

	approver := leave.EmployeeID("hr")
	note := "enjoy"
	r.Status = leave.StatusApproved
	r.ApproverID = &approver
	r.DecisionNote = &note
	r.UpdatedAt = t0.Add(time.Hour)
	require.NoError(t, s.TransitionRequest(ctx, r, leave.StatusPending))

	got, err := s.GetRequest(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, got.Status)
	require.NotNil(t, got.ApproverID)
	assert.Equal(t, approver, *got.ApproverID)
	require.NotNil(t, got.DecisionNote)
	assert.Equal(t, "enjoy", *got.DecisionNote)

	// A second writer expecting PENDING loses.
	r.Status = leave.StatusRejected
	err = s.TransitionRequest(ctx, r, leave.StatusPending)
	assert.ErrorIs(t, err, leave.ErrConcurrentModification)
}

func TestStore_HasOverlap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedEmployee(t, s, "e1", "e1@example.com", false)
	seedRequest(t, s, "r1", "e1", leave.NewDate(2025, 3, 10), leave.NewDate(2025, 3, 14), leave.StatusPending, t0)
	seedRequest(t, s, "r2", "e1", leave.NewDate(2025, 4, 10), leave.NewDate(2025, 4, 14), leave.StatusRejected, t0)
	blocking := []leave.Status{leave.StatusPending, leave.StatusApproved}

	tests := []struct {
		name       string
		start, end time.Time
		want       bool
	}{
		{"shared last day", leave.NewDate(2025, 3, 14), leave.NewDate(2025, 3, 20), true},
		{"shared first day", leave.NewDate(2025, 3, 1), leave.NewDate(2025, 3, 10), true},
		{"adjacent", leave.NewDate(2025, 3, 15), leave.NewDate(2025, 3, 16), false},
		{"only rejected", leave.NewDate(2025, 4, 11), leave.NewDate(2025, 4, 12), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.HasOverlap(ctx, "e1", blocking, tt.start, tt.end)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStore_SumApprovedDays(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedEmployee(t, s, "e1", "e1@example.com", false)
	seedRequest(t, s, "r1", "e1", leave.NewDate(2025, 3, 10), leave.NewDate(2025, 3, 14), leave.StatusApproved, t0)
	seedRequest(t, s, "r2", "e1", leave.NewDate(2025, 5, 1), leave.NewDate(2025, 5, 3), leave.StatusPending, t0)
	seedRequest(t, s, "r3", "e1", leave.NewDate(2024, 12, 30), leave.NewDate(2025, 1, 2), leave.StatusApproved, t0)

	got, err := s.SumApprovedDays(ctx, "e1", leave.NewDate(2025, 1, 1), leave.NewDate(2025, 12, 31))
	require.NoError(t, err)
	assert.Equal(t, 5, got)

	got, err = s.SumApprovedDays(ctx, "e1", leave.NewDate(2024, 1, 1), leave.NewDate(2024, 12, 31))
	require.NoError(t, err)
	assert.Equal(t, 4, got)

	got, err = s.SumApprovedDays(ctx, "none", leave.NewDate(2025, 1, 1), leave.NewDate(2025, 12, 31))
	require.NoError(t, err)
	assert.Equal(t, 0, got)
}

func TestStore_ListRequests_OrderFilterPage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedEmployee(t, s, "e1", "e1@example.com", false)
	seedEmployee(t, s, "e2", "e2@example.com", false)

	// r1 and r2 share a timestamp; r3 is newer.
	seedRequest(t, s, "r1", "e1", leave.NewDate(2025, 3, 1), leave.NewDate(2025, 3, 1), leave.StatusPending, t0)
	seedRequest(t, s, "r2", "e2", leave.NewDate(2025, 3, 2), leave.NewDate(2025, 3, 2), leave.StatusApproved, t0)
	seedRequest(t, s, "r3", "e1", leave.NewDate(2025, 3, 3), leave.NewDate(2025, 3, 3), leave.StatusPending, t0.Add(time.Millisecond))

	all, total, err := s.ListRequests(ctx, leave.RequestFilter{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, all, 3)
	assert.Equal(t, []leave.RequestID{"r3", "r1", "r2"}, []leave.RequestID{all[0].ID, all[1].ID, all[2].ID})

	pending := leave.StatusPending
	emp := leave.EmployeeID("e1")
	items, total, err := s.ListRequests(ctx, leave.RequestFilter{Status: &pending, EmployeeID: &emp, Offset: 1, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, items, 1)
	assert.Equal(t, leave.RequestID("r1"), items[0].ID)

	items, total, err = s.ListRequests(ctx, leave.RequestFilter{Offset: 10, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Empty(t, items)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestStore_CorruptTimestamp_ReturnsError(t *testing.T) {
	// GIVEN: a request whose created_at was overwritten with garbage
	path := filepath.Join(t.TempDir(), "leave.db")
	s, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	seedEmployee(t, s, "e1", "e1@example.com", false)
	seedRequest(t, s, "r1", "e1", leave.NewDate(2025, 3, 3), leave.NewDate(2025, 3, 4), leave.StatusPending, t0)

	raw, err := sqlite.OpenDB(path)
	require.NoError(t, err)
	_, err = raw.Exec("UPDATE leave_requests SET created_at = 'yesterday' WHERE id = 'r1'")
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	// WHEN / THEN: reads fail instead of returning a zero time
	_, err = s.GetRequest(context.Background(), "r1")
	assert.ErrorContains(t, err, "corrupt created_at")

	_, _, err = s.ListRequests(context.Background(), leave.RequestFilter{Limit: 10})
	assert.Error(t, err)
}

func TestStore_WithTx_Rollback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx leave.Store) error {
		if err := tx.CreateEmployee(ctx, &leave.Employee{
			ID: "e1", Name: "n", Email: "e1@x", Department: "d",
			JoiningDate: leave.NewDate(2024, 1, 1), AnnualAllocation: 1, CreatedAt: t0,
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetEmployee(ctx, "e1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// =============================================================================
// ENGINE ON SQLITE
// =============================================================================

func TestEngine_OnSQLite_ConcurrentApprovals(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	engine := leave.New(s, leave.WithClock(testutil.FixedClock()))

	emp, err := engine.Directory.Create(ctx, leave.NewEmployee{
		Name: "E", Email: "e@example.com", Department: "Eng",
		JoiningDate: leave.NewDate(2024, 1, 1), AnnualAllocation: 18,
	})
	require.NoError(t, err)
	hr, err := engine.Directory.Create(ctx, leave.NewEmployee{
		Name: "H", Email: "h@example.com", Department: "People",
		JoiningDate: leave.NewDate(2024, 1, 1), HR: true, AnnualAllocation: 18,
	})
	require.NoError(t, err)

	r, err := engine.Lifecycle.Apply(ctx, leave.ApplyInput{
		EmployeeID: emp.ID, StartDate: leave.NewDate(2025, 3, 10), EndDate: leave.NewDate(2025, 3, 14),
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Lifecycle.Approve(ctx, leave.DecisionInput{LeaveID: r.ID, ApproverID: hr.ID, Note: "ok"})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.True(t, leave.IsConflict(err), "unexpected error: %v", err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)

	bal, err := engine.Lifecycle.Balance(ctx, emp.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, bal.Consumed)
	assert.Equal(t, 13, bal.Remaining)
}
