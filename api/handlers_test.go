/*
handlers_test.go - HTTP tests against the real router

Tests for:
- Employee registration, lookup and balance
- Apply / approve / reject status codes and error bodies
- Listing with filters and pagination
- Rate limiting
*/
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/sqlite"
	"github.com/warp/leave-engine/testutil"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	return newTestServerWith(t, config.ServerConfig{})
}

func newTestServerWith(t *testing.T, cfg config.ServerConfig) http.Handler {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	engine := leave.New(store,
		leave.WithClock(testutil.FixedClock()), // 2025-06-15
		leave.WithIDGenerator(testutil.NewStubIDGenerator()),
	)
	return NewRouter(NewHandler(engine, nil), cfg, nil)
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createEmployee(t *testing.T, h http.Handler, email string, hr bool) EmployeeDTO {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/employees", map[string]any{
		"name":         "Employee " + email,
		"email":        email,
		"department":   "Engineering",
		"joining_date": "2024-01-01",
		"is_hr":        hr,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[EmployeeDTO](t, rec)
}

func applyLeave(t *testing.T, h http.Handler, empID, start, end string) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, h, http.MethodPost, "/api/leaves/apply", map[string]any{
		"employee_id": empID,
		"start_date":  start,
		"end_date":    end,
		"reason":      "vacation",
	})
}

func decideLeave(t *testing.T, h http.Handler, leaveID, action, approverID string) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, h, http.MethodPut, "/api/leaves/"+leaveID+"/"+action, map[string]any{
		"approver_id": approverID,
		"note":        "decided",
	})
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func TestCreateEmployee_DefaultsAllocation(t *testing.T) {
	h := newTestServer(t)

	emp := createEmployee(t, h, "e@example.com", false)

	assert.Equal(t, 18, emp.AnnualAllocation)
	assert.Equal(t, "2024-01-01", emp.JoiningDate)
	assert.False(t, emp.IsHR)

	rec := do(t, h, http.MethodGet, "/api/employees/"+emp.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, emp.Email, decodeBody[EmployeeDTO](t, rec).Email)
}

func TestCreateEmployee_DuplicateEmail_409(t *testing.T) {
	h := newTestServer(t)
	createEmployee(t, h, "dup@example.com", false)

	rec := do(t, h, http.MethodPost, "/api/employees", map[string]any{
		"name": "Other", "email": "dup@example.com", "department": "Ops", "joining_date": "2024-02-01",
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, CodeConflict, body.Code)
	assert.Equal(t, "email already exists", body.Error)
}

func TestCreateEmployee_Validation_400(t *testing.T) {
	h := newTestServer(t)

	tests := []struct {
		name string
		body map[string]any
		msg  string
	}{
		{"missing name", map[string]any{"email": "a@b.co", "department": "d", "joining_date": "2024-01-01"}, "name is required"},
		{"bad email", map[string]any{"name": "n", "email": "nope", "department": "d", "joining_date": "2024-01-01"}, "email is invalid"},
		{"bad date", map[string]any{"name": "n", "email": "a@b.co", "department": "d", "joining_date": "01/01/2024"}, "joining_date must be a date in YYYY-MM-DD format"},
		{"zero allocation", map[string]any{"name": "n", "email": "a@b.co", "department": "d", "joining_date": "2024-01-01", "annual_allocation": 0}, "annual_allocation is invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/employees", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeBody[ErrorResponse](t, rec)
			assert.Equal(t, CodeInvalidInput, body.Code)
			assert.Equal(t, tt.msg, body.Error)
		})
	}
}

func TestGetEmployee_NotFound_404(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/api/employees/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, decodeBody[ErrorResponse](t, rec).Code)

	rec = do(t, h, http.MethodGet, "/api/employees/ghost/balance", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/employees/ghost/leaves", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// LEAVE LIFECYCLE
// =============================================================================

func TestLeaveLifecycle_EndToEnd(t *testing.T) {
	h := newTestServer(t)
	emp := createEmployee(t, h, "e@example.com", false)
	hr := createEmployee(t, h, "hr@example.com", true)

	// GIVEN: A 5-day request
	rec := applyLeave(t, h, emp.ID, "2025-03-10", "2025-03-14")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	applied := decodeBody[LeaveActionResponse](t, rec)
	assert.Equal(t, "PENDING", applied.Status)

	// WHEN: HR approves
	rec = decideLeave(t, h, applied.LeaveID, "approve", hr.ID)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "APPROVED", decodeBody[LeaveActionResponse](t, rec).Status)

	// THEN: Balance is 18 / 5 / 13
	rec = do(t, h, http.MethodGet, "/api/employees/"+emp.ID+"/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	bal := decodeBody[BalanceDTO](t, rec)
	assert.Equal(t, BalanceDTO{EmployeeID: emp.ID, Year: 2025, Allocation: 18, ApprovedDaysThisYear: 5, Remaining: 13}, bal)

	// THEN: Detail shows resolved names
	rec = do(t, h, http.MethodGet, "/api/leaves/"+applied.LeaveID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decodeBody[LeaveDTO](t, rec)
	assert.Equal(t, emp.Name, detail.EmployeeName)
	assert.Equal(t, hr.Name, detail.ApproverName)
	assert.Equal(t, 5, detail.Days)
	require.NotNil(t, detail.DecisionNote)
	assert.Equal(t, "decided", *detail.DecisionNote)

	// WHEN: Overlapping apply
	rec = applyLeave(t, h, emp.ID, "2025-03-12", "2025-03-13")
	assert.Equal(t, http.StatusConflict, rec.Code)

	// WHEN: Over-balance apply
	rec = applyLeave(t, h, emp.ID, "2025-04-01", "2025-04-17")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "insufficient balance: remaining=13, requested=17", body.Error)
	details, ok := body.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(13), details["remaining"])
	assert.Equal(t, float64(17), details["requested"])

	// WHEN: Apply before joining
	rec = applyLeave(t, h, emp.ID, "2023-12-20", "2023-12-21")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// THEN: Listing APPROVED returns the one request
	rec = do(t, h, http.MethodGet, "/api/leaves?status=APPROVED&page=0&size=20", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[PageDTO](t, rec)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, applied.LeaveID, page.Items[0].ID)
}

func TestApplyLeave_UnknownEmployee_404(t *testing.T) {
	h := newTestServer(t)

	rec := applyLeave(t, h, "ghost", "2025-03-10", "2025-03-14")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApplyLeave_BadInput_400(t *testing.T) {
	h := newTestServer(t)
	emp := createEmployee(t, h, "e@example.com", false)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"end before start", map[string]any{"employee_id": emp.ID, "start_date": "2025-03-14", "end_date": "2025-03-10"}},
		{"missing end", map[string]any{"employee_id": emp.ID, "start_date": "2025-03-14"}},
		{"bad date", map[string]any{"employee_id": emp.ID, "start_date": "2025/03/14", "end_date": "2025-03-15"}},
		{"unknown type", map[string]any{"employee_id": emp.ID, "start_date": "2025-03-14", "end_date": "2025-03-15", "type": "SABBATICAL"}},
		{"missing employee", map[string]any{"start_date": "2025-03-14", "end_date": "2025-03-15"}},
		{"not json", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec *httptest.ResponseRecorder
			if tt.body == nil {
				req := httptest.NewRequest(http.MethodPost, "/api/leaves/apply", bytes.NewBufferString("{"))
				rec = httptest.NewRecorder()
				h.ServeHTTP(rec, req)
			} else {
				rec = do(t, h, http.MethodPost, "/api/leaves/apply", tt.body)
			}
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, CodeInvalidInput, decodeBody[ErrorResponse](t, rec).Code)
		})
	}
}

func TestDecide_Errors(t *testing.T) {
	h := newTestServer(t)
	emp := createEmployee(t, h, "e@example.com", false)
	hr := createEmployee(t, h, "hr@example.com", true)

	rec := applyLeave(t, h, hr.ID, "2025-03-10", "2025-03-14")
	require.Equal(t, http.StatusCreated, rec.Code)
	own := decodeBody[LeaveActionResponse](t, rec)

	rec = applyLeave(t, h, emp.ID, "2025-03-10", "2025-03-14")
	require.Equal(t, http.StatusCreated, rec.Code)
	theirs := decodeBody[LeaveActionResponse](t, rec)

	// Non-HR approver
	rec = decideLeave(t, h, theirs.LeaveID, "approve", emp.ID)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, CodeForbidden, decodeBody[ErrorResponse](t, rec).Code)

	// Self-approval
	rec = decideLeave(t, h, own.LeaveID, "approve", hr.ID)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "self-approval not allowed", decodeBody[ErrorResponse](t, rec).Error)

	// Self-rejection is fine
	rec = decideLeave(t, h, own.LeaveID, "reject", hr.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "REJECTED", decodeBody[LeaveActionResponse](t, rec).Status)

	// Deciding again
	rec = decideLeave(t, h, own.LeaveID, "reject", hr.ID)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Unknown leave
	rec = decideLeave(t, h, "ghost", "approve", hr.ID)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Missing note
	rec = do(t, h, http.MethodPut, "/api/leaves/"+theirs.LeaveID+"/approve", map[string]any{"approver_id": hr.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "note is required", decodeBody[ErrorResponse](t, rec).Error)
}

func TestApprove_BalanceGoneAtApproval_409(t *testing.T) {
	h := newTestServer(t)
	emp := createEmployee(t, h, "e@example.com", false)
	hr := createEmployee(t, h, "hr@example.com", true)

	rec := applyLeave(t, h, emp.ID, "2025-03-01", "2025-03-10")
	require.Equal(t, http.StatusCreated, rec.Code)
	first := decodeBody[LeaveActionResponse](t, rec)
	rec = applyLeave(t, h, emp.ID, "2025-04-01", "2025-04-09")
	require.Equal(t, http.StatusCreated, rec.Code)
	second := decodeBody[LeaveActionResponse](t, rec)

	require.Equal(t, http.StatusOK, decideLeave(t, h, first.LeaveID, "approve", hr.ID).Code)

	rec = decideLeave(t, h, second.LeaveID, "approve", hr.ID)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decodeBody[ErrorResponse](t, rec).Error, "insufficient balance at approval time")
}

// =============================================================================
// LISTING
// =============================================================================

func TestListLeaves_FiltersAndPaging(t *testing.T) {
	h := newTestServer(t)
	a := createEmployee(t, h, "a@example.com", false)
	b := createEmployee(t, h, "b@example.com", false)

	for _, d := range []string{"2025-03-01", "2025-03-02", "2025-03-03"} {
		require.Equal(t, http.StatusCreated, applyLeave(t, h, a.ID, d, d).Code)
	}
	require.Equal(t, http.StatusCreated, applyLeave(t, h, b.ID, "2025-03-01", "2025-03-01").Code)

	rec := do(t, h, http.MethodGet, "/api/leaves?employee_id="+a.ID+"&size=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[PageDTO](t, rec)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 2, page.Size)

	// camelCase alias
	rec = do(t, h, http.MethodGet, "/api/leaves?employeeId="+b.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeBody[PageDTO](t, rec).Total)

	// employee history route
	rec = do(t, h, http.MethodGet, "/api/employees/"+a.ID+"/leaves?status=pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page = decodeBody[PageDTO](t, rec)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 20, page.Size)

	// empty list is an empty array
	rec = do(t, h, http.MethodGet, "/api/leaves?status=REJECTED", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"items":[]`)
}

func TestListLeaves_BadQuery_400(t *testing.T) {
	h := newTestServer(t)

	for _, q := range []string{"size=0", "size=201", "page=-1", "status=CANCELLED", "page=abc", "size=x"} {
		t.Run(q, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/api/leaves?"+q, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestGetLeave_NotFound_404(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/api/leaves/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func TestRateLimit_429(t *testing.T) {
	h := newTestServerWith(t, config.ServerConfig{
		RateLimit: config.RateLimitConfig{RPS: 1, Burst: 2},
	})

	var codes []int
	for i := 0; i < 3; i++ {
		codes = append(codes, do(t, h, http.MethodGet, "/healthz", nil).Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestIPRateLimiter_PerKey(t *testing.T) {
	l := NewIPRateLimiter(1, 1)

	assert.True(t, l.GetLimiter("10.0.0.1").Allow())
	assert.False(t, l.GetLimiter("10.0.0.1").Allow())
	assert.True(t, l.GetLimiter("10.0.0.2").Allow())
	assert.Same(t, l.GetLimiter("10.0.0.1"), l.GetLimiter("10.0.0.1"))
}

func TestUnknownRoute_404(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, decodeBody[ErrorResponse](t, rec).Code)
}
