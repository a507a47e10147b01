/*
handlers.go - HTTP API handlers for the leave engine

PURPOSE:
  Exposes the leave engine via REST API. Handles HTTP request/response,
  JSON serialization and body validation, and delegates to the engine.

ENDPOINTS:
  Employees:
    POST   /api/employees              Register employee
    GET    /api/employees/{id}         Get employee
    GET    /api/employees/{id}/balance Current-year balance
    GET    /api/employees/{id}/leaves  Leave history of one employee

  Leaves:
    POST   /api/leaves/apply           Apply for leave
    PUT    /api/leaves/{id}/approve    Approve (HR only, not own request)
    PUT    /api/leaves/{id}/reject     Reject (HR only)
    GET    /api/leaves/{id}            Leave detail
    GET    /api/leaves                 List, filter by status and employee

REQUEST FLOW:
  1. Decode JSON body
  2. Validate with struct tags
  3. Call the engine
  4. Serialize response, or map the error kind to a status

ERROR HANDLING:
  - 400: Validation errors, invalid input, insufficient balance at apply
  - 403: Approver is not HR, self-approval
  - 404: Employee or leave not found
  - 409: Duplicate email, overlap, already decided, balance gone at approval
  - 500: Store failures

SECURITY NOTE:
  Approver and employee ids are taken from the request as given. There is
  no authentication layer.

SEE ALSO:
  - dto.go: Request/response data structures
  - errors.go: Error rendering and validation messages
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/leave"
)

const defaultPageSize = 20

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	engine   *leave.Engine
	validate *validator.Validate
	logger   *zap.Logger
}

// NewHandler creates a new handler over the engine.
func NewHandler(engine *leave.Engine, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		engine:   engine,
		validate: newValidator(),
		logger:   logger.Named("api"),
	}
}

// decode reads and validates a JSON body. It writes the error response and
// returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidInput, "Invalid request body", err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeValidationError(w, err)
		return false
	}
	return true
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// CreateEmployee registers an employee.
// POST /api/employees
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if !h.decode(w, r, &req) {
		return
	}

	joining, err := leave.ParseDate(req.JoiningDate)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	allocation := leave.DefaultAnnualAllocation
	if req.AnnualAllocation != nil {
		allocation = *req.AnnualAllocation
	}

	emp, err := h.engine.Directory.Create(r.Context(), leave.NewEmployee{
		Name:             req.Name,
		Email:            req.Email,
		Department:       req.Department,
		JoiningDate:      joining,
		HR:               req.IsHR,
		AnnualAllocation: allocation,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toEmployeeDTO(emp))
}

// GetEmployee returns one employee.
// GET /api/employees/{id}
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	id := leave.EmployeeID(chi.URLParam(r, "id"))

	emp, err := h.engine.Directory.GetOrFail(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toEmployeeDTO(emp))
}

// GetBalance returns the employee's balance for the current year.
// GET /api/employees/{id}/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := leave.EmployeeID(chi.URLParam(r, "id"))

	bal, err := h.engine.Lifecycle.Balance(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toBalanceDTO(bal))
}

// ListEmployeeLeaves returns one employee's requests, newest first.
// GET /api/employees/{id}/leaves
func (h *Handler) ListEmployeeLeaves(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := leave.EmployeeID(chi.URLParam(r, "id"))

	if _, err := h.engine.Directory.GetOrFail(ctx, id); err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	q, ok := listQuery(w, r)
	if !ok {
		return
	}
	q.EmployeeID = id

	page, err := h.engine.Query.List(ctx, q)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toPageDTO(page))
}

// =============================================================================
// LEAVE HANDLERS
// =============================================================================

// ApplyLeave creates a PENDING leave request.
// POST /api/leaves/apply
func (h *Handler) ApplyLeave(w http.ResponseWriter, r *http.Request) {
	var req ApplyLeaveRequest
	if !h.decode(w, r, &req) {
		return
	}

	in := leave.ApplyInput{
		EmployeeID: leave.EmployeeID(req.EmployeeID),
		Reason:     req.Reason,
		Type:       req.Type,
	}
	var err error
	if req.StartDate != "" {
		if in.StartDate, err = leave.ParseDate(req.StartDate); err != nil {
			h.writeEngineError(w, r, err)
			return
		}
	}
	if req.EndDate != "" {
		if in.EndDate, err = leave.ParseDate(req.EndDate); err != nil {
			h.writeEngineError(w, r, err)
			return
		}
	}

	created, err := h.engine.Lifecycle.Apply(r.Context(), in)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, LeaveActionResponse{
		LeaveID: string(created.ID),
		Status:  string(created.Status),
	})
}

// ApproveLeave approves a pending request.
// PUT /api/leaves/{id}/approve
func (h *Handler) ApproveLeave(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.engine.Lifecycle.Approve)
}

// RejectLeave rejects a pending request.
// PUT /api/leaves/{id}/reject
func (h *Handler) RejectLeave(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.engine.Lifecycle.Reject)
}

type decideFunc func(ctx context.Context, in leave.DecisionInput) (*leave.LeaveRequest, error)

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, fn decideFunc) {
	var req DecisionRequest
	if !h.decode(w, r, &req) {
		return
	}

	decided, err := fn(r.Context(), leave.DecisionInput{
		LeaveID:    leave.RequestID(chi.URLParam(r, "id")),
		ApproverID: leave.EmployeeID(req.ApproverID),
		Note:       req.Note,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, LeaveActionResponse{
		LeaveID: string(decided.ID),
		Status:  string(decided.Status),
	})
}

// GetLeave returns one request with names resolved.
// GET /api/leaves/{id}
func (h *Handler) GetLeave(w http.ResponseWriter, r *http.Request) {
	id := leave.RequestID(chi.URLParam(r, "id"))

	detail, err := h.engine.Query.Get(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toLeaveDTO(*detail))
}

// ListLeaves returns a page of requests, newest first.
// GET /api/leaves?status=PENDING&employee_id=...&page=0&size=20
func (h *Handler) ListLeaves(w http.ResponseWriter, r *http.Request) {
	q, ok := listQuery(w, r)
	if !ok {
		return
	}
	values := r.URL.Query()
	q.EmployeeID = leave.EmployeeID(values.Get("employee_id"))
	if q.EmployeeID == "" {
		q.EmployeeID = leave.EmployeeID(values.Get("employeeId"))
	}

	page, err := h.engine.Query.List(r.Context(), q)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toPageDTO(page))
}

// =============================================================================
// HELPERS
// =============================================================================

// listQuery parses page, size and status. Range checks are left to the engine.
func listQuery(w http.ResponseWriter, r *http.Request) (leave.ListQuery, bool) {
	values := r.URL.Query()
	q := leave.ListQuery{Page: 0, Size: defaultPageSize}

	if s := values.Get("page"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeInvalidInput, "page must be an integer", nil)
			return q, false
		}
		q.Page = n
	}
	if s := values.Get("size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeInvalidInput, "size must be an integer", nil)
			return q, false
		}
		q.Size = n
	}
	q.Status = values.Get("status")
	return q, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
