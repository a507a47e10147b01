/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the leave engine's model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Small response wrappers

VALIDATION:
  Request types carry go-playground/validator tags. Handlers validate the
  decoded body before calling the engine; business rules (overlap, balance,
  roles) stay in the engine.

  Dates are strings in YYYY-MM-DD. A missing date is passed to the engine
  as the zero time so the engine's check order decides which error wins.

SEE ALSO:
  - handlers.go: Uses these types
  - errors.go: ErrorResponse rendering
*/
package api

import (
	"time"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// EMPLOYEE
// =============================================================================

type CreateEmployeeRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Email       string `json:"email" validate:"required,email,max=200"`
	Department  string `json:"department" validate:"required,max=100"`
	JoiningDate string `json:"joining_date" validate:"required,datetime=2006-01-02"`
	IsHR        bool   `json:"is_hr"`
	// Defaults to leave.DefaultAnnualAllocation when omitted.
	AnnualAllocation *int `json:"annual_allocation" validate:"omitempty,gt=0,lte=366"`
}

type EmployeeDTO struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Email            string `json:"email"`
	Department       string `json:"department"`
	JoiningDate      string `json:"joining_date"`
	IsHR             bool   `json:"is_hr"`
	AnnualAllocation int    `json:"annual_allocation"`
	CreatedAt        string `json:"created_at"`
}

type BalanceDTO struct {
	EmployeeID           string `json:"employee_id"`
	Year                 int    `json:"year"`
	Allocation           int    `json:"allocation"`
	ApprovedDaysThisYear int    `json:"approved_days_this_year"`
	Remaining            int    `json:"remaining"`
}

// =============================================================================
// LEAVE
// =============================================================================

type ApplyLeaveRequest struct {
	EmployeeID string `json:"employee_id" validate:"required"`
	StartDate  string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate    string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Reason     string `json:"reason" validate:"max=200"`
	Type       string `json:"type" validate:"omitempty,max=20"`
}

type DecisionRequest struct {
	ApproverID string `json:"approver_id" validate:"required"`
	Note       string `json:"note" validate:"required,max=500"`
}

type LeaveActionResponse struct {
	LeaveID string `json:"leave_id"`
	Status  string `json:"status"`
}

type LeaveDTO struct {
	ID           string  `json:"id"`
	EmployeeID   string  `json:"employee_id"`
	EmployeeName string  `json:"employee_name"`
	Department   string  `json:"department"`
	Type         string  `json:"type"`
	Status       string  `json:"status"`
	StartDate    string  `json:"start_date"`
	EndDate      string  `json:"end_date"`
	Days         int     `json:"days"`
	Reason       string  `json:"reason"`
	ApproverID   *string `json:"approver_id"`
	ApproverName string  `json:"approver_name,omitempty"`
	DecisionNote *string `json:"decision_note"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

type PageDTO struct {
	Items []LeaveDTO `json:"items"`
	Page  int        `json:"page"`
	Size  int        `json:"size"`
	Total int        `json:"total"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toEmployeeDTO(e *leave.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:               string(e.ID),
		Name:             e.Name,
		Email:            e.Email,
		Department:       e.Department,
		JoiningDate:      leave.FormatDate(e.JoiningDate),
		IsHR:             e.HR,
		AnnualAllocation: e.AnnualAllocation,
		CreatedAt:        e.CreatedAt.Format(time.RFC3339),
	}
}

func toBalanceDTO(b leave.Balance) BalanceDTO {
	return BalanceDTO{
		EmployeeID:           string(b.EmployeeID),
		Year:                 b.Year,
		Allocation:           b.Allocation,
		ApprovedDaysThisYear: b.Consumed,
		Remaining:            b.Remaining,
	}
}

func toLeaveDTO(d leave.LeaveDetail) LeaveDTO {
	dto := LeaveDTO{
		ID:           string(d.ID),
		EmployeeID:   string(d.EmployeeID),
		EmployeeName: d.EmployeeName,
		Department:   d.Department,
		Type:         string(d.Type),
		Status:       string(d.Status),
		StartDate:    leave.FormatDate(d.StartDate),
		EndDate:      leave.FormatDate(d.EndDate),
		Days:         d.Days,
		Reason:       d.Reason,
		ApproverName: d.ApproverName,
		DecisionNote: d.DecisionNote,
		CreatedAt:    d.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    d.UpdatedAt.Format(time.RFC3339),
	}
	if d.ApproverID != nil {
		dto.ApproverID = strPtr(string(*d.ApproverID))
	}
	return dto
}

func toPageDTO(p *leave.Page) PageDTO {
	items := make([]LeaveDTO, 0, len(p.Items))
	for _, d := range p.Items {
		items = append(items, toLeaveDTO(d))
	}
	return PageDTO{Items: items, Page: p.Page, Size: p.Size, Total: p.Total}
}

func strPtr(s string) *string {
	return &s
}
