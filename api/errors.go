package api

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// ERROR RESPONSES
// =============================================================================

const (
	CodeNotFound     = "NOT_FOUND"
	CodeInvalidInput = "INVALID_INPUT"
	CodeConflict     = "CONFLICT"
	CodeForbidden    = "FORBIDDEN"
	CodeRateLimited  = "RATE_LIMITED"
	CodeInternal     = "INTERNAL_ERROR"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// FieldError is one failed validation rule.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// BalanceDetails accompanies insufficient-balance errors.
type BalanceDetails struct {
	Year      int `json:"year"`
	Remaining int `json:"remaining"`
	Requested int `json:"requested"`
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: details})
}

// statusFor maps an engine error kind to an HTTP status and code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, leave.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, leave.ErrForbidden):
		return http.StatusForbidden, CodeForbidden
	case errors.Is(err, leave.ErrConflict):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, leave.ErrInvalidRequest):
		return http.StatusBadRequest, CodeInvalidInput
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// writeEngineError renders err. Internal errors are logged, not echoed.
func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, status, code, "Internal server error", nil)
		return
	}

	var details any
	var ib *leave.InsufficientBalanceError
	if errors.As(err, &ib) {
		details = BalanceDetails{Year: ib.Year, Remaining: ib.Remaining, Requested: ib.Requested}
	}
	writeError(w, status, code, err.Error(), details)
}

// =============================================================================
// VALIDATION
// =============================================================================

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// writeValidationError renders the first failed rule as the message and
// every failed rule as details.
func writeValidationError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		writeError(w, http.StatusBadRequest, CodeInvalidInput, "Invalid input", nil)
		return
	}

	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fe.Field(), Rule: fe.Tag()})
	}

	first := verrs[0]
	msg := first.Field() + " is invalid"
	switch first.Tag() {
	case "required":
		msg = first.Field() + " is required"
	case "max":
		msg = first.Field() + " must be at most " + first.Param() + " characters"
	case "datetime":
		msg = first.Field() + " must be a date in YYYY-MM-DD format"
	}
	writeError(w, http.StatusBadRequest, CodeInvalidInput, msg, fields)
}
