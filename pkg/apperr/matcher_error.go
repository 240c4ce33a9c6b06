package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Validation errors
	CodeBadRequest   = "BAD_REQUEST"
	CodeInvalidInput = "INVALID_INPUT"
	CodeMissingField = "MISSING_FIELD"

	// Resource errors
	CodeNotFound      = "NOT_FOUND"
	CodeAlreadyExists = "ALREADY_EXISTS"
	CodeConflict      = "CONFLICT"

	// Pipeline errors. Data and resolution errors are per-record: the cycle
	// logs them and keeps going. Invariant violations abort the cycle.
	CodeDataError           = "DATA_ERROR"
	CodeResolutionConflict  = "RESOLUTION_CONFLICT"
	CodeOracleError         = "ORACLE_ERROR"
	CodeInvariantViolation  = "INVARIANT_VIOLATION"
	CodeStorageError        = "STORAGE_ERROR"
	CodeIllegalTransition   = "ILLEGAL_TRANSITION"
	CodeCycleAlreadyRunning = "CYCLE_ALREADY_RUNNING"

	// Internal errors
	CodeInternalError = "INTERNAL_ERROR"
	CodeConfigError   = "CONFIG_ERROR"
	CodeTimeout       = "TIMEOUT"
)

// AppError represents a structured application error
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// HTTPStatus returns the HTTP status code
func (e *AppError) HTTPStatus() int {
	return e.Status
}

// Constructor functions
func New(code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

func Wrap(err error, code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// Validation errors
func BadRequest(message string) *AppError {
	return &AppError{
		Code:    CodeBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

func InvalidInput(field, reason string) *AppError {
	return &AppError{
		Code:    CodeInvalidInput,
		Message: fmt.Sprintf("invalid input for '%s': %s", field, reason),
		Status:  http.StatusBadRequest,
		Details: map[string]any{"field": field},
	}
}

func MissingField(field string) *AppError {
	return &AppError{
		Code:    CodeMissingField,
		Message: fmt.Sprintf("missing required field: %s", field),
		Status:  http.StatusBadRequest,
		Details: map[string]any{"field": field},
	}
}

// Resource errors
func NotFound(resource string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
	}
}

func AlreadyExists(resource string) *AppError {
	return &AppError{
		Code:    CodeAlreadyExists,
		Message: fmt.Sprintf("%s already exists", resource),
		Status:  http.StatusConflict,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
		Status:  http.StatusConflict,
	}
}

// Pipeline errors

// DataError marks a record as unscoreable. The pipeline skips the record
// and counts the error in the cycle report.
func DataError(record, reason string) *AppError {
	return &AppError{
		Code:    CodeDataError,
		Message: fmt.Sprintf("record %s: %s", record, reason),
		Status:  http.StatusUnprocessableEntity,
		Details: map[string]any{"record": record},
	}
}

// ResolutionConflict marks an ambiguous identity match that must not merge.
func ResolutionConflict(name string, candidates int) *AppError {
	return &AppError{
		Code:    CodeResolutionConflict,
		Message: fmt.Sprintf("ambiguous identity for %q: %d candidate profiles", name, candidates),
		Status:  http.StatusConflict,
		Details: map[string]any{"candidates": candidates},
	}
}

// OracleError wraps a semantic oracle failure. Callers fall back to the
// lexical scorer rather than propagating it.
func OracleError(err error) *AppError {
	return &AppError{
		Code:    CodeOracleError,
		Message: "semantic oracle unavailable",
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

// InvariantViolation aborts the cycle: a bug, not a data problem.
func InvariantViolation(message string) *AppError {
	return &AppError{
		Code:    CodeInvariantViolation,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

func StorageError(operation string, err error) *AppError {
	return &AppError{
		Code:    CodeStorageError,
		Message: fmt.Sprintf("storage error: %s", operation),
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// IllegalTransition rejects a backwards or out-of-terminal status move.
func IllegalTransition(from, to string) *AppError {
	return &AppError{
		Code:    CodeIllegalTransition,
		Message: fmt.Sprintf("illegal status transition %s -> %s", from, to),
		Status:  http.StatusConflict,
		Details: map[string]any{"from": from, "to": to},
	}
}

func CycleAlreadyRunning(cycleID string) *AppError {
	return &AppError{
		Code:    CodeCycleAlreadyRunning,
		Message: "a match cycle is already running",
		Status:  http.StatusConflict,
		Details: map[string]any{"cycle_id": cycleID},
	}
}

// Internal errors
func Internal(message string) *AppError {
	if message == "" {
		message = "internal server error"
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

func InternalWithError(err error) *AppError {
	return &AppError{
		Code:    CodeInternalError,
		Message: "internal server error",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func ConfigError(message string) *AppError {
	return &AppError{
		Code:    CodeConfigError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

func Timeout(operation string) *AppError {
	return &AppError{
		Code:    CodeTimeout,
		Message: fmt.Sprintf("operation timed out: %s", operation),
		Status:  http.StatusGatewayTimeout,
	}
}

// Common error instances
var (
	ErrNotFound   = NotFound("resource")
	ErrBadRequest = BadRequest("bad request")
	ErrInternal   = Internal("")
	ErrConflict   = Conflict("resource conflict")
)

// Helper functions
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return InternalWithError(err)
}

// IsRecordError reports whether err is a per-record problem the pipeline
// should log and skip instead of aborting the cycle.
func IsRecordError(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Code == CodeDataError || appErr.Code == CodeResolutionConflict
}

func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}
