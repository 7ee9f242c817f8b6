// Package errors defines the error taxonomy shared by every service in
// the backend. All core operations return these errors; nothing panics
// across package boundaries.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"

	"go.uber.org/multierr"
)

// ErrorType classifies an error for transport mapping and retry policy.
type ErrorType string

const (
	// Domain errors
	ErrorTypeValidation ErrorType = "VALIDATION"
	ErrorTypeBadRequest ErrorType = "BAD_REQUEST"
	ErrorTypeNotFound   ErrorType = "NOT_FOUND"
	ErrorTypeConflict   ErrorType = "CONFLICT"
	ErrorTypeForbidden  ErrorType = "FORBIDDEN"
	ErrorTypeLocked     ErrorType = "LOCKED"

	// Application errors
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeTooMany      ErrorType = "TOO_MANY"
	ErrorTypeUnknown      ErrorType = "UNKNOWN"
)

// Stable error codes surfaced on the wire. Handlers and remote clients
// switch on these, so they never change once published.
const (
	CodeNodeNotFound        = "NodeNotFoundError"
	CodeFolderNotFound      = "FolderNotFoundError"
	CodeSmartFolderNotFound = "SmartFolderNodeNotFoundError"
	CodeFeatureNotFound     = "FeatureNotFoundError"
	CodeAspectNotFound      = "AspectNotFoundError"
	CodeUserNotFound        = "UserNotFoundError"
	CodeGroupNotFound       = "GroupNotFoundError"
	CodeAPIKeyNotFound      = "ApiKeyNotFoundError"
	CodeAgentNotFound       = "AgentNotFoundError"
	CodeBadRequest          = "BadRequestError"
	CodeValidation          = "ValidationError"
	CodeForbidden           = "ForbiddenError"
	CodeLocked              = "LockedError"
	CodeConflict            = "ConflictError"
	CodeTooMany             = "TooManyError"
	CodeUnauthorized        = "UnauthorizedError"
	CodeUnknown             = "UnknownError"
)

// AppError is the concrete error carried through the service layers.
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	StackTrace string                 `json:"-"`
	HTTPStatus int                    `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithCode overrides the stable error code.
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// WithDetails attaches structured context for the caller.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// WithCause wraps an underlying error.
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// captureStackTrace records the call site for log correlation.
func captureStackTrace() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	stack := ""
	for {
		frame, more := frames.Next()
		stack += fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function)
		if !more {
			break
		}
	}
	return stack
}

func newNotFound(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		Code:       code,
		HTTPStatus: http.StatusNotFound,
		StackTrace: captureStackTrace(),
	}
}

// NewNodeNotFoundError reports a node that no lookup strategy resolved.
func NewNodeNotFoundError(uuid string) *AppError {
	return newNotFound(CodeNodeNotFound, fmt.Sprintf("node not found: %s", uuid))
}

// NewFolderNotFoundError reports a missing or non-folder parent.
func NewFolderNotFoundError(uuid string) *AppError {
	return newNotFound(CodeFolderNotFound, fmt.Sprintf("folder not found: %s", uuid))
}

// NewSmartFolderNotFoundError reports an evaluate call against a node
// that is not a smart folder.
func NewSmartFolderNotFoundError(uuid string) *AppError {
	return newNotFound(CodeSmartFolderNotFound, fmt.Sprintf("smart folder not found: %s", uuid))
}

// NewFeatureNotFoundError reports a feature uuid with no backing record.
func NewFeatureNotFoundError(uuid string) *AppError {
	return newNotFound(CodeFeatureNotFound, fmt.Sprintf("feature not found: %s", uuid))
}

// NewAspectNotFoundError reports an aspect uuid with no backing record.
func NewAspectNotFoundError(uuid string) *AppError {
	return newNotFound(CodeAspectNotFound, fmt.Sprintf("aspect not found: %s", uuid))
}

// NewUserNotFoundError reports an unknown user email or uuid.
func NewUserNotFoundError(id string) *AppError {
	return newNotFound(CodeUserNotFound, fmt.Sprintf("user not found: %s", id))
}

// NewGroupNotFoundError reports an unknown group uuid.
func NewGroupNotFoundError(uuid string) *AppError {
	return newNotFound(CodeGroupNotFound, fmt.Sprintf("group not found: %s", uuid))
}

// NewAPIKeyNotFoundError reports an unknown API key uuid or secret.
func NewAPIKeyNotFoundError(id string) *AppError {
	return newNotFound(CodeAPIKeyNotFound, fmt.Sprintf("api key not found: %s", id))
}

// NewAgentNotFoundError reports an unknown agent uuid.
func NewAgentNotFoundError(uuid string) *AppError {
	return newNotFound(CodeAgentNotFound, fmt.Sprintf("agent not found: %s", uuid))
}

// NewBadRequestError reports malformed input or a violated precondition.
func NewBadRequestError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeBadRequest,
		Message:    message,
		Code:       CodeBadRequest,
		HTTPStatus: http.StatusBadRequest,
		StackTrace: captureStackTrace(),
	}
}

// NewValidationError reports a single field-level validation failure.
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		Code:       CodeValidation,
		HTTPStatus: http.StatusBadRequest,
		StackTrace: captureStackTrace(),
	}
}

// NewValidationErrors aggregates field-level failures into one error.
// Returns nil when every entry is nil.
func NewValidationErrors(errs ...error) *AppError {
	combined := multierr.Combine(errs...)
	if combined == nil {
		return nil
	}
	messages := make([]string, 0, len(errs))
	for _, err := range multierr.Errors(combined) {
		messages = append(messages, err.Error())
	}
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    fmt.Sprintf("validation failed: %d error(s)", len(messages)),
		Code:       CodeValidation,
		Details:    map[string]interface{}{"errors": messages},
		Cause:      combined,
		HTTPStatus: http.StatusBadRequest,
		StackTrace: captureStackTrace(),
	}
}

// NewForbiddenError reports a permission failure.
func NewForbiddenError(message string) *AppError {
	if message == "" {
		message = "forbidden"
	}
	return &AppError{
		Type:       ErrorTypeForbidden,
		Message:    message,
		Code:       CodeForbidden,
		HTTPStatus: http.StatusForbidden,
		StackTrace: captureStackTrace(),
	}
}

// NewUnauthorizedError reports a missing or unverifiable credential.
func NewUnauthorizedError(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Message:    message,
		Code:       CodeUnauthorized,
		HTTPStatus: http.StatusUnauthorized,
		StackTrace: captureStackTrace(),
	}
}

// NewLockedError reports a write attempt against a locked node.
func NewLockedError(uuid string) *AppError {
	return &AppError{
		Type:       ErrorTypeLocked,
		Message:    fmt.Sprintf("node is locked: %s", uuid),
		Code:       CodeLocked,
		HTTPStatus: http.StatusLocked,
		StackTrace: captureStackTrace(),
	}
}

// NewConflictError reports a uuid or fid collision.
func NewConflictError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Message:    message,
		Code:       CodeConflict,
		HTTPStatus: http.StatusConflict,
		StackTrace: captureStackTrace(),
	}
}

// NewTooManyError reports a rejected invocation under rate limiting.
func NewTooManyError(limit int, window string) *AppError {
	return &AppError{
		Type:       ErrorTypeTooMany,
		Message:    fmt.Sprintf("rate limit exceeded: %d requests per %s", limit, window),
		Code:       CodeTooMany,
		HTTPStatus: http.StatusTooManyRequests,
		StackTrace: captureStackTrace(),
	}
}

// NewUnknownError wraps an adapter or runtime fault.
func NewUnknownError(message string, err error) *AppError {
	return &AppError{
		Type:       ErrorTypeUnknown,
		Message:    message,
		Code:       CodeUnknown,
		Cause:      err,
		HTTPStatus: http.StatusInternalServerError,
		StackTrace: captureStackTrace(),
	}
}

// Helper functions

// IsAppError checks if an error is an AppError.
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts an AppError from an error chain.
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsType checks if an error is of a specific type.
func IsType(err error, errType ErrorType) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == errType
}

// HasCode checks if an error carries a specific stable code.
func HasCode(err error, code string) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Code == code
}

// IsNotFound checks if an error is any of the not-found variants.
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	return IsType(err, ErrorTypeValidation)
}

// IsBadRequest checks if an error is a bad request error.
func IsBadRequest(err error) bool {
	return IsType(err, ErrorTypeBadRequest)
}

// IsForbidden checks if an error is a forbidden error.
func IsForbidden(err error) bool {
	return IsType(err, ErrorTypeForbidden)
}

// IsUnauthorized checks if an error is an unauthorized error.
func IsUnauthorized(err error) bool {
	return IsType(err, ErrorTypeUnauthorized)
}

// IsLocked checks if an error is a locked error.
func IsLocked(err error) bool {
	return IsType(err, ErrorTypeLocked)
}

// IsConflict checks if an error is a conflict error.
func IsConflict(err error) bool {
	return IsType(err, ErrorTypeConflict)
}

// IsTooMany checks if an error is a rate limit error.
func IsTooMany(err error) bool {
	return IsType(err, ErrorTypeTooMany)
}

// IsUnknown checks if an error wraps an adapter fault.
func IsUnknown(err error) bool {
	return IsType(err, ErrorTypeUnknown)
}

// HTTPStatusFor maps any error to the response status it should produce.
// Non-AppError values map to 500.
func HTTPStatusFor(err error) int {
	if appErr := GetAppError(err); appErr != nil && appErr.HTTPStatus != 0 {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// Wrap adds context to an error, preserving its type and code.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	if appErr := GetAppError(err); appErr != nil {
		appErr.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
		return appErr
	}

	return NewUnknownError(message, err)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}
