package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// AppError is implemented by every error that crosses the HTTP boundary with a known status.
type AppError interface {
	error
	HTTPStatus() int
	Code() string
}

// FieldError describes one invalid field in a request payload.
type FieldError struct {
	Field   string `json:"field"`   // Field name as declared on the model.
	Message string `json:"message"` // Human readable reason.
}

// ConfigError reports an invalid model or process configuration detected at startup.
type ConfigError struct {
	Model   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("model %s: %s", e.Model, e.Message)
	}
	return "config: " + e.Message
}

func (e *ConfigError) HTTPStatus() int { return http.StatusInternalServerError }

func (e *ConfigError) Code() string { return "CONFIG_ERROR" }

// Config builds a ConfigError with a formatted message.
func Config(model, format string, args ...any) *ConfigError {
	return &ConfigError{Model: model, Message: fmt.Sprintf(format, args...)}
}

// ValidationError reports a request payload that failed validation.
type ValidationError struct {
	Message string
	Fields  []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation error: " + e.Message
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("validation error: %s (%s)", e.Message, strings.Join(parts, "; "))
}

func (e *ValidationError) HTTPStatus() int { return http.StatusBadRequest }

func (e *ValidationError) Code() string { return "VALIDATION_ERROR" }

// Add appends a field error.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// ErrOrNil returns nil when no field errors were collected.
func (e *ValidationError) ErrOrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// Validation builds a ValidationError without field details.
func Validation(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// InvalidField builds a ValidationError for a single field.
func InvalidField(field, message string) *ValidationError {
	return &ValidationError{
		Message: "invalid payload",
		Fields:  []FieldError{{Field: field, Message: message}},
	}
}

// ConflictError reports a unique or primary-key collision.
type ConflictError struct {
	Resource string
	Cause    error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already exists", e.Resource)
}

func (e *ConflictError) Unwrap() error { return e.Cause }

func (e *ConflictError) HTTPStatus() int { return http.StatusConflict }

func (e *ConflictError) Code() string { return "CONFLICT" }

// Conflict builds a ConflictError.
func Conflict(resource string, cause error) *ConflictError {
	return &ConflictError{Resource: resource, Cause: cause}
}

// NotFoundError reports a missing primary key.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s with id '%s' not found", e.Resource, e.ID)
	}
	return e.Resource + " not found"
}

func (e *NotFoundError) HTTPStatus() int { return http.StatusNotFound }

func (e *NotFoundError) Code() string { return "NOT_FOUND" }

// NotFound builds a NotFoundError.
func NotFound(resource string, id any) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: fmt.Sprint(id)}
}

// HookVetoError carries the message of a before-hook that aborted an operation.
type HookVetoError struct {
	Operation string
	Cause     error
}

func (e *HookVetoError) Error() string {
	if e.Cause == nil {
		return e.Operation + " rejected"
	}
	return e.Cause.Error()
}

func (e *HookVetoError) Unwrap() error { return e.Cause }

func (e *HookVetoError) HTTPStatus() int {
	var appErr AppError
	if errors.As(e.Cause, &appErr) {
		return appErr.HTTPStatus()
	}
	return http.StatusBadRequest
}

func (e *HookVetoError) Code() string { return "HOOK_REJECTED" }

// HookVeto wraps an error returned by a before-hook.
func HookVeto(operation string, cause error) *HookVetoError {
	return &HookVetoError{Operation: operation, Cause: cause}
}

// PermissionError reports that the principal may not perform an action.
type PermissionError struct {
	Action   string
	Resource string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: cannot %s %s", e.Action, e.Resource)
}

func (e *PermissionError) HTTPStatus() int { return http.StatusForbidden }

func (e *PermissionError) Code() string { return "PERMISSION_DENIED" }

// Permission builds a PermissionError.
func Permission(action, resource string) *PermissionError {
	return &PermissionError{Action: action, Resource: resource}
}

// IntegrityWarning describes stored data that could not be read as written.
// It is logged, never returned to clients.
type IntegrityWarning struct {
	Table  string
	Key    any
	Reason string
	Cause  error
	// Unreadable is set when the blob fields are missing from the decoded record.
	Unreadable bool
}

func (e *IntegrityWarning) Error() string {
	msg := fmt.Sprintf("integrity warning on %s[%v]: %s", e.Table, e.Key, e.Reason)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *IntegrityWarning) Unwrap() error { return e.Cause }

// IntegrityError refuses a write to a record whose stored blob could not be read.
// Rewriting it would replace the unread fields with nothing.
type IntegrityError struct {
	Resource string
	Warning  *IntegrityWarning
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s with id '%v' cannot be modified: stored data is unreadable", e.Resource, e.Warning.Key)
}

func (e *IntegrityError) Unwrap() error { return e.Warning }

func (e *IntegrityError) HTTPStatus() int { return http.StatusConflict }

func (e *IntegrityError) Code() string { return "INTEGRITY_ERROR" }

// Integrity builds an IntegrityError from the warning raised while reading the record.
func Integrity(resource string, warning *IntegrityWarning) *IntegrityError {
	return &IntegrityError{Resource: resource, Warning: warning}
}

// StatusOf returns the HTTP status and code for err, defaulting to 500.
func StatusOf(err error) (int, string) {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus(), appErr.Code()
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

// FieldsOf returns the field details carried by a ValidationError in err's chain.
func FieldsOf(err error) []FieldError {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Fields
	}
	return nil
}
