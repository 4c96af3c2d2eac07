// Package errors provides the structured error type shared by the site's
// packages, plus helpers for classifying errors at the HTTP boundary.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeSecurity   ErrorType = "security"
	ErrorTypeStorage    ErrorType = "storage"
	ErrorTypeLoad       ErrorType = "load"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeInternal   ErrorType = "internal"
)

// SiteError is a structured error type with context.
type SiteError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Component   string
	Recoverable bool
}

// Error implements the error interface.
func (e *SiteError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *SiteError) Unwrap() error {
	return e.Cause
}

// Is matches another SiteError with the same type and code.
func (e *SiteError) Is(target error) bool {
	var t *SiteError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *SiteError) WithContext(key string, value interface{}) *SiteError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithComponent adds component context.
func (e *SiteError) WithComponent(component string) *SiteError {
	e.Component = component

	return e
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *SiteError {
	return &SiteError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewSecurityError creates a security error.
func NewSecurityError(code, message string) *SiteError {
	return &SiteError{
		Type:    ErrorTypeSecurity,
		Code:    code,
		Message: message,
	}
}

// NewStorageError creates a storage error. Storage errors are recoverable:
// callers fall back to in-memory operation.
func NewStorageError(code, message string, cause error) *SiteError {
	return &SiteError{
		Type:        ErrorTypeStorage,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewLoadError creates a chunk load error.
func NewLoadError(code, message string, cause error) *SiteError {
	return &SiteError{
		Type:    ErrorTypeLoad,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *SiteError {
	return &SiteError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// NewNotFoundError creates a not-found error.
func NewNotFoundError(code, message string) *SiteError {
	return &SiteError{
		Type:        ErrorTypeNotFound,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *SiteError {
	return &SiteError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var se *SiteError
	if errors.As(err, &se) {
		return se.Recoverable
	}

	return false
}

// TypeOf returns the ErrorType of err, or ErrorTypeInternal when err is not a SiteError.
func TypeOf(err error) ErrorType {
	var se *SiteError
	if errors.As(err, &se) {
		return se.Type
	}

	return ErrorTypeInternal
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return TypeOf(err) == ErrorTypeNotFound
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	return TypeOf(err) == ErrorTypeValidation
}

// Common error codes.
const (
	ErrCodeValidationFailed = "ERR_VALIDATION_FAILED"
	ErrCodeUnknownForm      = "ERR_UNKNOWN_FORM"
	ErrCodeChunkNotFound    = "ERR_CHUNK_NOT_FOUND"
	ErrCodeChunkLoad        = "ERR_CHUNK_LOAD"
	ErrCodeStorageRead      = "ERR_STORAGE_READ"
	ErrCodeStorageWrite     = "ERR_STORAGE_WRITE"
	ErrCodeCSRFMissing      = "ERR_CSRF_MISSING"
	ErrCodeCSRFMismatch     = "ERR_CSRF_MISMATCH"
	ErrCodeRateLimited      = "ERR_RATE_LIMITED"
	ErrCodeConfigInvalid    = "ERR_CONFIG_INVALID"
	ErrCodeMailFailed       = "ERR_MAIL_FAILED"
	ErrCodeLeadNotFound     = "ERR_LEAD_NOT_FOUND"
	ErrCodeInternalError    = "ERR_INTERNAL"
)

// FieldValidationError is a validation failure for a single form field.
type FieldValidationError struct {
	FieldName    string
	FieldValue   interface{}
	ErrorMessage string
}

// Error returns the human-readable message; it is shown to visitors as is.
func (fve *FieldValidationError) Error() string {
	return fve.ErrorMessage
}

// Field returns the field name that failed validation.
func (fve *FieldValidationError) Field() string {
	return fve.FieldName
}

// NewFieldValidationError creates a new field validation error.
func NewFieldValidationError(field string, value interface{}, message string) *FieldValidationError {
	return &FieldValidationError{
		FieldName:    field,
		FieldValue:   value,
		ErrorMessage: message,
	}
}

// ValidationErrorCollection represents a collection of validation errors in
// the order they were found.
type ValidationErrorCollection struct {
	Errors []*FieldValidationError
}

// Error implements the error interface.
func (vec *ValidationErrorCollection) Error() string {
	if len(vec.Errors) == 0 {
		return "no validation errors"
	}
	if len(vec.Errors) == 1 {
		return vec.Errors[0].Error()
	}

	return fmt.Sprintf("validation failed with %d errors", len(vec.Errors))
}

// AddField adds a field validation error to the collection.
func (vec *ValidationErrorCollection) AddField(field string, value interface{}, message string) {
	vec.Errors = append(vec.Errors, NewFieldValidationError(field, value, message))
}

// HasErrors returns true if there are any validation errors.
func (vec *ValidationErrorCollection) HasErrors() bool {
	return len(vec.Errors) > 0
}

// First returns the first recorded message, or "" when there are none.
func (vec *ValidationErrorCollection) First() string {
	if len(vec.Errors) == 0 {
		return ""
	}

	return vec.Errors[0].ErrorMessage
}

// ToSiteError converts the collection to a SiteError carrying the first
// message, which is what the submission endpoints report.
func (vec *ValidationErrorCollection) ToSiteError() *SiteError {
	if !vec.HasErrors() {
		return nil
	}

	fields := make(map[string]interface{}, len(vec.Errors))
	for _, err := range vec.Errors {
		fields[err.FieldName] = err.ErrorMessage
	}

	return &SiteError{
		Type:        ErrorTypeValidation,
		Code:        ErrCodeValidationFailed,
		Message:     vec.First(),
		Context:     map[string]interface{}{"fields": fields},
		Recoverable: true,
	}
}
