package tessera

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeExecution  ErrorType = "execution"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeConnection ErrorType = "connection"
	ErrorTypeInternal   ErrorType = "internal"
)

// Error codes used across the federation engine
const (
	ErrCodeSyntax             = "SYNTAX_ERROR"
	ErrCodeUnknownParameter   = "UNKNOWN_PARAMETER"
	ErrCodeUnknownStrategy    = "UNKNOWN_STRATEGY"
	ErrCodeSourceConnection   = "SOURCE_CONNECTION_FAILED"
	ErrCodeSourceNotFound     = "SOURCE_NOT_FOUND"
	ErrCodeCollectionNotFound = "COLLECTION_NOT_FOUND"
	ErrCodeJoinCondition      = "JOIN_CONDITION_INVALID"
	ErrCodeMappingSynthesis   = "MAPPING_SYNTHESIS_FAILED"
	ErrCodeSnapshotStore      = "SNAPSHOT_STORE_ERROR"
	ErrCodeQueryTimeout       = "QUERY_TIMEOUT"
	ErrCodeInternalError      = "INTERNAL_ERROR"
)

// Error is the unified error type surfaced by the federation engine. Every
// caller-visible failure carries a type, a stable code and a human-readable
// message; data-availability problems are degraded locally and never reach
// the caller as an Error unless no data at all was available.
type Error struct {
	Type    ErrorType      `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a single detail to the error
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause attaches an underlying cause
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// NewError creates a new Error
func NewError(errorType ErrorType, code, message string) *Error {
	return &Error{
		Type:    errorType,
		Code:    code,
		Message: message,
		Details: make(map[string]any),
	}
}

// NewSyntaxError reports malformed query text; the query is never executed.
func NewSyntaxError(message string) *Error {
	return NewError(ErrorTypeValidation, ErrCodeSyntax, message)
}

// NewUnknownParameterError reports a :name reference with no binding.
func NewUnknownParameterError(name string) *Error {
	return NewError(ErrorTypeValidation, ErrCodeUnknownParameter,
		fmt.Sprintf("parameter ':%s' has no binding", name)).
		WithDetail("parameter", name)
}

// NewUnknownStrategyError reports an unrecognized federation strategy token.
func NewUnknownStrategyError(token string) *Error {
	return NewError(ErrorTypeValidation, ErrCodeUnknownStrategy,
		fmt.Sprintf("unknown federation strategy '%s': expected virtual, materialized or hybrid", token)).
		WithDetail("strategy", token)
}

// NewSourceConnectionError reports an adapter connect or fetch failure.
func NewSourceConnectionError(sourceID string, cause error) *Error {
	return NewError(ErrorTypeConnection, ErrCodeSourceConnection,
		fmt.Sprintf("data source '%s' is unavailable", sourceID)).
		WithDetail("source_id", sourceID).
		WithCause(cause)
}

// NewSourceNotFoundError reports a query referencing an unregistered source.
func NewSourceNotFoundError(sourceID string) *Error {
	return NewError(ErrorTypeNotFound, ErrCodeSourceNotFound,
		fmt.Sprintf("data source '%s' is not registered", sourceID)).
		WithDetail("source_id", sourceID)
}

// NewJoinConditionError reports a JOIN ... ON clause that cannot be
// decomposed into <table>.<field> = <table>.<field>.
func NewJoinConditionError(clause string) *Error {
	return NewError(ErrorTypeValidation, ErrCodeJoinCondition,
		fmt.Sprintf("join condition '%s' is not of the form <table>.<field> = <table>.<field>", clause)).
		WithDetail("clause", clause)
}

// NewMappingSynthesisError reports a mapping whose output failed validation.
func NewMappingSynthesisError(mappingID, message string) *Error {
	return NewError(ErrorTypeExecution, ErrCodeMappingSynthesis, message).
		WithDetail("mapping_id", mappingID)
}

// NewSnapshotStoreError reports a snapshot store read/write failure.
func NewSnapshotStoreError(message string, cause error) *Error {
	return NewError(ErrorTypeInternal, ErrCodeSnapshotStore, message).WithCause(cause)
}

// NewQueryTimeoutError reports a query that exceeded its time budget.
func NewQueryTimeoutError(message string) *Error {
	return NewError(ErrorTypeTimeout, ErrCodeQueryTimeout, message)
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(message string, cause error) *Error {
	return NewError(ErrorTypeInternal, ErrCodeInternalError, message).WithCause(cause)
}

// AsError extracts a *Error from an error chain, if present.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsSyntaxError checks if an error is a query syntax error
func IsSyntaxError(err error) bool { return hasCode(err, ErrCodeSyntax) }

// IsUnknownParameterError checks if an error is an unbound parameter error
func IsUnknownParameterError(err error) bool { return hasCode(err, ErrCodeUnknownParameter) }

// IsSourceConnectionError checks if an error is a source availability error
func IsSourceConnectionError(err error) bool { return hasCode(err, ErrCodeSourceConnection) }

// IsJoinConditionError checks if an error is a malformed join condition error
func IsJoinConditionError(err error) bool { return hasCode(err, ErrCodeJoinCondition) }

func hasCode(err error, code string) bool {
	if e, ok := AsError(err); ok {
		return e.Code == code
	}
	return false
}
