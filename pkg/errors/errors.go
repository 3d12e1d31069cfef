// Package errors provides coded errors for behaviorflow. Every error carries
// a stable code, optional key/value context and an optional cause.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code identifies an error class for programmatic handling.
type Code string

const (
	// Input errors (1xx)
	CodeFileNotFound     Code = "E101"
	CodeFilePermission   Code = "E102"
	CodeInvalidFormat    Code = "E103"
	CodeMissingColumn    Code = "E104"
	CodeInvalidTimestamp Code = "E105"

	// Extraction errors (2xx)
	CodeParseFailed    Code = "E201"
	CodeInvalidSession Code = "E203"
	CodeInvalidCatalog Code = "E204"

	// Output errors (3xx)
	CodeWriteFailed Code = "E301"

	// System errors (4xx)
	CodeContextCanceled Code = "E401"
	CodeTimeout         Code = "E402"
	CodePanic           Code = "E403"

	// Model store errors (5xx)
	CodeStoreInit        Code = "E501"
	CodeStoreRead        Code = "E502"
	CodeStoreWrite       Code = "E503"
	CodeModelNotFound    Code = "E504"
	CodeStoreUnavailable Code = "E505"

	CodeUnknown Code = "E999"
)

var hints = map[Code]string{
	CodeFileNotFound:     "check the path; session files may be gzip-compressed (.gz)",
	CodeInvalidFormat:    "use a known extension or pass --format / --output-format",
	CodeMissingColumn:    "set the input.*_column names in the config to match the header",
	CodeInvalidTimestamp: "timestamps must be integers, RFC3339 or match input.timestamp_layout",
	CodeInvalidSession:   "every execution needs a use case and every default use case an ID",
	CodeInvalidCatalog:   "the defaults file needs a use_cases list with unique ids",
	CodeStoreInit:        "check the store section of the config (store.backend and its settings)",
	CodeStoreUnavailable: "the model store failed repeatedly; retry later",
	CodeModelNotFound:    "list stored models with 'behaviorflow store list'",
}

// Hint returns a short remedy for code, or "".
func (c Code) Hint() string {
	return hints[c]
}

// BehaviorFlowError is the base error type for all behaviorflow errors.
type BehaviorFlowError struct {
	Code    Code
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error renders "[code] message (k=v, ...): cause" with context keys sorted.
func (e *BehaviorFlowError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", e.Code, e.Message)

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		pairs := make([]string, len(keys))
		for i, k := range keys {
			pairs[i] = fmt.Sprintf("%s=%v", k, e.Context[k])
		}
		fmt.Fprintf(&sb, " (%s)", strings.Join(pairs, ", "))
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *BehaviorFlowError) Unwrap() error {
	return e.Cause
}

// Is matches any BehaviorFlowError with the same code.
func (e *BehaviorFlowError) Is(target error) bool {
	if t, ok := target.(*BehaviorFlowError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds a key/value pair and returns e.
func (e *BehaviorFlowError) WithContext(key string, value interface{}) *BehaviorFlowError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new BehaviorFlowError.
func New(code Code, message string) *BehaviorFlowError {
	return &BehaviorFlowError{Code: code, Message: message}
}

// Wrap attaches a code and message to err. A nil err yields nil.
func Wrap(err error, code Code, message string) *BehaviorFlowError {
	if err == nil {
		return nil
	}
	return &BehaviorFlowError{Code: code, Message: message, Cause: err}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *BehaviorFlowError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// FileNotFound creates a file not found error.
func FileNotFound(path string) *BehaviorFlowError {
	return New(CodeFileNotFound, "file not found").WithContext("path", path)
}

// MissingColumn creates a missing column error listing the header.
func MissingColumn(column string, available []string) *BehaviorFlowError {
	return New(CodeMissingColumn, "required column not found").
		WithContext("column", column).
		WithContext("available", available)
}

// InvalidTimestamp creates a timestamp parsing error.
func InvalidTimestamp(value string, row int) *BehaviorFlowError {
	return New(CodeInvalidTimestamp, "failed to parse timestamp").
		WithContext("value", value).
		WithContext("row", row)
}

// ParseError wraps a decoder error with its input position.
func ParseError(format string, row int, err error) *BehaviorFlowError {
	return Wrap(err, CodeParseFailed, "parse error").
		WithContext("format", format).
		WithContext("row", row)
}

// InvalidSession creates a precondition error naming the offending session.
func InvalidSession(sessionID, reason string) *BehaviorFlowError {
	return New(CodeInvalidSession, reason).
		WithContext("session", sessionID)
}

// ModelNotFound creates a model store lookup error.
func ModelNotFound(id string) *BehaviorFlowError {
	return New(CodeModelNotFound, "model not found").
		WithContext("id", id)
}

// IsCode reports whether err or any error it wraps has code.
func IsCode(err error, code Code) bool {
	var bfErr *BehaviorFlowError
	if errors.As(err, &bfErr) {
		return bfErr.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var bfErr *BehaviorFlowError
	if errors.As(err, &bfErr) {
		return bfErr.Code
	}
	return CodeUnknown
}

// IsRetryable reports whether retrying the failed operation may succeed.
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case CodeTimeout, CodeStoreRead, CodeStoreWrite:
		return true
	default:
		return false
	}
}

// IsFatal reports whether err indicates a bug or corrupt input that no
// retry can fix.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case CodePanic, CodeInvalidSession:
		return true
	default:
		return false
	}
}

// MultiError collects independent failures, e.g. one per batch input.
type MultiError struct {
	Errors []error
}

// Error lists the collected errors, one per line.
func (m *MultiError) Error() string {
	switch len(m.Errors) {
	case 0:
		return "no errors"
	case 1:
		return m.Errors[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d errors occurred:\n", len(m.Errors))
	for i, err := range m.Errors {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err)
	}
	return sb.String()
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Add records err if it is not nil.
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// HasErrors reports whether any errors were collected.
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// Combined returns nil, the only error, or m.
func (m *MultiError) Combined() error {
	switch len(m.Errors) {
	case 0:
		return nil
	case 1:
		return m.Errors[0]
	default:
		return m
	}
}
