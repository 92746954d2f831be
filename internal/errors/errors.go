package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// ErrorType represents the category of error
type ErrorType int

const (
	// Configuration errors - missing or invalid configuration
	ErrorTypeConfig ErrorType = iota
	// Validation errors - user supplied a value a view cannot accept
	ErrorTypeValidation
	// Parse errors - malformed frames or payloads from the backend
	ErrorTypeParse
	// Network errors - network connectivity issues
	ErrorTypeNetwork
	// Channel errors - the bidirectional channel refused or dropped a frame
	ErrorTypeChannel
	// OAuth errors - popup or authorization handshake failures
	ErrorTypeOAuth
	// External errors - backend service failures
	ErrorTypeExternal
	// Internal errors - unexpected internal state
	ErrorTypeInternal
	// Security errors - rejected or missing credentials
	ErrorTypeSecurity
)

var typeNames = [...]string{
	ErrorTypeConfig:     "config",
	ErrorTypeValidation: "validation",
	ErrorTypeParse:      "parse",
	ErrorTypeNetwork:    "network",
	ErrorTypeChannel:    "channel",
	ErrorTypeOAuth:      "oauth",
	ErrorTypeExternal:   "external",
	ErrorTypeInternal:   "internal",
	ErrorTypeSecurity:   "security",
}

func (t ErrorType) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return "unknown"
	}
	return typeNames[t]
}

// Severity represents how critical an error is
type Severity int

const (
	// SeverityLow - the current view keeps working
	SeverityLow Severity = iota
	// SeverityMedium - the user has to correct something
	SeverityMedium
	// SeverityHigh - the current interaction fails
	SeverityHigh
	// SeverityCritical - the command cannot continue
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	}
	return "unknown"
}

// Error is a categorized error carrying optional key/value context
type Error struct {
	Type       ErrorType
	Severity   Severity
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext attaches a key/value pair and returns e for chaining
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Is reports a match against another *Error of the same type, so callers
// can test categories with errors.Is(err, &Error{Type: ...})
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

func (e *Error) IsFatal() bool {
	return e.Severity == SeverityCritical
}

// DetailedString renders the error for debug logs
func (e *Error) DetailedString() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] [%s] %s\n",
		strings.ToUpper(e.Severity.String()), strings.ToUpper(e.Type.String()), e.Message)

	if e.Cause != nil {
		fmt.Fprintf(&sb, "Caused by: %v\n", e.Cause)
	}
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("Context:\n")
		for _, k := range keys {
			fmt.Fprintf(&sb, "  %s: %v\n", k, e.Context[k])
		}
	}
	if e.StackTrace != "" {
		fmt.Fprintf(&sb, "Stack trace:\n%s\n", e.StackTrace)
	}
	return sb.String()
}

func callers(skip int) string {
	pcs := make([]uintptr, 10)
	n := runtime.Callers(skip+1, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var sb strings.Builder
	for {
		f, more := frames.Next()
		fmt.Fprintf(&sb, "  %s:%d %s\n", f.File, f.Line, f.Function)
		if !more {
			break
		}
	}
	return sb.String()
}

// New creates an error with no cause
func New(errType ErrorType, severity Severity, message string) *Error {
	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		StackTrace: callers(2),
	}
}

// Wrap returns nil when err is nil
func Wrap(err error, errType ErrorType, severity Severity, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Cause:      err,
		StackTrace: callers(2),
	}
}

func ConfigError(message string) *Error {
	return New(ErrorTypeConfig, SeverityCritical, message)
}

func ConfigErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeConfig, SeverityCritical, fmt.Sprintf(format, args...))
}

func ValidationError(message string) *Error {
	return New(ErrorTypeValidation, SeverityMedium, message)
}

func ValidationErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeValidation, SeverityMedium, fmt.Sprintf(format, args...))
}

// FieldError is a validation error naming the input that was rejected
func FieldError(field, message string) *Error {
	return ValidationError(message).WithContext("field", field)
}

func ParseError(err error, message string) *Error {
	return Wrap(err, ErrorTypeParse, SeverityMedium, message)
}

func NetworkError(err error, message string) *Error {
	return Wrap(err, ErrorTypeNetwork, SeverityHigh, message)
}

func NetworkErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, ErrorTypeNetwork, SeverityHigh, fmt.Sprintf(format, args...))
}

func ChannelError(err error, message string) *Error {
	return Wrap(err, ErrorTypeChannel, SeverityHigh, message)
}

func OAuthError(err error, message string) *Error {
	return Wrap(err, ErrorTypeOAuth, SeverityHigh, message)
}

func ExternalError(err error, message string) *Error {
	return Wrap(err, ErrorTypeExternal, SeverityMedium, message)
}

func ExternalErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, ErrorTypeExternal, SeverityMedium, fmt.Sprintf(format, args...))
}

func SecurityError(message string) *Error {
	return New(ErrorTypeSecurity, SeverityCritical, message)
}

// IsFatal reports whether err should stop the current command
func IsFatal(err error) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.IsFatal()
	}
	return false
}

// GetSeverity defaults to SeverityMedium for foreign errors
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityLow
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Severity
	}
	return SeverityMedium
}

// GetType defaults to ErrorTypeInternal for foreign errors
func GetType(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeInternal
}

// Field returns the rejected input of a FieldError, or ""
func Field(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		if f, ok := e.Context["field"].(string); ok {
			return f
		}
	}
	return ""
}
