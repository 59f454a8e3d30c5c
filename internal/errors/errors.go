package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode error code type
type ErrorCode int

// Error codes, grouped by failure class.
const (
	// General / validation (1000-1999). Recoverable: the input is dropped.
	ErrUnknown       ErrorCode = 1000
	ErrInvalidParam  ErrorCode = 1001
	ErrNotFound      ErrorCode = 1002
	ErrInvalidEvent  ErrorCode = 1003
	ErrMissingArg    ErrorCode = 1004
	ErrCanceled      ErrorCode = 1005
	ErrNotPermitted  ErrorCode = 1006

	// Game guards (2000-2999). Recoverable: reported back to the player.
	ErrGameNotStarted ErrorCode = 2000
	ErrGuardRejected  ErrorCode = 2001
	ErrWrongStep      ErrorCode = 2002
	ErrNotEligible    ErrorCode = 2003

	// Transport (3000-3999)
	ErrTransportConnect ErrorCode = 3000
	ErrTransportSend    ErrorCode = 3001
	ErrTransportClosed  ErrorCode = 3002

	// Resolution (4000-4999). Fatal.
	ErrDestinationUnresolved ErrorCode = 4000
	ErrUnsupportedOperation  ErrorCode = 4001
	ErrMessageFormat         ErrorCode = 4002

	// Persistence (5000-5999). Fatal.
	ErrPersistenceRead  ErrorCode = 5000
	ErrPersistenceWrite ErrorCode = 5001
	ErrUnknownStep      ErrorCode = 5002
	ErrDatabaseConnect  ErrorCode = 5003
	ErrDataIntegrity    ErrorCode = 5004

	// Configuration (6000-6999)
	ErrConfigLoad     ErrorCode = 6000
	ErrConfigParse    ErrorCode = 6001
	ErrConfigValidate ErrorCode = 6002
	ErrConfigMissing  ErrorCode = 6003

	// Security (7000-7999)
	ErrAuthentication ErrorCode = 7000
	ErrAuthorization  ErrorCode = 7001
	ErrTokenExpired   ErrorCode = 7002
	ErrTokenInvalid   ErrorCode = 7003
)

var errorMessages = map[ErrorCode]string{
	ErrUnknown:      "unknown error",
	ErrInvalidParam: "invalid parameter",
	ErrNotFound:     "not found",
	ErrInvalidEvent: "invalid event",
	ErrMissingArg:   "missing command argument",
	ErrCanceled:     "operation canceled",
	ErrNotPermitted: "not permitted",

	ErrGameNotStarted: "game has not started",
	ErrGuardRejected:  "action rejected",
	ErrWrongStep:      "action not allowed in the current step",
	ErrNotEligible:    "player not eligible",

	ErrTransportConnect: "transport connect failed",
	ErrTransportSend:    "transport send failed",
	ErrTransportClosed:  "transport closed",

	ErrDestinationUnresolved: "destination could not be resolved",
	ErrUnsupportedOperation:  "unsupported transport operation",
	ErrMessageFormat:         "malformed message",

	ErrPersistenceRead:  "persistence read failed",
	ErrPersistenceWrite: "persistence write failed",
	ErrUnknownStep:      "unknown persisted step",
	ErrDatabaseConnect:  "database connect failed",
	ErrDataIntegrity:    "data integrity error",

	ErrConfigLoad:     "config load failed",
	ErrConfigParse:    "config parse failed",
	ErrConfigValidate: "config validation failed",
	ErrConfigMissing:  "config value missing",

	ErrAuthentication: "authentication failed",
	ErrAuthorization:  "authorization failed",
	ErrTokenExpired:   "token expired",
	ErrTokenInvalid:   "invalid token",
}

// AppError application error
type AppError struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Details string       `json:"details"`
	Cause   error        `json:"-"`
	Stack   []StackFrame `json:"stack,omitempty"`
}

// StackFrame call stack frame
type StackFrame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails sets the details
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithCause sets the cause, copying its text into Details when empty.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	if cause != nil && e.Details == "" {
		e.Details = cause.Error()
	}
	return e
}

// New creates an application error
func New(code ErrorCode, details ...string) *AppError {
	message, ok := errorMessages[code]
	if !ok {
		message = errorMessages[ErrUnknown]
	}

	err := &AppError{
		Code:    code,
		Message: message,
	}
	if len(details) > 0 {
		err.Details = strings.Join(details, "; ")
	}
	err.captureStack(2)
	return err
}

// Newf creates an application error with formatted details
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps err. An AppError keeps its original code.
func Wrap(err error, code ErrorCode, details ...string) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		if len(details) > 0 {
			appErr.Details = strings.Join(details, "; ") + "; " + appErr.Details
		}
		return appErr
	}

	wrapped := New(code, details...)
	wrapped.Cause = err
	if wrapped.Details == "" {
		wrapped.Details = err.Error()
	} else {
		wrapped.Details += ": " + err.Error()
	}
	return wrapped
}

// Wrapf wraps err with formatted details
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Code == code
}

// GetCode returns the code of the first AppError in the chain.
func GetCode(err error) ErrorCode {
	if err == nil {
		return 0
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrUnknown
}

func (e *AppError) captureStack(skip int) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	if n == 0 {
		return
	}

	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if strings.Contains(frame.Function, "runtime.") ||
			strings.Contains(frame.Function, "github.com/wfunc/emojirades/internal/errors") {
			if !more {
				break
			}
			continue
		}

		e.Stack = append(e.Stack, StackFrame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(e.Stack) >= 10 {
			break
		}
	}
}

// GetStack returns the formatted call stack
func (e *AppError) GetStack() string {
	if len(e.Stack) == 0 {
		return ""
	}
	var builder strings.Builder
	for i, frame := range e.Stack {
		builder.WriteString(fmt.Sprintf("%d. %s\n   %s:%d\n", i+1, frame.Function, frame.File, frame.Line))
	}
	return builder.String()
}

// HTTPStatus maps the code to an HTTP status
func (e *AppError) HTTPStatus() int {
	switch {
	case e.Code == ErrNotFound:
		return 404
	case e.Code >= 1001 && e.Code <= 1999:
		return 400
	case e.Code >= 2000 && e.Code <= 2999:
		return 409
	case e.Code == ErrAuthorization:
		return 403
	case e.Code >= 7000 && e.Code <= 7999:
		return 401
	case e.Code >= 5000 && e.Code <= 5999:
		return 503
	default:
		return 500
	}
}

// IsRecoverable reports validation and guard failures. Processing continues
// with the next event.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	code := GetCode(err)
	return code >= 1000 && code <= 2999 && code != ErrUnknown
}

// IsFatal reports resolution and persistence failures.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	code := GetCode(err)
	return (code >= 4000 && code <= 5999) || code == ErrUnknown
}

// ErrorResponse API error body
type ErrorResponse struct {
	Success   bool      `json:"success"`
	Error     *AppError `json:"error,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// NewErrorResponse builds an API error body
func NewErrorResponse(err *AppError, requestID string) *ErrorResponse {
	return &ErrorResponse{
		Success:   false,
		Error:     err,
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	}
}
