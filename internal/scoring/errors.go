package scoring

import (
	"errors"
	"fmt"
)

// Code identifies a class of engine failure. Codes are stable and appear
// on the wire in failure responses.
type Code string

const (
	CodeInputMalformed         Code = "INPUT_MALFORMED"
	CodeNonConvergence         Code = "NON_CONVERGENCE"
	CodeEnvironmentUnsupported Code = "ENVIRONMENT_UNSUPPORTED"
	CodeWorkerTerminated       Code = "WORKER_TERMINATED"
)

// EngineError is the single error type surfaced to callers of the engine.
type EngineError struct {
	Code      Code
	Message   string
	RequestID *int
	Err       error
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is matches any EngineError carrying the same code, so the package
// sentinels work with errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrInputMalformed         = &EngineError{Code: CodeInputMalformed, Message: "input malformed"}
	ErrNonConvergence         = &EngineError{Code: CodeNonConvergence, Message: "influence propagation did not converge"}
	ErrEnvironmentUnsupported = &EngineError{Code: CodeEnvironmentUnsupported, Message: "isolated execution unavailable"}
	ErrWorkerTerminated       = &EngineError{Code: CodeWorkerTerminated, Message: "worker terminated"}
)

// NewError builds an EngineError with a formatted message.
func NewError(code Code, format string, args ...any) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an EngineError around an underlying cause.
func Wrap(code Code, err error, message string) *EngineError {
	return &EngineError{Code: code, Message: message, Err: err}
}

// WithRequestID returns a copy of e correlated with a request.
func (e *EngineError) WithRequestID(id int) *EngineError {
	cp := *e
	cp.RequestID = &id
	return &cp
}

// CodeOf extracts the engine code from err. Errors that are not
// EngineErrors are reported as malformed input.
func CodeOf(err error) Code {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return CodeInputMalformed
}
