package model

import "fmt"

// ErrorCode is the stable code attached to terminal pipeline errors.
type ErrorCode string

const (
	// ErrCodePlanning is internal only. Planning failures are always
	// recovered by the single-sub-query fallback and never surfaced.
	ErrCodePlanning ErrorCode = "PLANNING_ERROR"

	ErrCodeSynthesis           ErrorCode = "SYNTHESIS_ERROR"
	ErrCodeTimeout             ErrorCode = "TIMEOUT"
	ErrCodeUpstreamUnavailable ErrorCode = "UPSTREAM_UNAVAILABLE"
)

// PipelineError is a terminal, user-visible pipeline failure.
type PipelineError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// NewPipelineError creates a terminal pipeline error with a stable code.
func NewPipelineError(code ErrorCode, message string, cause error) *PipelineError {
	return &PipelineError{Code: code, Message: message, Cause: cause}
}
