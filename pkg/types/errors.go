package types

import "fmt"

// ErrorCategory classifies engine failures by how they propagate.
type ErrorCategory int

const (
	// CategoryDecodeMiss is an unrecognized transaction. Not a failure.
	CategoryDecodeMiss ErrorCategory = iota
	// CategorySafety is a hard safety disqualification.
	CategorySafety
	// CategorySubmission is a relay or network rejection or timeout.
	CategorySubmission
	// CategoryFatalConfig is a missing required collaborator. Halts the engine.
	CategoryFatalConfig
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryDecodeMiss:
		return "decode-miss"
	case CategorySafety:
		return "safety-disqualification"
	case CategorySubmission:
		return "submission-failure"
	case CategoryFatalConfig:
		return "fatal-configuration-error"
	}
	return "unknown"
}

// EngineError carries a display-ready reason and the wrapped cause.
type EngineError struct {
	Category ErrorCategory
	Reason   string // human-readable, safe for dashboards
	Err      error
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Reason)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// Fatal reports whether the error must stop the engine.
func (e *EngineError) Fatal() bool {
	return e.Category == CategoryFatalConfig
}

// NewFatalConfigError reports a missing collaborator at startup.
func NewFatalConfigError(reason string, err error) *EngineError {
	return &EngineError{Category: CategoryFatalConfig, Reason: reason, Err: err}
}

// NewSubmissionError wraps a transport failure behind a display reason.
func NewSubmissionError(reason string, err error) *EngineError {
	return &EngineError{Category: CategorySubmission, Reason: reason, Err: err}
}

// NewSafetyError records a hard safety disqualification.
func NewSafetyError(reason string) *EngineError {
	return &EngineError{Category: CategorySafety, Reason: reason}
}
