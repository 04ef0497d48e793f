package domain

import (
	"errors"
	"fmt"
)

// ErrNoCandidates marks a step that yielded zero candidates. Recoverable:
// the step is still emitted with sentinel entropy 0 and the condition is
// surfaced as a warning, never as a failed analysis.
var ErrNoCandidates = errors.New("step yielded no token candidates")

// ConfigurationError means a collaborator required for the detected backend
// path was not supplied. Fatal; raised before any step processing.
type ConfigurationError struct {
	Backend Backend
	Missing string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s backend requires %s", e.Backend, e.Missing)
}

func NewConfigurationError(backend Backend, missing string) *ConfigurationError {
	return &ConfigurationError{Backend: backend, Missing: missing}
}

// UnsupportedOutputError means a generation output matched none of the
// recognised backend shapes. Fatal.
type UnsupportedOutputError struct {
	Detail string
}

func (e *UnsupportedOutputError) Error() string {
	if e.Detail == "" {
		return "generation output matches no known backend shape"
	}
	return fmt.Sprintf("generation output matches no known backend shape: %s", e.Detail)
}

// ExtractionError wraps a failure while normalising one backend's output
// into per-step candidate lists.
type ExtractionError struct {
	Err     error
	Backend Backend
	Step    int
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s extraction failed at step %d: %v", e.Backend, e.Step, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func NewExtractionError(backend Backend, step int, err error) *ExtractionError {
	return &ExtractionError{Backend: backend, Step: step, Err: err}
}

// InsightError records a failed call to the insight backend. Recoverable:
// the analysis result is returned with the insight absent and this error
// attached to its warnings.
type InsightError struct {
	Err   error
	Model string
}

func (e *InsightError) Error() string {
	return fmt.Sprintf("insight generation with %s failed: %v", e.Model, e.Err)
}

func (e *InsightError) Unwrap() error { return e.Err }

func NewInsightError(model string, err error) *InsightError {
	return &InsightError{Model: model, Err: err}
}

// ConfigValidationError reports an invalid estimator or application
// configuration value.
type ConfigValidationError struct {
	Value  interface{}
	Field  string
	Reason string
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("invalid configuration for %s=%v: %s", e.Field, e.Value, e.Reason)
}
