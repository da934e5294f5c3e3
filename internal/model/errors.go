// Package model fits, persists and serves the glucose and insulin
// regressors, with deterministic rule-based fallbacks.
package model

import (
	"errors"
	"fmt"
)

// ErrModelUnavailable means no usable artifact could be loaded. Predictors
// answer with the rule-based formula instead.
var ErrModelUnavailable = errors.New("model unavailable")

// InferenceError is a failure inside the ML path: a feature mismatch, a
// transform producing non-finite values, or a non-finite prediction.
type InferenceError struct {
	Model string
	Stage string
	Err   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference %s: %s: %v", e.Model, e.Stage, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// ValidationError rejects a caller-supplied request. No prediction, ML or
// fallback, is attempted for an invalid request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
