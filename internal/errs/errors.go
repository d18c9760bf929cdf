// Package errs defines the error kinds produced by the forecasting pipeline.
// Callers classify failures with errors.As or KindOf.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindInsufficientHistory
	KindSchemaMismatch
	KindModelInference
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindInsufficientHistory:
		return "insufficient_history"
	case KindSchemaMismatch:
		return "schema_mismatch"
	case KindModelInference:
		return "model_inference"
	default:
		return "unknown"
	}
}

// ValidationError reports a malformed input record.
type ValidationError struct {
	Index  int // -1 when not tied to a single record
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	msg := e.Reason
	if e.Index >= 0 {
		msg = fmt.Sprintf("record %d: %s", e.Index, e.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

func Validation(index int, reason string, err error) error {
	return &ValidationError{Index: index, Reason: reason, Err: err}
}

type InsufficientHistoryError struct {
	Have int
	Need int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("need at least %d hours of data, got %d hours", e.Need, e.Have)
}

func InsufficientHistory(have, need int) error {
	return &InsufficientHistoryError{Have: have, Need: need}
}

// SchemaMismatchError means the feature column list and the model (or the
// feature catalog) disagree, or that either could not be loaded.
type SchemaMismatchError struct {
	Reason  string
	Unknown []string
	Err     error
}

func (e *SchemaMismatchError) Error() string {
	msg := "schema mismatch: " + e.Reason
	if len(e.Unknown) > 0 {
		msg += ": " + strings.Join(e.Unknown, ", ")
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SchemaMismatchError) Unwrap() error { return e.Err }

func SchemaMismatch(reason string, unknown ...string) error {
	return &SchemaMismatchError{Reason: reason, Unknown: unknown}
}

// SchemaMismatchCause wraps a failure to read or parse the model artifact
// or its column list.
func SchemaMismatchCause(reason string, err error) error {
	return &SchemaMismatchError{Reason: reason, Err: err}
}

type ModelInferenceError struct {
	Step int // forecast hour, 0 outside the loop
	Err  error
}

func (e *ModelInferenceError) Error() string {
	if e.Step > 0 {
		return fmt.Sprintf("model inference failed at forecast hour %d: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("model inference failed: %v", e.Err)
}

func (e *ModelInferenceError) Unwrap() error { return e.Err }

func ModelInference(step int, err error) error {
	return &ModelInferenceError{Step: step, Err: err}
}

// KindOf classifies err by the pipeline errors in its chain. When several
// are present the kind is chosen in a fixed order: validation, insufficient
// history, schema mismatch, then model inference.
func KindOf(err error) Kind {
	var (
		ve *ValidationError
		ie *InsufficientHistoryError
		se *SchemaMismatchError
		me *ModelInferenceError
	)
	switch {
	case err == nil:
		return KindUnknown
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &ie):
		return KindInsufficientHistory
	case errors.As(err, &se):
		return KindSchemaMismatch
	case errors.As(err, &me):
		return KindModelInference
	}
	return KindUnknown
}

// IsClientError reports whether err was caused by the caller's input.
func IsClientError(err error) bool {
	k := KindOf(err)
	return k == KindValidation || k == KindInsufficientHistory
}
