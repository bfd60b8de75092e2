// Package apperr defines the typed error kinds shared across adapters and
// the orchestrator, so that retry policies and frame-emission logic can
// switch on error kind rather than parsing error strings.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error categories of the pipeline.
type Kind string

// Error kinds.
const (
	KindConfig       Kind = "config"
	KindCache        Kind = "cache"
	KindRowStore     Kind = "row_store"
	KindTextIndex    Kind = "text_index"
	KindGraphEngine  Kind = "graph_engine"
	KindLLM          Kind = "llm"
	KindIntentParse  Kind = "intent_parse"
	KindRetrieval    Kind = "retrieval"
)

// Sentinel kind errors usable with errors.Is via Error.Is.
var (
	ErrConfig      = &Error{Kind: KindConfig}
	ErrCache       = &Error{Kind: KindCache}
	ErrRowStore    = &Error{Kind: KindRowStore}
	ErrTextIndex   = &Error{Kind: KindTextIndex}
	ErrGraphEngine = &Error{Kind: KindGraphEngine}
	ErrLLM         = &Error{Kind: KindLLM}
	ErrIntentParse = &Error{Kind: KindIntentParse}
	ErrRetrieval   = &Error{Kind: KindRetrieval}
)

// Error wraps an underlying error with a Kind and an optional Transient flag
// consulted by retry.TransientAppError, one of the conditions of retry.Simple.
type Error struct {
	Kind       Kind
	Op         string
	Transient  bool
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap exposes the wrapped error for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind, letting callers
// write errors.Is(err, apperr.ErrLLM) regardless of Op/Err/Transient.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds a new *Error of the given kind wrapping err.
func New(kind Kind, op string, transient bool, err error) *Error {
	return &Error{Kind: kind, Op: op, Transient: transient, Err: err}
}

// IsTransient reports whether err (or any error it wraps) is marked
// transient, i.e. eligible for retry.
func IsTransient(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Transient
	}
	return false
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, and ok=false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
