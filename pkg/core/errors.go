package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEngineUnavailable is matched (errors.Is) by every EngineUnavailableError.
var ErrEngineUnavailable = errors.New("engine unavailable")

// EngineUnavailableError reports that the embedded engine could not be started.
// It is fatal: the application cannot proceed without a session.
type EngineUnavailableError struct {
	Err error
}

func (e *EngineUnavailableError) Error() string {
	return fmt.Sprintf("engine unavailable: %v", e.Err)
}

func (e *EngineUnavailableError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrEngineUnavailable) work.
func (e *EngineUnavailableError) Is(target error) bool { return target == ErrEngineUnavailable }

// ErrObjectNotFound is wrapped by the EvaluationError returned for a name
// that does not exist in the session.
var ErrObjectNotFound = errors.New("object not found")

// EvaluationError reports that one generated expression failed inside the engine.
type EvaluationError struct {
	Expr    string
	Message string
	// Err optionally classifies the failure (ErrObjectNotFound).
	Err error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation failed: %s (expression: %s)", e.Message, compact(e.Expr))
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// NotTabularError reports that a requested object is not a rows × columns table.
type NotTabularError struct {
	Name  string
	Class string
}

func (e *NotTabularError) Error() string {
	return fmt.Sprintf("object %q is not tabular (class %s)", e.Name, e.Class)
}

// InvalidSpecError reports user-input validation failures found before any engine call.
type InvalidSpecError struct {
	Problems []string
}

func (e *InvalidSpecError) Error() string {
	return "invalid import spec: " + strings.Join(e.Problems, "; ")
}

// ColumnCountMismatchError reports a staged line whose field count differs from the header.
// Line is 1-based and counts the header line.
type ColumnCountMismatchError struct {
	Path string
	Line int
	Want int
	Got  int
}

func (e *ColumnCountMismatchError) Error() string {
	return fmt.Sprintf("%s: line %d has %d fields, header has %d", e.Path, e.Line, e.Got, e.Want)
}

// LoadError reports a failure to load a workspace image.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load workspace %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SaveError reports a failure to save a workspace image.
type SaveError struct {
	Path string
	Err  error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("failed to save workspace %s: %v", e.Path, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

// compact folds a multi-line expression onto one line for messages.
func compact(expr string) string {
	return strings.Join(strings.Fields(expr), " ")
}
