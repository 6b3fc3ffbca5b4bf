package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies a failed invocation.
type Kind int

const (
	KindInternal Kind = iota
	KindConfiguration
	KindValidation
	KindDecode
	KindAnnotation
	KindArchive
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindValidation:
		return "validation"
	case KindDecode:
		return "decode"
	case KindAnnotation:
		return "annotation"
	case KindArchive:
		return "archive"
	default:
		return "internal"
	}
}

// ClientCaused reports whether the failure originates in the submitted
// content rather than the service.
func (k Kind) ClientCaused() bool {
	return k == KindValidation || k == KindDecode
}

// Class is "client" or "server".
func (k Kind) Class() string {
	if k.ClientCaused() {
		return "client"
	}
	return "server"
}

// State is a pipeline stage.
type State string

const (
	StateReceived     State = "RECEIVED"
	StateValidated    State = "VALIDATED"
	StateCredentialed State = "CREDENTIALED"
	StateNormalized   State = "NORMALIZED"
	StateAnnotated    State = "ANNOTATED"
	StatePublished    State = "PUBLISHED"
	StateFailed       State = "FAILED"
)

var (
	ErrNoContent  = errors.New("event has no content handle")
	ErrEmptyInput = errors.New("input is empty")
	ErrTooLarge   = errors.New("input exceeds maximum image size")
)

// Error is a failed invocation. Step is the last state reached before the
// failure.
type Error struct {
	Kind     Kind
	Step     State
	RunID    string
	Object   string
	URI      string
	Size     int64
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error after %s for %q: %v", e.Kind, e.Step, e.Object, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of a pipeline error, or KindInternal.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}
