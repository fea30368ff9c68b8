package model

import (
	"errors"
	"fmt"
)

// Kind classifies a failed operation.
type Kind string

const (
	KindEmptyInput            Kind = "empty_input"
	KindMissingSelection      Kind = "missing_selection"
	KindCapabilityUnavailable Kind = "capability_unavailable"
	KindInsufficientContent   Kind = "insufficient_content"
	KindExternalFailure       Kind = "external_failure"
	KindStaleResult           Kind = "stale_result"
	KindInvalidAnswer         Kind = "invalid_answer"
	KindSessionBusy           Kind = "session_busy"
	KindSessionClosed         Kind = "session_closed"
	KindUnsupportedFormat     Kind = "unsupported_format"
	KindUnreadableDocument    Kind = "unreadable_document"
)

var (
	ErrEmptyInput            = errors.New("empty input")
	ErrMissingSelection      = errors.New("missing selection")
	ErrCapabilityUnavailable = errors.New("capability unavailable")
	ErrInsufficientContent   = errors.New("insufficient content")
	ErrExternalFailure       = errors.New("external failure")
	ErrStaleResult           = errors.New("stale result")
	ErrInvalidAnswer         = errors.New("invalid answer")
	ErrSessionBusy           = errors.New("session busy")
	ErrSessionClosed         = errors.New("session closed")
	ErrUnsupportedFormat     = errors.New("unsupported document format")
	ErrUnreadableDocument    = errors.New("unreadable document")
)

var sentinels = map[Kind]error{
	KindEmptyInput:            ErrEmptyInput,
	KindMissingSelection:      ErrMissingSelection,
	KindCapabilityUnavailable: ErrCapabilityUnavailable,
	KindInsufficientContent:   ErrInsufficientContent,
	KindExternalFailure:       ErrExternalFailure,
	KindStaleResult:           ErrStaleResult,
	KindInvalidAnswer:         ErrInvalidAnswer,
	KindSessionBusy:           ErrSessionBusy,
	KindSessionClosed:         ErrSessionClosed,
	KindUnsupportedFormat:     ErrUnsupportedFormat,
	KindUnreadableDocument:    ErrUnreadableDocument,
}

// Error is a discriminated failure of a single operation.
type Error struct {
	Kind Kind
	Op   string // e.g. "convert.braille", "quiz.submit"
	Err  error  // underlying cause, may be nil
}

// E builds an *Error. cause may be nil.
func E(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if s, ok := sentinels[e.Kind]; ok {
		msg = s.Error()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e.Kind, so errors.Is(err, ErrStaleResult) works.
func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
