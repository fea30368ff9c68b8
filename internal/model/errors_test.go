package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIsSentinel(t *testing.T) {
	err := E(KindStaleResult, "convert", nil)
	if !errors.Is(err, ErrStaleResult) {
		t.Error("expected errors.Is to match ErrStaleResult")
	}
	if errors.Is(err, ErrExternalFailure) {
		t.Error("stale result should not match ErrExternalFailure")
	}
}

func TestErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("wrapped: %w", E(KindExternalFailure, "convert.braille", cause))

	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable through Unwrap")
	}
	if !errors.Is(err, ErrExternalFailure) {
		t.Error("expected sentinel match through wrapping")
	}
	if got := KindOf(err); got != KindExternalFailure {
		t.Errorf("KindOf = %q, want %q", got, KindExternalFailure)
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"kind only", E(KindEmptyInput, "", nil), "empty input"},
		{"with op", E(KindInsufficientContent, "quiz.synthesize", nil), "quiz.synthesize: insufficient content"},
		{"with cause", E(KindExternalFailure, "llm.chat", errors.New("timeout")), "llm.chat: external failure: timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKindOfPlainError(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != "" {
		t.Errorf("KindOf(plain) = %q, want empty", got)
	}
}

func TestProfileValid(t *testing.T) {
	for _, p := range []Profile{ProfileVisual, ProfileHearing, ProfileBraille} {
		if !p.Valid() {
			t.Errorf("%q should be valid", p)
		}
	}
	for _, p := range []Profile{"", "tactile", "Visual"} {
		if p.Valid() {
			t.Errorf("%q should be invalid", p)
		}
	}
}
