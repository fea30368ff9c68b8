package braille

import (
	"context"
	"errors"
	"testing"
)

func TestTransliterate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"arabic word", "مرحبا", "⠍⠗⠱⠃⠁"},
		{"lam alef ligature", "لا", "⠧"},
		{"lam alef hamza above", "لأن", "⠇⠌⠝"},
		{"lam alef hamza below", "لإ", "⠇⠨"},
		{"lam alef madda", "لآ", "⠇⠜"},
		{"ligature inside word", "سلام", "⠎⠧⠍"},
		{"tatweel dropped", "مـا", "⠍⠁"},
		{"latin capital", "Hi", "⠠⠓⠊"},
		{"number sign once per run", "42", "⠼⠙⠃"},
		{"arabic-indic digits", "٤٢", "⠼⠙⠃"},
		{"number run ends at space", "1 a", "⠼⠁ ⠁"},
		{"arabic question mark", "كيف؟", "⠅⠊⠋⠦"},
		{"spaces and newlines kept", "نعم\nلا", "⠝⠷⠍\n⠧"},
		{"unknown passes through", "☺", "☺"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Transliterate(tt.in); got != tt.want {
				t.Errorf("Transliterate(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDots(t *testing.T) {
	tests := []struct {
		in   string
		want rune
	}{
		{"", '⠀'},
		{"1", '⠁'},
		{"123456", '⠿'},
		{"3456", '⠼'},
	}
	for _, tt := range tests {
		if got := dots(tt.in); got != tt.want {
			t.Errorf("dots(%q) = %U, want %U", tt.in, got, tt.want)
		}
	}
}

func TestToBrailleCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (Table{}).ToBraille(ctx, "نص"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
