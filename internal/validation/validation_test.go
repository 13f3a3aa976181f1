package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateInput_EmptyAndWhitespace(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"spaces", "   "},
		{"tab", "\t"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateInput(tc.input, 100)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, ErrInputEmpty) {
				t.Errorf("error = %v, want ErrInputEmpty", err)
			}
		})
	}
}

func TestValidateInput_TooLong(t *testing.T) {
	long := strings.Repeat("a", 101)
	_, err := ValidateInput(long, 100)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, ErrInputTooLong) {
		t.Errorf("error = %v, want ErrInputTooLong", err)
	}
}

func TestValidateInput_InvalidChars(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"slash", "sea/ttle"},
		{"backslash", "sea\\ttle"},
		{"question", "sea?ttle"},
		{"hash", "sea#ttle"},
		{"control", "sea\x00ttle"},
		{"percent", "sea%ttle"},
		{"ampersand", "sea&ttle"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateInput(tc.input, 100)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, ErrInputInvalidChars) {
				t.Errorf("error = %v, want ErrInputInvalidChars", err)
			}
		})
	}
}

func TestValidateInput_Valid(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantNorm string
	}{
		{"simple", "Seattle", "Seattle"},
		{"with space", "New York", "New York"},
		{"comma", "London,uk", "London,uk"},
		{"hyphen", "Some-City", "Some-City"},
		{"trimmed", "  Boston  ", "Boston"},
		{"unicode", "Zürich", "Zürich"},
		{"postal", "90210-1234", "90210-1234"},
		{"coordinates", "37.5665, 126.9780", "37.5665, 126.9780"},
		{"negative coordinates", "-33.86, 151.20", "-33.86, 151.20"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateInput(tc.input, 100)
			if err != nil {
				t.Fatalf("ValidateInput() err = %v", err)
			}
			if got != tc.wantNorm {
				t.Errorf("normalized = %q, want %q", got, tc.wantNorm)
			}
		})
	}
}

func TestValidateInput_LengthBoundary(t *testing.T) {
	s100 := strings.Repeat("a", 100)
	got, err := ValidateInput(s100, 100)
	if err != nil {
		t.Fatalf("max boundary: err = %v", err)
	}
	if len([]rune(got)) != 100 {
		t.Errorf("max boundary: rune count = %d, want 100", len([]rune(got)))
	}
	if _, err = ValidateInput(s100+"a", 100); !errors.Is(err, ErrInputTooLong) {
		t.Errorf("over max: err = %v, want ErrInputTooLong", err)
	}
}
