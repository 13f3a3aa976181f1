package validation

import (
	"errors"
	"strings"
	"unicode"
)

// ErrInputEmpty is returned when input is empty or whitespace-only after trim.
var ErrInputEmpty = errors.New("input is required")

// ErrInputTooLong is returned when input length exceeds the maximum.
var ErrInputTooLong = errors.New("input too long")

// ErrInputInvalidChars is returned when input contains disallowed characters.
var ErrInputInvalidChars = errors.New("input contains invalid characters")

// ValidateInput trims the raw lookup input and enforces a maximum length
// (maxLen in runes) and allowed characters: letters (Unicode), digits, space,
// comma, hyphen, period. The character set covers place names, postal codes,
// and signed decimal coordinate pairs. Classification happens downstream.
func ValidateInput(input string, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrInputEmpty
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrInputTooLong
	}
	for _, c := range r {
		if !isAllowedInputRune(c) {
			return "", ErrInputInvalidChars
		}
	}
	return s, nil
}

// isAllowedInputRune returns true for letters (Unicode), digits, space,
// comma, hyphen, period.
func isAllowedInputRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.':
		return true
	}
	return false
}
