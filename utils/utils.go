// Package utils provides utility functions for the application.
package utils

import (
	"strings"
	"unicode"
)

func ToPtr[T any](v T) *T {
	return &v
}

func IsTrue(b *bool) bool {
	return b != nil && *b
}

// NormalizePhoneNumber strips formatting characters and returns an E.164-ish
// number. Numbers shorter than 10 digits are rejected with an empty string.
func NormalizePhoneNumber(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) < 10 {
		return ""
	}
	if strings.HasPrefix(digits, "1") && len(digits) == 11 {
		return "+" + digits
	}
	if len(digits) == 10 {
		return "+1" + digits
	}
	return "+" + digits
}
