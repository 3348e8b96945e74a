// Package validator gates translation input on its trimmed length.
package validator

import (
	"strings"
	"unicode/utf16"
)

const (
	// DefaultMinLength is the shortest trimmed input worth translating.
	DefaultMinLength = 2
	// DefaultMaxLength is the longest trimmed input accepted at all.
	DefaultMaxLength = 5000
)

// Guard checks input length. Lengths are UTF-16 code units of the input
// with leading and trailing whitespace removed, so a character outside the
// Basic Multilingual Plane counts twice. The untrimmed input is what callers
// store and send.
type Guard struct {
	MinLength int
	MaxLength int
}

// New returns a Guard, substituting the defaults for non-positive bounds.
func New(minLength, maxLength int) Guard {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return Guard{MinLength: minLength, MaxLength: maxLength}
}

// Length returns the UTF-16 length of the trimmed input.
func Length(input string) int {
	n := 0
	for _, r := range strings.TrimSpace(input) {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}

// Accept reports whether input may be committed. Inputs over MaxLength are
// rejected silently; this is a guard, not an error.
func (g Guard) Accept(input string) bool {
	return Length(input) <= g.MaxLength
}

// Translatable reports whether input is long enough to translate.
func (g Guard) Translatable(input string) bool {
	return Length(input) >= g.MinLength
}

// Empty reports whether input has no content once trimmed.
func Empty(input string) bool {
	return strings.TrimSpace(input) == ""
}
