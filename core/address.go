package core

import (
	"regexp"
	"strings"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// IsValidAddress reports whether s is a 0x-prefixed, 40 hex character address
func IsValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// NormalizeAddress validates an address and returns its lowercase form.
// Normalizing an already normalized address returns it unchanged.
func NormalizeAddress(s string) (string, error) {
	if !IsValidAddress(s) {
		return "", ErrInvalidAddress
	}
	return strings.ToLower(s), nil
}

// SameAddress compares two addresses case-insensitively
func SameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}
