package domain

import (
	"errors"
	"regexp"
	"strings"
)

// IdentifierLength is the fixed length of a marketplace product identifier.
const IdentifierLength = 10

var identifierPattern = regexp.MustCompile(`^[A-Z0-9]{10}$`)

// ErrInvalidIdentifier is returned when a string is not a well-formed identifier.
var ErrInvalidIdentifier = errors.New("invalid product identifier")

// Identifier is the marketplace-assigned product key (for example "B08NWQ8JRF").
// At most one CanonicalProduct exists per Identifier.
type Identifier string

// ParseIdentifier upper-cases and validates s.
func ParseIdentifier(s string) (Identifier, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if !identifierPattern.MatchString(s) {
		return "", ErrInvalidIdentifier
	}
	return Identifier(s), nil
}

// IsIdentifier reports whether s is already a well-formed identifier,
// without case folding.
func IsIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// String implements fmt.Stringer.
func (id Identifier) String() string {
	return string(id)
}
