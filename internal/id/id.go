// Package id generates prefixed record identifiers.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for catalog records.
const (
	PrefixCanonical  = "prd"
	PrefixSubmission = "sub"
)

// Generate returns prefix-nanoid, e.g. "prd-V1StGXR8_Z5jdHi6B-myT".
func Generate(prefix string) (string, error) {
	n, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + n, nil
}

// MustGenerate is like Generate but panics when the system lacks entropy.
func MustGenerate(prefix string) string {
	v, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return v
}

// Canonical returns a new canonical product ID.
func Canonical() (string, error) {
	return Generate(PrefixCanonical)
}

// Submission returns a new unofficial submission ID.
func Submission() (string, error) {
	return Generate(PrefixSubmission)
}
