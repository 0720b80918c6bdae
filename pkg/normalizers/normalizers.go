// Package normalizers provides field normalization for supplier identity keys
package normalizers

import (
	"strings"
	"unicode"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("norgname", NormalizeOrganizationName)
	Register("nemail", NormalizeEmail)
	Register("nkvk", NormalizeKVK)
	Register("digits_only", DigitsOnly)
	Register("remove_whitespace", RemoveWhitespace)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// NormalizeEmail normalizes an email address (lowercase, trim)
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// DigitsOnly removes all non-digit characters
func DigitsOnly(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// RemoveWhitespace removes all whitespace characters
func RemoveWhitespace(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsSpace(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// NormalizeKVK reduces a KVK (Dutch business registry) number to its digits.
// KVK numbers are 8 digits; sources sometimes carry them with dots or a
// "KVK " prefix.
func NormalizeKVK(s string) string {
	return DigitsOnly(s)
}

// legalSuffixes are Dutch legal-form suffixes that vary between notices for
// the same supplier ("Acme B.V." vs "Acme BV" vs "Acme"). Checked against
// the final tokens of an already lowercased, punctuation-free name.
var legalSuffixes = []string{
	"bv", "nv", "vof", "cv", "coop", "ua",
}

// NormalizeOrganizationName normalizes a supplier name for identity matching:
// lowercase, punctuation removed, whitespace collapsed, trailing Dutch
// legal-form suffixes stripped.
func NormalizeOrganizationName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
		// punctuation dropped: "b.v." and "bv" collapse to the same token
	}

	tokens := strings.Fields(b.String())
	for len(tokens) > 1 {
		last := tokens[len(tokens)-1]
		stripped := false
		for _, suffix := range legalSuffixes {
			if last == suffix {
				tokens = tokens[:len(tokens)-1]
				stripped = true
				break
			}
		}
		if !stripped {
			break
		}
	}

	return strings.Join(tokens, " ")
}
