package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeOrganizationName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "lowercases and trims",
			input:    "  Bouwbedrijf Jansen  ",
			expected: "bouwbedrijf jansen",
		},
		{
			name:     "strips dotted legal suffix",
			input:    "Acme B.V.",
			expected: "acme",
		},
		{
			name:     "strips undotted legal suffix",
			input:    "Acme BV",
			expected: "acme",
		},
		{
			name:     "dotted and undotted spellings collapse to one key",
			input:    "De Vries Installatietechniek b.v.",
			expected: "de vries installatietechniek",
		},
		{
			name:     "strips stacked suffixes",
			input:    "Zorggroep Coop U.A.",
			expected: "zorggroep",
		},
		{
			name:     "keeps suffix when it is the whole name",
			input:    "BV",
			expected: "bv",
		},
		{
			name:     "drops punctuation and collapses whitespace",
			input:    "Van   der Berg & Zonen,  N.V.",
			expected: "van der berg zonen",
		},
		{
			name:     "nv stripped",
			input:    "Havenbedrijf Rotterdam N.V.",
			expected: "havenbedrijf rotterdam",
		},
		{
			name:     "vof stripped",
			input:    "Schildersbedrijf De Jong VOF",
			expected: "schildersbedrijf de jong",
		},
		{
			name:     "empty input",
			input:    "   ",
			expected: "",
		},
		{
			name:     "digits preserved",
			input:    "Groep 7 Detachering B.V.",
			expected: "groep 7 detachering",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeOrganizationName(tt.input))
		})
	}
}

func TestNormalizeKVK(t *testing.T) {
	assert.Equal(t, "12345678", NormalizeKVK("12345678"))
	assert.Equal(t, "12345678", NormalizeKVK("KVK 12345678"))
	assert.Equal(t, "12345678", NormalizeKVK("12.34.56.78"))
	assert.Equal(t, "", NormalizeKVK("onbekend"))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "info@acme.nl", NormalizeEmail("  Info@Acme.NL "))
}

func TestRegistry(t *testing.T) {
	fn, ok := Get("norgname")
	assert.True(t, ok)
	assert.Equal(t, "acme", fn("Acme B.V."))

	assert.Equal(t, "12345678", Apply("12.34.56.78", "nkvk"))

	// Unknown normalizer passes the value through.
	assert.Equal(t, "unchanged", Apply("unchanged", "nope"))
}

func TestDigitsOnly(t *testing.T) {
	assert.Equal(t, "0612345678", DigitsOnly("(06) 1234-5678"))
	assert.Equal(t, "", DigitsOnly("geen"))
}
