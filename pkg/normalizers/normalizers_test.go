package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "lowercases and trims",
			input:    "  Crystal Ballroom  ",
			expected: "crystal ballroom",
		},
		{
			name:     "drops leading article",
			input:    "The Crystal Ballroom",
			expected: "crystal ballroom",
		},
		{
			name:     "drops only the first article",
			input:    "A Night at the Opera",
			expected: "night at the opera",
		},
		{
			name:     "removes punctuation",
			input:    "O'Brien's Pub & Grill",
			expected: "obriens pub grill",
		},
		{
			name:     "collapses whitespace",
			input:    "tech    meetup\t\tportland",
			expected: "tech meetup portland",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
		{
			name:     "article only",
			input:    "The ",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeTitle(tt.input))
		})
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "strips scheme",
			input:    "https://example.com/events",
			expected: "example.com/events",
		},
		{
			name:     "strips www prefix",
			input:    "http://www.example.com",
			expected: "example.com",
		},
		{
			name:     "strips trailing slash",
			input:    "https://example.com/",
			expected: "example.com",
		},
		{
			name:     "lowercases",
			input:    "HTTPS://Example.COM/Events",
			expected: "example.com/events",
		},
		{
			name:     "bare host unchanged",
			input:    "example.com",
			expected: "example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeURL(tt.input))
		})
	}
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "5035551234", NormalizePhone("(503) 555-1234"))
	assert.Equal(t, "15035551234", NormalizePhone("+1 503.555.1234"))
	assert.Equal(t, "", NormalizePhone("no digits here"))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "info@example.com", NormalizeEmail("  Info@Example.COM "))
}

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "abbreviates street suffixes",
			input:    "1332 West Burnside Street",
			expected: "1332 w burnside st",
		},
		{
			name:     "removes punctuation",
			input:    "123 Main St., Apt. 4",
			expected: "123 main st apt 4",
		},
		{
			name:     "already abbreviated unchanged",
			input:    "1332 w burnside st",
			expected: "1332 w burnside st",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeAddress(tt.input))
		})
	}
}

func TestApplyChain(t *testing.T) {
	result := ApplyChain("  Hello,   World!  ", "trim", "lowercase", "remove_punctuation", "squeeze_whitespace")
	assert.Equal(t, "hello world", result)
}

func TestApplyUnknownNormalizer(t *testing.T) {
	assert.Equal(t, "unchanged", Apply("unchanged", "does_not_exist"))
}

func TestRegisterCustom(t *testing.T) {
	Register("reverse_test", func(s string) string {
		runes := []rune(s)
		for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
			runes[i], runes[j] = runes[j], runes[i]
		}
		return string(runes)
	})

	fn, ok := Get("reverse_test")
	assert.True(t, ok)
	assert.Equal(t, "cba", fn("abc"))
}
