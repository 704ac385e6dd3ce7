package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain_key", "ABCDE-12345-FGHIJ-67890", "ABCDE-12345-FGHIJ-67890"},
		{"trimmed", "  ABCDE-12345-FGHIJ-67890\n", "ABCDE-12345-FGHIJ-67890"},
		{"script", `<script>alert("x")</script>`, "&lt;script&gt;alert(&quot;x&quot;)&lt;&#x2F;script&gt;"},
		{"quotes_and_amp", `a&b'c`, "a&amp;b&#x27;c"},
		{"backslash_backtick", "a\\b`c", "a&#x5C;b&#96;c"},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeInput(tt.in))
		})
	}
}

func TestValidateEmail(t *testing.T) {
	assert.True(t, ValidateEmail("buyer@example.com"))
	assert.True(t, ValidateEmail("first.last+tag@sub.example.co"))
	assert.False(t, ValidateEmail(""))
	assert.False(t, ValidateEmail("buyer"))
	assert.False(t, ValidateEmail("buyer@"))
	assert.False(t, ValidateEmail("@example.com"))
}
