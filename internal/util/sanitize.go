package util

import (
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Same character set as validator.js escape(), so keys and session ids are
// normalized exactly like the checkout front end does.
var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	`"`, "&quot;",
	"'", "&#x27;",
	"<", "&lt;",
	">", "&gt;",
	"/", "&#x2F;",
	`\`, "&#x5C;",
	"`", "&#96;",
)

// SanitizeInput trims s and HTML-escapes it.
func SanitizeInput(s string) string {
	return htmlEscaper.Replace(strings.TrimSpace(s))
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator instance.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateEmail reports whether email is a well-formed address.
func ValidateEmail(email string) bool {
	if email == "" {
		return false
	}
	return Validator().Var(email, "email") == nil
}
