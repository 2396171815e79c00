package source

import (
	"errors"
	"net/url"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// FieldCheck pairs a credential value with the rules it must satisfy.
type FieldCheck struct {
	value any
	rules []validation.Rule
}

// Rules builds a FieldCheck.
func Rules(value any, rules ...validation.Rule) FieldCheck {
	return FieldCheck{value: value, rules: rules}
}

// Check validates fields in order and reports the first failing field, the
// way a settings form surfaces one problem at a time.
func Check(fields ...FieldCheck) Validation {
	for _, f := range fields {
		if err := validation.Validate(f.value, f.rules...); err != nil {
			return Validation{Valid: false, Errors: []string{err.Error()}}
		}
	}
	return Validation{Valid: true, Errors: []string{}}
}

// Invalid builds a failed Validation from a single message.
func Invalid(msg string) Validation {
	return Validation{Valid: false, Errors: []string{msg}}
}

// Required is validation.Required with a "<label> is required" message.
func Required(label string) validation.Rule {
	return validation.Required.Error(label + " is required")
}

// HTTPURL accepts absolute http(s) URLs with a host. Empty values pass so the
// rule can be combined with Required.
func HTTPURL(msg string) validation.Rule {
	return validation.By(func(value any) error {
		s, _ := value.(string)
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		u, err := url.Parse(s)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return errors.New(msg)
		}
		return nil
	})
}

// NormalizeURL trims whitespace and trailing slashes.
func NormalizeURL(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "/")
}
