// Package privacy masks credentials before text reaches logs.
package privacy

import (
	"fmt"
	"regexp"
	"strings"
)

const redactedPlaceholder = "[REDACTED]"

var (
	credentialParamRe = regexp.MustCompile(`(?i)\b(api_?key|access_token|token)=[^&\s"']+`)
	bearerRe          = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/=-]+`)
)

// Compile compiles a list of regex pattern strings into compiled regexps.
// Returns an error if any pattern is invalid.
func Compile(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile redact pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// Apply replaces all matches of the compiled patterns in text with [REDACTED].
func Apply(text string, patterns []*regexp.Regexp) string {
	for _, re := range patterns {
		text = re.ReplaceAllString(text, redactedPlaceholder)
	}
	return text
}

// Redactor masks known secret values, credential query parameters, bearer
// tokens and any extra patterns. A nil Redactor still masks parameters and
// bearer tokens.
type Redactor struct {
	secrets  []string
	patterns []*regexp.Regexp
}

// NewRedactor creates a redactor for the given secret values and patterns.
// Empty secrets are ignored.
func NewRedactor(secrets []string, patterns []*regexp.Regexp) *Redactor {
	r := &Redactor{patterns: patterns}
	for _, s := range secrets {
		if s != "" {
			r.secrets = append(r.secrets, s)
		}
	}
	return r
}

// With returns a copy that also masks secret.
func (r *Redactor) With(secret string) *Redactor {
	out := &Redactor{}
	if r != nil {
		out.secrets = append(out.secrets, r.secrets...)
		out.patterns = r.patterns
	}
	if secret != "" {
		out.secrets = append(out.secrets, secret)
	}
	return out
}

// Redact returns text with every credential masked.
func (r *Redactor) Redact(text string) string {
	if r != nil {
		for _, s := range r.secrets {
			text = strings.ReplaceAll(text, s, redactedPlaceholder)
		}
	}
	text = credentialParamRe.ReplaceAllString(text, "${1}="+redactedPlaceholder)
	text = bearerRe.ReplaceAllString(text, "Bearer "+redactedPlaceholder)
	if r != nil {
		text = Apply(text, r.patterns)
	}
	return text
}

// Err wraps err so its message is redacted. errors.Is and errors.As still
// see the original chain.
func (r *Redactor) Err(err error) error {
	if err == nil {
		return nil
	}
	return &redactedError{msg: r.Redact(err.Error()), err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }
