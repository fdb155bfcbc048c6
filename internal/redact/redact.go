// Package redact strips credential material from captured runbook
// output before it lands in remediation records. Runbooks routinely
// echo environment dumps and connection strings; records outlive the
// incident and are readable over the API, so secrets must not reach
// them.
package redact

import (
	"fmt"
	"regexp"
)

// mask replaces every detected secret.
const mask = "[REDACTED]"

// Rule pairs a secret pattern with an identifier for logging.
type Rule struct {
	ID      string
	Pattern string
}

// DefaultRules covers the credential shapes that show up in command
// output: cloud keys, tokens with self-identifying prefixes, key-value
// assignments, and PEM blocks.
func DefaultRules() []Rule {
	return []Rule{
		{ID: "aws-access-key-id", Pattern: `(?i)(A3T[A-Z0-9]|AKIA|AGPA|AIDA|AROA|AIPA|ANPA|ANVA|ASIA)[A-Z0-9]{16}`},
		{ID: "aws-secret-access-key", Pattern: `(?i)(?:aws_secret_access_key|aws_secret_key|secret_access_key)\s*[:=]\s*['"]?[A-Za-z0-9/+=]{40}['"]?`},
		{ID: "generic-api-key", Pattern: `(?i)(?:api[_-]?key|apikey)\s*[:=]\s*['"]?[A-Za-z0-9_\-]{16,64}['"]?`},
		{ID: "generic-secret", Pattern: `(?i)(?:secret|password|passwd|pwd|token)\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`},
		{ID: "private-key", Pattern: `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?:[- ]BLOCK)?-----`},
		{ID: "github-token", Pattern: `gh[pousr]_[A-Za-z0-9]{36,255}`},
		{ID: "slack-token", Pattern: `xox[baprs]-[A-Za-z0-9\-]{10,}`},
		{ID: "bearer-token", Pattern: `(?i)bearer\s+[A-Za-z0-9\-._~+/]{20,}=*`},
	}
}

// Scrubber redacts secrets from text using compiled rules.
type Scrubber struct {
	rules []compiledRule
}

type compiledRule struct {
	id string
	re *regexp.Regexp
}

// New compiles the given rules. Nil rules means DefaultRules.
func New(rules []Rule) (*Scrubber, error) {
	if rules == nil {
		rules = DefaultRules()
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction rule %q: %w", r.ID, err)
		}
		compiled = append(compiled, compiledRule{id: r.ID, re: re})
	}
	return &Scrubber{rules: compiled}, nil
}

// Scrub replaces every match with the redaction mask and returns the
// cleaned text with the number of redactions made.
func (s *Scrubber) Scrub(text string) (string, int) {
	total := 0
	for _, r := range s.rules {
		matches := r.re.FindAllStringIndex(text, -1)
		if len(matches) == 0 {
			continue
		}
		total += len(matches)
		text = r.re.ReplaceAllString(text, mask)
	}
	return text, total
}
