// Package redact scrubs credentials, connection strings, file paths and
// similar details from error text before it is logged, returned to a client
// or recorded as a job's failure cause.
package redact

import (
	"regexp"
	"unicode/utf8"
)

// Constants for redaction placeholders
const (
	RedactionPlaceholder          = "[REDACTED]"
	RedactedPathPlaceholder       = "[REDACTED_PATH]"
	RedactedCredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	RedactedKeyPlaceholder        = "[REDACTED_KEY]"
)

// MaxCauseLength bounds a failure cause stored in the job ledger.
const MaxCauseLength = 512

type rule struct {
	pattern     *regexp.Regexp
	placeholder string
}

var (
	// Database and broker connection strings with inline credentials
	dbConnRule = rule{
		regexp.MustCompile(`(?i)(postgres|postgresql|mysql|mongodb|redis|rediss|nats|amqp|db|database|connection)://[^@\s]+@`),
		RedactedCredentialPlaceholder,
	}
	// user:pass@ in http(s) URLs
	urlUserinfoRule = rule{regexp.MustCompile(`(?i)(https?://)[^/@\s]+@`), "${1}" + RedactedCredentialPlaceholder + "@"}
	// presigned URL signatures and credentials
	signedURLRule = rule{
		regexp.MustCompile(`(?i)(X-Amz-(?:Signature|Credential|Security-Token)=)[^&\s"]+`),
		"${1}" + RedactedKeyPlaceholder,
	}
	passwordRule = rule{
		regexp.MustCompile(`(?i)(password|passwd|pwd)([=:\s]?['"]?)[^'"&\s]{3,}`),
		RedactedCredentialPlaceholder,
	}
	apiKeyRule = rule{
		regexp.MustCompile(`(?i)(api[_-]?key|token|secret|access[_-]?key|auth)(['"\s:=]+)[A-Za-z0-9_\-.~+/]{8,}`),
		RedactedKeyPlaceholder,
	}
	awsKeyRule   = rule{regexp.MustCompile(`(AKIA|AccessKey(Id)?)([^a-zA-Z0-9])?[A-Z0-9]{8,}`), RedactedKeyPlaceholder}
	jwtRule      = rule{regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`), "[REDACTED_JWT]"}
	bearerRule   = rule{regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9_\-.~+/=]{8,}`), "${1}" + RedactedKeyPlaceholder}
	unixPathRule = rule{regexp.MustCompile(`(/[\w.-]+){2,}`), RedactedPathPlaceholder}
	winPathRule  = rule{regexp.MustCompile(`[A-Za-z]:\\[^\\]+(\\[^\\]+)+`), RedactedPathPlaceholder}
	stackRule    = rule{regexp.MustCompile(`(?:goroutine \d+|panic:)[\s\S]*?(\n\t.*)+`), "[STACK_TRACE_REDACTED]"}
	emailRule    = rule{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "[REDACTED_EMAIL]"}
	sqlRule      = rule{
		regexp.MustCompile(`\b(SELECT|INSERT|UPDATE|DELETE|CREATE|ALTER|DROP)\b[\s\w,*()?$]+\b(FROM|INTO|SET|TABLE)\b[^;\n]*`),
		"[REDACTED_SQL]",
	}
	hostPortRule = rule{
		regexp.MustCompile(`\b(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}:\d{1,5}\b|\b\d{1,3}(?:\.\d{1,3}){3}(?::\d{1,5})?\b`),
		"[REDACTED_HOST]",
	}

	// secretRules remove anything that grants access. Order matters: broader
	// credential patterns run before the generic key pattern.
	secretRules = []rule{
		dbConnRule, urlUserinfoRule, signedURLRule, jwtRule, bearerRule,
		passwordRule, apiKeyRule, awsKeyRule,
	}

	// detailRules remove infrastructure detail that is not secret but should
	// not reach clients or a job record.
	detailRules = []rule{stackRule, sqlRule, winPathRule, unixPathRule, emailRule, hostPortRule}
)

func apply(input string, rules []rule) string {
	for _, r := range rules {
		input = r.pattern.ReplaceAllString(input, r.placeholder)
	}
	return input
}

// String redacts sensitive information from the input string.
func String(input string) string {
	if input == "" {
		return input
	}
	return apply(apply(input, secretRules), detailRules)
}

// Error redacts sensitive information from an error's Error() output.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}

// Cause renders err as a failure cause suitable for the job ledger: redacted
// and cut to MaxCauseLength bytes on a rune boundary.
func Cause(err error) string {
	if err == nil {
		return ""
	}
	return Truncate(Error(err), MaxCauseLength)
}

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence,
// marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	const ellipsis = "..."
	if n <= len(ellipsis) {
		return ellipsis[:n]
	}
	cut := n - len(ellipsis)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + ellipsis
}
