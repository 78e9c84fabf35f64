package logging

import (
	"regexp"
	"strings"
)

const (
	// MaxQuestionLogLength caps how much of a user question or model answer is logged.
	MaxQuestionLogLength = 100
	// RedactedText replaces sensitive data.
	RedactedText = "[REDACTED]"
)

var (
	// password=xxx, pwd=xxx, pass=xxx up to the next delimiter
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Authorization header values as echoed by HTTP client errors
	bearerPattern = regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9\-_.=]+`)

	// api_key=xxx and friends
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|secret|key)=[A-Za-z0-9\-_]{16,}`)

	// OpenAI and Anthropic style keys (sk-..., sk-ant-...)
	providerKeyPattern = regexp.MustCompile(`sk-[A-Za-z0-9\-_]{16,}`)

	// user:pass@host in URLs
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s]+`)

	whitespaceRun = regexp.MustCompile(`\s+`)
)

// SanitizeURL removes credentials from a connection URL before it is logged.
func SanitizeURL(raw string) string {
	if raw == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(raw, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeError renders err without credentials. LLM and engine clients can
// echo request details in their errors.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return redact(err.Error())
}

func redact(s string) string {
	s = passwordPattern.ReplaceAllString(s, "${1}="+RedactedText)
	s = bearerPattern.ReplaceAllString(s, "Bearer "+RedactedText)
	s = apiKeyPattern.ReplaceAllString(s, "${1}="+RedactedText)
	s = providerKeyPattern.ReplaceAllString(s, RedactedText)
	s = connStringPattern.ReplaceAllString(s, "://"+RedactedText+"@"+RedactedText)
	return s
}

// SanitizeQuestion flattens a user question onto one line, truncates it and
// strips anything that looks like a credential.
func SanitizeQuestion(question string) string {
	if question == "" {
		return ""
	}
	flat := strings.TrimSpace(whitespaceRun.ReplaceAllString(question, " "))
	return redact(TruncateString(flat, MaxQuestionLogLength))
}

// TruncateString cuts s to maxLen runes and adds an ellipsis if needed.
func TruncateString(s string, maxLen int) string {
	if maxLen < 0 {
		maxLen = 0
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
