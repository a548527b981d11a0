package tools

import "regexp"

// Credential patterns scrubbed from tool output before it reaches the
// conversation or the user.
var credentialPatterns = []*regexp.Regexp{
	// OpenAI / Anthropic style keys
	regexp.MustCompile(`sk-ant-[a-zA-Z0-9-]{20,}`),
	regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`),
	// GitHub tokens
	regexp.MustCompile(`gh[poasur]_[a-zA-Z0-9]{36}`),
	// AWS access keys
	regexp.MustCompile(`AKIA[A-Z0-9]{16}`),
	// Generic key=value assignments
	regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password|bearer|authorization)\s*[:=]\s*["']?\S{8,}["']?`),
}

const redactedPlaceholder = "[REDACTED]"

// ScrubCredentials replaces known credential patterns in text with [REDACTED].
func ScrubCredentials(text string) string {
	for _, pat := range credentialPatterns {
		text = pat.ReplaceAllString(text, redactedPlaceholder)
	}
	return text
}
