// Package sanitize masks personal data before it reaches logs or error
// messages. Prospect phone numbers are the identity key of the whole
// system, so every log line that mentions one goes through here.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	phonePattern = regexp.MustCompile(`\+?[1-9]\d{6,14}`)

	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

	// API key patterns (various formats)
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|secret|token|password|auth)[=:\s"']*([\w-]{16,})`)

	bearerPattern = regexp.MustCompile(`(?i)bearer\s+[\w.-]+`)
)

// Sanitizer applies the masking patterns to free-form text.
type Sanitizer struct {
	patterns []patternConfig
}

type patternConfig struct {
	pattern     *regexp.Regexp
	replacement func(string) string
}

// New creates a Sanitizer with all patterns active.
func New() *Sanitizer {
	return &Sanitizer{
		patterns: []patternConfig{
			{pattern: phonePattern, replacement: maskPhone},
			{pattern: emailPattern, replacement: maskEmail},
			{pattern: apiKeyPattern, replacement: maskAPIKey},
			{pattern: bearerPattern, replacement: maskBearer},
		},
	}
}

// String masks all sensitive data found in the input.
func (s *Sanitizer) String(input string) string {
	result := input
	for _, p := range s.patterns {
		result = p.pattern.ReplaceAllStringFunc(result, p.replacement)
	}
	return result
}

// Error masks sensitive data in an error message.
func (s *Sanitizer) Error(err error) string {
	if err == nil {
		return ""
	}
	return s.String(err.Error())
}

// Headers masks sensitive HTTP headers and sanitizes the rest.
func (s *Sanitizer) Headers(headers map[string][]string) map[string][]string {
	result := make(map[string][]string, len(headers))
	for k, vals := range headers {
		if isSensitiveHeader(strings.ToLower(k)) {
			result[k] = []string{"[REDACTED]"}
			continue
		}
		sanitized := make([]string, len(vals))
		for i, v := range vals {
			sanitized[i] = s.String(v)
		}
		result[k] = sanitized
	}
	return result
}

// Masking functions

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	// Keep first 3 and last 2 characters
	return phone[:3] + strings.Repeat("*", len(phone)-5) + phone[len(phone)-2:]
}

func maskEmail(email string) string {
	at := strings.Index(email, "@")
	if at <= 0 {
		return "[email]"
	}
	if at <= 2 {
		return email[:1] + "***" + email[at:]
	}
	return email[:2] + "***" + email[at:]
}

func maskAPIKey(match string) string {
	parts := apiKeyPattern.FindStringSubmatch(match)
	if len(parts) >= 2 {
		// Preserve the key name but mask the value
		prefix := strings.TrimSuffix(match, parts[len(parts)-1])
		return prefix + "[REDACTED]"
	}
	return "[REDACTED-KEY]"
}

func maskBearer(string) string {
	return "Bearer [REDACTED]"
}

// isSensitiveHeader checks if an HTTP header carries credentials.
func isSensitiveHeader(header string) bool {
	sensitiveHeaders := []string{
		"authorization",
		"x-api-key",
		"x-auth-token",
		"x-webhook-secret",
		"cookie",
		"set-cookie",
		"proxy-authorization",
		"www-authenticate",
	}
	for _, h := range sensitiveHeaders {
		if header == h {
			return true
		}
	}
	return false
}

// Quick sanitization functions for common use cases

// Phone masks a phone number, keeping enough of both ends to correlate
// log lines without exposing the full number.
func Phone(phone string) string {
	return maskPhone(phone)
}

// JID masks the phone portion of a WhatsApp JID like
// "5215512345678@s.whatsapp.net".
func JID(jid string) string {
	at := strings.Index(jid, "@")
	if at < 0 {
		return maskPhone(jid)
	}
	return maskPhone(jid[:at]) + jid[at:]
}

// Email masks an email address.
func Email(email string) string {
	return maskEmail(email)
}

// APIKey masks an API key.
func APIKey(key string) string {
	if len(key) <= 8 {
		return "[REDACTED]"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// PartialMask masks the middle portion of a string, keeping first and last N chars.
func PartialMask(s string, keepStart, keepEnd int) string {
	if len(s) <= keepStart+keepEnd {
		return strings.Repeat("*", len(s))
	}
	return s[:keepStart] + strings.Repeat("*", len(s)-keepStart-keepEnd) + s[len(s)-keepEnd:]
}
