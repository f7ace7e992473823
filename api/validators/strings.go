package validators

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

var ErrInvalidToken = errors.New("invalid auth token")

// SanitizeString trims whitespace, drops control characters and truncates to
// maxLen bytes without splitting a rune. maxLen <= 0 disables truncation.
func SanitizeString(input string, maxLen int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(input))
	if maxLen <= 0 || len(cleaned) <= maxLen {
		return cleaned
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(cleaned[cut]) {
		cut--
	}
	return cleaned[:cut]
}

// BearerToken extracts the credential from an Authorization header value. The
// "Bearer" scheme is optional and matched case-insensitively.
func BearerToken(header string) (string, error) {
	scheme, rest, found := strings.Cut(strings.TrimSpace(header), " ")
	token := strings.TrimSpace(header)
	if found && strings.EqualFold(scheme, "bearer") {
		token = strings.TrimSpace(rest)
	}
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", ErrInvalidToken
	}
	return token, nil
}
