package utils

import (
	"regexp"
	"strings"
)

var nonWord = regexp.MustCompile(`[^\w]`)

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeUsername trims a username and drops everything except letters,
// digits and underscores.
func NormalizeUsername(username string) string {
	return nonWord.ReplaceAllString(strings.TrimSpace(username), "")
}

// NormalizeIdentity normalizes a login identifier, which may be either an
// email address or a username.
func NormalizeIdentity(identity string) string {
	if strings.Contains(identity, "@") {
		return NormalizeEmail(identity)
	}
	return NormalizeUsername(identity)
}
