package logger

import "strings"

// SanitizeQueryString checks if query string contains sensitive parameters
// and returns true if the entire query string should be redacted
func SanitizeQueryString(rawQuery string) bool {
	sensitiveParams := map[string]bool{
		"password":    true,
		"token":       true,
		"secret":      true,
		"solution":    true,
		"account":     true,
		"fingerprint": true,
		"auth":        true,
	}

	query := strings.ToLower(rawQuery)
	for param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
