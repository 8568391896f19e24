package util

import "strings"

// RedactCredential returns a loggable form of a bearer credential.
// Secrets must never reach the logs in full; we keep enough of the
// prefix to correlate with client reports.
func RedactCredential(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 8 {
		return "****"
	}
	return s[:8] + "****"
}
