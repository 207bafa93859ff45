package utils

// Truncate is a simple string truncate
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// ShortHash returns the leading 8 hex characters of a content hash, enough
// to eyeball in terminal output.
func ShortHash(h string) string {
	if len(h) <= 8 {
		return h
	}
	return h[:8]
}
