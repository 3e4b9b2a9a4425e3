// Package utils provides small helpers shared by the embedding, CLI and server code.
package utils

// Truncate returns s cut to at most maxLen runes, with "..." appended if it was cut.
// Multi-byte characters are never split. If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	n := 0
	for i := range s {
		if n == maxLen {
			return s[:i] + "..."
		}
		n++
	}
	return s
}
