package vector

import (
	"regexp"
	"strings"
)

const maxSegmentBytes = 255

var (
	illegalChars   = regexp.MustCompile(`[/\?<>\\:\*\|"]`)
	controlChars   = regexp.MustCompile(`[\x00-\x1f\x80-\x9f]`)
	leadingDots    = regexp.MustCompile(`^\.+`)
	windowsNames   = regexp.MustCompile(`(?i)^(con|prn|aux|nul|com[0-9]|lpt[0-9])(\..*)?$`)
	windowsTrailer = regexp.MustCompile(`[\. ]+$`)
)

// SanitizeSegment makes s safe to use as one path segment: separators, reserved characters and
// control characters are removed, leading dots are stripped (so "." and ".." become empty), Windows
// device names become empty, trailing dots and spaces are trimmed and the result is capped at 255 bytes.
func SanitizeSegment(s string) string {
	s = illegalChars.ReplaceAllString(s, "")
	s = controlChars.ReplaceAllString(s, "")
	s = leadingDots.ReplaceAllString(s, "")
	s = windowsNames.ReplaceAllString(s, "")
	s = windowsTrailer.ReplaceAllString(s, "")
	return truncateBytes(s, maxSegmentBytes)
}

// truncateBytes cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		if b.Len()+len(string(r)) > n {
			break
		}
		b.WriteRune(r)
	}
	return b.String()
}
