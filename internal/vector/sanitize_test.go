package vector

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeSegment(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"chat1", "chat1"},
		{"../../etc/passwd", "etcpasswd"},
		{"..", ""},
		{".", ""},
		{"a/b\\c", "abc"},
		{"what?<>|", "what"},
		{"tab\there", "tabhere"},
		{"CON", ""},
		{"com1.txt", ""},
		{"trailing. ", "trailing"},
		{"Assistant - 2024-05-01@12h00m", "Assistant - 2024-05-01@12h00m"},
		{"text-embedding-3-small", "text-embedding-3-small"},
		{"nomic-embed-text:latest", "nomic-embed-textlatest"},
	}
	for _, tt := range tests {
		if got := SanitizeSegment(tt.in); got != tt.want {
			t.Errorf("SanitizeSegment(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeSegment_Truncates(t *testing.T) {
	long := strings.Repeat("é", 200)
	got := SanitizeSegment(long)
	if len(got) > maxSegmentBytes {
		t.Errorf("len = %d, want <= %d", len(got), maxSegmentBytes)
	}
	if !utf8.ValidString(got) {
		t.Error("truncation split a UTF-8 sequence")
	}
}
