package logger

import "strings"

// stripAnsiCodes removes CSI colour sequences so file logs stay plain text.
// A single byte scan keeps the hot logging path regex-free.
func stripAnsiCodes(s string) string {
	if !strings.ContainsRune(s, '\x1b') {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	inEscape := false
	for i := 0; i < len(s); i++ {
		if inEscape {
			// sequences terminate on the first alphabetic byte
			if (s[i] >= 'A' && s[i] <= 'Z') || (s[i] >= 'a' && s[i] <= 'z') {
				inEscape = false
			}
			continue
		}
		if s[i] == '\x1b' && i+1 < len(s) && s[i+1] == '[' {
			inEscape = true
			i++ // skip the '['
			continue
		}
		b.WriteByte(s[i])
	}

	return b.String()
}
