package normalize

import "strings"

// SplitLines splits text the way editors number lines: a trailing newline
// does not start an extra line and CR of CRLF endings is dropped.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.TrimSuffix(text, "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

// Snippet returns lines [start-k, end+k] (1-based, inclusive) clamped to
// the source. Out-of-range or empty input yields "".
func Snippet(source string, start, end, k int) string {
	lines := SplitLines(source)
	n := len(lines)
	if n == 0 || start < 1 || start > n {
		return ""
	}
	if end < start {
		end = start
	}
	if k < 0 {
		k = 0
	}
	lo := start - 1 - k
	hi := end - 1 + k
	if lo < 0 {
		lo = 0
	}
	if hi > n-1 {
		hi = n - 1
	}
	return strings.Join(lines[lo:hi+1], "\n")
}
