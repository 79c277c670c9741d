package widget

import (
	"strconv"
	"strings"
	"unicode"
)

// ParseInitialRating reads a page-embedded rating value the way the site's
// scripts did: leading whitespace is skipped, an optional sign is accepted
// and the leading run of digits is used. Anything without digits, and any
// negative value, yields 0.
func ParseInitialRating(raw string) int {
	s := strings.TrimLeftFunc(raw, unicode.IsSpace)
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 || neg {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		// overflow: far above any star count
		return int(^uint(0) >> 1)
	}
	return n
}
