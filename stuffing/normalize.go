package stuffing

import (
	"strings"
	"unicode"
)

var quoteStripper = strings.NewReplacer(`"`, "", `'`, "")

func stripQuotes(s string) string {
	return quoteStripper.Replace(s)
}

// lastToken keeps the text after the last space. Model cells are sometimes prefixed with
// free text; only the trailing token identifies the model.
func lastToken(s string) string {
	if i := strings.LastIndex(s, " "); i >= 0 {
		return s[i+1:]
	}
	return s
}

// modelKey is the model identity used for matching SI items against index rows.
func modelKey(s string) string {
	return lastToken(strings.TrimSpace(stripQuotes(s)))
}

func removeSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// leadingNumber returns the longest prefix of s (after leading spaces) that reads as a
// decimal number: optional sign, digits, optional fraction. allowFraction=false stops at '.'.
func leadingNumber(s string, allowFraction bool) string {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
		digits++
	}
	if allowFraction && i < len(s) && s[i] == '.' {
		j := i + 1
		frac := 0
		for j < len(s) && s[j] >= '0' && s[j] <= '9' {
			j++
			frac++
		}
		if frac > 0 {
			i = j
			digits += frac
		}
	}
	if digits == 0 {
		return ""
	}
	return s[:i]
}
