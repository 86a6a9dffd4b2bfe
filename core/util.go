package core

import (
	"crypto/rand"
	"math/big"
	"strings"
	"unicode/utf8"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// CleanStrings cleans every string of `ss` and drops the blank and duplicate ones, keeping order.
func CleanStrings(ss []string, lower ...bool) []string {
	if ss == nil {
		return nil
	}
	seen := make(map[string]bool, len(ss))
	cleaned := make([]string, 0, len(ss))
	for _, s := range ss {
		s = CleanString(s, lower...)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		cleaned = append(cleaned, s)
	}
	return cleaned
}

// TruncateRunes cuts s to at most n runes.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// RandomString returns a cryptographically random string of length n drawn from alphabet.
func RandomString(n int, alphabet string) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = alphabet[idx.Int64()]
	}
	return string(b), nil
}

// ContainsString reports whether s is in list.
func ContainsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
