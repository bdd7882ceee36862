package exporter

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxSheetNameLength is Excel's limit on sheet names, in characters
const MaxSheetNameLength = 31

const defaultSheetName = "Sheet"

var sheetNameReplacer = strings.NewReplacer(
	":", "_", `\`, "_", "/", "_", "?", "_",
	"*", "_", "[", "_", "]", "_",
)

// SanitizeSheetName makes name acceptable to Excel: reserved characters
// become underscores, the result is cut to 31 characters and a blank name
// becomes "Sheet".
func SanitizeSheetName(name string) string {
	s := strings.TrimSpace(sheetNameReplacer.Replace(name))
	s = truncateRunes(s, MaxSheetNameLength)
	// Excel rejects a leading or trailing apostrophe
	if strings.HasPrefix(s, "'") {
		s = "_" + s[1:]
	}
	if strings.HasSuffix(s, "'") {
		s = s[:len(s)-1] + "_"
	}
	if s == "" {
		return defaultSheetName
	}
	return s
}

// UniqueSheetNames sanitizes every name and resolves collisions, which Excel
// checks case-insensitively, by appending ~2, ~3, ... within the length limit.
// The result is deterministic for a given input order.
func UniqueSheetNames(names []string) []string {
	out := make([]string, len(names))
	taken := make(map[string]bool, len(names))

	for i, name := range names {
		s := SanitizeSheetName(name)
		if taken[strings.ToLower(s)] {
			for k := 2; ; k++ {
				suffix := "~" + strconv.Itoa(k)
				candidate := truncateRunes(s, MaxSheetNameLength-len(suffix)) + suffix
				if !taken[strings.ToLower(candidate)] {
					s = candidate
					break
				}
			}
		}
		taken[strings.ToLower(s)] = true
		out[i] = s
	}
	return out
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
