package export

import (
	"strings"
	"unicode"
)

// SanitizeName keeps characters editors accept in clip and title fields.
func SanitizeName(s string, maxLen int) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if isAllowedNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return truncate(strings.TrimSpace(b.String()), maxLen)
}

func isAllowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case ' ', '-', '_', '.', ',', '(', ')', '/':
		return true
	default:
		return false
	}
}

// SanitizeComment flattens analyst markdown into one comment line: emphasis
// markers dropped, whitespace runs collapsed, cut at maxLen runes.
func SanitizeComment(s string, maxLen int) string {
	s = strings.NewReplacer("*", "", "#", "", "`", "").Replace(s)
	s = strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}), " ")

	out := truncate(s, maxLen)
	if out != s {
		out = strings.TrimSpace(out) + "..."
	}
	return out
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen])
	}
	return s
}
