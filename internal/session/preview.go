package session

import "strings"

const previewLen = 200

// Statistical summary headings the analysts emit, in either language.
var summaryMarkers = []string{"Resumen Estadístico:", "Statistical Summary:"}

// Preview strips markdown emphasis and line breaks, keeps the text after the
// statistical summary heading when there is one, and cuts it to 200 runes
// followed by an ellipsis. Empty input gives an empty preview.
func Preview(text string) string {
	if text == "" {
		return ""
	}

	cleaned := strings.ReplaceAll(text, "*", "")
	cleaned = strings.ReplaceAll(cleaned, "\n", " ")

	for _, marker := range summaryMarkers {
		if _, after, ok := strings.Cut(cleaned, marker); ok {
			cleaned = after
			break
		}
	}

	runes := []rune(strings.TrimSpace(cleaned))
	if len(runes) > previewLen {
		runes = runes[:previewLen]
	}
	return string(runes) + "..."
}
