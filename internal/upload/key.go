package upload

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxNameLen = 80

// StorageKey builds a collision-resistant object key from a timestamp, a
// random suffix and the sanitised original name.
func StorageKey(name string, now time.Time) string {
	return fmt.Sprintf("videos/%d-%s-%s", now.UnixNano(), uuid.NewString()[:8], SanitizeName(name))
}

// SanitizeName keeps letters, digits, dot, dash and underscore.
func SanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))

	var b strings.Builder
	lastUnderscore := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}

	out := strings.Trim(b.String(), "._")
	if len(out) > maxNameLen {
		ext := filepath.Ext(out)
		if len(ext) > 10 {
			ext = ""
		}
		out = out[:maxNameLen-len(ext)] + ext
	}
	if out == "" {
		return "video"
	}
	return out
}
