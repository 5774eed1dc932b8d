package app

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// baseName strips any client-side directory, with either separator.
func baseName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	name = path.Base(name)
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return strings.TrimSpace(name)
}

// imageObjectName is "{epochMillis}-{sanitized name}".
func imageObjectName(now time.Time, name string) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), sanitizeImageName(name))
}

// sanitizeImageName keeps letters, digits, dot, dash and underscore.
func sanitizeImageName(name string) string {
	name = baseName(name)
	ext := strings.ToLower(path.Ext(name))
	stem := strings.TrimSuffix(name, path.Ext(name))
	var b strings.Builder
	for _, r := range stem {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte('-')
		default:
			b.WriteByte('_')
		}
	}
	clean := strings.Trim(b.String(), "-_.")
	if clean == "" {
		clean = "image"
	}
	if !validExt(ext) {
		ext = ""
	}
	return clean + ext
}

func validExt(ext string) bool {
	if len(ext) < 2 || len(ext) > 10 {
		return false
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// uniqueNames suffixes repeated names within one batch: a.png, a-2.png.
func uniqueNames(names []string) []string {
	used := make(map[string]bool, len(names))
	out := make([]string, len(names))
	for i, name := range names {
		candidate := name
		ext := path.Ext(name)
		for n := 2; used[candidate]; n++ {
			candidate = strings.TrimSuffix(name, ext) + "-" + strconv.Itoa(n) + ext
		}
		used[candidate] = true
		out[i] = candidate
	}
	return out
}

// sheetObjectName is "{epochMillis}_{original name}".
func sheetObjectName(now time.Time, name string) string {
	return fmt.Sprintf("%d_%s", now.UnixMilli(), name)
}

// parseSheetName splits a stored sheet name into its display name and upload
// time. Everything after the first underscore is the display name; the part
// before it is read as epoch milliseconds, zero when not numeric.
func parseSheetName(name string) (string, time.Time) {
	prefix, display, ok := strings.Cut(name, "_")
	if !ok {
		return name, time.Time{}
	}
	ms, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil || ms <= 0 {
		return display, time.Time{}
	}
	return display, time.UnixMilli(ms).UTC()
}
