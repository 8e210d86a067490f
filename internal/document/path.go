package document

import (
	"fmt"
	"strings"
)

// ParsePath splits a node path into unescaped segments.
// Paths are absolute: they start with "/". The empty path or "/"
// addresses the root (zero segments).
func ParsePath(path string) ([]string, error) {
	if path == "" || path == "/" {
		return nil, nil
	}
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("node path must be absolute: %q", path)
	}
	parts := strings.Split(path[1:], "/")
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("node path has an empty segment: %q", path)
		}
		segments = append(segments, UnescapeSegment(p))
	}
	return segments, nil
}

// JoinPath builds a node path from raw (unescaped) segments
func JoinPath(segments ...string) string {
	var sb strings.Builder
	for _, seg := range segments {
		sb.WriteByte('/')
		sb.WriteString(EscapeSegment(seg))
	}
	return sb.String()
}

// EscapeSegment applies JSON-pointer escaping: "~" → "~0", "/" → "~1"
func EscapeSegment(seg string) string {
	seg = strings.ReplaceAll(seg, "~", "~0")
	return strings.ReplaceAll(seg, "/", "~1")
}

// UnescapeSegment reverses EscapeSegment. "~1" decodes before "~0"
// so "~01" round-trips to "~1".
func UnescapeSegment(seg string) string {
	seg = strings.ReplaceAll(seg, "~1", "/")
	return strings.ReplaceAll(seg, "~0", "~")
}
