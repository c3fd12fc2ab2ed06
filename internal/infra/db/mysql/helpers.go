package mysql

import "strings"

// keyOrDefault returns the shared storage key when the input is empty/whitespace
func keyOrDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
