package model

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath expands environment variables and a leading ~ in
// user-supplied paths. Empty input stays empty.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	p = os.ExpandEnv(p)
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return p
}
