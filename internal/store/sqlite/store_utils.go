package sqlite

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/koltyakov/fbxos/internal/entity"
)

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// storageValue converts a canonical value to its column representation:
// booleans as 0/1 and timestamps as UTC text.
func storageValue(c entity.Column, v any) any {
	switch c.Type {
	case entity.Boolean:
		b, _ := v.(bool)
		return boolToInt(b)
	case entity.Timestamp:
		n, ok := v.(int64)
		if !ok {
			return nil
		}
		return time.Unix(n, 0).UTC().Format(entity.TimeLayout)
	}
	return v
}

func ensureParentDir(path string) error {
	path = strings.TrimSpace(path)
	if path == "" || path == ":memory:" || strings.HasPrefix(path, "file:") {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
