package cache

import (
	"path/filepath"
	"strings"
)

// Path returns the spill file path for a media key. Stable: the same key and
// extension always map to the same path. ext includes the dot (".mp4") or is empty.
// Uses .partial while downloading; the fetcher renames to Path when complete.
func Path(cacheDir, key, ext string) string {
	return filepath.Join(cacheDir, "media", sanitizeID(key)+sanitizeExt(ext))
}

// PartialPath returns the path used while downloading (rename to Path when done).
func PartialPath(cacheDir, key string) string {
	return filepath.Join(cacheDir, "media", sanitizeID(key)+".partial")
}

func sanitizeID(id string) string {
	s := strings.ReplaceAll(id, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, "\x00", "_")
	s = strings.ReplaceAll(s, "..", "_")
	if s == "" {
		s = "unknown"
	}
	return s
}

func sanitizeExt(ext string) string {
	if ext == "" || ext == ".partial" || strings.ContainsAny(ext, "/\\\x00") {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return strings.ToLower(ext)
}
