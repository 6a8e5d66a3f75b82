package kb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// ManifestEntry describes one knowledge base article as listed in the
// index.json manifest at the root of a KB directory.
type ManifestEntry struct {
	File     string   `json:"file"`
	Title    string   `json:"title"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

// LoadManifest reads the index.json manifest from the given KB directory.
func LoadManifest(dir string) ([]ManifestEntry, error) {
	path := filepath.Join(dir, "index.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}

	var entries []ManifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	return entries, nil
}

// FilterManifest drops entries whose file path matches any exclude pattern.
// Patterns support ** via doublestar, with plain filepath.Match as fallback.
func FilterManifest(entries []ManifestEntry, exclude []string) []ManifestEntry {
	if len(exclude) == 0 {
		return entries
	}

	var kept []ManifestEntry
	for _, e := range entries {
		if !matchesAny(e.File, exclude) {
			kept = append(kept, e)
		}
	}
	return kept
}

func matchesAny(relPath string, patterns []string) bool {
	normalized := filepath.ToSlash(relPath)
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, normalized); err == nil && ok {
			return true
		}
		if ok, err := filepath.Match(pattern, normalized); err == nil && ok {
			return true
		}
	}
	return false
}
