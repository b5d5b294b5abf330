// Package scanner classifies directory entries as candidate images.
package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultExtensions lists the extensions the codec can decode.
var DefaultExtensions = []string{
	".jpg", ".jpeg", ".png", ".webp", ".gif", ".tif", ".tiff", ".bmp",
}

// Classifier decides whether a filesystem entry is a candidate image.
type Classifier struct {
	extensions map[string]struct{}
}

// NewClassifier returns a Classifier for the given extensions. Extensions are
// matched case-insensitively and may be given with or without the leading dot.
// An empty list selects DefaultExtensions.
func NewClassifier(extensions []string) *Classifier {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	set := make(map[string]struct{}, len(extensions))
	for _, ext := range NormalizeExtensions(extensions) {
		set[ext] = struct{}{}
	}
	return &Classifier{extensions: set}
}

// IsCandidate reports whether path is a regular file with a supported
// extension. Any stat failure counts as not a candidate.
func (c *Classifier) IsCandidate(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if !info.Mode().IsRegular() {
		return false
	}
	return c.supportsExtension(path)
}

// Scan returns the absolute paths of the candidate images directly inside
// dir, in lexical order. Subdirectories are not descended into.
func (c *Classifier) Scan(dir string) ([]string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}

	entries, err := os.ReadDir(absDir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", absDir, err)
	}

	var files []string
	for _, entry := range entries {
		path := filepath.Join(absDir, entry.Name())
		if c.IsCandidate(path) {
			files = append(files, path)
		}
	}
	return files, nil
}

func (c *Classifier) supportsExtension(path string) bool {
	_, ok := c.extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// NormalizeExtensions lowercases extensions and adds a missing leading dot.
func NormalizeExtensions(extensions []string) []string {
	normalized := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized = append(normalized, ext)
	}
	return normalized
}
