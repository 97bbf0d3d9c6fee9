// Package docs discovers and chunks the files in a documents root.
// The loader walks the tree, filters by extension, size, ignore rules
// and a binary sniff, then splits each file into overlapping windows
// (or structure-aware chunks for Python sources and notebooks) whose
// IDs are stable across re-indexing.
package docs

import (
	"path/filepath"
	"strings"

	"github.com/secondbrain-labs/brainmcp/internal/store"
)

// Chunking defaults.
const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 120

	// DefaultMaxFileSize skips files larger than this (16 MB).
	DefaultMaxFileSize = 16 << 20
)

// kindByExt maps supported extensions to their document kind.
var kindByExt = map[string]store.DocKind{
	".txt":   store.KindText,
	".md":    store.KindMarkdown,
	".rst":   store.KindText,
	".html":  store.KindHTML,
	".htm":   store.KindHTML,
	".csv":   store.KindData,
	".tsv":   store.KindData,
	".json":  store.KindData,
	".py":    store.KindCode,
	".ipynb": store.KindNotebook,
}

// SupportedExtension reports whether the path has an indexable
// extension.
func SupportedExtension(path string) bool {
	_, ok := kindByExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

// KindForPath returns the document kind for a path, defaulting to text.
func KindForPath(path string) store.DocKind {
	if kind, ok := kindByExt[strings.ToLower(filepath.Ext(path))]; ok {
		return kind
	}
	return store.KindText
}
