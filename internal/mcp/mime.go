package mcp

import "github.com/secondbrain-labs/brainmcp/internal/store"

// mimeTypeForKind returns the MIME type for a document kind.
func mimeTypeForKind(kind store.DocKind) string {
	switch kind {
	case store.KindMarkdown:
		return "text/markdown"
	case store.KindHTML:
		return "text/html"
	case store.KindCode:
		return "text/x-python"
	case store.KindNotebook:
		return "application/json"
	default:
		return "text/plain"
	}
}
