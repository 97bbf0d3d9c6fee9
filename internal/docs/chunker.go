package docs

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/secondbrain-labs/brainmcp/internal/store"
)

// ChunkID builds the stable ID for a chunk: path::chunk_NNNN. Stable
// IDs make re-indexing a changed file a replace, not a duplicate.
func ChunkID(path string, seq int) string {
	return fmt.Sprintf("%s::chunk_%04d", path, seq)
}

// PathOfChunkID returns the document path encoded in a chunk ID.
func PathOfChunkID(id string) string {
	if i := strings.LastIndex(id, "::chunk_"); i >= 0 {
		return id[:i]
	}
	return id
}

// chunkWindows splits text into overlapping rune windows. Window
// boundaries prefer the last newline (then the last space) in the
// final fifth of the window so chunks tend to break at natural edges.
func chunkWindows(file FileInfo, text string, size, overlap int) []*store.Chunk {
	title := documentTitle(file, text)
	runes := []rune(text)
	now := time.Now()

	if len(runes) == 0 {
		return nil
	}

	var chunks []*store.Chunk
	step := size - overlap
	seq := 0

	for start := 0; start < len(runes); start += step {
		end := start + size
		if end >= len(runes) {
			end = len(runes)
		} else if cut := naturalBreak(runes[start:end]); cut > 0 {
			end = start + cut
		}

		content := strings.TrimSpace(string(runes[start:end]))
		if content != "" {
			startLine := 1 + strings.Count(string(runes[:start]), "\n")
			endLine := startLine + strings.Count(string(runes[start:end]), "\n")
			chunks = append(chunks, &store.Chunk{
				ID:        ChunkID(file.Path, seq),
				Path:      file.Path,
				Title:     title,
				Content:   content,
				Kind:      file.Kind,
				Seq:       seq,
				StartLine: startLine,
				EndLine:   endLine,
				CreatedAt: now,
				UpdatedAt: now,
			})
			seq++
		}

		if end == len(runes) {
			break
		}
		// Keep the step anchored to the actual cut so overlap stays
		// consistent after a natural break.
		step = end - start - overlap
		if step <= 0 {
			step = size - overlap
		}
	}

	return chunks
}

// naturalBreak finds a break point in the last fifth of the window.
// Returns 0 when no better boundary exists.
func naturalBreak(window []rune) int {
	floor := len(window) * 4 / 5
	for i := len(window) - 1; i >= floor; i-- {
		if window[i] == '\n' {
			return i + 1
		}
	}
	for i := len(window) - 1; i >= floor; i-- {
		if window[i] == ' ' || window[i] == '\t' {
			return i + 1
		}
	}
	return 0
}

// documentTitle derives a display title: the first markdown heading if
// there is one, otherwise the filename without extension.
func documentTitle(file FileInfo, text string) string {
	if file.Kind == store.KindMarkdown {
		for _, line := range strings.Split(text, "\n") {
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, "#") {
				return strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			}
			if trimmed != "" && !strings.HasPrefix(trimmed, "<!--") {
				break
			}
		}
	}
	base := filepath.Base(file.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// stripHTML removes tags, scripts, and styles, leaving readable text.
// Good enough for personal notes; full fidelity is not the goal.
func stripHTML(html string) string {
	var b strings.Builder
	b.Grow(len(html))

	inTag := false
	var skipUntil string // closing tag that ends a skipped element

	i := 0
	for i < len(html) {
		c := html[i]

		if skipUntil != "" {
			if c == '<' && hasPrefixFold(html[i:], skipUntil) {
				i += len(skipUntil)
				skipUntil = ""
				inTag = true // consume the rest of the closing tag
				continue
			}
			i++
			continue
		}

		switch {
		case c == '<':
			if hasPrefixFold(html[i:], "<script") {
				skipUntil = "</script"
				i++
				continue
			}
			if hasPrefixFold(html[i:], "<style") {
				skipUntil = "</style"
				i++
				continue
			}
			inTag = true
			i++
		case c == '>' && inTag:
			inTag = false
			b.WriteByte(' ')
			i++
		case inTag:
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}

	// Collapse runs of whitespace introduced by tag removal.
	return strings.Join(strings.Fields(b.String()), " ")
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
