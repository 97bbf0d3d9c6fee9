package docs

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/secondbrain-labs/brainmcp/internal/store"
)

// notebook mirrors the parts of the .ipynb format we read. Cell source
// is either a string or a list of line strings depending on the tool
// that wrote the file.
type notebook struct {
	Cells []notebookCell `json:"cells"`
}

type notebookCell struct {
	CellType string          `json:"cell_type"`
	Source   json.RawMessage `json:"source"`
}

// chunkNotebook splits an .ipynb file into one chunk per non-empty
// code or markdown cell. Oversized cells are windowed.
func chunkNotebook(file FileInfo, content []byte, size, overlap int) ([]*store.Chunk, error) {
	var nb notebook
	if err := json.Unmarshal(content, &nb); err != nil {
		return nil, fmt.Errorf("parse notebook %s: %w", file.Path, err)
	}

	title := documentTitle(file, "")
	now := time.Now()

	var chunks []*store.Chunk
	seq := 0
	for _, cell := range nb.Cells {
		if cell.CellType != "code" && cell.CellType != "markdown" {
			continue
		}
		text := strings.TrimSpace(cellSource(cell.Source))
		if text == "" {
			continue
		}

		if len([]rune(text)) > size*2 {
			for _, c := range chunkWindows(file, text, size, overlap) {
				c.ID = ChunkID(file.Path, seq)
				c.Seq = seq
				c.Kind = store.KindNotebook
				c.StartLine = 0
				c.EndLine = 0
				chunks = append(chunks, c)
				seq++
			}
			continue
		}

		chunks = append(chunks, &store.Chunk{
			ID:        ChunkID(file.Path, seq),
			Path:      file.Path,
			Title:     title,
			Content:   text,
			Kind:      store.KindNotebook,
			Seq:       seq,
			CreatedAt: now,
			UpdatedAt: now,
		})
		seq++
	}

	return chunks, nil
}

// cellSource decodes a notebook cell source, which may be a single
// string or an array of lines.
func cellSource(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var lines []string
	if err := json.Unmarshal(raw, &lines); err == nil {
		return strings.Join(lines, "")
	}

	return ""
}
