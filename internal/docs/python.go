package docs

import (
	"context"
	"strings"
	"sync"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/secondbrain-labs/brainmcp/internal/store"
)

// pythonChunker splits .py files at top-level function and class
// boundaries so a retrieved chunk is a whole definition, not a window
// that cuts one in half. Falls back to plain windows when the source
// does not parse.
type pythonChunker struct {
	mu     sync.Mutex
	parser *sitter.Parser
}

func newPythonChunker() *pythonChunker {
	p := sitter.NewParser()
	p.SetLanguage(python.GetLanguage())
	return &pythonChunker{parser: p}
}

// topLevelKinds are the node types that start a new chunk.
var topLevelKinds = map[string]bool{
	"function_definition":  true,
	"class_definition":     true,
	"decorated_definition": true,
}

// Chunk splits Python source into definition-aligned chunks.
func (p *pythonChunker) Chunk(ctx context.Context, file FileInfo, content []byte, size, overlap int) ([]*store.Chunk, error) {
	tree, err := p.parse(ctx, content)
	if err != nil || tree == nil {
		return chunkWindows(file, string(content), size, overlap), nil
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil || root.HasError() {
		return chunkWindows(file, string(content), size, overlap), nil
	}

	type segment struct {
		startByte, endByte uint32
		startRow, endRow   uint32
	}
	var segments []segment

	// Consecutive non-definition statements (imports, constants, module
	// docstring) merge into one segment; each definition stands alone.
	var openStart, openStartRow uint32
	open := false

	flush := func(endByte, endRow uint32) {
		if open && endByte > openStart {
			segments = append(segments, segment{openStart, endByte, openStartRow, endRow})
			open = false
		}
	}

	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		if child == nil {
			continue
		}
		if topLevelKinds[child.Type()] {
			flush(child.StartByte(), child.StartPoint().Row)
			segments = append(segments, segment{
				child.StartByte(), child.EndByte(),
				child.StartPoint().Row, child.EndPoint().Row,
			})
		} else if !open {
			open = true
			openStart = child.StartByte()
			openStartRow = child.StartPoint().Row
		}
	}
	flush(root.EndByte(), root.EndPoint().Row)

	title := documentTitle(file, "")
	now := time.Now()

	var chunks []*store.Chunk
	seq := 0
	for _, seg := range segments {
		if int(seg.endByte) > len(content) {
			continue
		}
		text := strings.TrimSpace(string(content[seg.startByte:seg.endByte]))
		if text == "" {
			continue
		}

		// Oversized definitions still get windowed; sub-windows keep
		// the file-level sequence so IDs stay unique.
		if len([]rune(text)) > size*2 {
			sub := chunkWindows(file, text, size, overlap)
			for _, c := range sub {
				c.ID = ChunkID(file.Path, seq)
				c.Seq = seq
				c.StartLine += int(seg.startRow)
				c.EndLine += int(seg.startRow)
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
			Kind:      store.KindCode,
			Seq:       seq,
			StartLine: int(seg.startRow) + 1,
			EndLine:   int(seg.endRow) + 1,
			CreatedAt: now,
			UpdatedAt: now,
		})
		seq++
	}

	if len(chunks) == 0 {
		return chunkWindows(file, string(content), size, overlap), nil
	}
	return chunks, nil
}

// parse serializes parser access; tree-sitter parsers are not
// goroutine safe.
func (p *pythonChunker) parse(ctx context.Context, content []byte) (*sitter.Tree, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.parser.ParseCtx(ctx, nil, content)
}
