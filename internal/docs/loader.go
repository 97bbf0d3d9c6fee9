package docs

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/secondbrain-labs/brainmcp/internal/ignore"
	"github.com/secondbrain-labs/brainmcp/internal/store"
)

// FileInfo describes one candidate file found by a scan.
type FileInfo struct {
	Path    string // Relative to the docs root
	AbsPath string
	Size    int64
	ModTime time.Time
	Kind    store.DocKind
}

// LoadedFile is one file read, hashed, and chunked.
type LoadedFile struct {
	FileInfo
	ContentHash string // SHA-256, hex
	Chunks      []*store.Chunk
}

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	// ChunkSize and ChunkOverlap are in runes. Defaults 800 / 120.
	ChunkSize    int
	ChunkOverlap int

	// MaxFileSize skips files larger than this. Default 16 MB.
	MaxFileSize int64

	// IgnorePatterns are gitignore-syntax exclusions applied on top of
	// the docs root's ignore file.
	IgnorePatterns []string

	// DataDirName is the service's own directory inside the docs root;
	// always excluded. Default ".brainmcp".
	DataDirName string
}

func (o LoaderOptions) withDefaults() LoaderOptions {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.ChunkOverlap < 0 || o.ChunkOverlap >= o.ChunkSize {
		o.ChunkOverlap = DefaultChunkOverlap
	}
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.DataDirName == "" {
		o.DataDirName = ".brainmcp"
	}
	return o
}

// Loader enumerates and chunks the files in a docs root.
type Loader struct {
	root    string
	opts    LoaderOptions
	matcher *ignore.Matcher
	python  *pythonChunker
}

// NewLoader creates a loader for the given docs root. Ignore rules are
// read once from the root's ignore file; create a fresh loader per
// resync run so rule changes take effect.
func NewLoader(root string, opts LoaderOptions) (*Loader, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve docs root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat docs root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("docs root is not a directory: %s", absRoot)
	}

	opts = opts.withDefaults()

	matcher := ignore.NewWithPatterns(opts.IgnorePatterns)
	ignorePath := filepath.Join(absRoot, ignore.IgnoreFileName)
	if err := matcher.AddFromFile(ignorePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("ignore_file_unreadable",
			slog.String("path", ignorePath),
			slog.String("error", err.Error()))
	}

	return &Loader{
		root:    absRoot,
		opts:    opts,
		matcher: matcher,
		python:  newPythonChunker(),
	}, nil
}

// Root returns the absolute docs root.
func (l *Loader) Root() string {
	return l.root
}

// Scan walks the docs root and returns every indexable file, sorted by
// walk order. Unreadable entries are skipped.
func (l *Loader) Scan(ctx context.Context) ([]FileInfo, error) {
	var files []FileInfo

	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return nil
		}

		relPath, err := filepath.Rel(l.root, path)
		if err != nil || relPath == "." {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if l.excluded(relPath, true) {
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinks are not followed.
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		if l.excluded(relPath, false) || !SupportedExtension(relPath) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > l.opts.MaxFileSize {
			slog.Debug("file_too_large",
				slog.String("path", relPath),
				slog.Int64("size", info.Size()))
			return nil
		}

		files = append(files, FileInfo{
			Path:    relPath,
			AbsPath: path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Kind:    KindForPath(relPath),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk docs root: %w", err)
	}

	return files, nil
}

// Load reads, hashes, and chunks one file.
func (l *Loader) Load(ctx context.Context, file FileInfo) (*LoadedFile, error) {
	content, err := os.ReadFile(file.AbsPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file.Path, err)
	}

	if isBinary(content) {
		return nil, fmt.Errorf("skipping binary content: %s", file.Path)
	}

	hash := sha256.Sum256(content)

	chunks, err := l.chunk(ctx, file, content)
	if err != nil {
		return nil, err
	}

	return &LoadedFile{
		FileInfo:    file,
		ContentHash: hex.EncodeToString(hash[:]),
		Chunks:      chunks,
	}, nil
}

// chunk dispatches on the document kind.
func (l *Loader) chunk(ctx context.Context, file FileInfo, content []byte) ([]*store.Chunk, error) {
	switch file.Kind {
	case store.KindCode:
		return l.python.Chunk(ctx, file, content, l.opts.ChunkSize, l.opts.ChunkOverlap)
	case store.KindNotebook:
		return chunkNotebook(file, content, l.opts.ChunkSize, l.opts.ChunkOverlap)
	case store.KindHTML:
		return chunkWindows(file, stripHTML(string(content)), l.opts.ChunkSize, l.opts.ChunkOverlap), nil
	default:
		return chunkWindows(file, string(content), l.opts.ChunkSize, l.opts.ChunkOverlap), nil
	}
}

// excluded applies the data dir, VCS, and ignore-rule filters.
func (l *Loader) excluded(relPath string, isDir bool) bool {
	if relPath == ".git" || strings.HasPrefix(relPath, ".git/") {
		return true
	}
	dataDir := l.opts.DataDirName
	if relPath == dataDir || strings.HasPrefix(relPath, dataDir+"/") {
		return true
	}
	return l.matcher.Match(relPath, isDir)
}

// isBinary sniffs the first 512 bytes for null bytes.
func isBinary(content []byte) bool {
	n := len(content)
	if n > 512 {
		n = 512
	}
	return bytes.IndexByte(content[:n], 0) >= 0
}
