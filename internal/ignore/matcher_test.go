package ignore

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_Match_SimplePatterns(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		path     string
		isDir    bool
		expected bool
	}{
		{name: "exact filename match", pattern: "todo.md", path: "todo.md", isDir: false, expected: true},
		{name: "exact filename no match", pattern: "todo.md", path: "done.md", isDir: false, expected: false},
		{name: "filename in subdir", pattern: "todo.md", path: "notes/todo.md", isDir: false, expected: true},
		{name: "filename deep nested", pattern: "todo.md", path: "a/b/c/todo.md", isDir: false, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			m.AddPattern(tt.pattern)
			got := m.Match(tt.path, tt.isDir)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestMatcher_Match_WildcardPatterns(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		path     string
		isDir    bool
		expected bool
	}{
		{name: "*.tmp matches .tmp", pattern: "*.tmp", path: "scratch.tmp", isDir: false, expected: true},
		{name: "*.tmp matches deep .tmp", pattern: "*.tmp", path: "cache/scratch.tmp", isDir: false, expected: true},
		{name: "*.tmp no match .md", pattern: "*.tmp", path: "scratch.md", isDir: false, expected: false},

		{name: "draft* matches draft-intro", pattern: "draft*", path: "draft-intro.md", isDir: false, expected: true},
		{name: "draft* no match final", pattern: "draft*", path: "final.md", isDir: false, expected: false},

		{name: "note?.md matches note1.md", pattern: "note?.md", path: "note1.md", isDir: false, expected: true},
		{name: "note?.md no match note12.md", pattern: "note?.md", path: "note12.md", isDir: false, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			m.AddPattern(tt.pattern)
			got := m.Match(tt.path, tt.isDir)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestMatcher_Match_DoubleStarPatterns(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		path     string
		isDir    bool
		expected bool
	}{
		{name: "**/archive matches root", pattern: "**/archive", path: "archive", isDir: true, expected: true},
		{name: "**/archive matches nested", pattern: "**/archive", path: "projects/2024/archive", isDir: true, expected: true},
		{name: "exports/** matches contents", pattern: "exports/**", path: "exports/csv/jan.csv", isDir: false, expected: true},
		{name: "exports/** no match sibling", pattern: "exports/**", path: "reports/jan.csv", isDir: false, expected: false},
		{name: "notes/**/old matches deep", pattern: "notes/**/old", path: "notes/a/b/old", isDir: true, expected: true},
		{name: "notes/**/old matches direct", pattern: "notes/**/old", path: "notes/old", isDir: true, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			m.AddPattern(tt.pattern)
			got := m.Match(tt.path, tt.isDir)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestMatcher_Match_DirectoryOnlyPatterns(t *testing.T) {
	m := New()
	m.AddPattern("drafts/")

	assert.True(t, m.Match("drafts", true), "directory itself")
	assert.True(t, m.Match("drafts/idea.md", false), "file inside ignored dir")
	assert.True(t, m.Match("notes/drafts/idea.md", false), "file inside nested ignored dir")
	assert.False(t, m.Match("drafts", false), "plain file named like the dir")
}

func TestMatcher_Match_AnchoredPatterns(t *testing.T) {
	m := New()
	m.AddPattern("/build")

	assert.True(t, m.Match("build", true))
	assert.False(t, m.Match("src/build", true), "anchored pattern only matches at root")
}

func TestMatcher_Match_Negation(t *testing.T) {
	m := New()
	m.AddPattern("*.log")
	m.AddPattern("!important.log")

	assert.True(t, m.Match("debug.log", false))
	assert.False(t, m.Match("important.log", false), "negation re-includes the file")
}

func TestMatcher_Match_LaterRuleWins(t *testing.T) {
	m := New()
	m.AddPattern("!keep.md")
	m.AddPattern("*.md")

	assert.True(t, m.Match("keep.md", false), "later ignore overrides earlier negation")
}

func TestMatcher_AddPattern_SkipsCommentsAndBlanks(t *testing.T) {
	m := New()
	m.AddPattern("")
	m.AddPattern("   ")
	m.AddPattern("# a comment")

	assert.False(t, m.Match("# a comment", false))
	assert.False(t, m.Match("anything.md", false))
}

func TestMatcher_AddFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, IgnoreFileName)
	content := "# personal notes to skip\n*.tmp\ndrafts/\n!drafts/keep.md\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	m := New()
	require.NoError(t, m.AddFromFile(path))

	assert.True(t, m.Match("scratch.tmp", false))
	assert.True(t, m.Match("drafts/idea.md", false))
	assert.False(t, m.Match("drafts/keep.md", false))
	assert.False(t, m.Match("notes/plan.md", false))
}

func TestMatcher_AddFromFile_Missing(t *testing.T) {
	m := New()
	err := m.AddFromFile(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestNewWithPatterns(t *testing.T) {
	m := NewWithPatterns([]string{"*.bak", "trash/"})

	assert.True(t, m.Match("old.bak", false))
	assert.True(t, m.Match("trash/x.md", false))
	assert.False(t, m.Match("notes.md", false))
}

func TestMatcher_ConcurrentAccess(t *testing.T) {
	m := NewWithPatterns([]string{"*.tmp"})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if i%2 == 0 {
					m.Match("file.tmp", false)
				} else {
					m.AddPattern("*.bak")
				}
			}
		}(i)
	}
	wg.Wait()

	assert.True(t, m.Match("file.tmp", false))
	assert.True(t, m.Match("file.bak", false))
}
