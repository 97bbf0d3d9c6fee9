package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/secondbrain-labs/brainmcp/internal/config"
	"github.com/secondbrain-labs/brainmcp/internal/resync"
	"github.com/secondbrain-labs/brainmcp/internal/ui"
)

func TestProgressEvent_StageMapping(t *testing.T) {
	tests := []struct {
		name  string
		snap  resync.ProgressSnapshot
		stage ui.Stage
	}{
		{"scanning", resync.ProgressSnapshot{Stage: string(resync.StageScanning)}, ui.StageScanning},
		{"chunking", resync.ProgressSnapshot{Stage: string(resync.StageChunking)}, ui.StageChunking},
		{"embedding", resync.ProgressSnapshot{Stage: string(resync.StageEmbedding)}, ui.StageEmbedding},
		{"indexing", resync.ProgressSnapshot{Stage: string(resync.StageIndexing)}, ui.StageIndexing},
		{"unknown defaults to scanning", resync.ProgressSnapshot{Stage: "bogus"}, ui.StageScanning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.stage, progressEvent(tt.snap).Stage)
		})
	}
}

func TestProgressEvent_FileCountsDuringScan(t *testing.T) {
	snap := resync.ProgressSnapshot{
		Stage:          string(resync.StageChunking),
		FilesTotal:     10,
		FilesProcessed: 3,
		FilesSkipped:   2,
	}
	ev := progressEvent(snap)
	assert.Equal(t, 5, ev.Current, "processed plus skipped")
	assert.Equal(t, 10, ev.Total)
}

func TestProgressEvent_ChunkCountsDuringEmbed(t *testing.T) {
	snap := resync.ProgressSnapshot{
		Stage:         string(resync.StageEmbedding),
		ChunksTotal:   40,
		ChunksIndexed: 15,
	}
	ev := progressEvent(snap)
	assert.Equal(t, 15, ev.Current)
	assert.Equal(t, 40, ev.Total)
}

func TestEmbedderBackend(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Embeddings.Provider = "static"
	assert.Equal(t, "static", embedderBackend(cfg))

	cfg.Embeddings.Provider = "ollama"
	assert.Equal(t, "ollama", embedderBackend(cfg))

	cfg.Embeddings.Provider = ""
	assert.Equal(t, "ollama", embedderBackend(cfg))
}
