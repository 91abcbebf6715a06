package chunkindex

import (
	"context"
	"testing"
	"time"

	"docintel/internal/backend"
	"docintel/internal/logger"
	"docintel/internal/workspace"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleChunks() []backend.Chunk {
	return []backend.Chunk{
		{Text: "Invoice number 1001 issued to Acme", SectionType: "header", PageNumber: "1"},
		{PageContent: "Payment terms net thirty days", SectionType: "paragraph", PageNumber: "1"},
		{Metadata: &backend.ChunkMetadata{SectionType: "table", PageNumber: "2", Text: "ignored"}, Text: "Invoice total 42 USD"},
	}
}

func positions(hits []Hit) []int {
	out := make([]int, len(hits))
	for i, h := range hits {
		out[i] = h.Position
	}
	return out
}

func TestSearch_BlankQueryReturnsAllInOrder(t *testing.T) {
	x := New(logger.NewNop())
	defer x.Close()
	require.NoError(t, x.Rebuild("abc123", sampleChunks()))

	hits, err := x.Search("  ", 0)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, positions(hits))

	hits, err = x.Search("", 2)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, positions(hits))
}

func TestSearch_MatchesText(t *testing.T) {
	x := New(logger.NewNop())
	defer x.Close()
	require.NoError(t, x.Rebuild("abc123", sampleChunks()))

	hits, err := x.Search("invoice", 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{0, 2}, positions(hits))

	hits, err = x.Search("payment", 0)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, positions(hits))

	hits, err = x.Search("zebra", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearch_MatchesSection(t *testing.T) {
	x := New(logger.NewNop())
	defer x.Close()
	require.NoError(t, x.Rebuild("abc123", sampleChunks()))

	hits, err := x.Search("table", 0)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, positions(hits))
}

func TestSearch_EmptyIndex(t *testing.T) {
	x := New(logger.NewNop())
	hits, err := x.Search("invoice", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestRebuild_SkipsSameDocument(t *testing.T) {
	x := New(logger.NewNop())
	defer x.Close()
	require.NoError(t, x.Rebuild("abc123", sampleChunks()))
	// same handle, different chunks: the index is left alone
	require.NoError(t, x.Rebuild("abc123", nil))

	hits, err := x.Search("", 0)
	require.NoError(t, err)
	assert.Len(t, hits, 3)

	require.NoError(t, x.Rebuild("other", []backend.Chunk{{Text: "only one"}}))
	hits, err = x.Search("", 0)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
	assert.Equal(t, "other", x.DocumentID())
}

func TestRun_FollowsStore(t *testing.T) {
	store := workspace.NewStore()
	x := New(logger.NewNop())
	defer x.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		x.Run(ctx, store)
		close(done)
	}()

	store.SetDocument(workspace.Document{ID: "abc123", Chunks: sampleChunks(), ChunksCount: 3})
	assert.Eventually(t, func() bool { return x.DocumentID() == "abc123" }, 2*time.Second, 10*time.Millisecond)

	hits, err := x.Search("payment", 0)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, positions(hits))

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
