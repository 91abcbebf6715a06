// Package chunkindex keeps a full-text index over the active document's chunks
// so the chunk browser can filter them.
package chunkindex

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"docintel/internal/backend"
	"docintel/internal/logger"
	"docintel/internal/workspace"

	"github.com/blevesearch/bleve/v2"
)

const module = "ChunkIndex"

// Hit is one matching chunk, identified by its position in the document.
type Hit struct {
	Position int     `json:"position"`
	Score    float64 `json:"score"`
}

// Index is an in-memory BM25 index of one document. It is rebuilt only when
// the document handle changes.
type Index struct {
	mu    sync.RWMutex
	docID string
	count int
	bm25  bleve.Index
	log   logger.ILogger
}

func New(log logger.ILogger) *Index {
	return &Index{log: log}
}

// DocumentID returns the handle of the indexed document.
func (x *Index) DocumentID() string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.docID
}

// Rebuild indexes chunks for docID. It does nothing when docID is already
// indexed.
func (x *Index) Rebuild(docID string, chunks []backend.Chunk) error {
	x.mu.RLock()
	current := x.bm25 != nil && x.docID == docID
	x.mu.RUnlock()
	if current {
		return nil
	}

	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	batch := idx.NewBatch()
	for i, c := range chunks {
		err := batch.Index(strconv.Itoa(i), map[string]interface{}{
			"text":    c.Body(),
			"section": c.Section(),
			"page":    c.Page(),
		})
		if err != nil {
			idx.Close()
			return fmt.Errorf("index chunk %d: %w", i, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		idx.Close()
		return fmt.Errorf("index batch: %w", err)
	}

	x.mu.Lock()
	old := x.bm25
	x.docID, x.count, x.bm25 = docID, len(chunks), idx
	x.mu.Unlock()
	if old != nil {
		old.Close()
	}

	x.log.Info(module, "Indexed document chunks", map[string]interface{}{
		"document_id": docID, "chunks": len(chunks),
	})
	return nil
}

// Search returns up to n matching chunks, best first. A blank query matches
// every chunk in document order. n <= 0 means no limit.
func (x *Index) Search(query string, n int) ([]Hit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if n <= 0 || n > x.count {
		n = x.count
	}
	if strings.TrimSpace(query) == "" {
		hits := make([]Hit, n)
		for i := range hits {
			hits[i] = Hit{Position: i}
		}
		return hits, nil
	}
	if x.bm25 == nil || n == 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequest(bleve.NewMatchQuery(query))
	req.Size = n
	res, err := x.bm25.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		pos, err := strconv.Atoi(h.ID)
		if err != nil {
			continue
		}
		hits = append(hits, Hit{Position: pos, Score: h.Score})
	}
	return hits, nil
}

// Run follows the store and reindexes whenever a new document becomes active.
// It returns when ctx is done.
func (x *Index) Run(ctx context.Context, store *workspace.Store) {
	sub := store.Subscribe()
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub.C:
			if !ok {
				return
			}
			if snap.DocumentID == x.DocumentID() {
				continue
			}
			if err := x.Rebuild(snap.DocumentID, snap.Chunks); err != nil {
				x.log.Error(module, "Reindex failed", map[string]interface{}{
					"document_id": snap.DocumentID, "error": err,
				})
			}
		}
	}
}

func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.bm25 == nil {
		return nil
	}
	err := x.bm25.Close()
	x.bm25 = nil
	x.docID, x.count = "", 0
	return err
}
