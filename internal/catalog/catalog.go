// Package catalog implements the administrative operations over the
// Knowledge Store: document listing and inspection, deletion, category
// promotion, export, statistics and a full reset.
package catalog

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/fdctax/luna/internal/apperr"
	"github.com/fdctax/luna/internal/logging"
	"github.com/fdctax/luna/internal/rag"
)

// Placeholders reported for absent metadata fields.
const (
	UntitledTitle   = "Untitled"
	UnknownCategory = "Unknown"
	NoFilename      = "N/A"
)

// Summary describes one document, derived from the first-seen chunk of
// its doc_id. All chunks of a document share these fields.
type Summary struct {
	DocID        string
	Title        string
	Category     string
	Filename     string
	ChunkCount   int
	CreatedAt    time.Time
	FirstChunkID string
}

// Document is a document with all of its chunks in chunk_index order.
type Document struct {
	Summary
	Chunks []rag.Chunk
}

// Stats reports the size of the Knowledge Store.
type Stats struct {
	// TotalChunks is the number of stored chunks.
	TotalChunks int
	// Collection is the backing collection name.
	Collection string
}

// Export is a full dump of the Knowledge Store including embeddings.
type Export struct {
	ExportedAt time.Time
	Collection string
	Chunks     []rag.Chunk
}

// Catalog runs administrative operations against a Knowledge Store.
type Catalog struct {
	store rag.Store
	now   func() time.Time
}

// New returns a Catalog backed by store.
func New(store rag.Store) *Catalog {
	return &Catalog{store: store, now: time.Now}
}

// ListDocuments groups every stored chunk by doc_id and returns one
// summary per document in first-seen order.
func (c *Catalog) ListDocuments(ctx context.Context) ([]Summary, error) {
	chunks, err := c.store.Scan(ctx, rag.ScanOptions{})
	if err != nil {
		return nil, apperr.Upstream("knowledge store scan failed", err)
	}

	index := make(map[string]int)
	out := make([]Summary, 0)
	for _, ch := range chunks {
		docID := ch.Metadata.DocID
		if i, ok := index[docID]; ok {
			out[i].ChunkCount++
			continue
		}
		index[docID] = len(out)
		s := summarize(ch)
		s.ChunkCount = 1
		out = append(out, s)
	}
	return out, nil
}

// GetDocument returns every chunk of docID sorted by chunk_index.
func (c *Catalog) GetDocument(ctx context.Context, docID string) (Document, error) {
	chunks, err := c.store.Scan(ctx, rag.ScanOptions{DocID: docID})
	if err != nil {
		return Document{}, apperr.Upstream("knowledge store scan failed", err)
	}
	if len(chunks) == 0 {
		return Document{}, apperr.NotFound("document", docID)
	}

	slices.SortStableFunc(chunks, func(a, b rag.Chunk) int {
		return cmp.Compare(a.Metadata.ChunkIndex, b.Metadata.ChunkIndex)
	})

	doc := Document{Summary: summarize(chunks[0]), Chunks: chunks}
	doc.ChunkCount = len(chunks)
	return doc, nil
}

// FindByTitle returns the first document whose title contains substr,
// compared case-insensitively.
func (c *Catalog) FindByTitle(ctx context.Context, substr string) (Summary, error) {
	if strings.TrimSpace(substr) == "" {
		return Summary{}, apperr.Validation("title filter must not be empty")
	}
	docs, err := c.ListDocuments(ctx)
	if err != nil {
		return Summary{}, err
	}
	needle := strings.ToLower(substr)
	for _, d := range docs {
		if strings.Contains(strings.ToLower(d.Title), needle) {
			return d, nil
		}
	}
	return Summary{}, apperr.NotFound("document titled", substr)
}

// DeleteDocument removes every chunk of docID and returns how many were
// deleted.
func (c *Catalog) DeleteDocument(ctx context.Context, docID string) (int, error) {
	if docID == "" {
		return 0, apperr.Validation("doc_id is required")
	}
	n, err := c.store.DeleteDocument(ctx, docID)
	if err != nil {
		return 0, apperr.Upstream("knowledge store delete failed", err)
	}
	if n == 0 {
		return 0, apperr.NotFound("document", docID)
	}
	logging.FromContext(ctx).Info("catalog: document deleted",
		slog.String("doc_id", docID),
		slog.Int("chunks", n),
	)
	return n, nil
}

// PromoteCategory rewrites the category of every chunk of docID. Calling
// it repeatedly with the same category is harmless.
func (c *Catalog) PromoteCategory(ctx context.Context, docID, category string) (int, error) {
	if docID == "" {
		return 0, apperr.Validation("doc_id is required")
	}
	if strings.TrimSpace(category) == "" {
		return 0, apperr.Validation("category is required")
	}
	n, err := c.store.SetCategory(ctx, docID, category)
	if err != nil {
		return 0, apperr.Upstream("knowledge store update failed", err)
	}
	if n == 0 {
		return 0, apperr.NotFound("document", docID)
	}
	logging.FromContext(ctx).Info("catalog: category updated",
		slog.String("doc_id", docID),
		slog.String("category", category),
		slog.Int("chunks", n),
	)
	return n, nil
}

// Stats returns the chunk count and collection name.
func (c *Catalog) Stats(ctx context.Context) (Stats, error) {
	n, err := c.store.Count(ctx)
	if err != nil {
		return Stats{}, apperr.Upstream("knowledge store count failed", err)
	}
	return Stats{TotalChunks: n, Collection: c.store.Collection()}, nil
}

// Export dumps every chunk with its embedding.
func (c *Catalog) Export(ctx context.Context) (Export, error) {
	chunks, err := c.store.Scan(ctx, rag.ScanOptions{WithEmbeddings: true})
	if err != nil {
		return Export{}, apperr.Upstream("knowledge store scan failed", err)
	}
	if chunks == nil {
		chunks = []rag.Chunk{}
	}
	return Export{
		ExportedAt: c.now().UTC(),
		Collection: c.store.Collection(),
		Chunks:     chunks,
	}, nil
}

// Clear drops every chunk and leaves an empty collection behind.
func (c *Catalog) Clear(ctx context.Context) error {
	if err := c.store.Reset(ctx); err != nil {
		return apperr.Upstream("knowledge store reset failed", err)
	}
	logging.FromContext(ctx).Warn("catalog: knowledge base cleared",
		slog.String("collection", c.store.Collection()),
	)
	return nil
}

func summarize(ch rag.Chunk) Summary {
	m := ch.Metadata
	return Summary{
		DocID:        m.DocID,
		Title:        orDefault(m.Title, UntitledTitle),
		Category:     orDefault(m.Category, UnknownCategory),
		Filename:     orDefault(m.Filename, NoFilename),
		CreatedAt:    m.CreatedAt,
		FirstChunkID: ch.ID,
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
