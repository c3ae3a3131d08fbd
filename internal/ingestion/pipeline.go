// Package ingestion implements the knowledge-base ingestion pipeline.
// It chunks document text, embeds each chunk, and writes the results to
// the Knowledge Store. A file wrapper extracts text from uploads first.
// This pipeline backs POST /ingest/document, POST /ingest/file and the
// `luna ingest` CLI command.
package ingestion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fdctax/luna/internal/apperr"
	"github.com/fdctax/luna/internal/chunker"
	"github.com/fdctax/luna/internal/extract"
	"github.com/fdctax/luna/internal/logging"
	"github.com/fdctax/luna/internal/rag"
)

// DefaultCategory is assigned when a caller omits the category.
const DefaultCategory = "General"

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the maximum number of characters per chunk.
	// Defaults to 500 if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters shared by consecutive chunks.
	// Defaults to 50 when both ChunkSize and ChunkOverlap are zero.
	ChunkOverlap int

	// BatchSize is the number of chunks embedded and written per round trip.
	// Defaults to 32 if zero.
	BatchSize int
}

// Request describes one text document to ingest.
type Request struct {
	// Title is the document title. Required.
	Title string
	// Content is the extracted plain text.
	Content string
	// Category is a free-form label; "Core" marks priority material.
	Category string
	// Filename is set only for file-based ingestion.
	Filename string
	// Metadata carries caller extension fields. Reserved keys are ignored.
	Metadata map[string]string
}

// FileRequest describes an uploaded file to ingest.
type FileRequest struct {
	// Filename is the original upload name; its extension selects the extractor.
	Filename string
	// Body streams the file content.
	Body io.Reader
	// Category is a free-form label. Defaults to DefaultCategory.
	Category string
	// Title overrides the filename as document title when non-empty.
	Title string
}

// Result reports the outcome of an ingest call. On failure it still
// carries the generated DocID and the number of chunks already written so
// the caller can delete the partial document.
type Result struct {
	DocID         string
	ChunksCreated int
}

// Pipeline orchestrates the chunk -> embed -> store flow. It is the only
// writer of chunk records.
type Pipeline struct {
	// embedder converts text chunks into dense vector embeddings.
	embedder rag.Embedder

	// store persists the embedded chunks.
	store rag.Store

	// chunker splits content into overlapping windows.
	chunker *chunker.Chunker

	// cfg holds the resolved pipeline configuration.
	cfg *Config

	// newID generates document ids.
	newID func() string

	// now returns the ingestion timestamp.
	now func() time.Time
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
// An overlap that is not smaller than the chunk size is rejected.
func NewPipeline(embedder rag.Embedder, store rag.Store, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.ChunkSize == 0 && cfg.ChunkOverlap == 0 {
		cfg.ChunkSize = chunker.DefaultSize
		cfg.ChunkOverlap = chunker.DefaultOverlap
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = chunker.DefaultSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}

	ch, err := chunker.New(chunker.Config{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap})
	if err != nil {
		return nil, fmt.Errorf("ingestion: %w", err)
	}

	return &Pipeline{
		embedder: embedder,
		store:    store,
		chunker:  ch,
		cfg:      cfg,
		newID:    func() string { return uuid.New().String() },
		now:      time.Now,
	}, nil
}

// Ingest chunks, embeds and stores req under a freshly generated doc_id.
// Failures are visible, not atomic: chunks written before the failing
// batch stay in the store and are reported in the returned Result.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Title) == "" {
		return Result{}, apperr.Validation("title is required")
	}
	if strings.TrimSpace(req.Content) == "" {
		return Result{}, apperr.Validation("document %q has no text content", req.Title)
	}
	if req.Category == "" {
		req.Category = DefaultCategory
	}

	res := Result{DocID: p.newID()}
	log := logging.FromContext(ctx).With(slog.String("doc_id", res.DocID))
	base := newMetadata(req, res.DocID, p.now())

	batch := make([]rag.Chunk, 0, p.cfg.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.writeBatch(ctx, batch); err != nil {
			return err
		}
		res.ChunksCreated += len(batch)
		batch = batch[:0]
		return nil
	}

	for c := range p.chunker.Chunks(req.Content) {
		meta := base.Clone()
		meta.ChunkIndex = c.Index
		batch = append(batch, rag.Chunk{
			ID:       rag.ChunkID(res.DocID, c.Index),
			Content:  c.Text,
			Metadata: meta,
		})
		if len(batch) == p.cfg.BatchSize {
			if err := flush(); err != nil {
				log.Error("ingestion: batch failed", slog.Int("written", res.ChunksCreated), slog.Any("error", err))
				return res, fmt.Errorf("ingestion: doc %s failed after %d chunks: %w", res.DocID, res.ChunksCreated, err)
			}
		}
	}
	if err := flush(); err != nil {
		log.Error("ingestion: batch failed", slog.Int("written", res.ChunksCreated), slog.Any("error", err))
		return res, fmt.Errorf("ingestion: doc %s failed after %d chunks: %w", res.DocID, res.ChunksCreated, err)
	}

	log.Info("ingestion: document stored",
		slog.String("title", req.Title),
		slog.String("category", req.Category),
		slog.Int("chunks", res.ChunksCreated),
	)
	return res, nil
}

// writeBatch embeds and stores one batch of chunks.
func (p *Pipeline) writeBatch(ctx context.Context, batch []rag.Chunk) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Content
	}

	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return apperr.Upstream("embedding failed", err)
	}
	if len(vectors) != len(batch) {
		return apperr.Upstream("embedding failed", fmt.Errorf("expected %d vectors, got %d", len(batch), len(vectors)))
	}
	for i := range batch {
		batch[i].Embedding = vectors[i]
	}

	if err := p.store.Upsert(ctx, batch); err != nil {
		return apperr.Upstream("store write failed", err)
	}
	return nil
}

// IngestFile extracts the text of an uploaded file and ingests it. The
// extension is checked before anything is written, so unsupported uploads
// never touch the store.
func (p *Pipeline) IngestFile(ctx context.Context, req FileRequest) (Result, error) {
	name := filepath.Base(req.Filename)
	if name == "." || name == string(filepath.Separator) || name == "" {
		return Result{}, apperr.Validation("filename is required")
	}
	if _, err := extract.Detect(name); err != nil {
		return Result{}, err
	}
	if req.Body == nil {
		return Result{}, apperr.Validation("file %q has no body", name)
	}

	text, err := p.extract(name, req.Body)
	if err != nil {
		return Result{}, err
	}

	title := req.Title
	if strings.TrimSpace(title) == "" {
		title = name
	}
	return p.Ingest(ctx, Request{
		Title:    title,
		Content:  text,
		Category: req.Category,
		Filename: name,
	})
}

// extract spools body to a temporary file carrying the original extension
// and runs the extractor over it.
func (p *Pipeline) extract(name string, body io.Reader) (string, error) {
	tmp, err := os.CreateTemp("", "luna-upload-*"+filepath.Ext(name))
	if err != nil {
		return "", fmt.Errorf("ingestion: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("ingestion: spool %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("ingestion: spool %s: %w", name, err)
	}

	text, err := extract.File(tmp.Name())
	if err != nil {
		return "", fmt.Errorf("ingestion: %s: %w", name, err)
	}
	return text, nil
}
