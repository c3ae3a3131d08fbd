// Package rag defines the knowledge-base data model and the contracts for
// the components around it: the Knowledge Store that owns every chunk, the
// Embedder that turns text into vectors, and the prioritizing Retriever.
// Concrete stores (Qdrant, in-memory) satisfy [Store] so ingestion,
// retrieval and the admin catalog never depend on a specific backend.
package rag

import (
	"context"
	"fmt"
	"maps"
	"strconv"
	"time"
)

// Reserved metadata keys. Caller-supplied extension fields can never
// overwrite these.
const (
	KeyDocID      = "doc_id"
	KeyTitle      = "title"
	KeyCategory   = "category"
	KeyChunkIndex = "chunk_index"
	KeyFilename   = "filename"
	KeyCreatedAt  = "created_at"
)

// CategoryCore marks elevated-priority material such as the style guide.
const CategoryCore = "Core"

// reserved is the set of keys owned by the typed Metadata fields.
var reserved = map[string]bool{
	KeyDocID:      true,
	KeyTitle:      true,
	KeyCategory:   true,
	KeyChunkIndex: true,
	KeyFilename:   true,
	KeyCreatedAt:  true,
}

// IsReserved reports whether key belongs to the fixed metadata schema.
func IsReserved(key string) bool { return reserved[key] }

// Metadata is the metadata record attached to every chunk. The fixed
// fields are always authoritative; Extra carries caller extension fields.
type Metadata struct {
	DocID      string
	Title      string
	Category   string
	ChunkIndex int
	// Filename is empty for text ingestion.
	Filename  string
	CreatedAt time.Time
	// Extra holds caller-supplied fields. Entries whose key is reserved are
	// ignored by Map.
	Extra map[string]string
}

// Map flattens m into the wire/payload form. Reserved keys are written
// last so extension fields can never shadow them.
func (m Metadata) Map() map[string]any {
	out := make(map[string]any, len(m.Extra)+len(reserved))
	for k, v := range m.Extra {
		if !IsReserved(k) {
			out[k] = v
		}
	}
	out[KeyDocID] = m.DocID
	out[KeyTitle] = m.Title
	out[KeyCategory] = m.Category
	out[KeyChunkIndex] = m.ChunkIndex
	out[KeyFilename] = m.Filename
	if !m.CreatedAt.IsZero() {
		out[KeyCreatedAt] = m.CreatedAt.UTC().Format(time.RFC3339)
	}
	return out
}

// MetadataFromMap rebuilds a Metadata record from its flattened form.
// Unknown keys land in Extra.
func MetadataFromMap(in map[string]any) Metadata {
	var m Metadata
	for k, v := range in {
		switch k {
		case KeyDocID:
			m.DocID = asString(v)
		case KeyTitle:
			m.Title = asString(v)
		case KeyCategory:
			m.Category = asString(v)
		case KeyChunkIndex:
			m.ChunkIndex = asInt(v)
		case KeyFilename:
			m.Filename = asString(v)
		case KeyCreatedAt:
			if ts, err := time.Parse(time.RFC3339, asString(v)); err == nil {
				m.CreatedAt = ts
			}
		default:
			if m.Extra == nil {
				m.Extra = make(map[string]string)
			}
			m.Extra[k] = asString(v)
		}
	}
	return m
}

// Clone returns a deep copy of m.
func (m Metadata) Clone() Metadata {
	m.Extra = maps.Clone(m.Extra)
	return m
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func asInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		n, _ := strconv.Atoi(t)
		return n
	default:
		return 0
	}
}

// ChunkID derives the chunk identifier from its document id and position.
// The mapping is reversible by convention: "<doc_id>_chunk_<index>".
func ChunkID(docID string, index int) string {
	return docID + "_chunk_" + strconv.Itoa(index)
}

// Chunk is one stored, embedded unit of retrievable text.
type Chunk struct {
	// ID is ChunkID(Metadata.DocID, Metadata.ChunkIndex).
	ID string
	// Content is the chunk text.
	Content string
	// Embedding is populated on write, and on read only when requested.
	Embedding []float32
	// Metadata is the chunk's metadata record.
	Metadata Metadata
}

// Result is a per-query retrieval hit. Lower Distance means more similar.
type Result struct {
	// ChunkID identifies the matched chunk.
	ChunkID string
	// Content is the matched chunk text.
	Content string
	// Metadata is the matched chunk's metadata.
	Metadata Metadata
	// Distance is the cosine distance to the query, possibly boosted.
	Distance float32
}

// ScanOptions narrows a Store.Scan call.
type ScanOptions struct {
	// DocID restricts the scan to a single document when non-empty.
	DocID string
	// WithEmbeddings includes vectors in the returned chunks.
	WithEmbeddings bool
}

// Store is the Knowledge Store contract. It exclusively owns every chunk.
// Implementations must be safe to call from multiple goroutines and must
// make a caller's own writes visible to its subsequent reads.
type Store interface {
	// Upsert writes chunks with their embeddings. Each chunk is written
	// independently; a failure may leave earlier chunks in place.
	Upsert(ctx context.Context, chunks []Chunk) error

	// Query returns up to n chunks nearest to vector, ordered by ascending
	// distance. An empty store yields an empty slice.
	Query(ctx context.Context, vector []float32, n int) ([]Result, error)

	// Scan returns every chunk matching opts.
	Scan(ctx context.Context, opts ScanOptions) ([]Chunk, error)

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)

	// DeleteDocument removes every chunk of docID and reports how many
	// were removed.
	DeleteDocument(ctx context.Context, docID string) (int, error)

	// SetCategory rewrites the category of every chunk of docID and
	// reports how many chunks were updated.
	SetCategory(ctx context.Context, docID, category string) (int, error)

	// Reset drops every chunk and re-initializes an empty collection.
	Reset(ctx context.Context) error

	// Collection returns the collection name.
	Collection() string

	// Close releases any resources held by the store.
	Close() error
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
