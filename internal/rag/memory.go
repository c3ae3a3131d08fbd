package rag

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
)

// MemoryStore is an in-process Store using exact cosine distance. It keeps
// insertion order, which makes scans deterministic. It backs tests and the
// LUNA_STORE=memory mode used for local development.
type MemoryStore struct {
	mu         sync.RWMutex
	collection string
	chunks     []Chunk
	// byID maps a chunk id to its position in chunks.
	byID map[string]int
}

// NewMemoryStore returns an empty MemoryStore for the named collection.
func NewMemoryStore(collection string) *MemoryStore {
	return &MemoryStore{collection: collection, byID: make(map[string]int)}
}

// Upsert inserts or replaces chunks by id.
func (s *MemoryStore) Upsert(_ context.Context, chunks []Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("memory store: chunk id must not be empty")
		}
		c.Metadata = c.Metadata.Clone()
		c.Embedding = slices.Clone(c.Embedding)
		if i, ok := s.byID[c.ID]; ok {
			s.chunks[i] = c
			continue
		}
		s.byID[c.ID] = len(s.chunks)
		s.chunks = append(s.chunks, c)
	}
	return nil
}

// Query ranks every chunk by cosine distance to vector.
func (s *MemoryStore) Query(_ context.Context, vector []float32, n int) ([]Result, error) {
	if n <= 0 {
		return []Result{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]Result, 0, len(s.chunks))
	for _, c := range s.chunks {
		if len(c.Embedding) != len(vector) {
			return nil, fmt.Errorf("memory store: dimension mismatch for %s: stored %d, query %d",
				c.ID, len(c.Embedding), len(vector))
		}
		results = append(results, Result{
			ChunkID:  c.ID,
			Content:  c.Content,
			Metadata: c.Metadata.Clone(),
			Distance: CosineDistance(vector, c.Embedding),
		})
	}
	slices.SortStableFunc(results, func(a, b Result) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		default:
			return 0
		}
	})
	if len(results) > n {
		results = results[:n]
	}
	return results, nil
}

// Scan returns matching chunks in insertion order.
func (s *MemoryStore) Scan(_ context.Context, opts ScanOptions) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Chunk
	for _, c := range s.chunks {
		if opts.DocID != "" && c.Metadata.DocID != opts.DocID {
			continue
		}
		c.Metadata = c.Metadata.Clone()
		if opts.WithEmbeddings {
			c.Embedding = slices.Clone(c.Embedding)
		} else {
			c.Embedding = nil
		}
		out = append(out, c)
	}
	return out, nil
}

// Count returns the number of stored chunks.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

// DeleteDocument removes all chunks of docID under a single lock.
func (s *MemoryStore) DeleteDocument(_ context.Context, docID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.chunks[:0]
	removed := 0
	for _, c := range s.chunks {
		if c.Metadata.DocID == docID {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	clear(s.chunks[len(kept):])
	s.chunks = kept
	s.reindex()
	return removed, nil
}

// SetCategory rewrites the category of every chunk of docID.
func (s *MemoryStore) SetCategory(_ context.Context, docID, category string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := 0
	for i := range s.chunks {
		if s.chunks[i].Metadata.DocID == docID {
			s.chunks[i].Metadata.Category = category
			updated++
		}
	}
	return updated, nil
}

// Reset drops every chunk.
func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
	s.byID = make(map[string]int)
	return nil
}

// Collection returns the collection name.
func (s *MemoryStore) Collection() string { return s.collection }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) reindex() {
	s.byID = make(map[string]int, len(s.chunks))
	for i, c := range s.chunks {
		s.byID[c.ID] = i
	}
}

// CosineDistance returns 1 - cosine similarity of a and b. A zero vector
// is treated as maximally distant.
func CosineDistance(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return float32(1 - dot/(math.Sqrt(na)*math.Sqrt(nb)))
}
