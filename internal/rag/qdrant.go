package rag

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// Payload keys stored next to the metadata fields.
const (
	payloadContent = "content"
	payloadChunkID = "chunk_id"
)

// scrollPage is the page size used when scanning the collection.
const scrollPage = 256

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements Store backed by a Qdrant collection using cosine
// distance. Point ids are UUIDv5 values derived from the chunk id, so
// re-ingesting a chunk overwrites it in place.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig
}

// NewQdrantStore creates a new QdrantStore, ensuring the target collection
// exists (creating it if necessary), and returns a ready-to-use Store.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant: collection name is required")
	}
	if cfg.VectorSize == 0 {
		return nil, fmt.Errorf("qdrant: vector size is required")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	store := &QdrantStore{client: client, cfg: cfg}
	if err := store.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	return store, nil
}

// Client exposes the gRPC client for readiness checks.
func (s *QdrantStore) Client() *qdrant.Client { return s.client }

// Collection returns the collection name.
func (s *QdrantStore) Collection() string { return s.cfg.Collection }

// ensureCollection creates the Qdrant collection if it does not already exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}
	return s.createCollection(ctx)
}

func (s *QdrantStore) createCollection(ctx context.Context) error {
	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}
	return nil
}

// pointID maps a chunk id onto a stable Qdrant UUID.
func pointID(chunkID string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String())
}

// docFilter selects every point belonging to docID.
func docFilter(docID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatchKeyword(KeyDocID, docID)},
	}
}

// Upsert writes chunks and waits for the write to be applied so the caller
// can read its own writes immediately.
func (s *QdrantStore) Upsert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("qdrant: chunk %s has no embedding", c.ID)
		}
		payload := c.Metadata.Map()
		payload[payloadContent] = c.Content
		payload[payloadChunkID] = c.ID

		values, err := qdrant.TryValueMap(payload)
		if err != nil {
			return fmt.Errorf("qdrant: encode payload for %s: %w", c.ID, err)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      pointID(c.ID),
			Vectors: qdrant.NewVectorsDense(c.Embedding),
			Payload: values,
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}

	return nil
}

// Query performs a cosine similarity search and converts scores to
// distances (1 - similarity).
func (s *QdrantStore) Query(ctx context.Context, vector []float32, n int) ([]Result, error) {
	if n <= 0 {
		return []Result{}, nil
	}
	limit := uint64(n) //nolint:gosec // n is positive
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQueryDense(vector),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	results := make([]Result, 0, len(points))
	for _, p := range points {
		c := chunkFromPayload(p.GetPayload())
		results = append(results, Result{
			ChunkID:  c.ID,
			Content:  c.Content,
			Metadata: c.Metadata,
			Distance: 1 - p.GetScore(),
		})
	}
	return results, nil
}

// Scan pages through the collection with Scroll.
func (s *QdrantStore) Scan(ctx context.Context, opts ScanOptions) ([]Chunk, error) {
	req := &qdrant.ScrollPoints{
		CollectionName: s.cfg.Collection,
		Limit:          qdrant.PtrOf(uint32(scrollPage)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(opts.WithEmbeddings),
	}
	if opts.DocID != "" {
		req.Filter = docFilter(opts.DocID)
	}

	var out []Chunk
	for {
		points, next, err := s.client.ScrollAndOffset(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("qdrant: scroll failed: %w", err)
		}
		for _, p := range points {
			c := chunkFromPayload(p.GetPayload())
			if opts.WithEmbeddings {
				c.Embedding = denseVector(p.GetVectors())
			}
			out = append(out, c)
		}
		if next == nil {
			return out, nil
		}
		req.Offset = next
	}
}

// Count returns the exact number of points in the collection.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count failed: %w", err)
	}
	return int(n), nil //nolint:gosec // collection sizes fit in int
}

// countDocument returns the number of points belonging to docID.
func (s *QdrantStore) countDocument(ctx context.Context, docID string) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Filter:         docFilter(docID),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count %s failed: %w", docID, err)
	}
	return int(n), nil //nolint:gosec // document sizes fit in int
}

// DeleteDocument removes every point of docID with one filter-selector
// delete. The returned count is taken just before the delete.
func (s *QdrantStore) DeleteDocument(ctx context.Context, docID string) (int, error) {
	n, err := s.countDocument(ctx, docID)
	if err != nil || n == 0 {
		return 0, err
	}

	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(docFilter(docID)),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: delete %s failed: %w", docID, err)
	}

	return n, nil
}

// SetCategory overwrites the category payload key on every point of docID.
func (s *QdrantStore) SetCategory(ctx context.Context, docID, category string) (int, error) {
	n, err := s.countDocument(ctx, docID)
	if err != nil || n == 0 {
		return 0, err
	}

	_, err = s.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: s.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Payload:        qdrant.NewValueMap(map[string]any{KeyCategory: category}),
		PointsSelector: qdrant.NewPointsSelectorFilter(docFilter(docID)),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: set category on %s failed: %w", docID, err)
	}
	return n, nil
}

// Reset deletes and recreates the collection.
func (s *QdrantStore) Reset(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		if err := s.client.DeleteCollection(ctx, s.cfg.Collection); err != nil {
			return fmt.Errorf("qdrant: failed to delete collection %q: %w", s.cfg.Collection, err)
		}
	}
	return s.createCollection(ctx)
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// chunkFromPayload decodes a stored payload back into a Chunk.
func chunkFromPayload(payload map[string]*qdrant.Value) Chunk {
	fields := make(map[string]any, len(payload))
	var c Chunk
	for k, v := range payload {
		switch k {
		case payloadContent:
			c.Content = v.GetStringValue()
		case payloadChunkID:
			c.ID = v.GetStringValue()
		default:
			fields[k] = valueOf(v)
		}
	}
	c.Metadata = MetadataFromMap(fields)
	if c.ID == "" {
		c.ID = ChunkID(c.Metadata.DocID, c.Metadata.ChunkIndex)
	}
	return c
}

// valueOf unwraps the scalar kinds Luna writes into payloads.
func valueOf(v *qdrant.Value) any {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_IntegerValue:
		return k.IntegerValue
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_BoolValue:
		return k.BoolValue
	default:
		return nil
	}
}

// denseVector extracts the unnamed dense vector of a point.
func denseVector(v *qdrant.VectorsOutput) []float32 {
	out := v.GetVector()
	if out == nil {
		return nil
	}
	if d := out.GetDense(); d != nil {
		return d.GetData()
	}
	return out.GetData() //nolint:staticcheck // older servers only fill Data
}
