package ingestion

import (
	"context"
	"errors"
	"hash/fnv"
	"net/http"
	"strings"
	"testing"
	"time"
	"unicode"

	"github.com/fdctax/luna/internal/apperr"
	"github.com/fdctax/luna/internal/catalog"
	"github.com/fdctax/luna/internal/rag"
)

// countingEmbedder derives a vector from each text length and fails once
// failAfter successful calls have been made.
type countingEmbedder struct {
	calls     int
	failAfter int
}

func (e *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if e.failAfter > 0 && e.calls >= e.failAfter {
		return nil, errors.New("embedding backend unavailable")
	}
	e.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

// bagOfWordsEmbedder hashes each lower-cased word into one of 64 buckets,
// so texts sharing vocabulary land close together under cosine distance.
type bagOfWordsEmbedder struct{}

func (bagOfWordsEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, 64)
		words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, w := range words {
			h := fnv.New32a()
			_, _ = h.Write([]byte(w))
			vec[h.Sum32()%64]++
		}
		out[i] = vec
	}
	return out, nil
}

func newTestPipeline(t *testing.T, emb rag.Embedder, store rag.Store, cfg *Config) *Pipeline {
	t.Helper()
	p, err := NewPipeline(emb, store, cfg)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	p.newID = func() string { return "doc-fixed" }
	p.now = func() time.Time { return time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC) }
	return p
}

// scanDoc returns the chunks of docID or fails the test.
func scanDoc(t *testing.T, store rag.Store, docID string) []rag.Chunk {
	t.Helper()
	chunks, err := store.Scan(context.Background(), rag.ScanOptions{DocID: docID})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	return chunks
}

func TestNewPipeline_Validation(t *testing.T) {
	t.Parallel()

	store := rag.NewMemoryStore("kb")
	if _, err := NewPipeline(nil, store, nil); err == nil {
		t.Error("expected error for nil embedder")
	}
	if _, err := NewPipeline(&countingEmbedder{}, nil, nil); err == nil {
		t.Error("expected error for nil store")
	}
	_, err := NewPipeline(&countingEmbedder{}, store, &Config{ChunkSize: 100, ChunkOverlap: 100})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("overlap == size: want validation error, got %v", err)
	}

	p, err := NewPipeline(&countingEmbedder{}, store, nil)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	if p.cfg.ChunkSize != 500 || p.cfg.ChunkOverlap != 50 || p.cfg.BatchSize != 32 {
		t.Errorf("unexpected defaults: %+v", p.cfg)
	}
}

func TestIngest_ChunksAndStores(t *testing.T) {
	t.Parallel()

	store := rag.NewMemoryStore("kb")
	p := newTestPipeline(t, &countingEmbedder{}, store, nil)

	res, err := p.Ingest(context.Background(), Request{
		Title:   "Luna Style Guide",
		Content: strings.Repeat("A", 1200),
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.DocID != "doc-fixed" || res.ChunksCreated != 3 {
		t.Fatalf("unexpected result: %+v", res)
	}

	chunks := scanDoc(t, store, res.DocID)
	if len(chunks) != 3 {
		t.Fatalf("want 3 chunks, got %d", len(chunks))
	}
	wantLens := []int{500, 500, 300}
	for i, c := range chunks {
		if c.ID != rag.ChunkID("doc-fixed", i) {
			t.Errorf("chunk %d: id %q", i, c.ID)
		}
		if len(c.Content) != wantLens[i] {
			t.Errorf("chunk %d: len %d, want %d", i, len(c.Content), wantLens[i])
		}
		m := c.Metadata
		if m.ChunkIndex != i || m.Title != "Luna Style Guide" || m.Category != DefaultCategory || m.CreatedAt.IsZero() {
			t.Errorf("chunk %d: unexpected metadata %+v", i, m)
		}
	}
}

func TestIngest_BatchesEmbeddingCalls(t *testing.T) {
	t.Parallel()

	emb := &countingEmbedder{}
	p := newTestPipeline(t, emb, rag.NewMemoryStore("kb"), &Config{ChunkSize: 10, ChunkOverlap: 0, BatchSize: 2})

	res, err := p.Ingest(context.Background(), Request{Title: "t", Content: strings.Repeat("x", 45)})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.ChunksCreated != 5 {
		t.Errorf("chunks: want 5, got %d", res.ChunksCreated)
	}
	if emb.calls != 3 {
		t.Errorf("embed calls: want 3, got %d", emb.calls)
	}
}

func TestIngest_RejectsEmptyInput(t *testing.T) {
	t.Parallel()

	store := rag.NewMemoryStore("kb")
	p := newTestPipeline(t, &countingEmbedder{}, store, nil)

	cases := map[string]Request{
		"missing title": {Title: "", Content: "text"},
		"blank content": {Title: "blank", Content: " \n\t "},
	}
	for name, req := range cases {
		if _, err := p.Ingest(context.Background(), req); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("%s: want validation error, got %v", name, err)
		}
	}
	if n, _ := store.Count(context.Background()); n != 0 {
		t.Errorf("store should be empty, has %d chunks", n)
	}
}

func TestIngest_PartialFailureIsVisible(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := rag.NewMemoryStore("kb")
	p := newTestPipeline(t, &countingEmbedder{failAfter: 1}, store, &Config{ChunkSize: 10, ChunkOverlap: 0, BatchSize: 2})

	res, err := p.Ingest(ctx, Request{Title: "t", Content: strings.Repeat("y", 50)})
	if !errors.Is(err, apperr.ErrUpstream) {
		t.Fatalf("want upstream error, got %v", err)
	}
	if !strings.Contains(err.Error(), "doc-fixed") {
		t.Errorf("error should name the document: %v", err)
	}
	if res.DocID != "doc-fixed" || res.ChunksCreated != 2 {
		t.Errorf("unexpected partial result: %+v", res)
	}
	if n, _ := store.Count(ctx); n != 2 {
		t.Errorf("written chunks: want 2, got %d", n)
	}
}

func TestIngest_KeepsExtensionMetadata(t *testing.T) {
	t.Parallel()

	store := rag.NewMemoryStore("kb")
	p := newTestPipeline(t, &countingEmbedder{}, store, nil)

	_, err := p.Ingest(context.Background(), Request{
		Title:    "GST basics",
		Content:  "Register for GST once turnover reaches $75,000.",
		Category: "Core",
		Metadata: map[string]string{"source": "ato", "doc_id": "spoofed"},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	chunks := scanDoc(t, store, "")
	if len(chunks) != 1 {
		t.Fatalf("want 1 chunk, got %d", len(chunks))
	}
	m := chunks[0].Metadata
	if m.DocID != "doc-fixed" || m.Category != "Core" || m.Extra["source"] != "ato" {
		t.Errorf("unexpected metadata: %+v", m)
	}
}

func TestIngestFile_PlainText(t *testing.T) {
	t.Parallel()

	store := rag.NewMemoryStore("kb")
	p := newTestPipeline(t, &countingEmbedder{}, store, nil)

	res, err := p.IngestFile(context.Background(), FileRequest{
		Filename: "uploads/Luna Style Guide.txt",
		Body:     strings.NewReader("Always greet the client by first name."),
	})
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if res.ChunksCreated != 1 {
		t.Fatalf("chunks: want 1, got %d", res.ChunksCreated)
	}

	chunks := scanDoc(t, store, res.DocID)
	if len(chunks) != 1 {
		t.Fatalf("want 1 chunk, got %d", len(chunks))
	}
	m := chunks[0].Metadata
	if m.Title != "Luna Style Guide.txt" || m.Filename != "Luna Style Guide.txt" || m.Category != DefaultCategory {
		t.Errorf("unexpected metadata: %+v", m)
	}
	if chunks[0].Content != "Always greet the client by first name." {
		t.Errorf("content: %q", chunks[0].Content)
	}
}

func TestIngestFile_TitleOverride(t *testing.T) {
	t.Parallel()

	store := rag.NewMemoryStore("kb")
	p := newTestPipeline(t, &countingEmbedder{}, store, nil)

	res, err := p.IngestFile(context.Background(), FileRequest{
		Filename: "notes.txt",
		Title:    "Client onboarding",
		Category: "Core",
		Body:     strings.NewReader("Collect the TFN before lodging."),
	})
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}

	chunks := scanDoc(t, store, res.DocID)
	if len(chunks) != 1 || chunks[0].Metadata.Title != "Client onboarding" || chunks[0].Metadata.Category != "Core" {
		t.Errorf("unexpected chunks: %+v", chunks)
	}
}

func TestIngestFile_UnsupportedLeavesStoreUntouched(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := rag.NewMemoryStore("kb")
	emb := &countingEmbedder{}
	p := newTestPipeline(t, emb, store, nil)

	_, err := p.IngestFile(ctx, FileRequest{Filename: "photo.png", Body: strings.NewReader("binary")})
	if !errors.Is(err, apperr.ErrUnsupportedFormat) {
		t.Fatalf("want unsupported format, got %v", err)
	}
	if got := apperr.HTTPStatus(err); got != http.StatusBadRequest {
		t.Errorf("status: want 400, got %d", got)
	}
	if n, _ := store.Count(ctx); n != 0 || emb.calls != 0 {
		t.Errorf("store or embedder touched: count=%d calls=%d", n, emb.calls)
	}
}

// TestIngestThenSearch ingests several documents with distinct vocabulary
// and checks that a query drawn from one of them retrieves that document
// first, then walks the document through promotion and deletion.
func TestIngestThenSearch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	emb := bagOfWordsEmbedder{}
	store := rag.NewMemoryStore("kb")
	p, err := NewPipeline(emb, store, nil)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	docs := map[string]string{
		"GST":       "Register for goods and services tax once annual turnover reaches the threshold.",
		"Car":       "Vehicle expenses use the cents per kilometre method with logbook records.",
		"Childcare": "Family day care educators claim heating lighting and cleaning running costs.",
	}
	ids := make(map[string]string, len(docs))
	for title, content := range docs {
		res, err := p.Ingest(ctx, Request{Title: title, Content: content})
		if err != nil {
			t.Fatalf("Ingest %s: %v", title, err)
		}
		ids[title] = res.DocID
	}

	r, err := rag.NewRetriever(emb, store)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}
	queries := map[string]string{
		"GST":       "goods and services tax turnover",
		"Car":       "cents per kilometre logbook",
		"Childcare": "day care educators running costs",
	}
	for title, q := range queries {
		res, err := r.Search(ctx, q, 1)
		if err != nil {
			t.Fatalf("Search %q: %v", q, err)
		}
		if len(res) != 1 || res[0].Metadata.DocID != ids[title] {
			t.Errorf("query %q: want doc %s (%s), got %+v", q, ids[title], title, res)
		}
	}

	cat := catalog.New(store)
	target := ids["Car"]
	for range 2 {
		if _, err := cat.PromoteCategory(ctx, target, rag.CategoryCore); err != nil {
			t.Fatalf("PromoteCategory: %v", err)
		}
		for _, c := range scanDoc(t, store, target) {
			if c.Metadata.Category != rag.CategoryCore {
				t.Fatalf("chunk %s: category %q after promotion", c.ID, c.Metadata.Category)
			}
		}
	}

	if _, err := cat.DeleteDocument(ctx, target); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if _, err := cat.GetDocument(ctx, target); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("GetDocument after delete: want not found, got %v", err)
	}
	list, err := cat.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	for _, d := range list {
		if d.DocID == target {
			t.Error("deleted document still listed")
		}
	}
}
