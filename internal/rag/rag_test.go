package rag

import (
	"context"
	"errors"
	"math"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/fdctax/luna/internal/apperr"
)

// fixedEmbedder returns the same vector for every input.
type fixedEmbedder struct {
	vec []float32
	err error
}

func (f *fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

// stubStore returns canned query results and records the requested n.
type stubStore struct {
	*MemoryStore
	results []Result
	asked   int
}

func (s *stubStore) Query(_ context.Context, _ []float32, n int) ([]Result, error) {
	s.asked = n
	if len(s.results) > n {
		return s.results[:n], nil
	}
	return s.results, nil
}

func result(id, title, filename string, distance float32) Result {
	return Result{
		ChunkID:  id,
		Metadata: Metadata{DocID: id, Title: title, Filename: filename},
		Distance: distance,
	}
}

func chunkIDs(rs []Result) []string {
	ids := make([]string, len(rs))
	for i, r := range rs {
		ids[i] = r.ChunkID
	}
	return ids
}

func near(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-6
}

func Test_Metadata_ReservedKeysWin(t *testing.T) {
	t.Parallel()

	m := Metadata{
		DocID:      "d1",
		Title:      "Guide",
		Category:   "General",
		ChunkIndex: 2,
		Extra: map[string]string{
			KeyTitle:    "hijacked",
			KeyDocID:    "other",
			"audience":  "educators",
			KeyCategory: "Core",
		},
	}

	flat := m.Map()
	want := map[string]any{
		KeyTitle:      "Guide",
		KeyDocID:      "d1",
		KeyCategory:   "General",
		KeyChunkIndex: 2,
		"audience":    "educators",
	}
	for k, v := range want {
		if flat[k] != v {
			t.Errorf("%s: got %v, want %v", k, flat[k], v)
		}
	}
}

func Test_Metadata_RoundTripThroughMap(t *testing.T) {
	t.Parallel()

	created := time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC)
	m := Metadata{
		DocID: "d1", Title: "T", Category: "Core", ChunkIndex: 4,
		Filename: "a.pdf", CreatedAt: created,
		Extra: map[string]string{"source": "upload"},
	}

	flat := m.Map()
	// Payload stores integers as int64.
	flat[KeyChunkIndex] = int64(4)

	back := MetadataFromMap(flat)
	if back.DocID != m.DocID || back.ChunkIndex != m.ChunkIndex {
		t.Errorf("identity lost: %+v", back)
	}
	if !created.Equal(back.CreatedAt) {
		t.Errorf("created_at: got %v, want %v", back.CreatedAt, created)
	}
	if back.Extra["source"] != "upload" {
		t.Errorf("extension field lost: %v", back.Extra)
	}
}

func Test_ChunkID(t *testing.T) {
	t.Parallel()

	cases := []struct {
		index int
		want  string
	}{
		{0, "abc_chunk_0"},
		{12, "abc_chunk_12"},
	}
	for _, tc := range cases {
		if got := ChunkID("abc", tc.index); got != tc.want {
			t.Errorf("ChunkID(abc, %d) = %q, want %q", tc.index, got, tc.want)
		}
	}
}

func Test_Prioritize_StyleGuideWinsTie(t *testing.T) {
	t.Parallel()

	candidates := []Result{
		result("plain", "Deductions overview", "", 0.4),
		result("style", "Luna Style Guide", "", 0.4),
	}

	got := Prioritize(candidates, 2)
	if len(got) != 2 {
		t.Fatalf("want 2 results, got %d", len(got))
	}
	if got[0].ChunkID != "style" || !near(got[0].Distance, 0.2) || !near(got[1].Distance, 0.4) {
		t.Errorf("unexpected ranking: %+v", got)
	}
	if !near(candidates[1].Distance, 0.4) {
		t.Error("input must not be mutated")
	}
}

func Test_Prioritize_MatchesFilenameCaseInsensitively(t *testing.T) {
	t.Parallel()

	candidates := []Result{
		result("a", "Other", "notes.txt", 0.30),
		result("b", "Untitled", "LUNA STYLE GUIDE v2.pdf", 0.50),
		result("c", "Another", "", 0.35),
	}

	got := chunkIDs(Prioritize(candidates, 3))
	if want := []string{"b", "a", "c"}; !slices.Equal(got, want) {
		t.Errorf("order: got %v, want %v", got, want)
	}
}

func Test_Prioritize_BoostAppliedOnce(t *testing.T) {
	t.Parallel()

	candidates := []Result{result("s", "luna style guide", "luna style guide.pdf", 0.8)}
	if got := Prioritize(candidates, 1); !near(got[0].Distance, 0.4) {
		t.Errorf("distance: got %v, want 0.4", got[0].Distance)
	}
}

func Test_Prioritize_TruncatesAndKeepsStableOrder(t *testing.T) {
	t.Parallel()

	candidates := []Result{
		result("x", "", "", 0.1),
		result("y", "", "", 0.1),
		result("z", "", "", 0.1),
		result("w", "", "", 0.9),
	}
	got := chunkIDs(Prioritize(candidates, 3))
	if want := []string{"x", "y", "z"}; !slices.Equal(got, want) {
		t.Errorf("order: got %v, want %v", got, want)
	}
}

func Test_Retriever_OverFetchesTwiceTheLimit(t *testing.T) {
	t.Parallel()

	store := &stubStore{
		MemoryStore: NewMemoryStore("test"),
		results: []Result{
			result("1", "", "", 0.10),
			result("2", "", "", 0.20),
			result("3", "", "", 0.30),
			result("4", "", "", 0.40),
			result("5", "", "", 0.45),
			result("6", "Luna Style Guide", "", 0.50),
		},
	}
	r, err := NewRetriever(&fixedEmbedder{vec: []float32{1, 0}}, store)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}

	res, err := r.Search(context.Background(), "gst", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if store.asked != 6 {
		t.Errorf("store asked for %d candidates, want 6", store.asked)
	}
	// 0.50 boosted to 0.25 beats 0.30.
	if got, want := chunkIDs(res), []string{"1", "2", "6"}; !slices.Equal(got, want) {
		t.Errorf("order: got %v, want %v", got, want)
	}
}

func Test_Retriever_EmptyStore(t *testing.T) {
	t.Parallel()

	r, err := NewRetriever(&fixedEmbedder{vec: []float32{1, 0}}, NewMemoryStore("empty"))
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}

	got, err := r.Search(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("want empty non-nil slice, got %#v", got)
	}
}

func Test_Retriever_FewerCandidatesThanLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore("small")
	err := store.Upsert(ctx, []Chunk{
		{ID: "a_chunk_0", Content: "far", Embedding: []float32{0, 1}, Metadata: Metadata{DocID: "a"}},
		{ID: "b_chunk_0", Content: "near", Embedding: []float32{1, 0.1}, Metadata: Metadata{DocID: "b"}},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	r, err := NewRetriever(&fixedEmbedder{vec: []float32{1, 0}}, store)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}

	got, err := r.Search(ctx, "q", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 results, got %d", len(got))
	}
	if got[0].ChunkID != "b_chunk_0" || got[0].Distance > got[1].Distance {
		t.Errorf("unexpected ranking: %+v", got)
	}
}

func Test_Retriever_Errors(t *testing.T) {
	t.Parallel()

	r, err := NewRetriever(&fixedEmbedder{err: errors.New("ollama down")}, NewMemoryStore("x"))
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}

	_, err = r.Search(context.Background(), "q", 3)
	if !errors.Is(err, apperr.ErrUpstream) || !strings.Contains(err.Error(), "ollama down") {
		t.Errorf("embed failure: want upstream error naming the cause, got %v", err)
	}

	if _, err = r.Search(context.Background(), "q", 0); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("zero limit: want validation error, got %v", err)
	}

	if _, err = NewRetriever(nil, NewMemoryStore("x")); err == nil {
		t.Error("nil embedder: want error")
	}
}

func Test_MemoryStore_AdminOperations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := NewMemoryStore("kb")
	chunks := []Chunk{
		{ID: "d1_chunk_0", Embedding: []float32{1, 0}, Metadata: Metadata{DocID: "d1", ChunkIndex: 0, Category: "General"}},
		{ID: "d1_chunk_1", Embedding: []float32{1, 1}, Metadata: Metadata{DocID: "d1", ChunkIndex: 1, Category: "General"}},
		{ID: "d2_chunk_0", Embedding: []float32{0, 1}, Metadata: Metadata{DocID: "d2", ChunkIndex: 0, Category: "General"}},
	}
	if err := s.Upsert(ctx, chunks); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if n, err := s.Count(ctx); err != nil || n != 3 {
		t.Fatalf("Count: got %d (%v), want 3", n, err)
	}

	updated, err := s.SetCategory(ctx, "d1", CategoryCore)
	if err != nil || updated != 2 {
		t.Fatalf("SetCategory: got %d (%v), want 2", updated, err)
	}

	d1, err := s.Scan(ctx, ScanOptions{DocID: "d1"})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(d1) != 2 {
		t.Fatalf("want 2 chunks for d1, got %d", len(d1))
	}
	for _, c := range d1 {
		if c.Metadata.Category != CategoryCore {
			t.Errorf("%s: category %q", c.ID, c.Metadata.Category)
		}
		if c.Embedding != nil {
			t.Errorf("%s: embedding returned without WithEmbeddings", c.ID)
		}
	}

	removed, err := s.DeleteDocument(ctx, "d1")
	if err != nil || removed != 2 {
		t.Fatalf("DeleteDocument: got %d (%v), want 2", removed, err)
	}

	all, err := s.Scan(ctx, ScanOptions{WithEmbeddings: true})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(all) != 1 || all[0].ID != "d2_chunk_0" || !slices.Equal(all[0].Embedding, []float32{0, 1}) {
		t.Fatalf("unexpected remaining chunks: %+v", all)
	}

	// Upsert after delete must not resurrect stale index entries.
	err = s.Upsert(ctx, []Chunk{{ID: "d2_chunk_0", Content: "updated", Embedding: []float32{0, 1}, Metadata: Metadata{DocID: "d2"}}})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if n, _ := s.Count(ctx); n != 1 {
		t.Errorf("after re-upsert: count %d, want 1", n)
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if n, _ := s.Count(ctx); n != 0 {
		t.Errorf("after reset: count %d, want 0", n)
	}
}

func Test_CosineDistance(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"parallel", []float32{1, 0}, []float32{2, 0}, 0},
		{"orthogonal", []float32{1, 0}, []float32{0, 3}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 1},
	}
	for _, tc := range cases {
		if got := CosineDistance(tc.a, tc.b); !near(got, tc.want) {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}
