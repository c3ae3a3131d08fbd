package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fdctax/luna/internal/catalog"
	"github.com/fdctax/luna/internal/logging"
)

// Search limit bounds for POST /kb/search.
const (
	defaultSearchLimit = 5
	maxSearchLimit     = 100
)

// handleSearch handles POST /kb/search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSONError(w, r, http.StatusBadRequest, "query is required")
		return
	}
	limit := defaultSearchLimit
	if req.Limit != nil {
		limit = *req.Limit
	}
	if limit < 1 || limit > maxSearchLimit {
		writeJSONError(w, r, http.StatusBadRequest,
			fmt.Sprintf("limit must be between 1 and %d", maxSearchLimit))
		return
	}

	start := time.Now()
	results, err := s.deps.Retriever.Search(r.Context(), req.Query, limit)
	if s.metrics != nil {
		s.metrics.searchDurationSeconds.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := searchResponse{Query: req.Query, Results: make([]searchResult, len(results)), Count: len(results)}
	for i, res := range results {
		out.Results[i] = searchResult{
			Content:  res.Content,
			Metadata: res.Metadata.Map(),
			Distance: res.Distance,
		}
	}
	writeJSON(w, r, http.StatusOK, out)
}

// handleStats handles GET /kb/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Catalog.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, statsResponse{
		TotalDocuments: st.TotalChunks,
		CollectionName: st.Collection,
	})
}

// handleListDocuments handles GET /kb/documents.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.deps.Catalog.ListDocuments(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := documentListResponse{Documents: make([]documentSummary, len(docs)), Total: len(docs)}
	for i, d := range docs {
		out.Documents[i] = toDocumentSummary(d)
	}
	writeJSON(w, r, http.StatusOK, out)
}

// handleGetDocument handles GET /kb/documents/{doc_id}.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.deps.Catalog.GetDocument(r.Context(), r.PathValue("doc_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := documentResponse{
		DocID:      doc.DocID,
		Title:      doc.Title,
		Category:   doc.Category,
		Filename:   doc.Filename,
		ChunkCount: doc.ChunkCount,
		Chunks:     make([]documentChunk, len(doc.Chunks)),
	}
	for i, ch := range doc.Chunks {
		out.Chunks[i] = documentChunk{
			ChunkID:    ch.ID,
			Content:    ch.Content,
			Metadata:   ch.Metadata.Map(),
			ChunkIndex: ch.Metadata.ChunkIndex,
		}
	}
	writeJSON(w, r, http.StatusOK, out)
}

// handleDeleteDocument handles DELETE /kb/documents/{doc_id}.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("doc_id")
	n, err := s.deps.Catalog.DeleteDocument(r.Context(), docID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, deleteResponse{
		Status:        "success",
		Message:       fmt.Sprintf("Deleted document %s (%d chunks)", docID, n),
		ChunksDeleted: n,
	})
}

// handlePromoteCategory handles PUT /kb/documents/{doc_id}/category.
func (s *Server) handlePromoteCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	docID := r.PathValue("doc_id")
	n, err := s.deps.Catalog.PromoteCategory(r.Context(), docID, req.Category)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, categoryResponse{
		Status:        "success",
		DocID:         docID,
		Category:      req.Category,
		ChunksUpdated: n,
	})
}

// handleExport handles GET /kb/export.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	exp, err := s.deps.Catalog.Export(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := exportResponse{
		ExportDate:     exp.ExportedAt,
		CollectionName: exp.Collection,
		TotalChunks:    len(exp.Chunks),
		Documents:      make([]exportChunk, len(exp.Chunks)),
	}
	for i, ch := range exp.Chunks {
		out.Documents[i] = exportChunk{
			ChunkID:   ch.ID,
			Content:   ch.Content,
			Metadata:  ch.Metadata.Map(),
			Embedding: ch.Embedding,
		}
	}
	w.Header().Set("Content-Disposition", `attachment; filename="luna_kb_export.json"`)
	writeJSON(w, r, http.StatusOK, out)
}

// handleClear handles DELETE /kb/clear. It drops every chunk and leaves an
// empty collection behind.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Catalog.Clear(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Warn("knowledge base cleared via API",
		slog.String("remote_addr", r.RemoteAddr),
	)
	writeJSON(w, r, http.StatusOK, statusResponse{
		Status:  "success",
		Message: "Knowledge base cleared",
	})
}

// toDocumentSummary converts a catalog summary to its wire form.
func toDocumentSummary(d catalog.Summary) documentSummary {
	created := ""
	if !d.CreatedAt.IsZero() {
		created = d.CreatedAt.UTC().Format(time.RFC3339)
	}
	return documentSummary{
		DocID:        d.DocID,
		Title:        d.Title,
		Category:     d.Category,
		Filename:     d.Filename,
		ChunkCount:   d.ChunkCount,
		CreatedAt:    created,
		FirstChunkID: d.FirstChunkID,
	}
}
