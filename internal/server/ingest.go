package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/fdctax/luna/internal/ingestion"
	"github.com/fdctax/luna/internal/logging"
)

// handleIngestDocument handles POST /ingest/document for raw text.
func (s *Server) handleIngestDocument(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := s.deps.Ingestion.Ingest(r.Context(), ingestion.Request{
		Title:    req.Title,
		Content:  req.Content,
		Category: req.Category,
		Metadata: stringifyMetadata(req.Metadata),
	})
	s.finishIngest(w, r, res, err)
}

// handleIngestFile handles POST /ingest/file. The multipart form carries
// "file" plus optional "category" and "title" fields.
func (s *Server) handleIngestFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, r, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		writeJSONError(w, r, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	res, err := s.deps.Ingestion.IngestFile(r.Context(), ingestion.FileRequest{
		Filename: header.Filename,
		Body:     file,
		Category: r.FormValue("category"),
		Title:    r.FormValue("title"),
	})
	s.finishIngest(w, r, res, err)
}

// finishIngest records metrics and writes the ingest response.
func (s *Server) finishIngest(w http.ResponseWriter, r *http.Request, res ingestion.Result, err error) {
	outcome := outcomeOK
	if err != nil {
		outcome = outcomeError
	}
	if s.metrics != nil {
		s.metrics.ingestDocumentsTotal.WithLabelValues(outcome).Inc()
		s.metrics.ingestChunksTotal.Add(float64(res.ChunksCreated))
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("document ingested",
		slog.String("doc_id", res.DocID),
		slog.Int("chunks", res.ChunksCreated),
	)
	writeJSON(w, r, http.StatusOK, ingestResponse{
		Status:        "success",
		DocID:         res.DocID,
		ChunksCreated: res.ChunksCreated,
	})
}

// stringifyMetadata converts JSON extension fields to strings. Strings are
// kept verbatim; other values use their JSON form.
func stringifyMetadata(in map[string]any) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case nil:
			continue
		case string:
			out[k] = t
		default:
			b, err := json.Marshal(t)
			if err != nil {
				out[k] = fmt.Sprint(t)
				continue
			}
			out[k] = string(b)
		}
	}
	return out
}
