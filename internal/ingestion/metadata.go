package ingestion

import (
	"maps"
	"strings"
	"time"

	"github.com/fdctax/luna/internal/rag"
)

// newMetadata builds the metadata record shared by every chunk of a
// document. Caller extension fields are copied into Extra after dropping
// reserved and blank keys, so the typed fields always win. A caller-supplied
// "filename" field fills Filename when the request did not come from an
// upload.
func newMetadata(req Request, docID string, now time.Time) rag.Metadata {
	filename := req.Filename
	if filename == "" {
		filename = strings.TrimSpace(req.Metadata[rag.KeyFilename])
	}
	return rag.Metadata{
		DocID:     docID,
		Title:     req.Title,
		Category:  req.Category,
		Filename:  filename,
		CreatedAt: now.UTC(),
		Extra:     extensionFields(req.Metadata),
	}
}

// extensionFields returns the subset of fields that may be stored as
// extension metadata, or nil when nothing remains.
func extensionFields(fields map[string]string) map[string]string {
	if len(fields) == 0 {
		return nil
	}
	out := maps.Clone(fields)
	maps.DeleteFunc(out, func(k, _ string) bool {
		return strings.TrimSpace(k) == "" || rag.IsReserved(k)
	})
	if len(out) == 0 {
		return nil
	}
	return out
}
