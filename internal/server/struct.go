package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fdctax/luna/internal/assistant"
	"github.com/fdctax/luna/internal/catalog"
	"github.com/fdctax/luna/internal/ingestion"
	"github.com/fdctax/luna/internal/rag"
	"github.com/fdctax/luna/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8000).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// ChatTimeout bounds a whole /chat request including the fallback
	// attempt. Defaults to 2 minutes.
	ChatTimeout time.Duration
	// MaxUploadBytes caps the multipart body of /ingest/file (default: 32 MiB).
	MaxUploadBytes int64
	// CORSOrigins lists the allowed browser origins. Defaults to ["*"].
	CORSOrigins []string
	// ProviderURL is reported by GET /health as the primary backend endpoint.
	ProviderURL string
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [slog.Default] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency checks run by GET /ready.
	// If empty, /ready returns 200 with no checks.
	Pingers []Pinger
	// MetricsRegistry receives the server metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer is served on GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// responder answers chat requests. *assistant.Orchestrator satisfies it;
// tests inject a fake.
type responder interface {
	Respond(ctx context.Context, req assistant.Request) (*assistant.Response, error)
}

// searcher runs prioritised knowledge-base searches. *rag.Retriever
// satisfies it.
type searcher interface {
	Search(ctx context.Context, query string, limit int) ([]rag.Result, error)
}

// ingester writes documents into the knowledge base.
// *ingestion.Pipeline satisfies it.
type ingester interface {
	Ingest(ctx context.Context, req ingestion.Request) (ingestion.Result, error)
	IngestFile(ctx context.Context, req ingestion.FileRequest) (ingestion.Result, error)
}

// cataloger runs the administrative document operations.
// *catalog.Catalog satisfies it.
type cataloger interface {
	ListDocuments(ctx context.Context) ([]catalog.Summary, error)
	GetDocument(ctx context.Context, docID string) (catalog.Document, error)
	DeleteDocument(ctx context.Context, docID string) (int, error)
	PromoteCategory(ctx context.Context, docID, category string) (int, error)
	Stats(ctx context.Context) (catalog.Stats, error)
	Export(ctx context.Context) (catalog.Export, error)
	Clear(ctx context.Context) error
}

// historyReader serves persisted chat history. *store.SQLiteStore satisfies it.
type historyReader interface {
	Recent(ctx context.Context, sessionID string, n int) ([]store.Message, error)
}

// Deps are the components the HTTP surface delegates to.
type Deps struct {
	// Assistant answers /chat. Required.
	Assistant responder
	// Retriever serves /kb/search. Required.
	Retriever searcher
	// Ingestion serves /ingest/*. Required.
	Ingestion ingester
	// Catalog serves /kb/* administration and /health. Required.
	Catalog cataloger
	// History serves /chat/history. Optional.
	History historyReader
}

// Server is the HTTP server exposing the Luna RAG service.
type Server struct {
	// deps holds the domain components behind each route.
	deps Deps
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency checks for GET /ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors owned by this server.
	metrics *serverMetrics
}

// chatRequest is the JSON body for POST /chat.
type chatRequest struct {
	// Messages is the conversation so far.
	Messages []assistant.Message `json:"messages"`
	// SessionID identifies the chat session and is echoed back.
	SessionID string `json:"session_id"`
	// FormContext is the optional onboarding form state.
	FormContext *assistant.FormContext `json:"form_context,omitempty"`
	// UseFallback skips the primary backend.
	UseFallback bool `json:"use_fallback"`
}

// chatResponse is the JSON body returned by POST /chat.
type chatResponse struct {
	Message   assistant.Message  `json:"message"`
	KBSources []assistant.Source `json:"kb_sources"`
	SessionID string             `json:"session_id"`
	Provider  string             `json:"provider"`
}

// historyMessage is one entry of GET /chat/history/{session_id}.
type historyMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// historyResponse is the JSON body returned by GET /chat/history/{session_id}.
type historyResponse struct {
	SessionID string           `json:"session_id"`
	Messages  []historyMessage `json:"messages"`
}

// ingestRequest is the JSON body for POST /ingest/document.
type ingestRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category"`
	// Metadata carries extension fields; non-string values are stringified.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ingestResponse is the JSON body returned by both ingest endpoints.
type ingestResponse struct {
	Status        string `json:"status"`
	DocID         string `json:"doc_id"`
	ChunksCreated int    `json:"chunks_created"`
}

// searchRequest is the JSON body for POST /kb/search.
type searchRequest struct {
	Query string `json:"query"`
	// Limit defaults to 5 when omitted.
	Limit *int `json:"limit,omitempty"`
}

// searchResult is one hit in a /kb/search response.
type searchResult struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
	Distance float32        `json:"distance"`
}

// searchResponse is the JSON body returned by POST /kb/search.
type searchResponse struct {
	Query   string         `json:"query"`
	Results []searchResult `json:"results"`
	Count   int            `json:"count"`
}

// healthResponse is the JSON body returned by GET /health.
type healthResponse struct {
	Status      string `json:"status"`
	ProviderURL string `json:"provider_url"`
	KBDocuments int    `json:"kb_documents"`
	Error       string `json:"error,omitempty"`
}

// statsResponse is the JSON body returned by GET /kb/stats.
type statsResponse struct {
	TotalDocuments int    `json:"total_documents"`
	CollectionName string `json:"collection_name"`
}

// documentSummary is one entry of GET /kb/documents.
type documentSummary struct {
	DocID        string `json:"doc_id"`
	Title        string `json:"title"`
	Category     string `json:"category"`
	Filename     string `json:"filename"`
	ChunkCount   int    `json:"chunk_count"`
	CreatedAt    string `json:"created_at"`
	FirstChunkID string `json:"first_chunk_id"`
}

// documentListResponse is the JSON body returned by GET /kb/documents.
type documentListResponse struct {
	Documents []documentSummary `json:"documents"`
	Total     int               `json:"total"`
}

// documentChunk is one chunk in a GET /kb/documents/{doc_id} response.
type documentChunk struct {
	ChunkID    string         `json:"chunk_id"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata"`
	ChunkIndex int            `json:"chunk_index"`
}

// documentResponse is the JSON body returned by GET /kb/documents/{doc_id}.
type documentResponse struct {
	DocID      string          `json:"doc_id"`
	Title      string          `json:"title"`
	Category   string          `json:"category"`
	Filename   string          `json:"filename"`
	ChunkCount int             `json:"chunk_count"`
	Chunks     []documentChunk `json:"chunks"`
}

// deleteResponse is the JSON body returned by DELETE /kb/documents/{doc_id}.
type deleteResponse struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	ChunksDeleted int    `json:"chunks_deleted"`
}

// categoryRequest is the JSON body for PUT /kb/documents/{doc_id}/category.
type categoryRequest struct {
	Category string `json:"category"`
}

// categoryResponse is the JSON body returned by PUT /kb/documents/{doc_id}/category.
type categoryResponse struct {
	Status        string `json:"status"`
	DocID         string `json:"doc_id"`
	Category      string `json:"category"`
	ChunksUpdated int    `json:"chunks_updated"`
}

// exportChunk is one chunk of a GET /kb/export dump.
type exportChunk struct {
	ChunkID   string         `json:"chunk_id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	Embedding []float32      `json:"embedding"`
}

// exportResponse is the JSON body returned by GET /kb/export.
type exportResponse struct {
	ExportDate     time.Time     `json:"export_date"`
	CollectionName string        `json:"collection_name"`
	TotalChunks    int           `json:"total_chunks"`
	Documents      []exportChunk `json:"documents"`
}

// statusResponse is the JSON body returned by DELETE /kb/clear.
type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
