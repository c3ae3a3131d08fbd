package commands

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fdctax/luna/internal/ingestion"
	"github.com/fdctax/luna/internal/logging"
)

// NewIngestCmd constructs the `luna ingest` command group, which adds
// documents to the knowledge base.
func NewIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Add documents to the knowledge base",
		Long: `Chunk, embed and store documents in the knowledge base.

Supported file types: .pdf, .docx, .rtf, .txt.
Documents in the "Core" category are preferred during retrieval.

Relevant environment variables:
  LUNA_STORE             qdrant (default) or memory
  QDRANT_HOST            Qdrant server hostname (default: localhost)
  QDRANT_PORT            Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION      Collection name (default: fdc_knowledge_base)
  EMBEDDING_PROVIDER     Embedding backend: ollama or openai
  LUNA_CHUNK_SIZE        Characters per chunk (default: 500)
  LUNA_CHUNK_OVERLAP     Characters shared between chunks (default: 50)`,
	}
	cmd.AddCommand(newIngestFileCmd(), newIngestTextCmd())
	return cmd
}

func newIngestFileCmd() *cobra.Command {
	var category, title string

	cmd := &cobra.Command{
		Use:   "file <path>...",
		Short: "Ingest one or more PDF, DOCX, RTF or TXT files",
		Example: `  luna ingest file handbook.pdf --category Core
  luna ingest file notes/*.txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if title != "" && len(args) > 1 {
				return errors.New("ingest: --title applies to a single file")
			}
			ctx := cmd.Context()
			log := logging.New()

			kb, err := buildKnowledgeBase(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer kb.Close()

			for _, path := range args {
				res, err := ingestFile(cmd, kb.pipeline, path, category, title)
				if err != nil {
					return fmt.Errorf("ingest: %s: %w", path, err)
				}
				log.Info("document ingested",
					slog.String("path", path),
					slog.String("doc_id", res.DocID),
					slog.Int("chunks", res.ChunksCreated),
				)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d chunks\n", res.DocID, filepath.Base(path), res.ChunksCreated)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", ingestion.DefaultCategory, "Document category (Core is preferred during retrieval)")
	cmd.Flags().StringVarP(&title, "title", "t", "", "Document title (default: file name)")
	return cmd
}

func ingestFile(cmd *cobra.Command, p *ingestion.Pipeline, path, category, title string) (ingestion.Result, error) {
	f, err := os.Open(path) //nolint:gosec // path is supplied by the operator
	if err != nil {
		return ingestion.Result{}, err
	}
	defer f.Close()

	return p.IngestFile(cmd.Context(), ingestion.FileRequest{
		Filename: filepath.Base(path),
		Body:     f,
		Category: category,
		Title:    title,
	})
}

func newIngestTextCmd() *cobra.Command {
	var category, title, file, content string

	cmd := &cobra.Command{
		Use:   "text",
		Short: "Ingest plain text under a title",
		Example: `  luna ingest text --title "Luna Style Guide" --category Core --file style.txt
  echo "Fristen ..." | luna ingest text --title "Deadlines"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if title == "" {
				return errors.New("ingest: --title is required")
			}
			text, err := readText(cmd.InOrStdin(), file, content)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			ctx := cmd.Context()
			log := logging.New()

			kb, err := buildKnowledgeBase(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer kb.Close()

			res, err := kb.pipeline.Ingest(ctx, ingestion.Request{
				Title:    title,
				Content:  text,
				Category: category,
			})
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d chunks\n", res.DocID, title, res.ChunksCreated)
			return nil
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Document title (required)")
	cmd.Flags().StringVarP(&category, "category", "c", ingestion.DefaultCategory, "Document category")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the text from this file")
	cmd.Flags().StringVar(&content, "content", "", "Text to ingest (default: read stdin)")
	cmd.MarkFlagsMutuallyExclusive("file", "content")
	return cmd
}

// readText returns the --content value, the --file contents, or stdin, in
// that order of preference.
func readText(stdin io.Reader, file, content string) (string, error) {
	switch {
	case content != "":
		return content, nil
	case file != "":
		b, err := os.ReadFile(file) //nolint:gosec // path is supplied by the operator
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}
