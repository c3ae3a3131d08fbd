package commands

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fdctax/luna/internal/catalog"
	"github.com/fdctax/luna/internal/logging"
)

// NewDocumentsCmd constructs the `luna documents` command group for
// knowledge-base administration.
func NewDocumentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "documents",
		Aliases: []string{"docs"},
		Short:   "List, inspect and remove knowledge-base documents",
	}
	cmd.AddCommand(
		newDocumentsListCmd(),
		newDocumentsShowCmd(),
		newDocumentsDeleteCmd(),
		newDocumentsClearCmd(),
	)
	return cmd
}

// withCatalog builds the knowledge base, runs fn against its catalog and
// closes the store.
func withCatalog(cmd *cobra.Command, fn func(*catalog.Catalog) error) error {
	kb, err := buildKnowledgeBase(cmd.Context(), logging.New())
	if err != nil {
		return err
	}
	defer kb.Close()
	return fn(kb.catalog)
}

func newDocumentsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List documents with their chunk counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCatalog(cmd, func(c *catalog.Catalog) error {
				docs, err := c.ListDocuments(cmd.Context())
				if err != nil {
					return fmt.Errorf("documents: %w", err)
				}
				return printDocuments(cmd.OutOrStdout(), docs)
			})
		},
	}
}

func printDocuments(out io.Writer, docs []catalog.Summary) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DOC ID\tTITLE\tCATEGORY\tCHUNKS\tCREATED")
	for _, d := range docs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			d.DocID, d.Title, d.Category, d.ChunkCount, d.CreatedAt.Format(time.DateTime))
	}
	fmt.Fprintf(w, "\n%d documents\n", len(docs))
	return w.Flush()
}

func newDocumentsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <doc_id>",
		Short: "Print a document's chunks in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd, func(c *catalog.Catalog) error {
				doc, err := c.GetDocument(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("documents: %w", err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s (%s, %d chunks)\n", doc.Title, doc.Category, doc.ChunkCount)
				for _, ch := range doc.Chunks {
					fmt.Fprintf(out, "\n--- chunk %d ---\n%s\n", ch.Metadata.ChunkIndex, ch.Content)
				}
				return nil
			})
		},
	}
}

func newDocumentsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <doc_id>",
		Short: "Delete a document and all of its chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd, func(c *catalog.Catalog) error {
				n, err := c.DeleteDocument(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("documents: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted document %s (%d chunks)\n", args[0], n)
				return nil
			})
		},
	}
}

func newDocumentsClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every document from the knowledge base",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("documents: clear is irreversible, pass --yes to confirm")
			}
			return withCatalog(cmd, func(c *catalog.Catalog) error {
				if err := c.Clear(cmd.Context()); err != nil {
					return fmt.Errorf("documents: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Knowledge base cleared")
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm removal of all documents")
	return cmd
}
