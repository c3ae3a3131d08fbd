package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fdctax/luna/internal/catalog"
)

// NewPromoteCmd constructs the `luna promote` command, which sets the
// category label of every chunk of one document (Core by default).
func NewPromoteCmd() *cobra.Command {
	var docID, titleContains, category string

	cmd := &cobra.Command{
		Use:   "promote",
		Short: "Set a document's category (default: Core)",
		Example: `  luna promote --title-contains "Style Guide"
  luna promote --doc-id 4f1c... --category Archive`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (docID == "") == (titleContains == "") {
				return errors.New("promote: exactly one of --doc-id or --title-contains is required")
			}
			return withCatalog(cmd, func(c *catalog.Catalog) error {
				ctx := cmd.Context()
				id := docID
				if id == "" {
					doc, err := c.FindByTitle(ctx, titleContains)
					if err != nil {
						return fmt.Errorf("promote: %w", err)
					}
					id = doc.DocID
				}
				n, err := c.PromoteCategory(ctx, id, category)
				if err != nil {
					return fmt.Errorf("promote: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated %d chunks of %s to category %s\n", n, id, category)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&docID, "doc-id", "", "Document id to promote")
	cmd.Flags().StringVar(&titleContains, "title-contains", "", "Promote the first document whose title contains this text")
	cmd.Flags().StringVarP(&category, "category", "c", "Core", "Target category")
	return cmd
}
