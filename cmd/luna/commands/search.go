package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fdctax/luna/internal/logging"
)

// NewSearchCmd constructs the `luna search` command, which runs the same
// prioritised retrieval used by chat.
func NewSearchCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 || limit > 100 {
				return fmt.Errorf("search: --limit must be between 1 and 100")
			}
			ctx := cmd.Context()

			kb, err := buildKnowledgeBase(ctx, logging.New())
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			defer kb.Close()

			results, err := kb.retriever.Search(ctx, strings.Join(args, " "), limit)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DISTANCE\tTITLE\tCATEGORY\tCHUNK\tPREVIEW")
			for _, r := range results {
				fmt.Fprintf(w, "%.4f\t%s\t%s\t%s\t%s\n",
					r.Distance, r.Metadata.Title, r.Metadata.Category, r.ChunkID, preview(r.Content, 60))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "Maximum number of results (1-100)")
	return cmd
}

// preview returns s on one line, cut to at most n runes.
func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
