package commands

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fdctax/luna/internal/logging"
)

// NewHistoryCmd constructs the `luna history` command. Without arguments it
// lists stored sessions; with a session id it prints that conversation.
func NewHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [session_id]",
		Short: "Inspect stored chat sessions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hs := openHistory(logging.New())
			if hs == nil {
				return errors.New("history: store unavailable (see LUNA_HISTORY_DB)")
			}
			defer func() { _ = hs.Close() }()

			ctx := cmd.Context()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

			if len(args) == 0 {
				sessions, err := hs.Sessions(ctx)
				if err != nil {
					return fmt.Errorf("history: %w", err)
				}
				fmt.Fprintln(w, "SESSION\tMESSAGES\tLAST ACTIVITY")
				for _, s := range sessions {
					fmt.Fprintf(w, "%s\t%d\t%s\n", s.ID, s.MessageCount, s.LastActivity.Format(time.DateTime))
				}
				return w.Flush()
			}

			msgs, err := hs.Recent(ctx, args[0], limit)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			for _, m := range msgs {
				fmt.Fprintf(w, "%s\t%s\t%s\n", m.CreatedAt.Format(time.DateTime), m.Role, preview(m.Content, 120))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of messages to show")
	return cmd
}
