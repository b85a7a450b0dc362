package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	rustyshim "github.com/rustyshim/rustyshim-sdk/go"
)

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "List the maintenance actions the service offers",
	Long:  `Lists the server's actions. Requires an admin session, which is requested automatically.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withConnection(cmd, true, func(ctx context.Context, conn *rustyshim.Connection) error {
			actions, err := conn.ListActions(ctx)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(actions))
			for _, a := range actions {
				rows = append(rows, []string{a.GetType(), a.GetDescription()})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"type", "description"}, rows))
			return err
		})
	},
}

var refreshContextCmd = &cobra.Command{
	Use:   "refresh-context",
	Short: "Re-generate the tables by querying SciDB",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runAction(cmd, (*rustyshim.Connection).RefreshContext)
	},
}

var clearExpiredItemsCmd = &cobra.Command{
	Use:   "clear-expired-items",
	Short: "Drop expired session tokens and tickets on the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runAction(cmd, (*rustyshim.Connection).ClearExpiredItems)
	},
}

func init() {
	rootCmd.AddCommand(actionsCmd)
	rootCmd.AddCommand(refreshContextCmd)
	rootCmd.AddCommand(clearExpiredItemsCmd)
}

// runAction invokes an action on an admin session and prints one message per line.
func runAction(cmd *cobra.Command, action func(*rustyshim.Connection, context.Context) ([]string, error)) error {
	return withConnection(cmd, true, func(ctx context.Context, conn *rustyshim.Connection) error {
		messages, err := action(conn, ctx)
		if err != nil {
			return err
		}
		for _, msg := range messages {
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), msg); err != nil {
				return err
			}
		}
		return nil
	})
}
