package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Provision the configured store and exit",
		Long: "For STORE_BACKEND=sql, creates or upgrades the complaints, comments and idempotency tables.\n" +
			"For STORE_BACKEND=table, creates the table if it does not exist.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBacking(cmd.Context(), app.cfg.Store)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s store ready\n", b.Name)
			return b.Close()
		},
	}
}
