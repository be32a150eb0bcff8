package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [id]",
	Short: "Encrypt legacy plaintext profile fields",
	Long: `Migrate rewrites profile fields that were stored as plain JSON before
encryption was enabled. Without an ID every profile is migrated. Fields that
are already encrypted are left untouched, so the command can be re-run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.close()

		store := a.records()
		out := cmd.OutOrStdout()
		if len(args) == 1 {
			n, err := store.Migrate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "migrated %d field(s) of %s\n", n, args[0])
			return nil
		}
		report, err := store.MigrateAll(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "migrated %d field(s) across %d profile(s)\n", report.Fields, report.Profiles)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
