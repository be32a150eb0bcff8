package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var clearConfirmed bool

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Data key management",
}

var keyStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether a data key exists",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		found, err := a.keys.HasKey(cmd.Context())
		if err != nil {
			return err
		}
		if found {
			fmt.Fprintln(cmd.OutOrStdout(), "data key: present")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "data key: absent (created on first encryption)")
		}
		return nil
	},
}

var keyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the data key, making all encrypted data unreadable",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !clearConfirmed {
			return errors.New("refusing to clear the data key without --yes; every stored envelope becomes unrecoverable")
		}
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.keys.ClearKey(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "data key cleared")
		return nil
	},
}

func init() {
	keyClearCmd.Flags().BoolVar(&clearConfirmed, "yes", false, "Confirm destroying the data key")
	keyCmd.AddCommand(keyStatusCmd, keyClearCmd)
	rootCmd.AddCommand(keyCmd)
}
