package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

const banner = `
  _   _            _ _   _     ____             _ 
 | | | | ___  __ _| | |_| |__ / ___|  ___  __ _| |
 | |_| |/ _ \/ _` + "`" + ` | | __| '_ \\___ \ / _ \/ _` + "`" + ` | |
 |  _  |  __/ (_| | | |_| | | |___) |  __/ (_| | |
 |_| |_|\___|\__,_|_|\__|_| |_|____/ \___|\__,_|_|
`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  Health Record Encryption - Version %s\x1b[0m\n\n", Version)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		printBanner(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
