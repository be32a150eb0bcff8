package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmcleod/healthseal/crypto"
	"github.com/jmcleod/healthseal/internal/util"
)

var decryptJSON bool

// readValue returns args[0], or stdin when it is missing or "-".
func readValue(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

var encryptCmd = &cobra.Command{
	Use:   "encrypt [text|-]",
	Short: "Encrypt a value and print its envelope",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		plaintext, err := readValue(cmd, args)
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		envelope, err := a.cipher.Encrypt(cmd.Context(), plaintext)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), envelope)
		return nil
	},
}

var decryptCmd = &cobra.Command{
	Use:   "decrypt [envelope|-]",
	Short: "Decrypt an envelope and print the plaintext",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		envelope, err := readValue(cmd, args)
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		plaintext, err := a.cipher.Open(cmd.Context(), envelope)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if decryptJSON {
			var v any
			if err := json.Unmarshal([]byte(plaintext), &v); err != nil {
				return fmt.Errorf("%w: %w", crypto.ErrParse, err)
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		}
		fmt.Fprintln(out, plaintext)
		return nil
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [value|-]",
	Short: "Report whether a stored value looks like an envelope",
	Long: `Inspect classifies a stored value without any key material. The check
is a heuristic: long base64 plaintext can be reported as an envelope.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := readValue(cmd, args)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		scheme, ok := crypto.EnvelopeScheme(value)
		if !ok {
			fmt.Fprintln(out, "plaintext")
			return nil
		}
		fmt.Fprintf(out, "envelope scheme=%s", scheme)
		if scheme == crypto.SchemeV1 {
			raw, _ := util.Base64Decode(value)
			fmt.Fprintf(out, " bytes=%d payload=%d", len(raw), len(raw)-crypto.NonceSize-crypto.TagSize)
		}
		fmt.Fprintln(out)
		return nil
	},
}

func init() {
	decryptCmd.Flags().BoolVar(&decryptJSON, "json", false, "Parse the plaintext as JSON and pretty-print it")
	rootCmd.AddCommand(encryptCmd, decryptCmd, inspectCmd)
}
