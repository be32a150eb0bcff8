package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jmcleod/healthseal/record"
)

var (
	profileID          string
	profileFile        string
	profileConditions  []string
	profileMedications []string
	profileSupplements []string
	profileAllergies   []string
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Store and read encrypted health profiles",
}

// splitParts splits "a:b:c" into exactly n parts, padding with "".
func splitParts(s string, n int) []string {
	parts := strings.SplitN(s, ":", n)
	for len(parts) < n {
		parts = append(parts, "")
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// profileFromFlags builds a profile from --file or the repeatable item flags.
func profileFromFlags() (*record.Profile, error) {
	p := &record.Profile{}
	if profileFile != "" {
		data, err := os.ReadFile(profileFile)
		if err != nil {
			return nil, fmt.Errorf("reading profile file: %w", err)
		}
		if err := json.Unmarshal(data, p); err != nil {
			return nil, fmt.Errorf("parsing profile file: %w", err)
		}
	}
	if profileID != "" {
		p.ID = profileID
	}
	for _, s := range profileConditions {
		f := splitParts(s, 3)
		p.Conditions = append(p.Conditions, record.Condition{Name: f[0], Diagnosed: f[1], Notes: f[2]})
	}
	for _, s := range profileMedications {
		f := splitParts(s, 3)
		p.Medications = append(p.Medications, record.Medication{Name: f[0], Dose: f[1], Frequency: f[2]})
	}
	for _, s := range profileSupplements {
		f := splitParts(s, 2)
		p.Supplements = append(p.Supplements, record.Supplement{Name: f[0], Dose: f[1]})
	}
	for _, s := range profileAllergies {
		f := splitParts(s, 3)
		p.Allergies = append(p.Allergies, record.Allergy{Substance: f[0], Reaction: f[1], Severity: f[2]})
	}
	return p, nil
}

var profilePutCmd = &cobra.Command{
	Use:   "put",
	Short: "Encrypt and store a profile, replacing any existing one with the same ID",
	Example: `  healthseal profile put --id alice --condition "asthma:2012" \
    --medication "salbutamol:100mcg:as needed" --allergy "penicillin:hives:moderate"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := profileFromFlags()
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.records().Save(cmd.Context(), p); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), p.ID)
		return nil
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Decrypt a profile and print it as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.close()

		p, err := a.records().Load(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	},
}

var profileStatusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show how each field of a profile is stored",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.close()

		status, err := a.records().Inspect(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "FIELD\tSTATE")
		for _, st := range status {
			fmt.Fprintf(w, "%s\t%s\n", st.Field, st.State)
		}
		return w.Flush()
	},
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored profile IDs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.close()

		ids, err := a.records().List(cmd.Context())
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.close()

		return a.records().Delete(cmd.Context(), args[0])
	},
}

func init() {
	f := profilePutCmd.Flags()
	f.StringVar(&profileID, "id", "", "Profile ID (generated when empty)")
	f.StringVar(&profileFile, "file", "", "Read the profile from a JSON file")
	f.StringArrayVar(&profileConditions, "condition", nil, "Condition as name[:diagnosed[:notes]] (repeatable)")
	f.StringArrayVar(&profileMedications, "medication", nil, "Medication as name[:dose[:frequency]] (repeatable)")
	f.StringArrayVar(&profileSupplements, "supplement", nil, "Supplement as name[:dose] (repeatable)")
	f.StringArrayVar(&profileAllergies, "allergy", nil, "Allergy as substance[:reaction[:severity]] (repeatable)")

	profileCmd.AddCommand(profilePutCmd, profileShowCmd, profileStatusCmd, profileListCmd, profileDeleteCmd)
	rootCmd.AddCommand(profileCmd)
}
