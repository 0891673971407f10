package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artofficial/intake/internal/journal"
	"github.com/artofficial/intake/internal/output"
)

var (
	journalListOutput string
	journalListLimit  int
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect the outcome journal",
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent submission outcomes",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(journalListOutput)
		if err != nil {
			return err
		}

		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			return err
		}
		if !cfg.Journal.Enabled {
			return errors.New("journal is disabled (set INTAKE_JOURNAL_ENABLED=true or journal.enabled in the config file)")
		}

		store, err := journal.Open(cmd.Context(), cfg.Journal)
		if err != nil {
			return err
		}
		defer store.Close() // nolint:errcheck // best-effort cleanup

		entries, err := store.List(cmd.Context(), journalListLimit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if format == output.FormatJSON {
			return output.WriteJSON(out, entries)
		}
		_, err = fmt.Fprintln(out, output.JournalTable(entries))
		return err
	},
}

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalListCmd)
	journalListCmd.Flags().StringVar(&journalListOutput, "output-format", string(output.FormatTable), "Output format: table|json")
	journalListCmd.Flags().IntVar(&journalListLimit, "limit", journal.DefaultListLimit, "Maximum number of entries")
}
