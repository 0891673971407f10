package cmd

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/artofficial/intake/internal/output"
	"github.com/artofficial/intake/internal/provider"
)

var providersOutput string

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Show detected provider credentials and the resolved backend",
	Long: `Show which newsletter backends have credentials in the current configuration
and which one a submission would be sent to. Credential values are never printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(providersOutput)
		if err != nil {
			return err
		}

		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			return err
		}

		statuses := provider.NewRegistry(cfg).Status()
		out := cmd.OutOrStdout()
		if format == output.FormatJSON {
			return output.WriteJSON(out, map[string]any{
				"test_mode": cfg.Newsletter.TestMode,
				"backends":  statuses,
			})
		}

		if cfg.Newsletter.TestMode {
			_, _ = fmt.Fprint(out, ascii.DrawBox("Test mode is enabled\nNo backend will be called", 0))
		}
		_, err = fmt.Fprintln(out, output.ProvidersTable(statuses))
		return err
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
	providersCmd.Flags().StringVar(&providersOutput, "output-format", string(output.FormatTable), "Output format: table|json")
}
