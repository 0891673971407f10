package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/artofficial/intake/internal/newsletter"
	"github.com/artofficial/intake/internal/output"
)

var validateOutput string

var validateCmd = &cobra.Command{
	Use:   "validate [json]",
	Short: "Validate a submission payload offline",
	Long: `Run the payload validator on a JSON body (argument or stdin) and print the
normalized request. Nothing is sent to a provider and no rate limit applies.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(validateOutput)
		if err != nil {
			return err
		}

		raw, err := readPayload(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}

		sub, err := newsletter.ParsePayload(raw)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if format == output.FormatJSON {
			return output.WriteJSON(out, map[string]any{
				"request":  sub.Request,
				"honeypot": sub.HoneypotHit,
			})
		}
		if sub.HoneypotHit {
			_, _ = fmt.Fprint(out, ascii.DrawBox("Honeypot triggered\nThe submission would be answered as pending and dropped", 0))
		}
		_, err = fmt.Fprintln(out, output.RequestTable(sub.Request))
		return err
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVar(&validateOutput, "output-format", string(output.FormatTable), "Output format: table|json")
}

func readPayload(stdin io.Reader, args []string) ([]byte, error) {
	if len(args) == 1 && strings.TrimSpace(args[0]) != "-" {
		return []byte(args[0]), nil
	}
	// One byte past the limit lets ParsePayload report the oversize body.
	raw, err := io.ReadAll(io.LimitReader(stdin, newsletter.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return raw, nil
}
