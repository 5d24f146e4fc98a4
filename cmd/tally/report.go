package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/config"
	"github.com/Veraticus/tally/internal/ledger"
)

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show gross revenue, expenses and net revenue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")

			return withLedger(cmd.Context(), func(_ config.Config, svc *ledger.Service) error {
				report, err := svc.Report(cmd.Context())
				if err != nil {
					return explain(err)
				}

				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(report)
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.RenderReport(report))
				return nil
			})
		},
	}

	cmd.Flags().Bool("json", false, "print the report as JSON")
	return cmd
}
