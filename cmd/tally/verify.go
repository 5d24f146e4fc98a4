package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/config"
	"github.com/Veraticus/tally/internal/ledger"
)

var errReportMismatch = errors.New("persisted report does not match transactions")

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Recompute the report from every transaction and compare",
		Long: `Rebuild gross revenue, expenses and net revenue from the full
transaction set inside one read snapshot and compare them with the
persisted report. Exits non-zero on a mismatch.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLedger(cmd.Context(), func(_ config.Config, svc *ledger.Service) error {
				result, err := svc.Verify(cmd.Context())
				if err != nil {
					return explain(err)
				}

				fmt.Fprint(cmd.OutOrStdout(), cli.RenderVerifyResult(result))
				if !result.OK {
					return errReportMismatch
				}
				return nil
			})
		},
	}
}
