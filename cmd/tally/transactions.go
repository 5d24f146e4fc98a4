package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/config"
	"github.com/Veraticus/tally/internal/ledger"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

func transactionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "transactions",
		Aliases: []string{"txns"},
		Short:   "List committed transactions",
		RunE:    runTransactions,
	}

	cmd.Flags().Int("limit", 50, "maximum transactions to show (0 for all)")
	cmd.Flags().Int("offset", 0, "transactions to skip")
	cmd.Flags().String("from", "", "only transactions on or after this date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "only transactions on or before this date (YYYY-MM-DD)")

	return cmd
}

func runTransactions(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")

	filter := service.TransactionFilter{Limit: limit, Offset: offset}
	if from != "" {
		d, err := model.ParseDate(from)
		if err != nil {
			return common.NewUserError("--from must be YYYY-MM-DD", err)
		}
		filter.StartDate = &d
	}
	if to != "" {
		d, err := model.ParseDate(to)
		if err != nil {
			return common.NewUserError("--to must be YYYY-MM-DD", err)
		}
		filter.EndDate = &d
	}

	return withLedger(cmd.Context(), func(_ config.Config, svc *ledger.Service) error {
		transactions, err := svc.Transactions(cmd.Context(), filter)
		if err != nil {
			return explain(err)
		}
		total, err := svc.Count(cmd.Context())
		if err != nil {
			return explain(err)
		}

		fmt.Fprint(cmd.OutOrStdout(), cli.RenderTransactions(transactions, total))
		return nil
	})
}
