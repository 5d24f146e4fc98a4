package main

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/config"
	"github.com/Veraticus/tally/internal/ledger"
)

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [file.csv ...]",
		Short: "Commit CSV files to the ledger",
		Long: `Commit one or more CSV files of transactions. Each file is one atomic
batch: its valid rows are committed together with the report update, and
invalid rows are listed with the reason they were rejected.

Rows are: date (YYYY-MM-DD), direction (income or expense), amount, memo.
Use "-" to read from standard input.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runIngest,
	}

	cmd.Flags().Int("retries", 0, "retry a busy ledger this many times before giving up")
	cmd.Flags().Duration("retry-delay", 200*time.Millisecond, "initial delay between retries")
	cmd.Flags().Bool("quiet", false, "do not draw a progress bar")

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	retries, _ := cmd.Flags().GetInt("retries")
	retryDelay, _ := cmd.Flags().GetDuration("retry-delay")
	quiet, _ := cmd.Flags().GetBool("quiet")
	ctx := cmd.Context()

	return withLedger(ctx, func(cfg config.Config, svc *ledger.Service) error {
		for _, path := range args {
			data, err := readUpload(cmd, path, cfg.Ingest.MaxBytes, !quiet)
			if err != nil {
				return explain(err)
			}

			var result ledger.IngestResult
			err = common.WithRetry(ctx, func() error {
				var ingestErr error
				result, ingestErr = svc.Ingest(ctx, bytes.NewReader(data), cfg.Ingest.MaxBytes)
				return ingestErr
			}, common.RetryOptions{
				MaxAttempts:  retries + 1,
				InitialDelay: retryDelay,
			})
			if err != nil {
				return explain(fmt.Errorf("%s: %w", path, err))
			}

			slog.Info("Ingested file",
				"file", path,
				"outcome", result.Outcome,
				"committed", result.Committed,
				"rejected", len(result.Rejected))

			fmt.Fprint(cmd.OutOrStdout(), cli.RenderIngestResult(result))
		}
		return nil
	})
}

// readUpload loads a whole file so a retry can replay it. More than
// maxBytes is refused before any commit is attempted.
func readUpload(cmd *cobra.Command, path string, maxBytes int64, showProgress bool) ([]byte, error) {
	var src io.Reader = cmd.InOrStdin()
	size := int64(-1)

	if path != "-" {
		f, err := os.Open(path) // #nosec G304 - user-provided file path is expected
		if err != nil {
			return nil, common.NewUserError("Could not open "+path, err)
		}
		defer func() { _ = f.Close() }()

		if info, statErr := f.Stat(); statErr == nil {
			size = info.Size()
		}
		src = f
	}

	pr := cli.NewProgressReader(src, cmd.ErrOrStderr(), size, "Reading "+path, showProgress && size > 0)
	defer pr.Finish()

	data, err := io.ReadAll(io.LimitReader(pr, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%s: %w: limit is %d bytes", path, common.ErrTooLarge, maxBytes)
	}
	return data, nil
}
