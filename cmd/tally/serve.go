package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/tally/internal/api"
	"github.com/Veraticus/tally/internal/certs"
	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/config"
	"github.com/Veraticus/tally/internal/ledger"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ledger over HTTP",
		Long: `Start the HTTP API.

  POST /transactions     upload a CSV (multipart field "data" or raw body)
  GET  /transactions     list committed transactions
  GET  /report           current gross revenue, expenses and net revenue
  GET  /report/verify    recompute the report from every transaction
  GET  /healthz          database health

With --tls a self-signed certificate for localhost and the listen host
is created in server.cert_dir and reused until it nears expiry.`,
		RunE: runServe,
	}

	cmd.Flags().String("addr", config.DefaultServerAddr, "listen address")
	cmd.Flags().Bool("tls", false, "serve HTTPS with a self-signed certificate")
	_ = viper.BindPFlag(config.KeyServerAddr, cmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag(config.KeyServerTLS, cmd.Flags().Lookup("tls"))

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	return withLedger(ctx, func(cfg config.Config, svc *ledger.Service) error {
		server := &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      api.NewRouter(api.NewHandler(svc, cfg.Ingest.MaxBytes)),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
		if cfg.Server.TLS {
			tlsConfig, err := certs.NewStore(cfg.Server.CertDir, listenHost(cfg.Server.Addr)).TLSConfig()
			if err != nil {
				return common.NewUserError("Could not prepare a TLS certificate in "+cfg.Server.CertDir, err)
			}
			server.TLSConfig = tlsConfig
		}

		errCh := make(chan error, 1)
		go func() {
			slog.Info("Starting API server",
				"addr", cfg.Server.Addr,
				"database", cfg.Database.Path,
				"max_conns", cfg.Database.MaxConns,
				"tls", cfg.Server.TLS)
			var err error
			if server.TLSConfig != nil {
				err = server.ListenAndServeTLS("", "")
			} else {
				err = server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		slog.Info("Shutting down server...")

		// Graceful shutdown
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}

		slog.Info("Server exited")
		return nil
	})
}

// listenHost returns the host part of addr when it names a specific
// interface.
func listenHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil || host == "0.0.0.0" || host == "::" {
		return ""
	}
	return host
}
