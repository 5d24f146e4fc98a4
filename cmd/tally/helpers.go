package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/viper"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/config"
	"github.com/Veraticus/tally/internal/ledger"
	"github.com/Veraticus/tally/internal/storage"
)

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return config.Config{}, common.NewUserError("Invalid configuration", err)
	}
	return cfg, nil
}

// initStorage opens the ledger and brings its schema up to date.
func initStorage(ctx context.Context, cfg config.Config) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(cfg.Database.Path, cfg.Database.StorageOptions())
	if err != nil {
		return nil, common.NewUserError("Could not open the ledger at "+cfg.Database.Path, err)
	}

	// Run migrations
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// withLedger opens the configured ledger, runs fn and closes it again.
func withLedger(ctx context.Context, fn func(config.Config, *ledger.Service) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := initStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	return fn(cfg, ledger.New(store, ledger.Options{}))
}

// explain turns store outcomes into messages for the terminal.
func explain(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrCongested):
		return common.NewUserError("The ledger is busy; try again (or pass --retries)", err)
	case errors.Is(err, common.ErrUnavailable):
		return common.NewUserError("The ledger database is unavailable", err)
	case errors.Is(err, common.ErrTooLarge):
		return common.NewUserError("The upload is larger than ingest.max_bytes", err)
	default:
		return err
	}
}
