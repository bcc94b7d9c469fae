package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/thinkdifferentdot/maybe/internal/common"
	"github.com/thinkdifferentdot/maybe/internal/config"
	"github.com/thinkdifferentdot/maybe/internal/llm"
	"github.com/thinkdifferentdot/maybe/internal/service"
	"github.com/thinkdifferentdot/maybe/internal/storage"
	"github.com/thinkdifferentdot/maybe/internal/usage"
)

// loadSettings reads and validates settings from viper.
func loadSettings() (config.Settings, error) {
	settings, err := config.Load(viper.GetViper())
	if err != nil {
		return config.Settings{}, common.NewUserError("invalid configuration", err)
	}
	return settings, nil
}

// initStorage opens the database and brings the schema up to date.
func initStorage(ctx context.Context, settings config.Settings) (service.Storage, func(), error) {
	if err := os.MkdirAll(filepath.Dir(settings.DatabasePath), 0o750); err != nil {
		return nil, nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	store, err := storage.NewSQLiteStorage(settings.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	cleanup := func() { _ = store.Close() }

	if err := store.Migrate(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, cleanup, nil
}

// newRegistry builds the provider registry with usage recorded to store.
func newRegistry(settings config.Settings, store service.Storage) *llm.Registry {
	logger := slog.Default()
	return llm.NewRegistry(settings,
		llm.WithUsageRecorder(usage.NewLedger(store, logger)),
		llm.WithLogger(logger))
}

// familyID returns the family selected with --family or AUTOCAT_FAMILY.
func familyID() (string, error) {
	family := strings.TrimSpace(viper.GetString("family"))
	if family == "" {
		return "", common.NewUserError("no family selected: pass --family or set AUTOCAT_FAMILY", common.ErrMissingConfig)
	}
	return family, nil
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// openFamilyStore resolves the selected family and opens storage.
func openFamilyStore(ctx context.Context) (string, service.Storage, func(), error) {
	family, err := familyID()
	if err != nil {
		return "", nil, nil, err
	}
	settings, err := loadSettings()
	if err != nil {
		return "", nil, nil, err
	}
	store, cleanup, err := initStorage(ctx, settings)
	if err != nil {
		return "", nil, nil, err
	}
	return family, store, cleanup, nil
}
