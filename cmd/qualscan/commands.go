package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/hochfrequenz/qualscan/internal/config"
	"github.com/hochfrequenz/qualscan/internal/notify"
	"github.com/hochfrequenz/qualscan/internal/review"
	"github.com/hochfrequenz/qualscan/internal/runstore"
)

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.General.Verbose = true
	}
	return cfg, nil
}

// openStore opens the run ledger. A ledger that cannot be opened only
// disables bookkeeping, so the error is logged and nil returned.
func openStore(cfg *config.Config) *runstore.Store {
	path := config.ExpandPath(cfg.General.DatabasePath)
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.Printf("Warning: run ledger disabled: %v", err)
		return nil
	}
	store, err := runstore.New(path)
	if err != nil {
		log.Printf("Warning: run ledger disabled: %v", err)
		return nil
	}
	return store
}

// newRunner builds a review runner wired to the ledger and notifiers.
// The returned func closes the ledger.
func newRunner(cfg *config.Config, withNotify bool) (*review.Runner, func()) {
	runner := review.NewRunner(cfg, nil)
	if withNotify {
		runner.SetNotifier(notify.FromConfig(cfg.Notifications))
	}
	store := openStore(cfg)
	if store == nil {
		return runner, func() {}
	}
	runner.SetLedger(store)
	return runner, func() { store.Close() }
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

