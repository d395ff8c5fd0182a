package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tradernet/internal/config"
	"github.com/nvandessel/tradernet/internal/logging"
	"github.com/nvandessel/tradernet/internal/store"
)

// env is what most commands need: the resolved config, a logger and the
// anomaly log.
type env struct {
	cfg       *config.Config
	logger    *slog.Logger
	anomalies *logging.AnomalyLogger
}

// loadEnv resolves configuration from --config or the default locations,
// applies --log-level and validates the result.
func loadEnv(cmd *cobra.Command) (*env, error) {
	path, _ := cmd.Flags().GetString("config")

	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dir := cfg.Logging.Dir
	if dir == "" {
		if home, err := config.HomeDir(); err == nil {
			dir = home
		}
	}

	return &env{
		cfg:       cfg,
		logger:    logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr()),
		anomalies: logging.NewAnomalyLogger(dir, cfg.Logging.Level),
	}, nil
}

func (e *env) openStore(ctx context.Context) (store.RunStore, error) {
	rs, err := store.Open(ctx, e.cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return rs, nil
}

func (e *env) close() {
	e.anomalies.Close()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// withSignals returns a context cancelled on interrupt or termination. The
// returned stop function releases the signal handler.
func withSignals(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
