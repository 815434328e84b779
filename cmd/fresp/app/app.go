package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roman-kulish/frequency-response/internal/instrument"
	"github.com/roman-kulish/frequency-response/internal/report"
	"github.com/roman-kulish/frequency-response/internal/response"
	"github.com/roman-kulish/frequency-response/internal/storage"
)

// Run performs the sweep described by config against the instruments on the
// network.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	timeout := time.Duration(config.Instruments.Timeout)
	engine := response.NewEngine(
		response.WithLogger(logger),
		response.WithDialer(response.TCPDialer(
			instrument.WithLogger(logger),
			instrument.WithDialTimeout(timeout),
			instrument.WithIOTimeout(timeout),
		)),
	)
	return run(ctx, engine, config, logger)
}

func run(ctx context.Context, engine Sweeper, config *Config, logger *slog.Logger) (err error) {
	cfg, err := config.Engine()
	if err != nil {
		return err
	}

	w, closer, err := report.Outputs(!config.Report.Quiet, config.Report.File)
	if err != nil {
		return err
	}
	defer func() {
		if cErr := closer.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing report: %w", cErr)
		}
	}()

	options := []func(*Orchestrator){
		WithChart(config.Report.Chart),
		WithMaxBatchSize(config.Storage.MaxBatchSize),
		WithSessionConfig(config),
	}
	if config.Storage.Database != "" {
		store := storage.NewSqliteStore(config.Storage.Database)
		defer store.Close()

		options = append(options, WithStore(store))
	}

	logger.Info("starting sweep",
		slog.Group("sweep",
			slog.String("start", humanHz(cfg.Sweep.Start)),
			slog.String("stop", humanHz(cfg.Sweep.Stop)),
			slog.String("mode", cfg.Sweep.Mode.String()),
			slog.Int("points", cfg.Sweep.Points),
		),
		slog.String("oscilloscope", config.Instruments.Oscilloscope),
		slog.String("generator", config.Instruments.Generator),
	)

	return NewOrchestrator(engine, w, logger, options...).Run(ctx, config.Addresses(), cfg)
}

// ExitCode maps err to a process exit status: 0 on success, the negated engine
// result code for engine failures and 1 for anything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var rErr *response.Error
	if errors.As(err, &rErr) && rErr.Code() < 0 {
		return -rErr.Code()
	}
	return 1
}

func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return level, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// LogLevel returns the configured log level
func (c *Config) LogLevel() slog.Level {
	level, _ := parseLogLevel(c.Settings.LogLevel)
	return level
}
