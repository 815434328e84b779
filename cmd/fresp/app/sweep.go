package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roman-kulish/frequency-response/internal/report"
	"github.com/roman-kulish/frequency-response/internal/response"
	"github.com/roman-kulish/frequency-response/internal/storage"
)

const maxBatchSize = 100

// Sweeper is the part of the engine a sweep run drives
type Sweeper interface {
	Init(addrs response.Addresses, cfg response.Config) error
	Step() (response.Record, bool, error)
	Series() *response.Series
	Close() error
}

// WithStore saves every record of the run to a new session in store
func WithStore(store storage.Store) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.store = store
	}
}

// WithMaxBatchSize sets the maximum number of records to store within a
// single database transaction.
func WithMaxBatchSize(size int) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.maxBatchSize = size
	}
}

// WithChart renders a Bode chart of the completed sweep to path
func WithChart(path string) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.chart = path
	}
}

// WithSessionConfig sets the configuration saved alongside the session
func WithSessionConfig(config any) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.sessionConfig = config
	}
}

// Orchestrator runs one sweep: it binds the instruments, steps the engine to
// completion, prints each record as it arrives and stores the results.
type Orchestrator struct {
	engine Sweeper
	report io.Writer
	logger *slog.Logger

	store         storage.Store
	sessionConfig any
	chart         string
	maxBatchSize  int

	batch []response.Record
}

// NewOrchestrator creates a new Orchestrator writing the TSV report to w
func NewOrchestrator(engine Sweeper, w io.Writer, logger *slog.Logger, options ...func(*Orchestrator)) *Orchestrator {
	o := Orchestrator{
		engine:       engine,
		report:       w,
		logger:       logger,
		maxBatchSize: maxBatchSize,
	}

	for _, option := range options {
		option(&o)
	}

	return &o
}

// Run sweeps from start to stop. The context is checked between frequency
// steps; records measured before a failure or cancellation are still stored.
func (o *Orchestrator) Run(ctx context.Context, addrs response.Addresses, cfg response.Config) (err error) {
	if err = o.engine.Init(addrs, cfg); err != nil {
		return fmt.Errorf("binding instruments: %w", err)
	}
	defer func() {
		if cErr := o.engine.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	var sessionID int64
	if o.store != nil {
		if sessionID, err = o.store.CreateSession(ctx, addrs.Scope, addrs.Generator, o.sessionConfig); err != nil {
			return fmt.Errorf("creating session: %w", err)
		}
		o.logger.Info("session created", slog.Int64("session", sessionID))
	}

	defer func() {
		if fErr := o.flush(context.WithoutCancel(ctx), sessionID); fErr != nil && err == nil {
			err = fErr
		}
	}()

	tsv := report.NewTSVWriter(o.report, cfg.Measurement.Time)
	if err = tsv.WriteHeader(); err != nil {
		return fmt.Errorf("writing report header: %w", err)
	}

	for done := false; !done; {
		if err = ctx.Err(); err != nil {
			return err
		}

		var r response.Record
		if r, done, err = o.engine.Step(); err != nil {
			return err
		}

		if err = tsv.Write(r); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		if err = o.collect(ctx, sessionID, r); err != nil {
			return err
		}
	}

	o.logger.Info("sweep complete", slog.Int("points", o.engine.Series().Len()))

	if o.chart != "" {
		if err = report.Render(o.chart, o.engine.Series().Records()); err != nil {
			return fmt.Errorf("rendering chart: %w", err)
		}
		o.logger.Info("chart rendered", slog.String("destination", o.chart))
	}
	return nil
}

func (o *Orchestrator) collect(ctx context.Context, sessionID int64, r response.Record) error {
	if o.store == nil {
		return nil
	}

	o.batch = append(o.batch, r)
	if len(o.batch) < o.maxBatchSize {
		return nil
	}
	return o.flush(ctx, sessionID)
}

func (o *Orchestrator) flush(ctx context.Context, sessionID int64) error {
	if o.store == nil || len(o.batch) == 0 {
		return nil
	}

	if err := o.store.StoreRecords(ctx, sessionID, o.batch); err != nil {
		return fmt.Errorf("storing %d records: %w", len(o.batch), err)
	}
	o.logger.Debug("records stored", slog.Int("count", len(o.batch)))

	o.batch = o.batch[:0]
	return nil
}
