package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/roman-kulish/frequency-response/internal/instrument"
	"github.com/roman-kulish/frequency-response/internal/instrument/sim"
	"github.com/roman-kulish/frequency-response/internal/response"
	"github.com/roman-kulish/frequency-response/internal/storage"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func simulatedEngine(bench *sim.Bench) *response.Engine {
	return portEngine(bench.Scope(), bench.Generator())
}

func portEngine(sc, gen *sim.Port) *response.Engine {
	return response.NewEngine(
		response.WithDialer(func() (instrument.Transport, instrument.Transport) {
			return sc, gen
		}),
		response.WithSleep(func(time.Duration) {}),
	)
}

// stepper fails after a number of successful steps
type stepper struct {
	Sweeper
	steps int
}

func (s *stepper) Step() (response.Record, bool, error) {
	if s.steps == 0 {
		return response.Record{}, false, fmt.Errorf("%w: timeout", response.ErrInstrumentIO)
	}
	s.steps--
	return s.Sweeper.Step()
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	bench := sim.NewBench(sim.WithDUT(sim.Lowpass(10_000, 1/math.Sqrt2)))

	config := NewConfig()
	config.Report = ReportConfig{
		File:  filepath.Join(dir, "sweep.tsv"),
		Quiet: true,
		Chart: filepath.Join(dir, "sweep.png"),
	}
	config.Storage = StorageConfig{Database: filepath.Join(dir, "fresp.db"), MaxBatchSize: 8}

	if err := run(context.Background(), simulatedEngine(bench), config, discard); err != nil {
		t.Fatalf("running sweep: %v", err)
	}

	data, err := os.ReadFile(config.Report.File)
	if err != nil {
		t.Fatalf("reading report: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 22 {
		t.Fatalf("expected a header and 21 rows, got %d lines", len(lines))
	}
	if lines[0] != "freq\tinput\toutput\tgain\tdB\tphase" {
		t.Errorf("unexpected header %q", lines[0])
	}
	if !strings.HasPrefix(lines[11], "10000\t") {
		t.Errorf("expected the cutoff in row 11, got %q", lines[11])
	}

	if _, err = os.Stat(config.Report.Chart); err != nil {
		t.Errorf("expected a chart: %v", err)
	}

	store := storage.NewSqliteStore(config.Storage.Database)
	defer store.Close()

	sessions, err := store.Sessions(context.Background())
	if err != nil {
		t.Fatalf("listing sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ScopeAddress != DefaultScopeAddress || sessions[0].Config == nil {
		t.Fatalf("unexpected sessions %+v", sessions)
	}

	records, err := store.Records(context.Background(), sessions[0].ID)
	if err != nil {
		t.Fatalf("reading records: %v", err)
	}
	if len(records) != 21 {
		t.Fatalf("expected 21 stored records, got %d", len(records))
	}
	if math.Abs(records[10].GainDB+3.0103) > 0.05 {
		t.Errorf("expected -3 dB at the cutoff, got %g", records[10].GainDB)
	}
}

func TestRunStoresPartialSweep(t *testing.T) {
	dir := t.TempDir()
	bench := sim.NewBench()

	config := NewConfig()
	config.Report = ReportConfig{Quiet: true}
	config.Storage = StorageConfig{Database: filepath.Join(dir, "fresp.db"), MaxBatchSize: 100}

	err := run(context.Background(), &stepper{Sweeper: simulatedEngine(bench), steps: 3}, config, discard)
	if !errors.Is(err, response.ErrInstrumentIO) {
		t.Fatalf("expected ErrInstrumentIO, got %v", err)
	}
	if code := ExitCode(err); code != 8 {
		t.Errorf("expected exit code 8, got %d", code)
	}

	store := storage.NewSqliteStore(config.Storage.Database)
	defer store.Close()

	records, err := store.Records(context.Background(), 1)
	if err != nil {
		t.Fatalf("reading records: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("expected the 3 records measured before the failure, got %d", len(records))
	}
}

func TestRunUnreachable(t *testing.T) {
	bench := sim.NewBench()
	sc, gen := bench.Scope(), bench.Generator()
	sc.SetUnreachable(true)

	config := NewConfig()
	config.Report = ReportConfig{Quiet: true}
	config.Storage = StorageConfig{Database: filepath.Join(t.TempDir(), "fresp.db"), MaxBatchSize: 100}

	seed := storage.NewSqliteStore(config.Storage.Database)
	if _, err := seed.CreateSession(context.Background(), "scope:5025", "gen:5555", nil); err != nil {
		t.Fatalf("creating session: %v", err)
	}
	if err := seed.Close(); err != nil {
		t.Fatalf("closing store: %v", err)
	}

	err := run(context.Background(), portEngine(sc, gen), config, discard)
	if !errors.Is(err, response.ErrScopeUnreachable) {
		t.Fatalf("expected ErrScopeUnreachable, got %v", err)
	}
	if code := ExitCode(err); code != 10 {
		t.Errorf("expected exit code 10, got %d", code)
	}
	if gen.Attached() {
		t.Error("expected the generator to be released")
	}

	store := storage.NewSqliteStore(config.Storage.Database)
	defer store.Close()

	sessions, err := store.Sessions(context.Background())
	if err != nil {
		t.Fatalf("listing sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Errorf("expected no session for a sweep that never started, got %d sessions", len(sessions))
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	config := NewConfig()
	config.Report = ReportConfig{Quiet: true}

	err := run(ctx, simulatedEngine(sim.NewBench()), config, discard)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: nil, want: 0},
		{err: response.ErrInvalidFrequency, want: 3},
		{err: fmt.Errorf("binding instruments: %w", response.ErrStimulusUnreachable), want: 11},
		{err: errors.New("no such file"), want: 1},
	}

	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v): expected %d, got %d", tt.err, tt.want, got)
		}
	}
}

func TestSessionsAndPlot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "fresp.db")

	if err := ListSessions(ctx, dbPath, io.Discard); err == nil {
		t.Error("expected an error for a missing database")
	}

	store := storage.NewSqliteStore(dbPath)
	id, err := store.CreateSession(ctx, "scope:5025", "gen:5555", nil)
	if err != nil {
		t.Fatalf("creating session: %v", err)
	}
	err = store.StoreRecords(ctx, id, []response.Record{
		{Frequency: 1000, Input: 1, Output: 1, Time: -5},
		{Frequency: 10_000, Input: 1, Output: 0.5, GainDB: -6.02, Time: -45},
	})
	if err != nil {
		t.Fatalf("storing records: %v", err)
	}
	if err = store.Close(); err != nil {
		t.Fatalf("closing store: %v", err)
	}

	var buf bytes.Buffer
	if err = ListSessions(ctx, dbPath, &buf); err != nil {
		t.Fatalf("listing sessions: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"OSCILLOSCOPE", "scope:5025", "1 kHz - 10 kHz"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in\n%s", want, out)
		}
	}

	chart := filepath.Join(dir, "session.svg")
	if err = Plot(ctx, dbPath, id, chart, discard); err != nil {
		t.Fatalf("plotting: %v", err)
	}
	if _, err = os.Stat(chart); err != nil {
		t.Errorf("expected a plot: %v", err)
	}

	if err = Plot(ctx, dbPath, id+1, chart, discard); err == nil {
		t.Error("expected an error for a missing session")
	}
}

func TestSimulate(t *testing.T) {
	tests := []struct {
		name   string
		config SimulateConfig
	}{
		{name: "addresses", config: SimulateConfig{Frequency: 1000, Q: 1}},
		{name: "frequency", config: SimulateConfig{ScopeAddress: "127.0.0.1:0", GeneratorAddress: "127.0.0.1:0", Q: 1}},
		{name: "filter", config: SimulateConfig{ScopeAddress: "127.0.0.1:0", GeneratorAddress: "127.0.0.1:0", Filter: "comb", Frequency: 1000, Q: 1}},
		{name: "listen", config: SimulateConfig{ScopeAddress: "256.0.0.1:1", GeneratorAddress: "127.0.0.1:0", Frequency: 1000, Q: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Simulate(context.Background(), tt.config, discard); err == nil {
				t.Error("expected an error")
			}
		})
	}

	t.Run("serve until cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- Simulate(ctx, SimulateConfig{
				ScopeAddress:     "127.0.0.1:0",
				GeneratorAddress: "127.0.0.1:0",
				Filter:           "highpass",
				Frequency:        100,
				Q:                0.7071,
			}, discard)
		}()

		time.Sleep(50 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("simulator did not stop")
		}
	})
}
