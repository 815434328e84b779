package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/frequency-response/internal/report"
	"github.com/roman-kulish/frequency-response/internal/storage"
)

func humanHz(hz float64) string {
	return humanize.SIWithDigits(hz, 2, "Hz")
}

func openStore(dbPath string) (*storage.SqliteStore, error) {
	if _, err := os.Stat(dbPath); err != nil && os.IsNotExist(err) {
		return nil, fmt.Errorf("database file '%s' does not exist: %w", dbPath, err)
	}
	return storage.NewSqliteStore(dbPath), nil
}

// ListSessions prints every stored sweep with its frequency range and size
func ListSessions(ctx context.Context, dbPath string, w io.Writer) (err error) {
	store, err := openStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	sessions, err := store.Sessions(ctx)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tOSCILLOSCOPE\tGENERATOR\tPOINTS\tRANGE")
	for _, sess := range sessions {
		records, err := store.Records(ctx, sess.ID)
		if err != nil {
			return fmt.Errorf("reading session %d: %w", sess.ID, err)
		}

		span := "-"
		if len(records) > 0 {
			span = humanHz(records[0].Frequency) + " - " + humanHz(records[len(records)-1].Frequency)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n",
			sess.ID, humanize.Time(sess.StartTime), sess.ScopeAddress, sess.GeneratorAddress, len(records), span)
	}
	return tw.Flush()
}

// Plot renders a stored session to out; the extension picks the format
func Plot(ctx context.Context, dbPath string, sessionID int64, out string, logger *slog.Logger) error {
	store, err := openStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if _, err = store.Session(ctx, sessionID); err != nil {
		return fmt.Errorf("reading session: %w", err)
	}

	records, err := store.Records(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("reading records: %w", err)
	}

	logger.Info("rendering session",
		slog.Int64("session", sessionID),
		slog.Int("points", len(records)),
		slog.String("destination", out))

	if err = report.Render(out, records); err != nil {
		return fmt.Errorf("rendering session %d: %w", sessionID, err)
	}
	return nil
}
