package report

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/roman-kulish/frequency-response/internal/response"
)

// ErrExecutableTarget is returned when a report would overwrite an executable.
var ErrExecutableTarget = errors.New("refusing to write report to an .exe file")

// TSVWriter writes sweep records as tab separated rows, the layout spreadsheet
// tools import without further options.
type TSVWriter struct {
	w      io.Writer
	metric response.TimeMetric
}

func NewTSVWriter(w io.Writer, metric response.TimeMetric) *TSVWriter {
	return &TSVWriter{w: w, metric: metric}
}

// WriteHeader emits the column names. The last column is named after the
// time metric of the sweep.
func (t *TSVWriter) WriteHeader() error {
	_, err := fmt.Fprintf(t.w, "freq\tinput\toutput\tgain\tdB\t%s\n", t.metric)
	return err
}

func (t *TSVWriter) Write(r response.Record) error {
	_, err := fmt.Fprintf(t.w, "%.6g\t%.6g\t%.6g\t%.6g\t%.6g\t%.6g\n",
		r.Frequency, r.Input, r.Output, r.Output/r.Input, r.GainDB, r.Time)
	return err
}

// WriteAll writes the header followed by every record.
func (t *TSVWriter) WriteAll(records []response.Record) error {
	if err := t.WriteHeader(); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, r := range records {
		if err := t.Write(r); err != nil {
			return fmt.Errorf("writing %g Hz: %w", r.Frequency, err)
		}
	}
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Outputs returns a writer that copies the report to the console (stdout) and
// to the file at path, either of which may be disabled. The returned closer
// releases the file.
func Outputs(console bool, path string) (io.Writer, io.Closer, error) {
	return outputs(os.Stdout, console, path)
}

func outputs(stdout io.Writer, console bool, path string) (io.Writer, io.Closer, error) {
	var writers []io.Writer
	if console {
		writers = append(writers, stdout)
	}

	var closer io.Closer = nopCloser{}
	if path != "" {
		if strings.EqualFold(filepath.Ext(path), ".exe") {
			return nil, nil, fmt.Errorf("%w: %s", ErrExecutableTarget, path)
		}

		f, err := os.Create(path)
		if err != nil {
			return nil, nil, fmt.Errorf("creating report file: %w", err)
		}
		writers = append(writers, f)
		closer = f
	}

	if len(writers) == 0 {
		return io.Discard, closer, nil
	}
	return io.MultiWriter(writers...), closer, nil
}
