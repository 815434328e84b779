package storage

import (
	"context"

	"github.com/roman-kulish/frequency-response/internal/response"
)

// Store keeps sweep sessions and the records measured in them.
// All operations that write to the database should be considered atomic.
type Store interface {
	// CreateSession starts a new sweep session and returns its unique identifier.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - scopeAddr: address of the oscilloscope
	//   - generatorAddr: address of the stimulus generator
	//   - config: Optional sweep configuration. Can be string, []byte, or JSON-serializable object
	CreateSession(ctx context.Context, scopeAddr, generatorAddr string, config any) (sessionID int64, err error)

	// Session retrieves a session by its ID.
	Session(ctx context.Context, id int64) (session *Session, err error)

	// Sessions returns all sessions, oldest first.
	Sessions(ctx context.Context) (sessions []*Session, err error)

	// StoreRecord saves one measurement of a session.
	StoreRecord(ctx context.Context, sessionID int64, r response.Record) error

	// StoreRecords saves a batch of measurements in a single transaction.
	StoreRecords(ctx context.Context, sessionID int64, records []response.Record) error

	// Records returns the measurements of a session ordered by frequency.
	Records(ctx context.Context, sessionID int64) ([]response.Record, error)

	// Close releases all database connections and resources.
	// It is safe to call Close multiple times.
	Close() error
}

var _ Store = (*SqliteStore)(nil)
