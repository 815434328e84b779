package instrument

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"
)

const (
	// DefaultReadBuffer is the size of the single read performed by Query
	DefaultReadBuffer = 256

	// DefaultDialTimeout bounds connection setup only
	DefaultDialTimeout = 5 * time.Second
)

// WithLogger sets the logger for the transport
func WithLogger(logger *slog.Logger) func(*TCPTransport) {
	return func(t *TCPTransport) {
		t.logger = logger.With(slog.String("transport", "tcp"))
	}
}

// WithDialTimeout sets the connection timeout
func WithDialTimeout(timeout time.Duration) func(*TCPTransport) {
	return func(t *TCPTransport) {
		t.dialTimeout = timeout
	}
}

// WithIOTimeout sets a deadline for every write and read. Zero disables it.
func WithIOTimeout(timeout time.Duration) func(*TCPTransport) {
	return func(t *TCPTransport) {
		t.ioTimeout = timeout
	}
}

// WithReadBuffer sets the maximum response size read by Query
func WithReadBuffer(size int) func(*TCPTransport) {
	return func(t *TCPTransport) {
		if size > 0 {
			t.bufferSize = size
		}
	}
}

// TCPTransport talks to an instrument over a raw TCP socket (SCPI over port 5025 and alike).
// Each transport owns its connection and releases it in Detach.
type TCPTransport struct {
	conn net.Conn
	addr string

	dialTimeout time.Duration
	ioTimeout   time.Duration
	bufferSize  int

	logger *slog.Logger
}

// NewTCPTransport creates a detached transport with a discard logger
func NewTCPTransport(options ...func(*TCPTransport)) *TCPTransport {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	t := TCPTransport{
		dialTimeout: DefaultDialTimeout,
		bufferSize:  DefaultReadBuffer,
		logger:      logger,
	}

	for _, option := range options {
		option(&t)
	}

	return &t
}

func (t *TCPTransport) Attach(addr string) error {
	if t.conn != nil {
		if err := t.Detach(); err != nil {
			t.logger.Warn(fmt.Sprintf("detaching before attach: %s", err.Error()))
		}
	}

	host, port, err := ParseAddress(addr)
	if err != nil {
		return err
	}

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, port), t.dialTimeout)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}

	t.conn = conn
	t.addr = addr
	t.logger.Debug("attached", slog.String("address", addr))

	return nil
}

func (t *TCPTransport) Detach() error {
	if t.conn == nil {
		return nil
	}

	if tc, ok := t.conn.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}
	err := t.conn.Close()

	t.logger.Debug("detached", slog.String("address", t.addr))
	t.conn = nil
	t.addr = ""

	if err != nil {
		return fmt.Errorf("closing connection: %w", err)
	}
	return nil
}

func (t *TCPTransport) Write(cmd string) error {
	if t.conn == nil {
		return ErrNotAttached
	}

	if err := t.deadline(); err != nil {
		return err
	}

	if _, err := io.WriteString(t.conn, Terminate(cmd)); err != nil {
		return fmt.Errorf("writing %q: %w", cmd, err)
	}

	t.logger.Debug("write", slog.String("cmd", cmd))
	return nil
}

func (t *TCPTransport) Query(cmd string) (string, error) {
	if err := t.Write(cmd); err != nil {
		return "", err
	}

	buf := make([]byte, t.bufferSize)
	n, err := t.conn.Read(buf)
	if err != nil {
		return "", fmt.Errorf("reading response to %q: %w", cmd, err)
	}
	if n == 0 {
		return "", fmt.Errorf("reading response to %q: %w", cmd, ErrEmptyResponse)
	}

	resp := string(buf[:n])
	t.logger.Debug("query", slog.String("cmd", cmd), slog.String("response", resp))

	return resp, nil
}

func (t *TCPTransport) deadline() error {
	if t.ioTimeout <= 0 {
		return nil
	}
	if err := t.conn.SetDeadline(time.Now().Add(t.ioTimeout)); err != nil {
		return fmt.Errorf("setting deadline: %w", err)
	}
	return nil
}
