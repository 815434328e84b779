package instrument

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrNotAttached is returned when a command is sent before Attach succeeded
	ErrNotAttached = errors.New("instrument not attached")

	// ErrInvalidAddress is returned when an address is not in host:port form
	ErrInvalidAddress = errors.New("invalid instrument address")

	// ErrEmptyResponse is returned when a query receives no bytes
	ErrEmptyResponse = errors.New("empty response")
)

// Transport is a line oriented connection to a network instrument.
type Transport interface {
	// Attach connects to the instrument at addr, detaching first if needed.
	Attach(addr string) error

	// Detach closes the connection. Detaching twice is a no-op.
	Detach() error

	// Write sends a single command line.
	Write(cmd string) error

	// Query sends a command and returns the response from a single read.
	Query(cmd string) (string, error)
}

var addressRe = regexp.MustCompile(`^(?:[a-zA-Z]+://)?([^\s:/]+):([0-9]{1,5})/?$`)

// ParseAddress splits "[scheme://]host:port[/]" into host and port.
func ParseAddress(addr string) (host, port string, err error) {
	m := addressRe.FindStringSubmatch(strings.TrimSpace(addr))
	if m == nil {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	return m[1], m[2], nil
}

// Terminate appends a line feed to cmd unless it already ends with one.
func Terminate(cmd string) string {
	if strings.HasSuffix(cmd, "\n") {
		return cmd
	}
	return cmd + "\n"
}
