package instrument

import (
	"bufio"
	"errors"
	"net"
	"strings"
	"testing"
	"time"
)

func TestParseAddress(t *testing.T) {
	testCases := []struct {
		name     string
		addr     string
		wantHost string
		wantPort string
		wantErr  bool
	}{
		{"plain", "192.168.0.197:5025", "192.168.0.197", "5025", false},
		{"scheme", "tcp://192.168.0.198:5555", "192.168.0.198", "5555", false},
		{"trailing slash", "tcp://10.0.0.1:5025/", "10.0.0.1", "5025", false},
		{"hostname", "scope.lab:5025", "scope.lab", "5025", false},
		{"no port", "192.168.0.197", "", "", true},
		{"port too long", "10.0.0.1:123456", "", "", true},
		{"path", "10.0.0.1:5025/x", "", "", true},
		{"empty", "", "", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			host, port, err := ParseAddress(tc.addr)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidAddress) {
					t.Fatalf("expected ErrInvalidAddress, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if host != tc.wantHost || port != tc.wantPort {
				t.Errorf("expected %s:%s, got %s:%s", tc.wantHost, tc.wantPort, host, port)
			}
		})
	}
}

func TestTerminate(t *testing.T) {
	if got := Terminate("TRMD AUTO"); got != "TRMD AUTO\n" {
		t.Errorf("expected terminator appended, got %q", got)
	}
	if got := Terminate("TRMD AUTO\n"); got != "TRMD AUTO\n" {
		t.Errorf("expected single terminator, got %q", got)
	}
}

func TestTCPTransport_WriteQuery(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}
	defer ln.Close()

	received := make(chan string, 4)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			received <- line
			if strings.HasSuffix(strings.TrimSpace(line), "?") {
				_, _ = conn.Write([]byte("C1:ATTN 10\n"))
			}
		}
	}()

	tr := NewTCPTransport(WithIOTimeout(2 * time.Second))
	if err = tr.Write("C1:TRACE ON"); !errors.Is(err, ErrNotAttached) {
		t.Fatalf("expected ErrNotAttached before attach, got %v", err)
	}

	if err = tr.Attach("tcp://" + ln.Addr().String()); err != nil {
		t.Fatalf("attaching: %v", err)
	}
	defer tr.Detach()

	if err = tr.Write("C1:TRACE ON"); err != nil {
		t.Fatalf("writing: %v", err)
	}
	if got := <-received; got != "C1:TRACE ON\n" {
		t.Errorf("expected terminated command, got %q", got)
	}

	resp, err := tr.Query("C1:ATTN?")
	if err != nil {
		t.Fatalf("querying: %v", err)
	}
	if resp != "C1:ATTN 10\n" {
		t.Errorf("unexpected response %q", resp)
	}

	if err = tr.Detach(); err != nil {
		t.Errorf("detaching: %v", err)
	}
	if err = tr.Detach(); err != nil {
		t.Errorf("second detach should be a no-op, got %v", err)
	}
}

func TestTCPTransport_AttachUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	tr := NewTCPTransport(WithDialTimeout(500 * time.Millisecond))
	if err = tr.Attach(addr); err == nil {
		t.Fatal("expected error attaching to a closed port")
	}
	if err = tr.Attach("not-an-address"); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("expected ErrInvalidAddress, got %v", err)
	}
}
