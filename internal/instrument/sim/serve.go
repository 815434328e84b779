package sim

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"sync"
)

// Serve accepts connections on ln and answers them as the instrument of the given
// kind until ctx is cancelled. Every line received is one command; queries are
// answered with one line.
func (b *Bench) Serve(ctx context.Context, ln net.Listener, kind Kind) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()

	b.logger.Info("serving", slog.String("instrument", kind.String()), slog.String("address", ln.Addr().String()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			b.handle(ctx, conn, kind)
		}()
	}
}

func (b *Bench) handle(ctx context.Context, conn net.Conn, kind Kind) {
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	logger := b.logger.With(slog.String("instrument", kind.String()), slog.String("remote", conn.RemoteAddr().String()))
	logger.Debug("connection accepted")

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		if cmd == "" {
			continue
		}

		reply, err := b.Exec(kind, cmd)
		if err != nil {
			logger.Warn("command failed", slog.String("cmd", cmd), slog.Any("error", err))
			if strings.Contains(cmd, "?") {
				reply = noResult + "\n"
			}
		}
		if reply == "" {
			continue
		}
		if _, err = conn.Write([]byte(reply)); err != nil {
			logger.Warn("writing reply", slog.Any("error", err))
			return
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		logger.Debug("connection closed", slog.Any("error", err))
	}
}
