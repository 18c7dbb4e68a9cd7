package remote

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const dialTimeout = 2 * time.Second

// session runs one connection until it fails or ctx ends.
type session func(ctx context.Context, conn net.Conn) error

// link keeps a client connection to addr alive.
type link struct {
	addr       string
	logger     *slog.Logger
	newBackOff func() backoff.BackOff
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// run dials, runs s, and redials after a disconnect until ctx is done.
func (l *link) run(ctx context.Context, s session) {
	for ctx.Err() == nil {
		conn, err := l.dial(ctx)
		if err != nil {
			return
		}

		err = s(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		l.logger.Info("remote disconnected", "addr", l.addr, "error", err)
	}
}

func (l *link) dial(ctx context.Context) (net.Conn, error) {
	var d net.Dialer
	var conn net.Conn
	attempts := 0

	op := func() error {
		attempts++
		dctx, cancel := context.WithTimeout(ctx, dialTimeout)
		defer cancel()
		c, err := d.DialContext(dctx, "tcp", l.addr)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	notify := func(err error, wait time.Duration) {
		// The host is often not running yet; only the first failure is
		// worth an info line.
		if attempts == 1 {
			l.logger.Info("remote not reachable, retrying", "addr", l.addr, "error", err)
			return
		}
		l.logger.Debug("remote dial failed", "addr", l.addr, "error", err, "wait", wait)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(l.newBackOff(), ctx), notify); err != nil {
		return nil, err
	}
	return conn, nil
}

// closeOnDone closes conn when ctx ends so blocked reads return.
func closeOnDone(ctx context.Context, conn net.Conn) (stop func() bool) {
	return context.AfterFunc(ctx, func() { _ = conn.Close() })
}
