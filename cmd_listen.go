package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/awnumar/memguard"
	qcrypto "github.com/xtaci/quiccat/crypto"
	"github.com/xtaci/quiccat/transport"
	"golang.org/x/term"
	"golang.org/x/time/rate"
)

// runListen waits for a target and receives from it. Without --multi the
// listener stops after its first transfer.
func runListen(parent context.Context, opts *options, password *memguard.LockedBuffer) error {
	verify := password != nil
	if password == nil {
		var err error
		if password, err = qcrypto.RandomPassword(); err != nil {
			return err
		}
	}
	binder := qcrypto.NewBinder(password)
	defer binder.Destroy()

	cfg, err := opts.transportConfig(binder, verify)
	if err != nil {
		return err
	}
	ln, err := transport.Listen(opts.address(), cfg)
	if err != nil {
		return err
	}
	defer ln.Close()
	log.Printf("listening on %s", ln.Addr())

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGTERM)
	defer cancel()

	coord := newCoordinator(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())), opts.concurrent)
	if opts.destination != "" {
		coord.newDriver = func(net.Addr) (sessionDriver, error) {
			return newReceiveConn(opts.destination, opts.bufferSize), nil
		}
	} else {
		lineMode := term.IsTerminal(int(os.Stdin.Fd()))
		in, restore := openStdin()
		defer restore()
		limiter := opts.limiter()
		coord.newDriver = func(net.Addr) (sessionDriver, error) {
			return stdioConn{ctx: ctx, s: newStdioSession(in, os.Stdout, lineMode, opts.bufferSize, limiter)}, nil
		}
	}
	if !opts.concurrent {
		coord.onRetire = func(*transferSession) { cancel() }
	}

	if err := ln.Serve(ctx, coord); err != nil {
		return err
	}
	totals := coord.Totals()
	if opts.concurrent {
		fmt.Fprintf(os.Stderr, "%d of %d transfers completed: %s\n",
			totals.completed, totals.sessions, formatSummary(totals.bytes, totals.duration, "received"))
	}
	if totals.sessions > totals.completed {
		return fmt.Errorf("%d transfer(s) failed", totals.sessions-totals.completed)
	}
	return nil
}

// transportConfig builds the transport settings shared by both commands.
// verify enables peer verification against the binder's password.
func (o *options) transportConfig(binder *qcrypto.Binder, verify bool) (*transport.Config, error) {
	cfg := &transport.Config{
		MaxStreams:  1,
		KeepAlive:   o.keepAlive,
		IdleTimeout: o.idleTimeout,
		ChunkSize:   o.bufferSize,
	}
	if !o.fileMode() && cfg.KeepAlive == 0 {
		cfg.KeepAlive = stdioKeepAlive
	}
	if binder == nil {
		return cfg, nil
	}
	id, err := binder.Identity()
	if err != nil {
		return nil, fmt.Errorf("create identity: %w", err)
	}
	cfg.Identity = &id
	if verify {
		cfg.Verifier = binder
	}
	return cfg, nil
}

// limiter returns the send throttle, or nil when unlimited.
func (o *options) limiter() *rate.Limiter {
	if o.maxRate <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(o.maxRate), max(o.bufferSize, int(o.maxRate)))
}
