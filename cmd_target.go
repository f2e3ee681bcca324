package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/awnumar/memguard"
	qcrypto "github.com/xtaci/quiccat/crypto"
	"github.com/xtaci/quiccat/transport"
	"golang.org/x/term"
)

// runTarget connects to a listener and sends a file, or pipes stdin and
// stdout through the connection.
func runTarget(parent context.Context, opts *options, password *memguard.LockedBuffer) error {
	var binder *qcrypto.Binder
	if password != nil {
		binder = qcrypto.NewBinder(password)
		defer binder.Destroy()
	}
	cfg, err := opts.transportConfig(binder, true)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGTERM)
	defer cancel()

	conn, err := transport.Dial(ctx, opts.address(), cfg)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	coord := newCoordinator(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())), false)
	if opts.file != "" {
		fmt.Fprintln(os.Stderr, "Connected!")
		return sendOverConn(ctx, conn, coord, opts)
	}

	lineMode := term.IsTerminal(int(os.Stdin.Fd()))
	in, restore := openStdin()
	defer restore()
	s := newStdioSession(in, os.Stdout, lineMode, opts.bufferSize, opts.limiter())
	if err := coord.register(s.transferSession); err != nil {
		return err
	}
	conn.Serve(ctx, stdioConn{ctx: ctx, s: s})
	coord.teardown(s.transferSession)
	if s.State() != stateCompleted {
		return fmt.Errorf("transfer aborted")
	}
	return nil
}

// sendOverConn sends the configured file and waits for the listener to
// close the connection; only a clean close counts as delivered.
func sendOverConn(ctx context.Context, conn *transport.Conn, coord *coordinator, opts *options) error {
	s := newTransferSession(roleSend, opts.source.name, opts.source.size)
	if err := coord.register(s); err != nil {
		return err
	}
	defer coord.teardown(s)

	out, err := conn.OpenSendStream(ctx)
	if err != nil {
		conn.Close(transport.CodeInternal, "open stream failed")
		return err
	}
	if err := s.sendFile(ctx, out, opts.source, opts.bufferSize, opts.limiter()); err != nil {
		conn.Close(transport.CodeInternal, "send failed")
		if s.canceled.Load() {
			return fmt.Errorf("transfer canceled by peer: %w", err)
		}
		return err
	}

	select {
	case <-conn.Done():
	case <-ctx.Done():
		conn.Close(transport.CodeInternal, "interrupted")
		s.finish(stateAborted)
		return ctx.Err()
	}
	if err := conn.Err(); err != nil {
		s.finish(stateAborted)
		return fmt.Errorf("transfer failed: %w", err)
	}
	s.finish(stateCompleted)
	return nil
}
