package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/quic-go/quic-go"
)

// Listener accepts connections for an Admitter.
type Listener struct {
	ln  *quic.Listener
	cfg *Config
}

// Listen binds addr ("host:port"; an empty host binds every address).
func Listen(addr string, cfg *Config) (*Listener, error) {
	if cfg.Identity == nil {
		return nil, errors.New("transport: listener requires an identity")
	}
	ln, err := quic.ListenAddr(addr, cfg.tlsConfig(true), cfg.quicConfig())
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	return &Listener{ln: ln, cfg: cfg}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Close stops accepting connections.
func (l *Listener) Close() error { return l.ln.Close() }

// Serve accepts connections until ctx is done or the listener is closed,
// then waits for the admitted connections to finish. A connection the
// Admitter refuses is closed with CodeRefused.
func (l *Listener) Serve(ctx context.Context, a Admitter) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		qc, err := l.ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, quic.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("transport: accept: %w", err)
		}
		h, err := a.Admit(qc.RemoteAddr())
		if err != nil {
			log.Printf("refusing connection from %v: %v", qc.RemoteAddr(), err)
			qc.CloseWithError(quic.ApplicationErrorCode(CodeRefused), err.Error())
			continue
		}
		c := newConn(qc, l.cfg)
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Serve(ctx, h)
		}()
	}
}

// Dial connects to addr and completes the handshake, peer verification
// included.
func Dial(ctx context.Context, addr string, cfg *Config) (*Conn, error) {
	qc, err := quic.DialAddr(ctx, addr, cfg.tlsConfig(false), cfg.quicConfig())
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return newConn(qc, cfg), nil
}

// Conn is an established connection.
type Conn struct {
	qc    *quic.Conn
	cfg   *Config
	loops sync.WaitGroup
}

func newConn(qc *quic.Conn, cfg *Config) *Conn {
	return &Conn{qc: qc, cfg: cfg}
}

func (c *Conn) RemoteAddr() net.Addr { return c.qc.RemoteAddr() }

// Done is closed when the connection is gone.
func (c *Conn) Done() <-chan struct{} { return c.qc.Context().Done() }

// Err reports why the connection ended; a close with CodeOK from either
// side is nil.
func (c *Conn) Err() error {
	return closeReason(context.Cause(c.qc.Context()))
}

// Close ends the connection with code.
func (c *Conn) Close(code ErrorCode, msg string) error {
	return c.qc.CloseWithError(quic.ApplicationErrorCode(code), msg)
}

// OpenSendStream opens an outbound stream.
func (c *Conn) OpenSendStream(ctx context.Context) (SendStream, error) {
	s, err := c.qc.OpenUniStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("transport: open stream: %w", err)
	}
	return &sendStream{w: s}, nil
}

// Serve reports the connection to h, then hands every inbound stream to it
// until the connection ends or ctx is done. ShutdownComplete is called once
// all stream handlers have finished.
func (c *Conn) Serve(ctx context.Context, h ConnectionHandler) {
	h.Connected(c)
	for {
		rs, err := c.qc.AcceptUniStream(ctx)
		if err != nil {
			break
		}
		s := newRecvStream(c.qc.Context(), rs)
		sh := h.StreamStarted(s)
		if sh == nil {
			s.Abort(CodeRefused)
			continue
		}
		c.loops.Add(1)
		go func() {
			defer c.loops.Done()
			s.readLoop(sh, c.cfg.chunkSize())
		}()
	}
	if ctx.Err() != nil {
		c.Close(CodeInternal, "shutting down")
	}
	c.loops.Wait()
	h.ShutdownComplete(c.Err())
}

func closeReason(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	var ae *quic.ApplicationError
	if errors.As(err, &ae) && ae.ErrorCode == quic.ApplicationErrorCode(CodeOK) {
		return nil
	}
	return err
}
