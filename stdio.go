package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/xtaci/quiccat/transport"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// deadlineReader is stdin as the pump sees it; the deadline interrupts a
// pending read at teardown.
type deadlineReader interface {
	io.Reader
	SetReadDeadline(t time.Time) error
}

type stdoutChunk struct {
	data  []byte
	final bool
}

var errStreamCut = errors.New("stream ended before end-of-stream")

// stdioSession pipes stdin to the peer and the peer's stream to stdout.
// The embedded session accounts for received bytes; upload tracks the
// outbound direction.
type stdioSession struct {
	*transferSession
	upload *transferSession

	in       deadlineReader
	out      io.Writer
	lineMode bool
	bufSize  int
	limiter  *rate.Limiter

	conn    *transport.Conn
	ctx     context.Context
	cancel  context.CancelFunc
	group   errgroup.Group
	stopped chan struct{}
	// settled is closed once await has decided the final state.
	settled chan struct{}

	mu        sync.Mutex
	inbound   transport.Stream
	queue     chan stdoutChunk
	queueOnce sync.Once
}

func newStdioSession(in deadlineReader, out io.Writer, lineMode bool, bufSize int, limiter *rate.Limiter) *stdioSession {
	return &stdioSession{
		transferSession: newTransferSession(rolePassthrough, "stdout", 0),
		upload:          newTransferSession(roleSend, "stdin", 0),
		in:              in,
		out:             out,
		lineMode:        lineMode,
		bufSize:         bufSize,
		limiter:         limiter,
		stopped:         make(chan struct{}),
		settled:         make(chan struct{}),
		queue:           make(chan stdoutChunk, stdoutQueueDepth),
	}
}

// start runs the stdin pump and the stdout writer for conn.
func (s *stdioSession) start(ctx context.Context, conn *transport.Conn) {
	s.conn = conn
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.begin(stateReceiving)
	s.group.Go(s.pumpStdin)
	s.group.Go(s.drainStdout)
	go s.await()
}

func (s *stdioSession) pumpStdin() error {
	out, err := s.conn.OpenSendStream(s.ctx)
	if err != nil {
		s.upload.finish(stateAborted)
		return err
	}
	var src chunkSource = blockSource{r: s.in}
	if s.lineMode {
		src = newLineSource(s.in, s.bufSize)
	}
	err = s.upload.sendLoop(s.ctx, out, src, nil, s.bufSize, s.limiter)
	if err == nil {
		s.upload.finish(stateCompleted)
		return nil
	}
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, transport.ErrSendCanceled) || s.ctx.Err() != nil {
		// the connection went away first
		return nil
	}
	logError("stdin: %v", err)
	return err
}

func (s *stdioSession) drainStdout() error {
	for c := range s.queue {
		if len(c.data) > 0 {
			if _, err := s.out.Write(c.data); err != nil {
				s.abortInbound(transport.CodeInternal)
				return fmt.Errorf("%w: stdout: %v", errIO, err)
			}
		}
		s.advance(len(c.data), c.final)
		s.acknowledge(len(c.data))
		if c.final {
			return nil
		}
	}
	return errStreamCut
}

// await finishes the session once both directions are done and gives the
// peer closeLinger to close first.
func (s *stdioSession) await() {
	err := s.group.Wait()
	if err == nil && s.upload.State() == stateCompleted {
		s.finish(stateCompleted)
	} else {
		s.finish(stateAborted)
	}
	close(s.settled)
	select {
	case <-s.conn.Done():
	case <-s.stopped:
	case <-time.After(closeLinger):
		s.conn.Close(transport.CodeOK, "transfer complete")
	}
}

func (s *stdioSession) attach(st transport.Stream) transport.StreamHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inbound != nil {
		return nil
	}
	s.inbound = st
	return stdioReceiver{s}
}

func (s *stdioSession) acknowledge(n int) {
	s.mu.Lock()
	st := s.inbound
	s.mu.Unlock()
	if st != nil {
		st.Acknowledge(n)
	}
}

func (s *stdioSession) abortInbound(code transport.ErrorCode) {
	s.mu.Lock()
	st := s.inbound
	s.mu.Unlock()
	if st != nil {
		st.Abort(code)
	}
}

func (s *stdioSession) closeQueue() {
	s.queueOnce.Do(func() { close(s.queue) })
}

// stop tears the session down after the connection ended and joins both
// goroutines.
func (s *stdioSession) stop(err error) {
	if s.cancel == nil {
		s.finish(stateAborted)
		return
	}
	close(s.stopped)
	s.closeQueue()
	s.cancel()
	s.in.SetReadDeadline(time.Now())
	<-s.settled
	if err != nil && s.State() != stateCompleted {
		logError("connection closed: %v", err)
	}
	logInfo("%s", s.upload.summary())
}

// stdioReceiver carries the inbound stream events of a stdioSession.
type stdioReceiver struct{ s *stdioSession }

// Receive hands the chunk to the stdout writer without copying; the
// transport holds it until drainStdout acknowledges.
func (r stdioReceiver) Receive(chunk []byte, final bool) error {
	if len(chunk) == 0 && !final {
		return nil
	}
	select {
	case r.s.queue <- stdoutChunk{data: chunk, final: final}:
		return transport.ErrReceivePending
	default:
		return transport.Abort(transport.CodeInternal, errors.New("stdout queue overrun"))
	}
}

func (r stdioReceiver) ShutdownComplete() { r.s.closeQueue() }

// stdioConn adapts a stdioSession to connection events.
type stdioConn struct {
	ctx context.Context
	s   *stdioSession
}

func (c stdioConn) Connected(conn *transport.Conn) {
	fmt.Fprintln(os.Stderr, "Connected!")
	c.s.start(c.ctx, conn)
}

func (c stdioConn) StreamStarted(st transport.Stream) transport.StreamHandler {
	return c.s.attach(st)
}

func (c stdioConn) ShutdownComplete(err error) { c.s.stop(err) }

func (c stdioConn) session() *transferSession { return c.s.transferSession }
