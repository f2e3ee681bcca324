package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/quic-go/quic-go"
)

// writeHalf and readHalf are the parts of quic-go streams the adapter uses.
type writeHalf interface {
	io.Writer
	Close() error
	CancelWrite(quic.StreamErrorCode)
}

type readHalf interface {
	io.Reader
	CancelRead(quic.StreamErrorCode)
}

type sendStream struct {
	w  writeHalf
	mu sync.Mutex
}

// Send writes p and, when final, closes the stream. quic-go's Write blocks
// on flow control, so a nil return means the chunk was taken.
func (s *sendStream) Send(p []byte, final bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(p) > 0 {
		if _, err := s.w.Write(p); err != nil {
			return fmt.Errorf("%w: %v", ErrSendCanceled, err)
		}
	}
	if final {
		if err := s.w.Close(); err != nil {
			return fmt.Errorf("%w: %v", ErrSendCanceled, err)
		}
	}
	return nil
}

func (s *sendStream) Abort(code ErrorCode) {
	s.w.CancelWrite(quic.StreamErrorCode(code))
}

type recvStream struct {
	ctx       context.Context
	r         readHalf
	acks      chan int
	abortOnce sync.Once
	aborted   chan struct{}
}

func newRecvStream(ctx context.Context, r readHalf) *recvStream {
	return &recvStream{
		ctx:     ctx,
		r:       r,
		acks:    make(chan int, 1),
		aborted: make(chan struct{}),
	}
}

func (s *recvStream) Acknowledge(n int) {
	select {
	case s.acks <- n:
	default:
	}
}

func (s *recvStream) Abort(code ErrorCode) {
	s.abortOnce.Do(func() {
		close(s.aborted)
		s.r.CancelRead(quic.StreamErrorCode(code))
	})
}

// readLoop feeds h until the stream ends. One chunk is outstanding at a
// time: after ErrReceivePending the next read waits for Acknowledge.
func (s *recvStream) readLoop(h StreamHandler, chunkSize int) {
	defer h.ShutdownComplete()
	buf := make([]byte, chunkSize)
	for {
		n, err := s.r.Read(buf)
		final := errors.Is(err, io.EOF)
		if n > 0 || final {
			switch herr := h.Receive(buf[:n], final); {
			case herr == nil:
			case errors.Is(herr, ErrReceivePending):
				if !s.waitAck() {
					return
				}
			default:
				s.Abort(CodeFor(herr))
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *recvStream) waitAck() bool {
	select {
	case <-s.acks:
		return true
	case <-s.aborted:
		return false
	case <-s.ctx.Done():
		return false
	}
}
