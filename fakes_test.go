package main

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/xtaci/quiccat/transport"
)

// recordingSendStream keeps every chunk it is given. failAt makes the
// n-th Send (0-based) fail as a peer reset would; -1 never fails.
type recordingSendStream struct {
	mu      sync.Mutex
	chunks  [][]byte
	finals  []bool
	failAt  int
	aborted bool
	code    transport.ErrorCode
}

func newRecordingSendStream() *recordingSendStream {
	return &recordingSendStream{failAt: -1}
}

func (r *recordingSendStream) Send(p []byte, final bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAt >= 0 && len(r.chunks) == r.failAt {
		return fmt.Errorf("%w: reset by peer", transport.ErrSendCanceled)
	}
	r.chunks = append(r.chunks, bytes.Clone(p))
	r.finals = append(r.finals, final)
	return nil
}

func (r *recordingSendStream) Abort(code transport.ErrorCode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aborted, r.code = true, code
}

func (r *recordingSendStream) payload(headerLen int) []byte {
	var all []byte
	for _, c := range r.chunks {
		all = append(all, c...)
	}
	return all[headerLen:]
}

// ackStream is an inbound stream that reports acknowledgements on a channel.
type ackStream struct {
	acks    chan int
	aborted chan transport.ErrorCode
}

func newAckStream() *ackStream {
	return &ackStream{acks: make(chan int, 8), aborted: make(chan transport.ErrorCode, 1)}
}

func (a *ackStream) Acknowledge(n int) { a.acks <- n }

func (a *ackStream) Abort(code transport.ErrorCode) {
	select {
	case a.aborted <- code:
	default:
	}
}
