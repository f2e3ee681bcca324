package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xtaci/quiccat/transport"
)

// startDrain runs only the stdout half of a stdio session.
func startDrain(s *stdioSession) {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.begin(stateReceiving)
	s.group.Go(s.drainStdout)
}

func TestStdoutPassthrough(t *testing.T) {
	var out bytes.Buffer
	s := newStdioSession(nil, &out, false, minBufferSize, nil)
	st := newAckStream()
	h := s.attach(st)
	require.NotNil(t, h)
	require.Nil(t, s.attach(newAckStream()), "second inbound stream must be refused")
	startDrain(s)

	require.ErrorIs(t, h.Receive([]byte("hello "), false), transport.ErrReceivePending)
	require.Equal(t, 6, <-st.acks)
	require.NoError(t, h.Receive(nil, false))
	require.ErrorIs(t, h.Receive([]byte("world"), true), transport.ErrReceivePending)
	require.Equal(t, 5, <-st.acks)
	h.ShutdownComplete()

	require.NoError(t, s.group.Wait())
	require.Equal(t, "hello world", out.String())
	require.Equal(t, uint64(11), s.bytes.Load())
}

func TestStdoutStreamCut(t *testing.T) {
	var out bytes.Buffer
	s := newStdioSession(nil, &out, false, minBufferSize, nil)
	st := newAckStream()
	h := s.attach(st)
	startDrain(s)

	require.ErrorIs(t, h.Receive([]byte("abc"), false), transport.ErrReceivePending)
	<-st.acks
	h.ShutdownComplete()
	require.ErrorIs(t, s.group.Wait(), errStreamCut)
	require.Equal(t, "abc", out.String())
}

func TestStdoutQueueOverrun(t *testing.T) {
	s := newStdioSession(nil, &bytes.Buffer{}, false, minBufferSize, nil)
	h := s.attach(newAckStream())

	// nothing drains the queue
	require.ErrorIs(t, h.Receive([]byte("a"), false), transport.ErrReceivePending)
	err := h.Receive([]byte("b"), false)
	require.Error(t, err)
	require.NotErrorIs(t, err, transport.ErrReceivePending)
	require.Equal(t, transport.CodeInternal, transport.CodeFor(err))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errIO }

func TestStdoutWriteFailureAbortsInbound(t *testing.T) {
	s := newStdioSession(nil, failingWriter{}, false, minBufferSize, nil)
	st := newAckStream()
	h := s.attach(st)
	startDrain(s)

	require.ErrorIs(t, h.Receive([]byte("data"), false), transport.ErrReceivePending)
	require.Equal(t, transport.CodeInternal, <-st.aborted)
	require.ErrorIs(t, s.group.Wait(), errIO)
}

func TestStopBeforeConnect(t *testing.T) {
	s := newStdioSession(nil, &bytes.Buffer{}, false, minBufferSize, nil)
	s.stop(nil)
	require.Equal(t, stateAborted, s.State())
}
