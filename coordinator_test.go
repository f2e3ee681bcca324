package main

import (
	"bytes"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xtaci/quiccat/transport"
)

type stubDriver struct {
	s        *transferSession
	shutdown chan error
}

func newStubDriver(role sessionRole) *stubDriver {
	return &stubDriver{s: newTransferSession(role, "stub.bin", 100), shutdown: make(chan error, 1)}
}

func (d *stubDriver) Connected(*transport.Conn) {}

func (d *stubDriver) StreamStarted(transport.Stream) transport.StreamHandler { return nil }

func (d *stubDriver) ShutdownComplete(err error) { d.shutdown <- err }

func (d *stubDriver) session() *transferSession { return d.s }

// syncBuffer is written by render goroutines and read by the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var testRemote = &net.UDPAddr{IP: net.IPv4(203, 0, 113, 10), Port: 4567}

func TestExclusiveAdmission(t *testing.T) {
	out := &syncBuffer{}
	c := newCoordinator(out, false, false)
	var drivers []*stubDriver
	c.newDriver = func(net.Addr) (sessionDriver, error) {
		d := newStubDriver(roleReceive)
		drivers = append(drivers, d)
		return d, nil
	}
	var retired []*transferSession
	c.onRetire = func(s *transferSession) { retired = append(retired, s) }

	h, err := c.Admit(testRemote)
	require.NoError(t, err)
	_, err = c.Admit(testRemote)
	require.ErrorIs(t, err, errSessionBusy)
	require.Len(t, drivers, 1)
	require.Equal(t, 1, c.live())

	h.ShutdownComplete(nil)
	require.NoError(t, <-drivers[0].shutdown)
	require.Equal(t, 0, c.live())
	require.Len(t, retired, 1)
	require.Equal(t, stateAborted, retired[0].State())
	require.Contains(t, out.String(), "0 bytes received in")

	// the slot is free again
	_, err = c.Admit(testRemote)
	require.NoError(t, err)
}

func TestConcurrentTotals(t *testing.T) {
	c := newCoordinator(&syncBuffer{}, false, true)
	c.newDriver = func(net.Addr) (sessionDriver, error) { return newStubDriver(roleReceive), nil }

	sizes := []int{100, 250, 4096}
	var handlers []transport.ConnectionHandler
	for range sizes {
		h, err := c.Admit(testRemote)
		require.NoError(t, err)
		handlers = append(handlers, h)
	}
	require.Equal(t, len(sizes), c.live())

	var want uint64
	for i, h := range handlers {
		s := h.(retiringHandler).session()
		s.begin(stateReceiving)
		s.advance(sizes[i], true)
		if i != 1 {
			s.finish(stateCompleted)
		}
		want += uint64(sizes[i])
		h.ShutdownComplete(nil)
	}

	totals := c.Totals()
	require.Equal(t, 3, totals.sessions)
	require.Equal(t, 2, totals.completed)
	require.Equal(t, want, totals.bytes)
	require.Equal(t, 0, c.live())
}

func TestTeardownIsIdempotent(t *testing.T) {
	c := newCoordinator(&syncBuffer{}, false, false)
	s := newTransferSession(roleSend, "a", 1)
	require.NoError(t, c.register(s))
	require.ErrorIs(t, c.register(newTransferSession(roleSend, "b", 1)), errSessionBusy)
	c.teardown(s)
	c.teardown(s)
	require.Equal(t, 1, c.Totals().sessions)
}

func TestRenderSkipsBusyFrames(t *testing.T) {
	out := &syncBuffer{}
	c := newCoordinator(out, true, false)
	s := newTransferSession(roleSend, "report.pdf", 1000)
	require.NoError(t, c.register(s))
	s.begin(stateSending)

	c.renderMu.Lock()
	c.renderProgress(s, time.Now(), false)
	require.Empty(t, out.String())

	drawn := make(chan struct{})
	go func() {
		c.renderProgress(s, time.Now(), true)
		close(drawn)
	}()
	select {
	case <-drawn:
		t.Fatal("terminal frame did not wait for the render lock")
	case <-time.After(50 * time.Millisecond):
	}
	c.renderMu.Unlock()
	<-drawn
	require.Contains(t, out.String(), "report.pdf [")
}

func TestRenderTerminalErasesPreviousBlock(t *testing.T) {
	out := &syncBuffer{}
	c := newCoordinator(out, true, true)
	a := newTransferSession(roleSend, "a.bin", 100)
	b := newTransferSession(roleSend, "b.bin", 100)
	p := newTransferSession(rolePassthrough, "stdout", 0)
	for _, s := range []*transferSession{a, b, p} {
		require.NoError(t, c.register(s))
		s.begin(stateSending)
	}
	require.Nil(t, p.render)

	a.bytes.Store(10)
	b.bytes.Store(90)
	c.renderProgress(a, time.Now(), true)
	first := out.String()
	lines := strings.Split(strings.TrimSuffix(first, "\n"), "\n")
	require.Len(t, lines, 2)
	// most complete first
	require.True(t, strings.HasPrefix(lines[0], "b.bin"))
	require.NotContains(t, first, "\x1b[")

	c.renderProgress(a, time.Now(), true)
	require.Contains(t, strings.TrimPrefix(out.String(), first), "\x1b[2F\x1b[J")
}

func TestRenderPlainOutputOnlyFinalFrames(t *testing.T) {
	out := &syncBuffer{}
	c := newCoordinator(out, false, true)
	a := newTransferSession(roleSend, "a.bin", 100)
	b := newTransferSession(roleSend, "b.bin", 100)
	require.NoError(t, c.register(a))
	require.NoError(t, c.register(b))

	c.renderProgress(a, time.Now(), false)
	require.Empty(t, out.String())
	c.renderProgress(a, time.Now(), true)
	require.Equal(t, 1, strings.Count(out.String(), "\n"))
	require.True(t, strings.HasPrefix(out.String(), "a.bin"))
	require.NotContains(t, out.String(), "\x1b[")
}
