package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/google/uuid"
	"github.com/xtaci/quiccat/transport"
)

// sessionDriver is a connection handler that owns one transfer session.
type sessionDriver interface {
	transport.ConnectionHandler
	session() *transferSession
}

// transferTotals accumulates retired sessions.
type transferTotals struct {
	sessions  int
	completed int
	bytes     uint64
	duration  time.Duration
}

// coordinator admits connections, owns the live sessions and draws their
// progress. In exclusive mode only one session may be live at a time.
type coordinator struct {
	concurrent bool
	newDriver  func(remote net.Addr) (sessionDriver, error)
	// onRetire runs after a session's summary has been printed.
	onRetire func(*transferSession)

	out      io.Writer
	terminal bool
	bar      progress.Model

	mu       sync.Mutex
	sessions map[uuid.UUID]*transferSession
	totals   transferTotals

	// renderMu serializes output; drawn counts the progress lines
	// currently on screen.
	renderMu sync.Mutex
	drawn    int
}

func newCoordinator(out io.Writer, terminal, concurrent bool) *coordinator {
	return &coordinator{
		concurrent: concurrent,
		out:        out,
		terminal:   terminal,
		bar:        newProgressBar(),
		sessions:   make(map[uuid.UUID]*transferSession),
	}
}

// Admit implements transport.Admitter.
func (c *coordinator) Admit(remote net.Addr) (transport.ConnectionHandler, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.concurrent && len(c.sessions) > 0 {
		logInfo("refusing %s: %v", remote, errSessionBusy)
		return nil, errSessionBusy
	}
	d, err := c.newDriver(remote)
	if err != nil {
		return nil, err
	}
	c.registerLocked(d.session())
	logInfo("accepted connection from %s", remote)
	return retiringHandler{sessionDriver: d, c: c}, nil
}

// register adds a session created outside Admit.
func (c *coordinator) register(s *transferSession) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.concurrent && len(c.sessions) > 0 {
		return errSessionBusy
	}
	c.registerLocked(s)
	return nil
}

func (c *coordinator) registerLocked(s *transferSession) {
	c.sessions[s.id] = s
	if s.role != rolePassthrough {
		s.render = func(now time.Time, terminal bool) { c.renderProgress(s, now, terminal) }
	}
}

// live returns the number of registered sessions.
func (c *coordinator) live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

func (c *coordinator) Totals() transferTotals {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totals
}

// renderProgress draws a frame on behalf of s. Intermediate frames are
// dropped while another goroutine is drawing; terminal frames wait.
func (c *coordinator) renderProgress(s *transferSession, now time.Time, terminal bool) {
	if terminal {
		c.renderMu.Lock()
	} else if !c.renderMu.TryLock() {
		return
	}
	defer c.renderMu.Unlock()

	var b strings.Builder
	if c.terminal {
		c.eraseLocked(&b)
		c.drawLocked(&b, now)
	} else if terminal {
		// no cursor control: one line per finished transfer
		b.WriteString(progressLine(c.bar, s.snapshot(now)))
		b.WriteByte('\n')
	}
	io.WriteString(c.out, b.String())
}

// eraseLocked moves the cursor back over the drawn block and clears it.
func (c *coordinator) eraseLocked(b *strings.Builder) {
	if c.terminal && c.drawn > 0 {
		fmt.Fprintf(b, "\x1b[%dF\x1b[J", c.drawn)
	}
	c.drawn = 0
}

// drawLocked writes one line per rendered session, most complete first.
func (c *coordinator) drawLocked(b *strings.Builder, now time.Time) {
	c.mu.Lock()
	snaps := make([]sessionSnapshot, 0, len(c.sessions))
	for _, s := range c.sessions {
		if s.role != rolePassthrough {
			snaps = append(snaps, s.snapshot(now))
		}
	}
	c.mu.Unlock()

	sort.SliceStable(snaps, func(i, j int) bool {
		return snaps[i].fraction() > snaps[j].fraction()
	})
	for _, snap := range snaps {
		b.WriteString(progressLine(c.bar, snap))
		b.WriteByte('\n')
	}
	c.drawn = len(snaps)
}

// teardown retires s: it leaves the live set, its numbers join the totals
// and its summary replaces the progress block.
func (c *coordinator) teardown(s *transferSession) {
	s.finish(stateAborted)

	c.mu.Lock()
	if _, ok := c.sessions[s.id]; !ok {
		c.mu.Unlock()
		return
	}
	delete(c.sessions, s.id)
	c.totals.sessions++
	if s.State() == stateCompleted {
		c.totals.completed++
	}
	c.totals.bytes += s.bytes.Load()
	c.totals.duration += s.elapsed()
	c.mu.Unlock()

	c.renderMu.Lock()
	var b strings.Builder
	c.eraseLocked(&b)
	b.WriteString(s.summary())
	b.WriteByte('\n')
	if c.terminal {
		c.drawLocked(&b, time.Now())
	}
	io.WriteString(c.out, b.String())
	c.renderMu.Unlock()

	if c.onRetire != nil {
		c.onRetire(s)
	}
}

// retiringHandler tears the session down once its connection is gone.
type retiringHandler struct {
	sessionDriver
	c *coordinator
}

func (h retiringHandler) ShutdownComplete(err error) {
	h.sessionDriver.ShutdownComplete(err)
	h.c.teardown(h.session())
}

// receiveConn drives one inbound file transfer. The receiver closes the
// connection once the stream is over; the sender treats a clean close as
// delivery.
type receiveConn struct {
	r *fileReceiver

	mu      sync.Mutex
	started bool
}

func newReceiveConn(dir string, bufSize int) *receiveConn {
	return &receiveConn{r: newFileReceiver(dir, bufSize)}
}

func (h *receiveConn) Connected(conn *transport.Conn) {
	fmt.Fprintln(os.Stderr, "Connected!")
	h.r.ended = func(code transport.ErrorCode) {
		if code == transport.CodeOK {
			conn.Close(code, "transfer complete")
			return
		}
		conn.Close(code, "transfer aborted")
	}
}

func (h *receiveConn) StreamStarted(transport.Stream) transport.StreamHandler {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return nil
	}
	h.started = true
	return h.r
}

func (h *receiveConn) ShutdownComplete(err error) {
	h.r.closeFile()
	if h.r.finish(stateAborted) && err != nil {
		logError("connection closed: %v", err)
	}
}

func (h *receiveConn) session() *transferSession { return h.r.transferSession }
