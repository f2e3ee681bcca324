package main

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	errIO          = errors.New("i/o error")
	errSessionBusy = errors.New("a transfer is already in progress")
)

type sessionRole int

const (
	roleSend sessionRole = iota
	roleReceive
	rolePassthrough
)

func (r sessionRole) direction() string {
	if r == roleSend {
		return "sent"
	}
	return "received"
}

type sessionState int32

const (
	stateIdle sessionState = iota
	stateSending
	stateReceiving
	stateCompleted
	stateAborted
)

func (s sessionState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateSending:
		return "sending"
	case stateReceiving:
		return "receiving"
	case stateCompleted:
		return "completed"
	case stateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

func (s sessionState) terminal() bool { return s == stateCompleted || s == stateAborted }

// transferSession is the accounting shared by every kind of transfer: the
// byte counter written by the owning goroutine, timestamps, the rate
// snapshot used by the renderer, and the terminal state.
type transferSession struct {
	id   uuid.UUID
	role sessionRole

	bytes    atomic.Uint64
	state    atomic.Int32
	canceled atomic.Bool

	mu            sync.Mutex
	name          string
	size          uint64
	start         time.Time
	lastUpdate    time.Time
	end           time.Time
	snapshotBytes uint64
	rateBytes     uint64
	rateTime      time.Duration

	// render is asked for a progress frame; terminal frames must be drawn.
	render func(now time.Time, terminal bool)

	doneOnce sync.Once
	done     chan struct{}
}

func newTransferSession(role sessionRole, name string, size uint64) *transferSession {
	return &transferSession{
		id:   uuid.New(),
		role: role,
		name: name,
		size: size,
		done: make(chan struct{}),
	}
}

func (s *transferSession) State() sessionState { return sessionState(s.state.Load()) }

// Done is closed once the session reaches a terminal state.
func (s *transferSession) Done() <-chan struct{} { return s.done }

// describe records what is being transferred once it is known.
func (s *transferSession) describe(name string, size uint64) {
	s.mu.Lock()
	s.name, s.size = name, size
	s.mu.Unlock()
}

// begin starts the clock and moves the session out of idle.
func (s *transferSession) begin(state sessionState) {
	now := time.Now()
	s.mu.Lock()
	s.start, s.lastUpdate = now, now
	s.mu.Unlock()
	s.state.Store(int32(state))
}

// advance counts n payload bytes and requests a frame when one is due.
func (s *transferSession) advance(n int, final bool) {
	total := s.bytes.Add(uint64(n))
	now := time.Now()
	s.mu.Lock()
	due := final || now.Sub(s.lastUpdate) >= progressUpdateInterval
	if due {
		s.rateBytes = total - s.snapshotBytes
		s.rateTime = now.Sub(s.lastUpdate)
		s.snapshotBytes = total
		s.lastUpdate = now
	}
	s.mu.Unlock()
	if due && s.render != nil {
		s.render(now, final)
	}
}

// finish moves the session to a terminal state. Only the first call has an
// effect; it reports whether it was that call.
func (s *transferSession) finish(state sessionState) bool {
	first := false
	s.doneOnce.Do(func() {
		first = true
		s.mu.Lock()
		s.end = time.Now()
		if s.start.IsZero() {
			s.start = s.end
		}
		s.mu.Unlock()
		s.state.Store(int32(state))
		close(s.done)
	})
	return first
}

// elapsed is the transfer duration, or the time so far for a live session.
func (s *transferSession) elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsedLocked(time.Now())
}

func (s *transferSession) elapsedLocked(now time.Time) time.Duration {
	if s.start.IsZero() {
		return 0
	}
	if !s.end.IsZero() {
		return s.end.Sub(s.start)
	}
	return now.Sub(s.start)
}

func (s *transferSession) summary() string {
	return formatSummary(s.bytes.Load(), s.elapsed(), s.role.direction())
}

// sessionSnapshot is a consistent copy of what the renderer needs.
type sessionSnapshot struct {
	name      string
	done      uint64
	total     uint64
	elapsed   time.Duration
	rateBytes uint64
	rateTime  time.Duration
}

func (s *transferSession) snapshot(now time.Time) sessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sessionSnapshot{
		name:      s.name,
		done:      s.bytes.Load(),
		total:     s.size,
		elapsed:   s.elapsedLocked(now),
		rateBytes: s.rateBytes,
		rateTime:  s.rateTime,
	}
}

// fraction may exceed 1: the declared size is advisory.
func (s sessionSnapshot) fraction() float64 {
	if s.total == 0 {
		return 1
	}
	return float64(s.done) / float64(s.total)
}
