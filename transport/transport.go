// Package transport adapts quic-go to the event interfaces used by the
// transfer sessions: connection and stream callbacks on the receive side and
// a blocking, one-chunk-in-flight Send on the send side.
//
// Every transfer direction is its own unidirectional stream. quic-go only
// surfaces a peer-initiated stream once data arrives on it, so a shared
// bidirectional stream would stall a side that has nothing to send yet.
package transport

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"time"
)

// ALPN is negotiated on every connection.
const ALPN = "quiccat"

// DefaultChunkSize bounds a single read from a stream.
const DefaultChunkSize = 128 * 1024

// ErrorCode is carried by stream resets and connection closes.
type ErrorCode uint64

const (
	CodeOK ErrorCode = iota
	CodeInternal
	CodeInvalidParameter
	CodeRefused
)

func (c ErrorCode) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeInternal:
		return "internal error"
	case CodeInvalidParameter:
		return "invalid parameter"
	case CodeRefused:
		return "refused"
	default:
		return fmt.Sprintf("code %d", uint64(c))
	}
}

var (
	// ErrSendCanceled is returned by Send once the peer or the connection
	// aborted the stream.
	ErrSendCanceled = errors.New("transport: send canceled")

	// ErrReceivePending is returned by StreamHandler.Receive to keep the
	// chunk and hold further reads until Stream.Acknowledge.
	ErrReceivePending = errors.New("transport: receive pending")

	ErrNoPeerCertificate = errors.New("transport: peer sent no certificate")
)

// AbortError attaches the reset code a failed Receive should use.
type AbortError struct {
	Code ErrorCode
	Err  error
}

func (e *AbortError) Error() string { return fmt.Sprintf("%v (%v)", e.Err, e.Code) }
func (e *AbortError) Unwrap() error { return e.Err }

// Abort wraps err with code.
func Abort(code ErrorCode, err error) error {
	return &AbortError{Code: code, Err: err}
}

// CodeFor picks the reset code for err.
func CodeFor(err error) ErrorCode {
	if err == nil {
		return CodeOK
	}
	var ae *AbortError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// PeerVerifier is consulted when the peer presents its certificate.
type PeerVerifier interface {
	VerifyPeer(cert *x509.Certificate) error
}

// SendStream is the sending half of a stream.
type SendStream interface {
	// Send returns once the transport has taken p. final closes the send
	// direction after p.
	Send(p []byte, final bool) error
	Abort(code ErrorCode)
}

// Stream is an inbound stream handed to a StreamHandler.
type Stream interface {
	// Acknowledge releases a chunk held after ErrReceivePending.
	Acknowledge(n int)
	Abort(code ErrorCode)
}

// StreamHandler receives the events of one stream. Calls are sequential.
type StreamHandler interface {
	// Receive is called for each chunk; chunk is reused after Receive
	// returns unless it returned ErrReceivePending. Any other error aborts
	// the stream with CodeFor(err).
	Receive(chunk []byte, final bool) error
	// ShutdownComplete is the last event of the stream.
	ShutdownComplete()
}

// ConnectionHandler receives the events of one connection.
type ConnectionHandler interface {
	Connected(c *Conn)
	// StreamStarted returns nil to refuse the stream.
	StreamStarted(s Stream) StreamHandler
	ShutdownComplete(err error)
}

// Admitter decides whether an incoming connection is served.
type Admitter interface {
	Admit(remote net.Addr) (ConnectionHandler, error)
}

// Config holds the settings shared by listeners and dialers.
type Config struct {
	// Identity is presented during the handshake. A dialer may leave it
	// empty.
	Identity *tls.Certificate
	// Verifier checks the peer certificate; nil skips peer checks.
	Verifier PeerVerifier
	// MaxStreams caps the inbound streams per connection (default 1).
	MaxStreams  int64
	KeepAlive   time.Duration
	IdleTimeout time.Duration
	ChunkSize   int
}

func (c *Config) chunkSize() int {
	if c.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return c.ChunkSize
}
