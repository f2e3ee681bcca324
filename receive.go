package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xtaci/quiccat/protocol"
	"github.com/xtaci/quiccat/transport"
)

// fileReceiver writes a file-mode stream into a destination directory.
// Reads can split the header anywhere, so its bytes are buffered until it
// decodes.
type fileReceiver struct {
	*transferSession
	dir     string
	bufSize int

	header []byte
	path   string
	file   *os.File
	out    *bufio.Writer
	final  bool
	code   transport.ErrorCode

	// ended runs after the stream's last event with the code the stream
	// ended with.
	ended func(code transport.ErrorCode)
}

func newFileReceiver(dir string, bufSize int) *fileReceiver {
	return &fileReceiver{
		transferSession: newTransferSession(roleReceive, "", 0),
		dir:             dir,
		bufSize:         bufSize,
	}
}

func (r *fileReceiver) Receive(chunk []byte, final bool) error {
	if r.file == nil {
		payload, err := r.acceptHeader(chunk, final)
		if err != nil {
			return err
		}
		if r.file == nil {
			return nil
		}
		chunk = payload
	}
	if len(chunk) > 0 {
		if _, err := r.out.Write(chunk); err != nil {
			logError("failed to write to %s: %v", r.path, err)
			r.closeFile()
			return r.fail(transport.CodeInternal, fmt.Errorf("%w: write %s: %w", errIO, r.path, err))
		}
	}
	if final {
		err := r.out.Flush()
		if cerr := r.file.Close(); err == nil {
			err = cerr
		}
		r.file = nil
		if err != nil {
			logError("failed to write to %s: %v", r.path, err)
			return r.fail(transport.CodeInternal, fmt.Errorf("%w: write %s: %w", errIO, r.path, err))
		}
		r.final = true
	}
	r.advance(len(chunk), final)
	if final {
		r.checkSize()
		r.finish(stateCompleted)
	}
	return nil
}

// acceptHeader buffers chunk until the header decodes, then opens the
// destination and returns the payload that followed the header.
func (r *fileReceiver) acceptHeader(chunk []byte, final bool) ([]byte, error) {
	r.header = append(r.header, chunk...)
	hdr, n, err := protocol.DecodeHeader(r.header)
	if err != nil {
		if errors.Is(err, protocol.ErrInvalidFilename) || len(r.header) >= protocol.MaxHeaderLen || final {
			logError("rejecting transfer: %v", err)
			return nil, r.fail(transport.CodeInvalidParameter, err)
		}
		return nil, nil
	}

	r.path = filepath.Join(r.dir, hdr.Filename)
	logInfo("Creating file: %s", r.path)
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		logError("failed to open %s for writing: %v", r.path, err)
		return nil, r.fail(transport.CodeInternal, fmt.Errorf("%w: open %s: %w", errIO, r.path, err))
	}
	r.file = f
	r.out = bufio.NewWriterSize(f, r.bufSize)
	r.describe(hdr.Filename, hdr.Size)
	r.begin(stateReceiving)

	payload := r.header[n:]
	r.header = nil
	return payload, nil
}

// checkSize reports a declared size that differs from what arrived. The
// size is advisory, so nothing else happens.
func (r *fileReceiver) checkSize() {
	got := r.bytes.Load()
	r.mu.Lock()
	want := r.size
	r.mu.Unlock()
	if got != want {
		logInfo("%s: declared %d bytes, received %d", r.path, want, got)
	}
}

// fail aborts the session; the returned error resets the stream with code.
func (r *fileReceiver) fail(code transport.ErrorCode, err error) error {
	r.code = code
	r.finish(stateAborted)
	return transport.Abort(code, err)
}

func (r *fileReceiver) closeFile() {
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
}

// ShutdownComplete ends the stream; without end-of-stream the transfer is
// incomplete.
func (r *fileReceiver) ShutdownComplete() {
	if !r.final {
		r.closeFile()
		if r.finish(stateAborted) {
			r.code = transport.CodeInternal
			logError("transfer of %s aborted by peer", r.displayPath())
		}
	}
	if r.ended != nil {
		r.ended(r.code)
	}
}

func (r *fileReceiver) displayPath() string {
	if r.path == "" {
		return "unnamed file"
	}
	return r.path
}
