package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/xtaci/quiccat/protocol"
	"github.com/xtaci/quiccat/transport"
	"golang.org/x/time/rate"
)

// chunkSource fills a staging buffer and reports whether the source is
// exhausted.
type chunkSource interface {
	fill(p []byte) (n int, final bool, err error)
}

// blockSource fills the whole buffer; a short read is the last one.
type blockSource struct{ r io.Reader }

func (b blockSource) fill(p []byte) (int, bool, error) {
	n, err := io.ReadFull(b.r, p)
	switch {
	case err == nil:
		return n, false, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return n, true, nil
	default:
		return n, false, err
	}
}

// lineSource sends an interactive terminal line by line.
type lineSource struct{ r *bufio.Reader }

func newLineSource(r io.Reader, size int) lineSource {
	return lineSource{r: bufio.NewReaderSize(r, size)}
}

func (l lineSource) fill(p []byte) (int, bool, error) {
	line, err := l.r.ReadSlice('\n')
	n := copy(p, line)
	switch {
	case err == nil, errors.Is(err, bufio.ErrBufferFull):
		return n, false, nil
	case errors.Is(err, io.EOF):
		return n, true, nil
	default:
		return n, false, err
	}
}

// sendLoop streams src over out with one chunk in flight. header, if any,
// prefixes the first chunk; only payload bytes are counted.
func (s *transferSession) sendLoop(ctx context.Context, out transport.SendStream, src chunkSource, header []byte, bufSize int, limiter *rate.Limiter) error {
	buf := make([]byte, bufSize)
	off := copy(buf, header)
	s.begin(stateSending)
	for {
		n, final, err := src.fill(buf[off:])
		if err != nil {
			out.Abort(transport.CodeInternal)
			s.finish(stateAborted)
			return fmt.Errorf("%w: read: %w", errIO, err)
		}
		chunk := buf[:off+n]
		if limiter != nil {
			if err := limiter.WaitN(ctx, len(chunk)); err != nil {
				out.Abort(transport.CodeInternal)
				s.finish(stateAborted)
				return err
			}
		}
		if err := out.Send(chunk, final); err != nil {
			s.canceled.Store(true)
			s.finish(stateAborted)
			return err
		}
		s.advance(n, final)
		off = 0
		if final {
			return nil
		}
	}
}

// fileSource is a validated file ready to be sent.
type fileSource struct {
	path string
	name string
	size uint64
}

// openFileSource checks path the way a transfer will use it, before any
// connection is made.
func openFileSource(path string) (fileSource, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return fileSource{}, fmt.Errorf("%w: %s doesn't exist", errConfiguration, path)
	}
	if err != nil {
		return fileSource{}, fmt.Errorf("%w: %v", errConfiguration, err)
	}
	if info.IsDir() {
		return fileSource{}, fmt.Errorf("%w: %s must be a file, or file-like", errConfiguration, path)
	}
	name := filepath.Base(path)
	if len(name) > protocol.MaxFilenameLength {
		return fileSource{}, fmt.Errorf("%w: file name is too long (%d > %d)", errConfiguration, len(name), protocol.MaxFilenameLength)
	}
	if err := protocol.ValidateFilename(name); err != nil {
		return fileSource{}, fmt.Errorf("%w: %v", errConfiguration, err)
	}
	return fileSource{path: path, name: name, size: uint64(info.Size())}, nil
}

// sendFile transfers src over out, header first.
func (s *transferSession) sendFile(ctx context.Context, out transport.SendStream, src fileSource, bufSize int, limiter *rate.Limiter) error {
	header, err := protocol.EncodeHeader(src.name, src.size)
	if err != nil {
		out.Abort(transport.CodeInvalidParameter)
		s.finish(stateAborted)
		return err
	}
	f, err := os.Open(src.path)
	if err != nil {
		out.Abort(transport.CodeInternal)
		s.finish(stateAborted)
		return fmt.Errorf("%w: failed to open %s for read: %v", errIO, src.path, err)
	}
	defer f.Close()
	return s.sendLoop(ctx, out, blockSource{r: f}, header, bufSize, limiter)
}
