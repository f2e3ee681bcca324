package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/quic-go/quic-go/quicvarint"
)

const (
	// MaxFilenameLength is the largest filename a header can carry.
	MaxFilenameLength = 255

	// MaxHeaderLen bounds the encoded header: length byte, filename, widest varint.
	MaxHeaderLen = 1 + MaxFilenameLength + 8

	// MaxFileSize is the largest size representable by the size field.
	MaxFileSize = quicvarint.Max
)

var (
	// ErrProtocol is wrapped by every header error.
	ErrProtocol = errors.New("protocol error")

	ErrHeaderNotContiguous = fmt.Errorf("%w: header not contiguous", ErrProtocol)
	ErrInvalidFilename     = fmt.Errorf("%w: invalid filename", ErrProtocol)
	ErrTruncatedSize       = fmt.Errorf("%w: truncated size", ErrProtocol)
	ErrFilenameTooLong     = fmt.Errorf("%w: filename too long", ErrProtocol)
	ErrSizeOutOfRange      = fmt.Errorf("%w: size out of range", ErrProtocol)
)

// Header is the prefix of a file-mode stream.
type Header struct {
	Filename string
	// Size is advisory: the end of the stream marks the end of the payload.
	Size uint64
}

// ValidateFilename rejects names that could escape the destination directory.
func ValidateFilename(name string) error {
	if len(name) > MaxFilenameLength {
		return fmt.Errorf("%w (%d > %d)", ErrFilenameTooLong, len(name), MaxFilenameLength)
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q contains ..", ErrInvalidFilename, name)
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidFilename, name)
	}
	return nil
}

// EncodeHeader writes [len][filename][varint size].
func EncodeHeader(filename string, size uint64) ([]byte, error) {
	if err := ValidateFilename(filename); err != nil {
		return nil, err
	}
	if size > MaxFileSize {
		return nil, fmt.Errorf("%w: %d", ErrSizeOutOfRange, size)
	}
	buf := make([]byte, 0, 1+len(filename)+quicvarint.Len(size))
	buf = append(buf, byte(len(filename)))
	buf = append(buf, filename...)
	return quicvarint.Append(buf, size), nil
}

// DecodeHeader parses a header from the start of buf and returns the number
// of bytes it occupied. Bytes past that offset are payload.
func DecodeHeader(buf []byte) (Header, int, error) {
	if len(buf) == 0 {
		return Header{}, 0, ErrHeaderNotContiguous
	}
	nameLen := int(buf[0])
	if nameLen > len(buf)-1 {
		return Header{}, 0, ErrHeaderNotContiguous
	}
	name := string(buf[1 : 1+nameLen])
	if err := ValidateFilename(name); err != nil {
		return Header{}, 0, err
	}
	size, n, err := quicvarint.Parse(buf[1+nameLen:])
	if err != nil {
		return Header{}, 0, ErrTruncatedSize
	}
	return Header{Filename: name, Size: size}, 1 + nameLen + n, nil
}
