package protocol

import (
	"strings"
	"testing"

	"github.com/quic-go/quic-go/quicvarint"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		file string
		size uint64
	}{
		{name: "empty name", file: "", size: 0},
		{name: "one byte varint", file: "a.txt", size: 63},
		{name: "two byte varint", file: "notes.md", size: 16383},
		{name: "four byte varint", file: "report.pdf", size: 300000},
		{name: "eight byte varint", file: "disk.img", size: 1 << 40},
		{name: "max size", file: "max", size: MaxFileSize},
		{name: "max name", file: strings.Repeat("x", MaxFilenameLength), size: 42},
		{name: "single dot", file: "a.b.c", size: 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := EncodeHeader(tt.file, tt.size)
			require.NoError(t, err)
			require.Len(t, buf, 1+len(tt.file)+quicvarint.Len(tt.size))

			// trailing payload must not be consumed
			buf = append(buf, "payload"...)
			hdr, n, err := DecodeHeader(buf)
			require.NoError(t, err)
			require.Equal(t, tt.file, hdr.Filename)
			require.Equal(t, tt.size, hdr.Size)
			require.Equal(t, "payload", string(buf[n:]))
		})
	}
}

func TestHeaderLengthForReport(t *testing.T) {
	buf, err := EncodeHeader("report.pdf", 300000)
	require.NoError(t, err)
	require.Len(t, buf, 1+10+4)
	require.Equal(t, byte(10), buf[0])
}

func TestEncodeHeaderRejects(t *testing.T) {
	tests := []struct {
		name string
		file string
		size uint64
		want error
	}{
		{name: "too long", file: strings.Repeat("y", MaxFilenameLength+1), want: ErrFilenameTooLong},
		{name: "parent dir", file: "../etc/passwd", want: ErrInvalidFilename},
		{name: "dots inside", file: "a..b", want: ErrInvalidFilename},
		{name: "slash", file: "dir/file", want: ErrInvalidFilename},
		{name: "backslash", file: `dir\file`, want: ErrInvalidFilename},
		{name: "size too big", file: "big", size: MaxFileSize + 1, want: ErrSizeOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeHeader(tt.file, tt.size)
			require.ErrorIs(t, err, tt.want)
			require.ErrorIs(t, err, ErrProtocol)
		})
	}
}

func TestDecodeHeaderRejects(t *testing.T) {
	withName := func(name string, tail ...byte) []byte {
		buf := append([]byte{byte(len(name))}, name...)
		return append(buf, tail...)
	}
	tests := []struct {
		name string
		buf  []byte
		want error
	}{
		{name: "empty buffer", buf: nil, want: ErrHeaderNotContiguous},
		{name: "length past end", buf: []byte{10, 'a', 'b'}, want: ErrHeaderNotContiguous},
		{name: "traversal", buf: withName("..", 0x01), want: ErrInvalidFilename},
		{name: "separator", buf: withName("a/b", 0x01), want: ErrInvalidFilename},
		{name: "backslash", buf: withName(`a\b`, 0x01), want: ErrInvalidFilename},
		{name: "missing size", buf: withName("file"), want: ErrTruncatedSize},
		// 0x80 announces a four byte varint
		{name: "short size", buf: withName("file", 0x80, 0x01), want: ErrTruncatedSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeHeader(tt.buf)
			require.ErrorIs(t, err, tt.want)
			require.ErrorIs(t, err, ErrProtocol)
		})
	}
}
