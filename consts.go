package main

import "time"

const (
	// file copy buffersize
	fileCopyBufferSize = 128 * 1024

	// progress is redrawn at most this often, plus once per finished session
	progressUpdateInterval = 500 * time.Millisecond

	// stdio transfers keep otherwise idle connections alive
	stdioKeepAlive = 20 * time.Second

	// a finished stdio session waits this long for the peer to close first
	closeLinger = 2 * time.Second

	// bounded queue between the receive callback and the stdout writer
	stdoutQueueDepth = 1

	progressBarWidth = 40
	progressNameMax  = 29
)

// smallest staging buffer; it must hold a full header plus payload
const minBufferSize = 1024
