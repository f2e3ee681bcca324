//go:build unix

package main

import (
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// pollableStdin keeps the second *os.File for descriptor 0 reachable; its
// finalizer would otherwise close stdin.
var pollableStdin *os.File

// openStdin switches stdin to non-blocking mode so the runtime poller owns
// it and read deadlines work. restore puts the descriptor back.
func openStdin() (in deadlineReader, restore func()) {
	f, restore, err := openPollable(unix.Stdin, "/dev/stdin")
	if err != nil {
		logInfo("stdin stays blocking: %v", err)
		return os.Stdin, func() {}
	}
	pollableStdin = f
	return f, restore
}

// openPollable wraps fd in a pollable file. The non-blocking flag is shared
// with every process holding the descriptor, so restore also runs on
// interrupt.
func openPollable(fd int, name string) (*os.File, func(), error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, nil, err
	}
	var once sync.Once
	restore := func() {
		once.Do(func() { unix.SetNonblock(fd, false) })
	}
	atInterrupt(restore)
	return os.NewFile(uintptr(fd), name), restore, nil
}
