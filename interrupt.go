package main

import (
	"os"
	"os/signal"
	"sync"

	"github.com/awnumar/memguard"
)

var (
	cleanupMu sync.Mutex
	cleanups  []func()
)

// atInterrupt registers fn to run before an interrupt ends the process.
func atInterrupt(fn func()) {
	cleanupMu.Lock()
	cleanups = append(cleanups, fn)
	cleanupMu.Unlock()
}

// runCleanups runs the registered functions, newest first, and forgets them.
func runCleanups() {
	cleanupMu.Lock()
	fns := cleanups
	cleanups = nil
	cleanupMu.Unlock()
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}

// catchInterrupt works like memguard.CatchInterrupt but runs the registered
// cleanups before secrets are purged and the process exits.
func catchInterrupt() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		runCleanups()
		memguard.SafeExit(1)
	}()
}
