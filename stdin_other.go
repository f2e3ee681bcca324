//go:build !unix

package main

import "os"

// openStdin returns stdin unchanged; a read blocked at teardown is only
// released by more input or end of input.
func openStdin() (in deadlineReader, restore func()) {
	return os.Stdin, func() {}
}
