package crypto

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/awnumar/memguard"
	"golang.org/x/term"
)

// PromptPassword prompts the user for a password, optionally confirming it.
func PromptPassword(prompt string, confirm bool) (*memguard.LockedBuffer, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("password prompt requires a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	pass, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}
	buf := memguard.NewBufferFromBytes(pass)
	if confirm {
		fmt.Fprint(os.Stderr, "Confirm password: ")
		confirmPass, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			buf.Destroy()
			return nil, err
		}
		confBuf := memguard.NewBufferFromBytes(confirmPass)
		defer confBuf.Destroy()

		if !bytes.Equal(buf.Bytes(), confBuf.Bytes()) {
			buf.Destroy()
			return nil, errors.New("passwords do not match")
		}
	}
	if buf.Size() == 0 {
		buf.Destroy()
		return nil, errors.New("empty password not allowed")
	}
	return buf, nil
}
