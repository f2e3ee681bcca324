package crypto

import (
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
)

// ErrPeerRejected is returned when a peer certificate does not prove
// knowledge of the shared password.
var ErrPeerRejected = errors.New("peer certificate rejected")

// Binder ties one endpoint's TLS identity and its peer checks to a
// password held in locked memory.
type Binder struct {
	password *memguard.LockedBuffer
}

// NewBinder takes ownership of password; Destroy releases it.
func NewBinder(password *memguard.LockedBuffer) *Binder {
	return &Binder{password: password}
}

// Identity issues a fresh certificate bound to the password and loads it as
// a TLS identity.
func (b *Binder) Identity() (tls.Certificate, error) {
	bundle, err := GenerateCertificate(b.password.Bytes())
	if err != nil {
		return tls.Certificate{}, err
	}
	return LoadBundle(bundle)
}

// VerifyPeer accepts cert only if it was signed with the password.
func (b *Binder) VerifyPeer(cert *x509.Certificate) error {
	if !VerifyCertificate(b.password.Bytes(), cert) {
		return ErrPeerRejected
	}
	return nil
}

// Destroy wipes the password.
func (b *Binder) Destroy() {
	b.password.Destroy()
}

// RandomPassword returns a throwaway password for an endpoint that runs
// without one: its certificate is still well formed but binds to nothing.
func RandomPassword() (*memguard.LockedBuffer, error) {
	buf := make([]byte, RandomPasswordSize)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("%w: random password: %v", ErrCrypto, err)
	}
	return memguard.NewBufferFromBytes(buf), nil
}
