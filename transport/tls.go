package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"github.com/quic-go/quic-go"
)

// tlsConfig builds the handshake settings. Certificates are self-signed and
// never chain to a root, so the standard verification is replaced by the
// configured PeerVerifier.
func (c *Config) tlsConfig(server bool) *tls.Config {
	conf := &tls.Config{
		MinVersion:         tls.VersionTLS13,
		NextProtos:         []string{ALPN},
		InsecureSkipVerify: true,
	}
	if c.Identity != nil {
		conf.Certificates = []tls.Certificate{*c.Identity}
	}
	if c.Verifier != nil {
		if server {
			conf.ClientAuth = tls.RequireAnyClientCert
		}
		conf.VerifyPeerCertificate = func(raw [][]byte, _ [][]*x509.Certificate) error {
			if len(raw) == 0 {
				return ErrNoPeerCertificate
			}
			cert, err := x509.ParseCertificate(raw[0])
			if err != nil {
				return fmt.Errorf("transport: parse peer certificate: %w", err)
			}
			return c.Verifier.VerifyPeer(cert)
		}
	}
	return conf
}

// quicConfig admits unidirectional streams only.
func (c *Config) quicConfig() *quic.Config {
	maxStreams := c.MaxStreams
	if maxStreams <= 0 {
		maxStreams = 1
	}
	return &quic.Config{
		KeepAlivePeriod:       c.KeepAlive,
		MaxIdleTimeout:        c.IdleTimeout,
		MaxIncomingStreams:    -1,
		MaxIncomingUniStreams: maxStreams,
	}
}
