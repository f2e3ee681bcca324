package crypto

import (
	"crypto/ed25519"
	"crypto/tls"
	"crypto/x509"
	"fmt"

	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

// encodeBundle packs the transport key and its certificate into a PKCS#12
// archive without a password.
func encodeBundle(key ed25519.PrivateKey, cert *x509.Certificate) ([]byte, error) {
	bundle, err := pkcs12.Passwordless.Encode(key, cert, nil, "")
	if err != nil {
		return nil, fmt.Errorf("%w: encode bundle: %v", ErrCrypto, err)
	}
	return bundle, nil
}

// LoadBundle decodes a bundle produced by GenerateCertificate into a TLS
// identity.
func LoadBundle(bundle []byte) (tls.Certificate, error) {
	key, cert, err := pkcs12.Decode(bundle, "")
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("%w: decode bundle: %v", ErrCrypto, err)
	}
	return tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  key,
		Leaf:        cert,
	}, nil
}
