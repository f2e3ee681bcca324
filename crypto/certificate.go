package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	encasn1 "encoding/asn1"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/awnumar/memguard"
	"github.com/cloudflare/circl/sign/ed448"
	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// oidSignatureEd448 identifies Ed448 signatures (RFC 8410).
var oidSignatureEd448 = encasn1.ObjectIdentifier{1, 3, 101, 113}

var (
	errSerialSize       = errors.New("serial size mismatch")
	errBadSignature     = errors.New("certificate failed signature verification")
	errMalformedCert    = errors.New("certificate is malformed")
	errSignatureFormat  = errors.New("certificate signature is malformed")
	errUnknownAlgorithm = errors.New("certificate is not signed with ed448")
)

// GenerateCertificate issues a fresh transport key and a self-signed
// certificate whose serial is a random salt and whose signature comes from
// the key derived from password and that salt. The result is a passwordless
// PKCS#12 bundle.
func GenerateCertificate(password []byte) ([]byte, error) {
	transportPub, transportKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: generate transport key: %v", ErrCrypto, err)
	}

	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("%w: read salt: %v", ErrCrypto, err)
	}
	serial := new(big.Int).SetBytes(salt)

	now := time.Now()
	var der []byte
	err = withSigningKey(password, salt, func(key ed448.PrivateKey) error {
		var err error
		der, err = buildCertificate(serial, transportPub, now.Add(-CertBackdate), now.Add(CertLifetime), func(tbs []byte) []byte {
			return ed448.Sign(key, tbs, "")
		})
		return err
	})
	memguard.WipeBytes(salt)
	if err != nil {
		return nil, err
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: parse certificate: %v", ErrCrypto, err)
	}
	return encodeBundle(transportKey, cert)
}

// buildCertificate assembles and signs an X.509 v3 certificate. crypto/x509
// cannot be used here: it rejects serials over 20 octets and does not sign
// with Ed448.
func buildCertificate(serial *big.Int, pub ed25519.PublicKey, notBefore, notAfter time.Time, sign func(tbs []byte) []byte) ([]byte, error) {
	name, err := encasn1.Marshal(pkix.Name{CommonName: CertName}.ToRDNSequence())
	if err != nil {
		return nil, fmt.Errorf("%w: marshal name: %v", ErrCrypto, err)
	}
	spki, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal public key: %v", ErrCrypto, err)
	}
	algorithm := func(b *cryptobyte.Builder) {
		b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(oidSignatureEd448)
		})
	}

	var tb cryptobyte.Builder
	tb.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1(cbasn1.Tag(0).Constructed().ContextSpecific(), func(b *cryptobyte.Builder) {
			b.AddASN1Int64(2) // v3
		})
		b.AddASN1BigInt(serial)
		algorithm(b)
		b.AddBytes(name)
		b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1UTCTime(notBefore.UTC().Truncate(time.Second))
			b.AddASN1UTCTime(notAfter.UTC().Truncate(time.Second))
		})
		b.AddBytes(name)
		b.AddBytes(spki)
	})
	tbs, err := tb.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: build certificate: %v", ErrCrypto, err)
	}

	signature := sign(tbs)
	var cb cryptobyte.Builder
	cb.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddBytes(tbs)
		algorithm(b)
		b.AddASN1BitString(signature)
	})
	der, err := cb.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: sign certificate: %v", ErrCrypto, err)
	}
	return der, nil
}

// VerifyCertificate reports whether cert was signed by the key derived from
// password and the certificate's own serial. Every failure is logged and
// reported as false.
func VerifyCertificate(password []byte, cert *x509.Certificate) bool {
	if err := verifyCertificate(password, cert); err != nil {
		log.Printf("peer certificate rejected: %v", err)
		return false
	}
	return true
}

func verifyCertificate(password []byte, cert *x509.Certificate) error {
	if cert == nil || cert.SerialNumber == nil {
		return errMalformedCert
	}
	salt, err := serialSalt(cert.SerialNumber)
	if err != nil {
		return err
	}
	defer memguard.WipeBytes(salt)

	oid, err := signatureAlgorithm(cert.Raw)
	if err != nil {
		return err
	}
	if !oid.Equal(oidSignatureEd448) {
		return fmt.Errorf("%w (got %v)", errUnknownAlgorithm, oid)
	}
	if len(cert.Signature) != ed448.SignatureSize {
		return fmt.Errorf("%w: %d bytes", errSignatureFormat, len(cert.Signature))
	}

	return withSigningKey(password, salt, func(key ed448.PrivateKey) error {
		pub, ok := key.Public().(ed448.PublicKey)
		if !ok {
			return ErrKeyConstruction
		}
		if !ed448.Verify(pub, cert.RawTBSCertificate, cert.Signature, "") {
			return errBadSignature
		}
		return nil
	})
}

// serialSalt re-encodes a serial number as the fixed-width salt.
func serialSalt(serial *big.Int) ([]byte, error) {
	if serial.Sign() < 0 || (serial.BitLen()+7)/8 > SaltSize {
		return nil, fmt.Errorf("%w: %d bytes, want %d", errSerialSize, len(serial.Bytes()), SaltSize)
	}
	return serial.FillBytes(make([]byte, SaltSize)), nil
}

// signatureAlgorithm returns the outer signature algorithm of a DER
// certificate; crypto/x509 reports unknown algorithms without their OID.
func signatureAlgorithm(raw []byte) (encasn1.ObjectIdentifier, error) {
	input := cryptobyte.String(raw)
	var cert, algorithm cryptobyte.String
	var oid encasn1.ObjectIdentifier
	if !input.ReadASN1(&cert, cbasn1.SEQUENCE) ||
		!cert.SkipASN1(cbasn1.SEQUENCE) ||
		!cert.ReadASN1(&algorithm, cbasn1.SEQUENCE) ||
		!algorithm.ReadASN1ObjectIdentifier(&oid) {
		return nil, errMalformedCert
	}
	return oid, nil
}
