package crypto

import "time"

const (
	// PBKDFIterations is the PBKDF2-HMAC-SHA512 work factor for signing keys.
	PBKDFIterations = 15000

	// SaltSize is the length of the certificate serial, which doubles as the KDF salt.
	SaltSize = 64

	// RandomPasswordSize is the length of the throwaway password used when none is configured.
	RandomPasswordSize = 64
)

const (
	// CertName is the subject and issuer common name of every certificate.
	CertName = "quiccat"

	// CertBackdate moves notBefore into the past to tolerate clock skew.
	CertBackdate = 300 * time.Second

	// CertLifetime is the validity period after issuance.
	CertLifetime = 31536000 * time.Second
)
