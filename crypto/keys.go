package crypto

import (
	"crypto/sha512"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
	"github.com/cloudflare/circl/sign/ed448"
	"golang.org/x/crypto/pbkdf2"
)

var (
	// ErrCrypto is wrapped by every failure of this package.
	ErrCrypto = errors.New("crypto error")

	ErrKeyDerivation   = fmt.Errorf("%w: key derivation failed", ErrCrypto)
	ErrKeyConstruction = fmt.Errorf("%w: signing key construction failed", ErrCrypto)
)

// DeriveSigningKey stretches password and salt into an Ed448 private key.
// The result depends only on its inputs. The caller owns the returned key
// and must wipe it with memguard.WipeBytes once done.
func DeriveSigningKey(password, salt []byte) (ed448.PrivateKey, error) {
	seed := pbkdf2.Key(password, salt, PBKDFIterations, ed448.SeedSize, sha512.New)
	defer memguard.WipeBytes(seed)
	if len(seed) != ed448.SeedSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrKeyDerivation, len(seed), ed448.SeedSize)
	}
	key := ed448.NewKeyFromSeed(seed)
	if len(key) != ed448.PrivateKeySize {
		memguard.WipeBytes(key)
		return nil, ErrKeyConstruction
	}
	return key, nil
}

// withSigningKey derives the signing key, hands it to fn and wipes it on
// every return path.
func withSigningKey(password, salt []byte, fn func(ed448.PrivateKey) error) error {
	key, err := DeriveSigningKey(password, salt)
	if err != nil {
		return err
	}
	defer memguard.WipeBytes(key)
	return fn(key)
}
