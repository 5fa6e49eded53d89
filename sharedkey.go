package dnscrypt

import (
	"crypto/rand"

	"github.com/openalias/dnscrypt/internal/xsecretbox"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

// ComputeSharedKey computes the session key for the given construction from
// the local secret key and the remote public key.  On the client side the
// secret key is the ephemeral one and the public key comes from the resolver
// certificate.  The result must be recomputed whenever either key changes and
// must never be reused across resolvers.
func ComputeSharedKey(
	construction CryptoConstruction,
	secretKey *[keySize]byte,
	publicKey *[keySize]byte,
) (sharedKey [sharedKeySize]byte, err error) {
	switch construction {
	case XChacha20Poly1305:
		return xsecretbox.SharedKey(*secretKey, *publicKey)
	case XSalsa20Poly1305:
		box.Precompute(&sharedKey, publicKey, secretKey)

		return sharedKey, nil
	default:
		return sharedKey, ErrEsVersion
	}
}

// generateRandomKeyPair generates a fresh X25519 key pair for one session.
// The secret key is never persisted.
func generateRandomKeyPair() (secretKey, publicKey [keySize]byte) {
	_, _ = rand.Read(secretKey[:])
	curve25519.ScalarBaseMult(&publicKey, &secretKey)

	return secretKey, publicKey
}
