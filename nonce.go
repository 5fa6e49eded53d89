package dnscrypt

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// NonceSource generates the client halves of query nonces.  A nonce half
// must never repeat for the same session key, since nonce reuse breaks the
// confidentiality of the authenticated encryption.
//
// The default source is used unless substituted in tests.
type NonceSource interface {
	// NonceHalf fills dst, which is nonceSize/2 bytes long, with the client
	// half of a fresh nonce.
	NonceHalf(dst []byte)
}

// DefaultNonceSource is the nonce source used when none is configured.
var DefaultNonceSource NonceSource = systemNonceSource{}

// systemNonceSource is the default [NonceSource].  The first 8 bytes of the
// half are a big-endian nanosecond timestamp, so that the client can discard
// responses to queries sent too long ago, and the remaining bytes are
// cryptographically random.
type systemNonceSource struct{}

// type check
var _ NonceSource = systemNonceSource{}

// NonceHalf implements the [NonceSource] interface for systemNonceSource.
func (systemNonceSource) NonceHalf(dst []byte) {
	binary.BigEndian.PutUint64(dst[:8], uint64(time.Now().UnixNano()))
	_, _ = rand.Read(dst[8:])
}
