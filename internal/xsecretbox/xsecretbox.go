// Package xsecretbox implements the crypto_secretbox_xchacha20poly1305
// construction: XChaCha20 encryption authenticated with a one-time Poly1305
// key taken from the first block of the keystream.  It is the symmetric
// primitive behind the X25519-XChacha20Poly1305 DNSCrypt es-version and is
// wire-compatible with libsodium's crypto_box_curve25519xchacha20poly1305
// after the shared key has been precomputed with [SharedKey].
package xsecretbox

import (
	"crypto/subtle"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/poly1305"
)

const (
	// KeySize is the size of the shared key.
	KeySize = 32

	// NonceSize is the size of the nonce.
	NonceSize = 24

	// TagSize is the size of the Poly1305 authenticator.
	TagSize = poly1305.TagSize
)

// Error is an xsecretbox error.
type Error string

// Error implements the error interface for Error.
func (e Error) Error() (msg string) { return "xsecretbox: " + string(e) }

const (
	// ErrWeakPublicKey means that the key agreement produced an all-zero
	// shared secret, which happens with low-order public keys.
	ErrWeakPublicKey = Error("weak public key")

	// ErrInvalidBox means that the box is too short or its authenticator
	// does not match.
	ErrInvalidBox = Error("box could not be opened")
)

// SharedKey computes the shared key for the given X25519 key pair halves:
// the raw X25519 shared secret is hashed with HChaCha20 and a zero nonce.
func SharedKey(secretKey, publicKey [KeySize]byte) (sharedKey [KeySize]byte, err error) {
	sk, err := curve25519.X25519(secretKey[:], publicKey[:])
	if err != nil {
		return sharedKey, err
	}

	c := byte(0)
	for _, b := range sk {
		c |= b
	}
	if c == 0 {
		return sharedKey, ErrWeakPublicKey
	}

	var zeroNonce [16]byte
	key, err := chacha20.HChaCha20(sk, zeroNonce[:])
	if err != nil {
		return sharedKey, err
	}
	copy(sharedKey[:], key)

	return sharedKey, nil
}

// Seal encrypts and authenticates message with key and nonce and appends the
// result, a Poly1305 tag followed by the ciphertext, to out.
func Seal(out, nonce, message, key []byte) (box []byte) {
	polyKey, stream := keyStreamSetup(nonce, key)

	ret, ciphertext := sliceForAppend(out, TagSize+len(message))
	firstMessageBlock := message
	if len(firstMessageBlock) > 32 {
		firstMessageBlock = firstMessageBlock[:32]
	}

	// The first 32 bytes of the message are XORed with the remainder of the
	// first keystream block, as in crypto_secretbox.
	tagOut := ciphertext[:TagSize]
	ciphertext = ciphertext[TagSize:]
	for i, b := range firstMessageBlock {
		ciphertext[i] = polyKey.rest[i] ^ b
	}

	message = message[len(firstMessageBlock):]
	stream.XORKeyStream(ciphertext[len(firstMessageBlock):], message)

	var tag [TagSize]byte
	poly1305.Sum(&tag, ciphertext, &polyKey.key)
	copy(tagOut, tag[:])

	return ret
}

// Open authenticates and decrypts box with key and nonce and appends the
// plaintext to out.
func Open(out, nonce, box, key []byte) (message []byte, err error) {
	if len(box) < TagSize {
		return nil, ErrInvalidBox
	}

	polyKey, stream := keyStreamSetup(nonce, key)

	var tag [TagSize]byte
	copy(tag[:], box[:TagSize])
	ciphertext := box[TagSize:]
	if !poly1305.Verify(&tag, ciphertext, &polyKey.key) {
		return nil, ErrInvalidBox
	}

	ret, plaintext := sliceForAppend(out, len(ciphertext))
	firstCiphertextBlock := ciphertext
	if len(firstCiphertextBlock) > 32 {
		firstCiphertextBlock = firstCiphertextBlock[:32]
	}
	for i, b := range firstCiphertextBlock {
		plaintext[i] = polyKey.rest[i] ^ b
	}

	ciphertext = ciphertext[len(firstCiphertextBlock):]
	stream.XORKeyStream(plaintext[len(firstCiphertextBlock):], ciphertext)

	return ret, nil
}

// oneTimeKey is the Poly1305 key derived from the first keystream block
// together with the unused remainder of that block.
type oneTimeKey struct {
	key  [32]byte
	rest [32]byte
}

// keyStreamSetup derives the one-time Poly1305 key from the first XChaCha20
// keystream block and returns the cipher positioned at the second block.
func keyStreamSetup(nonce, key []byte) (polyKey *oneTimeKey, stream *chacha20.Cipher) {
	stream, err := chacha20.NewUnauthenticatedCipher(key, nonce)
	if err != nil {
		// Key and nonce sizes are enforced by the callers.
		panic(err)
	}

	var firstBlock [64]byte
	stream.XORKeyStream(firstBlock[:], firstBlock[:])

	polyKey = &oneTimeKey{}
	copy(polyKey.key[:], firstBlock[:32])
	copy(polyKey.rest[:], firstBlock[32:])
	defer zero(firstBlock[:])

	return polyKey, stream
}

// sliceForAppend extends in by n bytes and returns both the updated slice and
// the appended part.
func sliceForAppend(in []byte, n int) (head, tail []byte) {
	if total := len(in) + n; cap(in) >= total {
		head = in[:total]
	} else {
		head = make([]byte, total)
		copy(head, in)
	}
	tail = head[len(in):]

	return head, tail
}

// zero wipes b.
func zero(b []byte) {
	subtle.ConstantTimeCopy(1, b, make([]byte, len(b)))
}
