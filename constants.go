package dnscrypt

import "fmt"

const (
	// minQuerySize is the minimum size of a padded client query.  It must be
	// a multiple of 64 bytes.  Some resolvers, e.g. Quad9, reject queries
	// padded to less than 256 bytes.
	minQuerySize = 256

	// maxQueryLen is the maximum size of an encrypted query envelope.
	maxQueryLen = 4096

	// minDNSPacketSize is the minimum size of a plain DNS packet: a 12-byte
	// header followed by a root question.
	minDNSPacketSize = 12 + 5

	// keySize is the size of X25519 public and secret keys.
	keySize = 32

	// sharedKeySize is the size of the derived session key.
	sharedKeySize = 32

	// clientMagicSize is the size of the client magic, the first bytes of
	// every query envelope.  Two valid certificates cannot share the same
	// client magic.
	clientMagicSize = 8

	// nonceSize is the size of the full nonce.  The client contributes the
	// first half, the resolver contributes the second.
	nonceSize = 24

	// resolverMagicSize is the size of the resolver magic, the first bytes
	// of every response envelope.
	resolverMagicSize = 8

	// certSize is the size of a serialized certificate without extensions.
	certSize = 124
)

var (
	// certMagic is the byte sequence that starts every serialized
	// certificate.
	certMagic = [4]byte{'D', 'N', 'S', 'C'}

	// resolverMagic is the byte sequence that starts every response
	// envelope.
	resolverMagic = []byte{0x72, 0x36, 0x66, 0x6e, 0x76, 0x57, 0x6a, 0x38}
)

// CryptoConstruction is the authenticated-encryption construction advertised
// by a certificate's es-version.
type CryptoConstruction uint16

const (
	// UndefinedConstruction is the zero value, valid only in empty certs.
	UndefinedConstruction CryptoConstruction = iota

	// XSalsa20Poly1305 is the X25519-XSalsa20Poly1305 construction.
	XSalsa20Poly1305 CryptoConstruction = 0x0001

	// XChacha20Poly1305 is the X25519-XChacha20Poly1305 construction.
	XChacha20Poly1305 CryptoConstruction = 0x0002
)

// type check
var _ fmt.Stringer = UndefinedConstruction

// String implements the [fmt.Stringer] interface for CryptoConstruction.
func (c CryptoConstruction) String() (s string) {
	switch c {
	case XSalsa20Poly1305:
		return "XSalsa20Poly1305"
	case XChacha20Poly1305:
		return "XChacha20Poly1305"
	default:
		return "Unknown"
	}
}
