package dnscrypt

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"time"
)

// Cert is a DNSCrypt resolver certificate: a signed, time-bounded credential
// binding the resolver's short-term encryption key to its long-term identity.
//
// The wire layout, without extensions, is 124 bytes:
//
//	<cert> ::= <cert-magic> <es-version> <protocol-minor-version> <signature>
//	           <resolver-pk> <client-magic> <serial> <ts-start> <ts-end>
//	           <extensions>
type Cert struct {
	// Serial is a 4-byte serial number in big-endian format.  If more than
	// one certificate is valid, the client must prefer the certificate with
	// the higher serial number.
	Serial uint32

	// EsVersion is the cryptographic construction to use with this
	// certificate.
	EsVersion CryptoConstruction

	// Signature is the Ed25519 signature of (<resolver-pk> <client-magic>
	// <serial> <ts-start> <ts-end> <extensions>) made with the provider
	// secret key.
	Signature [ed25519.SignatureSize]byte

	// ResolverPk is the resolver's short-term public key used to encrypt and
	// decrypt queries.
	ResolverPk [keySize]byte

	// ResolverSk is the resolver's short-term secret key.  It is only used
	// by the server side and is never serialized.
	ResolverSk [keySize]byte

	// ClientMagic is the first 8 bytes of every client query built from this
	// certificate.
	ClientMagic [clientMagicSize]byte

	// NotBefore is the date the certificate is valid from, as a big-endian
	// 4-byte unsigned Unix timestamp.
	NotBefore uint32

	// NotAfter is the date the certificate is valid until, inclusive, as a
	// big-endian 4-byte unsigned Unix timestamp.
	NotAfter uint32
}

// Serialize returns the serialized form of the certificate.
func (c *Cert) Serialize() (b []byte, err error) {
	if c.EsVersion == UndefinedConstruction {
		return nil, ErrEsVersion
	}

	if c.NotBefore >= c.NotAfter {
		return nil, ErrInvalidDate
	}

	b = make([]byte, certSize)

	// <cert-magic>
	copy(b[:4], certMagic[:])
	// <es-version>
	binary.BigEndian.PutUint16(b[4:6], uint16(c.EsVersion))
	// <protocol-minor-version> is always zero.
	// <signature>
	copy(b[8:72], c.Signature[:])
	// Signed fields.
	c.writeSigned(b[72:])

	return b, nil
}

// Deserialize parses a certificate from its serialized form.  Any payload
// shorter than the fixed layout is rejected; extension bytes past the fixed
// layout are ignored.
func (c *Cert) Deserialize(b []byte) (err error) {
	if len(b) < certSize {
		return ErrCertTooShort
	}

	// <cert-magic>
	if !bytes.Equal(b[:4], certMagic[:]) {
		return ErrCertMagic
	}

	// <es-version>
	switch esVersion := binary.BigEndian.Uint16(b[4:6]); esVersion {
	case uint16(XSalsa20Poly1305):
		c.EsVersion = XSalsa20Poly1305
	case uint16(XChacha20Poly1305):
		c.EsVersion = XChacha20Poly1305
	default:
		return ErrEsVersion
	}

	// Skip b[6:8], <protocol-minor-version>.
	// <signature>
	copy(c.Signature[:], b[8:72])
	// <resolver-pk>
	copy(c.ResolverPk[:], b[72:104])
	// <client-magic>
	copy(c.ClientMagic[:], b[104:112])
	// <serial>
	c.Serial = binary.BigEndian.Uint32(b[112:116])
	// <ts-start> <ts-end>
	c.NotBefore = binary.BigEndian.Uint32(b[116:120])
	c.NotAfter = binary.BigEndian.Uint32(b[120:124])

	return nil
}

// VerifyDate reports whether the certificate is valid at the given moment.
func (c *Cert) VerifyDate(now time.Time) (ok bool) {
	if c.NotBefore >= c.NotAfter {
		return false
	}

	ts := uint32(now.Unix())

	return ts >= c.NotBefore && ts <= c.NotAfter
}

// VerifySignature reports whether the certificate is properly signed with the
// provider key publicKey.
func (c *Cert) VerifySignature(publicKey ed25519.PublicKey) (ok bool) {
	b := make([]byte, certSize-72)
	c.writeSigned(b)

	return ed25519.Verify(publicKey, b, c.Signature[:])
}

// Sign signs the certificate fields with the provider secret key and stores
// the signature.
func (c *Cert) Sign(privateKey ed25519.PrivateKey) {
	b := make([]byte, certSize-72)
	c.writeSigned(b)
	copy(c.Signature[:], ed25519.Sign(privateKey, b))
}

// type check
var _ fmt.Stringer = (*Cert)(nil)

// String implements the [fmt.Stringer] interface for *Cert.
func (c *Cert) String() (s string) {
	return fmt.Sprintf(
		"certificate serial=%d not_before=%s not_after=%s es_version=%s",
		c.Serial,
		time.Unix(int64(c.NotBefore), 0),
		time.Unix(int64(c.NotAfter), 0),
		c.EsVersion,
	)
}

// writeSigned writes the signed fields (<resolver-pk> <client-magic> <serial>
// <ts-start> <ts-end>) into dst, which must be at least 52 bytes long.
func (c *Cert) writeSigned(dst []byte) {
	copy(dst[:32], c.ResolverPk[:])
	copy(dst[32:40], c.ClientMagic[:])
	binary.BigEndian.PutUint32(dst[40:44], c.Serial)
	binary.BigEndian.PutUint32(dst[44:48], c.NotBefore)
	binary.BigEndian.PutUint32(dst[48:52], c.NotAfter)
}
