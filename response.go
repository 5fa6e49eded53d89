package dnscrypt

import (
	"bytes"

	"github.com/openalias/dnscrypt/internal/xsecretbox"
	"golang.org/x/crypto/nacl/secretbox"
)

// EncryptedResponse is the resolver response envelope codec:
//
//	<dnscrypt-response> ::= <resolver-magic> <nonce> <encrypted-response>
//	<encrypted-response> ::= AE(<shared-key>, <nonce>,
//	                         <resolver-response> <resolver-response-pad>)
//	<nonce> ::= <client-nonce> <resolver-nonce>
//
// Like [EncryptedQuery] it is a pure transform with no mutable state beyond
// the parameters of a single exchange.
type EncryptedResponse struct {
	// EsVersion is the construction to decrypt with.
	EsVersion CryptoConstruction

	// Nonce is the full response nonce.  On the client side Decrypt fills it
	// from the envelope after checking that the client half echoes the
	// query.  On the server side Encrypt expects the client half to be set
	// and generates the resolver half.
	Nonce [nonceSize]byte
}

// Decrypt decrypts a response envelope and returns the padding-stripped DNS
// packet.  expectedNonce is the nonce of the query this response must answer:
// a response whose client nonce half differs is rejected with
// [ErrNonceMismatch] and must be treated as if no response was received.
func (r *EncryptedResponse) Decrypt(
	response []byte,
	sharedKey [sharedKeySize]byte,
	expectedNonce [nonceSize]byte,
) (packet []byte, err error) {
	headerLen := resolverMagicSize + nonceSize
	if len(response) < headerLen+xsecretbox.TagSize+minDNSPacketSize {
		return nil, ErrTooShort
	}

	// <resolver-magic>
	if !bytes.Equal(response[:resolverMagicSize], resolverMagic) {
		return nil, ErrInvalidResolverMagic
	}

	// <nonce> ::= <client-nonce> <resolver-nonce>
	copy(r.Nonce[:], response[resolverMagicSize:resolverMagicSize+nonceSize])
	if !bytes.Equal(r.Nonce[:nonceSize/2], expectedNonce[:nonceSize/2]) {
		return nil, ErrNonceMismatch
	}

	// <encrypted-response>
	encrypted := response[resolverMagicSize+nonceSize:]
	switch r.EsVersion {
	case XChacha20Poly1305:
		packet, err = xsecretbox.Open(nil, r.Nonce[:], encrypted, sharedKey[:])
		if err != nil {
			return nil, ErrInvalidResponse
		}
	case XSalsa20Poly1305:
		var ok bool
		packet, ok = secretbox.Open(nil, encrypted, &r.Nonce, &sharedKey)
		if !ok {
			return nil, ErrInvalidResponse
		}
	default:
		return nil, ErrEsVersion
	}

	return unpad(packet)
}

// Encrypt encrypts the DNS packet and returns the full response envelope.
// It is the server-side half of the codec.  EsVersion must be set and the
// first half of Nonce must carry the client nonce of the query being
// answered; the resolver half is taken from src.
func (r *EncryptedResponse) Encrypt(
	packet []byte,
	sharedKey [sharedKeySize]byte,
	src NonceSource,
) (response []byte, err error) {
	src.NonceHalf(r.Nonce[nonceSize/2:])

	// Unencrypted part of the response:
	// <resolver-magic> <nonce>
	response = append(response, resolverMagic...)
	response = append(response, r.Nonce[:]...)

	// <resolver-response> <resolver-response-pad>
	padded := pad(packet)

	// <encrypted-response>
	switch r.EsVersion {
	case XChacha20Poly1305:
		response = xsecretbox.Seal(response, r.Nonce[:], padded, sharedKey[:])
	case XSalsa20Poly1305:
		response = secretbox.Seal(response, padded, &r.Nonce, &sharedKey)
	default:
		return nil, ErrEsVersion
	}

	return response, nil
}
