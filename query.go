package dnscrypt

import (
	"bytes"

	"github.com/openalias/dnscrypt/internal/xsecretbox"
	"golang.org/x/crypto/nacl/secretbox"
)

// EncryptedQuery is the client query envelope codec:
//
//	<dnscrypt-query> ::= <client-magic> <client-pk> <client-nonce>
//	                     <encrypted-query>
//	<encrypted-query> ::= AE(<shared-key>, <client-nonce> <client-nonce-pad>,
//	                      <client-query> <client-query-pad>)
//
// It is a pure transform: all of its state is the parameters of a single
// query.
type EncryptedQuery struct {
	// EsVersion is the construction to encrypt with.
	EsVersion CryptoConstruction

	// ClientMagic is the client magic of the certificate the query is built
	// from.
	ClientMagic [clientMagicSize]byte

	// ClientPk is the client's ephemeral public key.
	ClientPk [keySize]byte

	// Nonce is the full query nonce: the client half followed by zero bytes.
	// Encrypt fills the client half from its nonce source; the same value
	// must be presented to [EncryptedResponse.Decrypt] to match the response
	// against the query.
	Nonce [nonceSize]byte
}

// Encrypt encrypts the DNS packet and returns the full query envelope ready
// to be sent.  EsVersion, ClientMagic and ClientPk must be set; the client
// half of the nonce is taken from src.
func (q *EncryptedQuery) Encrypt(
	packet []byte,
	sharedKey [sharedKeySize]byte,
	src NonceSource,
) (query []byte, err error) {
	src.NonceHalf(q.Nonce[:nonceSize/2])

	// Unencrypted part of the query:
	// <client-magic> <client-pk> <client-nonce>
	query = append(query, q.ClientMagic[:]...)
	query = append(query, q.ClientPk[:]...)
	query = append(query, q.Nonce[:nonceSize/2]...)

	// <client-query> <client-query-pad>
	padded := pad(packet)

	// <encrypted-query>
	switch q.EsVersion {
	case XChacha20Poly1305:
		query = xsecretbox.Seal(query, q.Nonce[:], padded, sharedKey[:])
	case XSalsa20Poly1305:
		query = secretbox.Seal(query, padded, &q.Nonce, &sharedKey)
	default:
		return nil, ErrEsVersion
	}

	if len(query) > maxQueryLen {
		return nil, ErrQueryTooLarge
	}

	return query, nil
}

// Decrypt decrypts a query envelope and returns the padded-stripped DNS
// packet.  It is the server-side half of the codec: serverSecretKey is the
// resolver's short-term secret key.  ClientMagic and EsVersion must be set;
// ClientPk and Nonce are filled from the envelope.
func (q *EncryptedQuery) Decrypt(
	query []byte,
	serverSecretKey [keySize]byte,
) (packet []byte, err error) {
	headerLen := clientMagicSize + keySize + nonceSize/2
	if len(query) < headerLen+xsecretbox.TagSize+minDNSPacketSize {
		return nil, ErrTooShort
	}

	// <client-magic>
	if !bytes.Equal(query[:clientMagicSize], q.ClientMagic[:]) {
		return nil, ErrInvalidClientMagic
	}

	// <client-pk>
	idx := clientMagicSize
	copy(q.ClientPk[:], query[idx:idx+keySize])

	sharedKey, err := ComputeSharedKey(q.EsVersion, &serverSecretKey, &q.ClientPk)
	if err != nil {
		return nil, err
	}

	// <client-nonce>, followed by zero bytes on the query leg.
	idx += keySize
	q.Nonce = [nonceSize]byte{}
	copy(q.Nonce[:nonceSize/2], query[idx:idx+nonceSize/2])

	// <encrypted-query>
	idx += nonceSize / 2
	encrypted := query[idx:]
	switch q.EsVersion {
	case XChacha20Poly1305:
		packet, err = xsecretbox.Open(nil, q.Nonce[:], encrypted, sharedKey[:])
		if err != nil {
			return nil, ErrInvalidQuery
		}
	case XSalsa20Poly1305:
		var ok bool
		packet, ok = secretbox.Open(nil, encrypted, &q.Nonce, &sharedKey)
		if !ok {
			return nil, ErrInvalidQuery
		}
	default:
		return nil, ErrEsVersion
	}

	return unpad(packet)
}
