package dnscrypt

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubNonceSource is a [NonceSource] that always writes the same bytes,
// making envelopes deterministic in tests.
type stubNonceSource struct {
	half []byte
}

// type check
var _ NonceSource = (*stubNonceSource)(nil)

// NonceHalf implements the [NonceSource] interface for *stubNonceSource.
func (s *stubNonceSource) NonceHalf(dst []byte) { copy(dst, s.half) }

// testSession returns the two ends of an encryption session: the client
// query codec and the server secret key it encrypts to.
func testSession(
	tb testing.TB,
	esVersion CryptoConstruction,
) (q *EncryptedQuery, sharedKey [sharedKeySize]byte, serverSk [keySize]byte) {
	tb.Helper()

	serverSk, serverPk := generateRandomKeyPair()
	clientSk, clientPk := generateRandomKeyPair()

	sharedKey, err := ComputeSharedKey(esVersion, &clientSk, &serverPk)
	require.NoError(tb, err)

	q = &EncryptedQuery{
		EsVersion:   esVersion,
		ClientMagic: [clientMagicSize]byte{'t', 'e', 's', 't', 'm', 'g', 'i', 'c'},
		ClientPk:    clientPk,
	}

	return q, sharedKey, serverSk
}

func TestEncryptedQuery_roundTrip(t *testing.T) {
	t.Parallel()

	for _, esVersion := range []CryptoConstruction{XSalsa20Poly1305, XChacha20Poly1305} {
		esVersion := esVersion
		t.Run(esVersion.String(), func(t *testing.T) {
			t.Parallel()

			q, sharedKey, serverSk := testSession(t, esVersion)

			packet := bytes.Repeat([]byte{0x42}, 48)
			query, err := q.Encrypt(packet, sharedKey, DefaultNonceSource)
			require.NoError(t, err)

			srv := &EncryptedQuery{
				EsVersion:   esVersion,
				ClientMagic: q.ClientMagic,
			}
			decrypted, dErr := srv.Decrypt(query, serverSk)
			require.NoError(t, dErr)

			assert.Equal(t, packet, decrypted)
			assert.Equal(t, q.ClientPk, srv.ClientPk)
			assert.Equal(t, q.Nonce, srv.Nonce)
		})
	}
}

// TestEncryptedQuery_layout pins the deterministic parts of the envelope
// format so that protocol drift is caught: the client magic, the ephemeral
// public key, the client nonce half, and the exact padded envelope size for
// a short query.
func TestEncryptedQuery_layout(t *testing.T) {
	t.Parallel()

	q, sharedKey, _ := testSession(t, XSalsa20Poly1305)

	nonceHalf := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	src := &stubNonceSource{half: nonceHalf}

	packet := bytes.Repeat([]byte{0xcc}, 12)
	query, err := q.Encrypt(packet, sharedKey, src)
	require.NoError(t, err)

	// <client-magic> <client-pk> <client-nonce> then the box: a 16-byte tag
	// and the 256 bytes of padded plaintext.
	wantLen := clientMagicSize + keySize + nonceSize/2 + 16 + minQuerySize
	require.Len(t, query, wantLen)

	assert.Equal(t, q.ClientMagic[:], query[:8])
	assert.Equal(t, q.ClientPk[:], query[8:40])
	assert.Equal(t, nonceHalf, query[40:52])

	// The resolver half of the query nonce stays zero on the outbound leg.
	wantNonce := [nonceSize]byte{}
	copy(wantNonce[:], nonceHalf)
	assert.Equal(t, wantNonce, q.Nonce)

	// Identical inputs must produce an identical envelope.
	q2 := &EncryptedQuery{
		EsVersion:   q.EsVersion,
		ClientMagic: q.ClientMagic,
		ClientPk:    q.ClientPk,
	}
	query2, err := q2.Encrypt(packet, sharedKey, src)
	require.NoError(t, err)

	assert.Equal(t, query, query2)
}

func TestEncryptedQuery_Encrypt_tooLarge(t *testing.T) {
	t.Parallel()

	q, sharedKey, _ := testSession(t, XSalsa20Poly1305)

	packet := make([]byte, maxQueryLen)
	_, err := q.Encrypt(packet, sharedKey, DefaultNonceSource)
	assert.ErrorIs(t, err, ErrQueryTooLarge)
}

func TestEncryptedQuery_Decrypt_errors(t *testing.T) {
	t.Parallel()

	q, sharedKey, serverSk := testSession(t, XSalsa20Poly1305)

	packet := bytes.Repeat([]byte{0x42}, 48)
	query, err := q.Encrypt(packet, sharedKey, DefaultNonceSource)
	require.NoError(t, err)

	srv := &EncryptedQuery{
		EsVersion:   XSalsa20Poly1305,
		ClientMagic: q.ClientMagic,
	}

	t.Run("too_short", func(t *testing.T) {
		_, dErr := srv.Decrypt(query[:clientMagicSize+keySize], serverSk)
		assert.ErrorIs(t, dErr, ErrTooShort)
	})

	t.Run("bad_client_magic", func(t *testing.T) {
		bad := append([]byte(nil), query...)
		bad[0] ^= 0xff

		_, dErr := srv.Decrypt(bad, serverSk)
		assert.ErrorIs(t, dErr, ErrInvalidClientMagic)
	})

	t.Run("tampered_ciphertext", func(t *testing.T) {
		bad := append([]byte(nil), query...)
		bad[len(bad)-1] ^= 0x01

		_, dErr := srv.Decrypt(bad, serverSk)
		assert.ErrorIs(t, dErr, ErrInvalidQuery)
	})
}
