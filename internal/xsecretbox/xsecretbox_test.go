package xsecretbox_test

import (
	"crypto/rand"
	"testing"

	"github.com/openalias/dnscrypt/internal/xsecretbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/curve25519"
)

// newTestKeyNonce returns a random key and nonce for sealing.
func newTestKeyNonce(tb testing.TB) (key, nonce []byte) {
	tb.Helper()

	key = make([]byte, xsecretbox.KeySize)
	nonce = make([]byte, xsecretbox.NonceSize)

	_, err := rand.Read(key)
	require.NoError(tb, err)
	_, err = rand.Read(nonce)
	require.NoError(tb, err)

	return key, nonce
}

func TestSealOpen(t *testing.T) {
	t.Parallel()

	key, nonce := newTestKeyNonce(t)

	// Cover lengths around the first-keystream-block boundary at 32 bytes as
	// well as longer messages spanning several blocks.
	for msgLen := 0; msgLen <= 130; msgLen++ {
		message := make([]byte, msgLen)
		_, err := rand.Read(message)
		require.NoError(t, err)

		box := xsecretbox.Seal(nil, nonce, message, key)
		require.Len(t, box, xsecretbox.TagSize+msgLen)

		opened, err := xsecretbox.Open(nil, nonce, box, key)
		require.NoError(t, err)
		assert.Equal(t, message, opened)
	}
}

func TestSeal_append(t *testing.T) {
	t.Parallel()

	key, nonce := newTestKeyNonce(t)

	prefix := []byte("header")
	message := []byte("attack at dawn")

	box := xsecretbox.Seal(prefix, nonce, message, key)
	require.Equal(t, prefix, box[:len(prefix)])

	opened, err := xsecretbox.Open(nil, nonce, box[len(prefix):], key)
	require.NoError(t, err)
	assert.Equal(t, message, opened)
}

func TestOpen_errors(t *testing.T) {
	t.Parallel()

	key, nonce := newTestKeyNonce(t)
	message := []byte("attack at dawn")
	box := xsecretbox.Seal(nil, nonce, message, key)

	t.Run("too_short", func(t *testing.T) {
		_, err := xsecretbox.Open(nil, nonce, box[:xsecretbox.TagSize-1], key)
		assert.ErrorIs(t, err, xsecretbox.ErrInvalidBox)
	})

	t.Run("flipped_bits", func(t *testing.T) {
		for i := range box {
			bad := append([]byte(nil), box...)
			bad[i] ^= 0x01

			_, err := xsecretbox.Open(nil, nonce, bad, key)
			assert.ErrorIs(t, err, xsecretbox.ErrInvalidBox)
		}
	})

	t.Run("wrong_nonce", func(t *testing.T) {
		badNonce := append([]byte(nil), nonce...)
		badNonce[0] ^= 0x01

		_, err := xsecretbox.Open(nil, badNonce, box, key)
		assert.ErrorIs(t, err, xsecretbox.ErrInvalidBox)
	})
}

func TestSharedKey(t *testing.T) {
	t.Parallel()

	var aliceSk, bobSk [xsecretbox.KeySize]byte
	_, err := rand.Read(aliceSk[:])
	require.NoError(t, err)
	_, err = rand.Read(bobSk[:])
	require.NoError(t, err)

	var alicePk, bobPk [xsecretbox.KeySize]byte
	curve25519.ScalarBaseMult(&alicePk, &aliceSk)
	curve25519.ScalarBaseMult(&bobPk, &bobSk)

	aliceShared, err := xsecretbox.SharedKey(aliceSk, bobPk)
	require.NoError(t, err)

	bobShared, err := xsecretbox.SharedKey(bobSk, alicePk)
	require.NoError(t, err)

	assert.Equal(t, aliceShared, bobShared)
}

func TestSharedKey_weakPublicKey(t *testing.T) {
	t.Parallel()

	var sk, zeroPk [xsecretbox.KeySize]byte
	_, err := rand.Read(sk[:])
	require.NoError(t, err)

	_, err = xsecretbox.SharedKey(sk, zeroPk)
	assert.Error(t, err)
}
