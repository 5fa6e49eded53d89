package dnscrypt

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/openalias/dnscrypt/internal/txtenc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// signedCert returns a certificate with the given parameters signed by priv.
func signedCert(
	tb testing.TB,
	priv ed25519.PrivateKey,
	esVersion CryptoConstruction,
	serial uint32,
	notBefore, notAfter time.Time,
) (cert *Cert) {
	tb.Helper()

	cert = &Cert{
		Serial:    serial,
		EsVersion: esVersion,
		NotBefore: uint32(notBefore.Unix()),
		NotAfter:  uint32(notAfter.Unix()),
	}

	_, err := rand.Read(cert.ResolverPk[:])
	require.NoError(tb, err)

	_, err = rand.Read(cert.ClientMagic[:])
	require.NoError(tb, err)

	cert.Sign(priv)

	return cert
}

// certAnswer builds a TXT answer message carrying the given certificates.
func certAnswer(tb testing.TB, certs ...*Cert) (r *dns.Msg) {
	tb.Helper()

	r = &dns.Msg{}
	r.SetQuestion("2.dnscrypt-cert.example.com.", dns.TypeTXT)
	r.Response = true

	for _, cert := range certs {
		b, err := cert.Serialize()
		require.NoError(tb, err)

		r.Answer = append(r.Answer, &dns.TXT{
			Hdr: dns.RR_Header{
				Name:   r.Question[0].Name,
				Rrtype: dns.TypeTXT,
				Class:  dns.ClassINET,
				Ttl:    300,
			},
			Txt: []string{txtenc.Pack(b)},
		})
	}

	return r
}

func TestClient_selectCert(t *testing.T) {
	t.Parallel()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	now := time.Now()
	valid := func(esVersion CryptoConstruction, serial uint32) (cert *Cert) {
		return signedCert(t, priv, esVersion, serial, now.Add(-time.Hour), now.Add(time.Hour))
	}

	c := &Client{}
	conf := &ResolverConfig{
		ProviderName: "2.dnscrypt-cert.example.com",
		PublicKey:    pub,
	}

	t.Run("single", func(t *testing.T) {
		cert, sErr := c.selectCert(conf, certAnswer(t, valid(XSalsa20Poly1305, 1)))
		require.NoError(t, sErr)

		assert.EqualValues(t, 1, cert.Serial)
	})

	t.Run("higher_serial_wins", func(t *testing.T) {
		r := certAnswer(t, valid(XSalsa20Poly1305, 1), valid(XSalsa20Poly1305, 3))
		cert, sErr := c.selectCert(conf, r)
		require.NoError(t, sErr)

		assert.EqualValues(t, 3, cert.Serial)
	})

	t.Run("stronger_construction_wins", func(t *testing.T) {
		r := certAnswer(t, valid(XChacha20Poly1305, 1), valid(XSalsa20Poly1305, 9))
		cert, sErr := c.selectCert(conf, r)
		require.NoError(t, sErr)

		assert.Equal(t, XChacha20Poly1305, cert.EsVersion)
		assert.EqualValues(t, 1, cert.Serial)
	})

	t.Run("expired_skipped", func(t *testing.T) {
		expired := signedCert(
			t,
			priv,
			XSalsa20Poly1305,
			7,
			now.Add(-2*time.Hour),
			now.Add(-time.Hour),
		)
		r := certAnswer(t, expired, valid(XSalsa20Poly1305, 1))

		cert, sErr := c.selectCert(conf, r)
		require.NoError(t, sErr)

		assert.EqualValues(t, 1, cert.Serial)
	})

	t.Run("all_expired", func(t *testing.T) {
		expired := signedCert(
			t,
			priv,
			XSalsa20Poly1305,
			7,
			now.Add(-2*time.Hour),
			now.Add(-time.Hour),
		)

		_, sErr := c.selectCert(conf, certAnswer(t, expired))
		assert.ErrorIs(t, sErr, ErrInvalidDate)
	})

	t.Run("forged_signature", func(t *testing.T) {
		forged := valid(XSalsa20Poly1305, 1)
		forged.Signature[0] ^= 0xff

		_, sErr := c.selectCert(conf, certAnswer(t, forged))
		assert.ErrorIs(t, sErr, ErrInvalidCertSignature)
	})

	t.Run("not_yet_valid", func(t *testing.T) {
		future := signedCert(
			t,
			priv,
			XSalsa20Poly1305,
			7,
			now.Add(time.Hour),
			now.Add(2*time.Hour),
		)

		_, sErr := c.selectCert(conf, certAnswer(t, future))
		assert.ErrorIs(t, sErr, ErrInvalidDate)
	})

	t.Run("no_txt_records", func(t *testing.T) {
		r := &dns.Msg{}
		r.SetQuestion("2.dnscrypt-cert.example.com.", dns.TypeTXT)
		r.Response = true

		_, sErr := c.selectCert(conf, r)
		assert.ErrorIs(t, sErr, ErrNoCertificate)
	})

	t.Run("garbage_txt", func(t *testing.T) {
		r := &dns.Msg{}
		r.SetQuestion("2.dnscrypt-cert.example.com.", dns.TypeTXT)
		r.Response = true
		r.Answer = append(r.Answer, &dns.TXT{
			Hdr: dns.RR_Header{
				Name:   r.Question[0].Name,
				Rrtype: dns.TypeTXT,
				Class:  dns.ClassINET,
			},
			Txt: []string{"not a certificate"},
		})

		_, sErr := c.selectCert(conf, r)
		assert.ErrorIs(t, sErr, ErrCertTooShort)
	})
}

func TestCertTTL(t *testing.T) {
	t.Parallel()

	now := time.Now()
	cert := &Cert{NotAfter: uint32(now.Add(time.Hour).Unix())}

	ttl := certTTL(cert, now)
	assert.InDelta(t, time.Hour, ttl, float64(time.Second))

	cert.NotAfter = uint32(now.Add(-time.Hour).Unix())
	assert.Equal(t, time.Duration(0), certTTL(cert, now))
}
