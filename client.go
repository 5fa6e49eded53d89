package dnscrypt

import (
	"crypto/ed25519"
	"log/slog"
	"net"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/miekg/dns"
)

// defaultTimeout is the timeout used for certificate lookups and query
// exchanges when none is configured.
const defaultTimeout = 10 * time.Second

// Client is a low-level DNSCrypt client bound to a single network.  Its zero
// value is usable: UDP transport, default timeout, system nonce source, and a
// discarding logger.
type Client struct {
	// Logger is used for debug logging of certificate discovery.  If nil,
	// logs are discarded.
	Logger *slog.Logger

	// Nonces generates client nonce halves.  If nil, the system source is
	// used.  Substituting it is only intended for tests.
	Nonces NonceSource

	// Net is the network to use, [NetworkUDP] or [NetworkTCP].  Empty means
	// UDP.
	Net string

	// Timeout is the read/write timeout for all network operations.
	Timeout time.Duration
}

// ResolverInfo is the live session with one resolver: the validated
// certificate together with the key material needed to encrypt queries to it
// and authenticate responses from it.
type ResolverInfo struct {
	// Cert is the validated resolver certificate.
	Cert *Cert

	// ServerPublicKey is the pinned provider key the certificate was
	// validated against.
	ServerPublicKey ed25519.PublicKey

	// ProviderName is the certificate provider name.
	ProviderName string

	// ServerAddress is the resolver address the session is bound to.
	ServerAddress string

	// SecretKey and PublicKey are the client's ephemeral key pair.  They are
	// regenerated whenever the certificate changes and are never persisted.
	SecretKey [keySize]byte
	PublicKey [keySize]byte

	// SharedKey is the session key derived from SecretKey and the
	// certificate's short-term resolver key.
	SharedKey [sharedKeySize]byte
}

// expired reports whether the session certificate is past its validity
// window at the given moment.
func (ri *ResolverInfo) expired(now time.Time) (ok bool) {
	return !ri.Cert.VerifyDate(now)
}

// DialStamp establishes a session with the resolver described by an sdns://
// stamp string.  See [Client.DialConfig].
func (c *Client) DialStamp(stampStr string) (ri *ResolverInfo, err error) {
	conf, err := ConfigFromStamp(stampStr)
	if err != nil {
		return nil, err
	}

	return c.DialConfig(conf)
}

// DialConfig fetches and validates the resolver certificate, generates a
// fresh ephemeral key pair, and derives the session key.  The returned info
// is what [Client.Exchange] needs to encrypt queries and decrypt responses.
func (c *Client) DialConfig(conf *ResolverConfig) (ri *ResolverInfo, err error) {
	if err = conf.validate(); err != nil {
		return nil, err
	}

	cert, addr, err := c.fetchCert(conf)
	if err != nil {
		return nil, err
	}

	ri = &ResolverInfo{
		Cert:            cert,
		ServerPublicKey: conf.PublicKey,
		ProviderName:    conf.ProviderName,
		ServerAddress:   addr,
	}
	ri.SecretKey, ri.PublicKey = generateRandomKeyPair()

	ri.SharedKey, err = ComputeSharedKey(cert.EsVersion, &ri.SecretKey, &cert.ResolverPk)
	if err != nil {
		return nil, err
	}

	return ri, nil
}

// Exchange performs one encrypted DNS exchange with the resolver.  It opens
// a new connection for every call, so prefer [Client.ExchangeConn] when
// reusing a TCP connection.
func (c *Client) Exchange(m *dns.Msg, ri *ResolverInfo) (resp *dns.Msg, err error) {
	conn, err := net.Dial(c.network(), ri.ServerAddress)
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.WithDeferred(err, conn.Close()) }()

	return c.ExchangeConn(conn, m, ri)
}

// ExchangeConn performs one encrypted DNS exchange over conn.  The response
// is authenticated against the session key and the query nonce; any response
// that fails authentication or echoes a different nonce is rejected and
// never returned.
func (c *Client) ExchangeConn(
	conn net.Conn,
	m *dns.Msg,
	ri *ResolverInfo,
) (resp *dns.Msg, err error) {
	q := EncryptedQuery{
		EsVersion:   ri.Cert.EsVersion,
		ClientMagic: ri.Cert.ClientMagic,
		ClientPk:    ri.PublicKey,
	}

	packet, err := m.Pack()
	if err != nil {
		return nil, err
	}

	query, err := q.Encrypt(packet, ri.SharedKey, c.nonces())
	if err != nil {
		return nil, err
	}

	if err = c.writeQuery(conn, query); err != nil {
		return nil, err
	}

	b, err := c.readResponse(conn)
	if err != nil {
		return nil, err
	}

	r := EncryptedResponse{EsVersion: ri.Cert.EsVersion}
	packet, err = r.Decrypt(b, ri.SharedKey, q.Nonce)
	if err != nil {
		return nil, err
	}

	resp = &dns.Msg{}
	if err = resp.Unpack(packet); err != nil {
		return nil, err
	}

	if resp.Id != m.Id {
		return nil, dns.ErrId
	}

	return resp, nil
}

// writeQuery writes the query envelope to conn, length-prefixed on TCP.
func (c *Client) writeQuery(conn net.Conn, query []byte) (err error) {
	_ = conn.SetWriteDeadline(time.Now().Add(c.timeout()))

	if _, ok := conn.(*net.TCPConn); ok {
		return writePrefixed(query, conn)
	}

	_, err = conn.Write(query)

	return err
}

// readResponse reads the response envelope from conn, length-prefixed on
// TCP.
func (c *Client) readResponse(conn net.Conn) (b []byte, err error) {
	_ = conn.SetReadDeadline(time.Now().Add(c.timeout()))

	if _, ok := conn.(*net.TCPConn); ok {
		return readPrefixed(conn)
	}

	b = make([]byte, maxQueryLen)
	n, err := conn.Read(b)
	if err != nil {
		return nil, err
	}

	return b[:n], nil
}

// timeout returns the timeout to use for network operations, so that a
// zero-value Client never blocks forever on a silent resolver.
func (c *Client) timeout() (timeout time.Duration) {
	if c.Timeout > 0 {
		return c.Timeout
	}

	return defaultTimeout
}

// network returns the network to use for connections.
func (c *Client) network() (network string) {
	if c.Net == NetworkTCP {
		return NetworkTCP
	}

	return NetworkUDP
}

// logger returns the logger to use.
func (c *Client) logger() (l *slog.Logger) {
	if c.Logger != nil {
		return c.Logger
	}

	return slogutil.NewDiscardLogger()
}

// nonces returns the nonce source to use.
func (c *Client) nonces() (src NonceSource) {
	if c.Nonces != nil {
		return c.Nonces
	}

	return DefaultNonceSource
}

// now returns the current time used for certificate validation.
func (c *Client) now() (now time.Time) { return time.Now() }
