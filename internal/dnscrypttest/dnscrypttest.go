// Package dnscrypttest provides an in-process DNSCrypt server for tests: it
// publishes its certificate over plain DNS TXT and answers encrypted queries
// over both UDP and TCP on the same loopback port.
package dnscrypttest

import (
	"crypto/ed25519"
	"crypto/rand"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/openalias/dnscrypt"
	"github.com/openalias/dnscrypt/internal/txtenc"
	"golang.org/x/crypto/curve25519"
)

// Handler answers the decrypted DNS queries of a test server.
type Handler func(r *dns.Msg) (resp *dns.Msg)

// DefaultHandler answers every query with a fixed A record.
func DefaultHandler(r *dns.Msg) (resp *dns.Msg) {
	resp = &dns.Msg{}
	resp.SetReply(r)
	resp.Answer = append(resp.Answer, &dns.A{
		Hdr: dns.RR_Header{
			Name:   r.Question[0].Name,
			Rrtype: dns.TypeA,
			Class:  dns.ClassINET,
			Ttl:    300,
		},
		A: net.IPv4(192, 0, 2, 1),
	})

	return resp
}

// Server is a test DNSCrypt server.
type Server struct {
	// Handler answers decrypted queries.  If nil, [DefaultHandler] is used.
	Handler Handler

	// ProviderName is the name the certificate TXT record is served under.
	ProviderName string

	// ProviderKey is the long-term Ed25519 public key clients should pin.
	ProviderKey ed25519.PublicKey

	// Cert is the signed certificate served to clients.  Its ResolverSk
	// field holds the short-term secret key used for decryption.
	Cert *dnscrypt.Cert

	// TruncateUDP makes the server answer every encrypted UDP query with an
	// empty truncated response, forcing clients into the TCP fallback.
	TruncateUDP bool

	// Drop makes the server read and discard everything without answering,
	// so that clients time out.
	Drop bool

	// CorruptResponses makes the server flip one ciphertext byte of every
	// encrypted response, so that clients reject it as unauthenticated.
	CorruptResponses bool

	udpConn *net.UDPConn
	tcpLis  net.Listener

	wg     *sync.WaitGroup
	closed chan struct{}
}

// NewServer creates and starts a test server with a certificate of the given
// construction, valid for an hour.  The returned server is listening on
// loopback, on the same port for UDP and TCP.
func NewServer(providerName string, esVersion dnscrypt.CryptoConstruction) (s *Server, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	cert, err := createCert(esVersion, priv, time.Now())
	if err != nil {
		return nil, err
	}

	s = &Server{
		ProviderName: providerName,
		ProviderKey:  pub,
		Cert:         cert,
		wg:           &sync.WaitGroup{},
		closed:       make(chan struct{}),
	}

	err = s.start()
	if err != nil {
		return nil, err
	}

	return s, nil
}

// createCert generates a short-term key pair and a signed certificate.
func createCert(
	esVersion dnscrypt.CryptoConstruction,
	providerKey ed25519.PrivateKey,
	now time.Time,
) (cert *dnscrypt.Cert, err error) {
	cert = &dnscrypt.Cert{
		Serial:    uint32(now.Unix()),
		EsVersion: esVersion,
		NotBefore: uint32(now.Add(-time.Minute).Unix()),
		NotAfter:  uint32(now.Add(time.Hour).Unix()),
	}

	_, err = rand.Read(cert.ResolverSk[:])
	if err != nil {
		return nil, err
	}
	curve25519.ScalarBaseMult(&cert.ResolverPk, &cert.ResolverSk)

	_, err = rand.Read(cert.ClientMagic[:])
	if err != nil {
		return nil, err
	}

	cert.Sign(providerKey)

	return cert, nil
}

// Config returns a resolver configuration pointing at the test server.
func (s *Server) Config() (conf *dnscrypt.ResolverConfig) {
	return &dnscrypt.ResolverConfig{
		ProviderName: s.ProviderName,
		PublicKey:    s.ProviderKey,
		Addresses:    []string{s.Addr()},
	}
}

// Addr returns the host:port the server listens on.
func (s *Server) Addr() (addr string) { return s.udpConn.LocalAddr().String() }

// Close stops the server and waits for its goroutines to finish.
func (s *Server) Close() (err error) {
	close(s.closed)
	udpErr := s.udpConn.Close()
	tcpErr := s.tcpLis.Close()
	s.wg.Wait()

	if udpErr != nil {
		return udpErr
	}

	return tcpErr
}

// start binds the UDP and TCP listeners and spawns the serving goroutines.
func (s *Server) start() (err error) {
	s.tcpLis, err = net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}

	port := s.tcpLis.Addr().(*net.TCPAddr).Port
	s.udpConn, err = net.ListenUDP("udp", &net.UDPAddr{
		IP:   net.IPv4(127, 0, 0, 1),
		Port: port,
	})
	if err != nil {
		return err
	}

	s.wg.Add(2)
	go s.serveUDP()
	go s.serveTCP()

	return nil
}

// serveUDP reads queries from the UDP socket until it is closed.
func (s *Server) serveUDP() {
	defer s.wg.Done()

	b := make([]byte, dns.MaxMsgSize)
	for {
		n, addr, err := s.udpConn.ReadFromUDP(b)
		if err != nil {
			return
		}

		resp := s.handlePacket(b[:n], true)
		if resp != nil {
			_, _ = s.udpConn.WriteToUDP(resp, addr)
		}
	}
}

// serveTCP accepts TCP connections until the listener is closed.
func (s *Server) serveTCP() {
	defer s.wg.Done()

	for {
		conn, err := s.tcpLis.Accept()
		if err != nil {
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() { _ = conn.Close() }()

			s.serveTCPConn(conn)
		}()
	}
}

// serveTCPConn handles length-prefixed exchanges on one TCP connection.
func (s *Server) serveTCPConn(conn net.Conn) {
	for {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

		b, err := readPrefixed(conn)
		if err != nil {
			return
		}

		resp := s.handlePacket(b, false)
		if resp == nil {
			return
		}

		err = writePrefixed(resp, conn)
		if err != nil {
			return
		}
	}
}

// handlePacket dispatches one raw packet: a plain TXT query for the provider
// name is answered with the certificate, anything else is treated as an
// encrypted query.
func (s *Server) handlePacket(b []byte, udp bool) (resp []byte) {
	if s.Drop {
		return nil
	}

	if plain := s.handleCertQuery(b); plain != nil {
		return plain
	}

	q := &dnscrypt.EncryptedQuery{
		EsVersion:   s.Cert.EsVersion,
		ClientMagic: s.Cert.ClientMagic,
	}

	packet, err := q.Decrypt(b, s.Cert.ResolverSk)
	if err != nil {
		return nil
	}

	m := &dns.Msg{}
	if err = m.Unpack(packet); err != nil {
		return nil
	}

	var reply *dns.Msg
	if udp && s.TruncateUDP {
		reply = &dns.Msg{}
		reply.SetReply(m)
		reply.Truncated = true
	} else if h := s.Handler; h != nil {
		reply = h(m)
	} else {
		reply = DefaultHandler(m)
	}

	packet, err = reply.Pack()
	if err != nil {
		return nil
	}

	sharedKey, err := dnscrypt.ComputeSharedKey(q.EsVersion, &s.Cert.ResolverSk, &q.ClientPk)
	if err != nil {
		return nil
	}

	r := &dnscrypt.EncryptedResponse{
		EsVersion: q.EsVersion,
		Nonce:     q.Nonce,
	}

	resp, err = r.Encrypt(packet, sharedKey, dnscrypt.DefaultNonceSource)
	if err != nil {
		return nil
	}

	if s.CorruptResponses {
		resp[len(resp)-1] ^= 0xff
	}

	return resp
}

// handleCertQuery answers a plain TXT query for the provider name with the
// serialized certificate, or returns nil if b is not one.
func (s *Server) handleCertQuery(b []byte) (resp []byte) {
	m := &dns.Msg{}
	if err := m.Unpack(b); err != nil {
		return nil
	}

	if len(m.Question) != 1 || m.Response {
		return nil
	}

	q := m.Question[0]
	if q.Qtype != dns.TypeTXT || !strings.EqualFold(q.Name, dns.Fqdn(s.ProviderName)) {
		return nil
	}

	certBuf, err := s.Cert.Serialize()
	if err != nil {
		return nil
	}

	reply := &dns.Msg{}
	reply.SetReply(m)
	reply.Authoritative = true
	reply.RecursionAvailable = true
	reply.Answer = append(reply.Answer, &dns.TXT{
		Hdr: dns.RR_Header{
			Name:   q.Name,
			Rrtype: dns.TypeTXT,
			Class:  dns.ClassINET,
			Ttl:    60,
		},
		Txt: []string{txtenc.Pack(certBuf)},
	})

	packet, err := reply.Pack()
	if err != nil {
		return nil
	}

	return packet
}
