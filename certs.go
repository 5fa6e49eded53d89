package dnscrypt

import (
	"fmt"
	"time"

	"github.com/miekg/dns"
	"github.com/openalias/dnscrypt/internal/txtenc"
)

// FetchCertificate retrieves, validates, and selects the resolver certificate
// published under the configuration's provider name.  It is exposed for
// callers that want to pre-warm or inspect certificates; [Resolver] uses it
// internally.
func FetchCertificate(conf *ResolverConfig) (cert *Cert, err error) {
	if err = conf.validate(); err != nil {
		return nil, err
	}

	c := &Client{Timeout: defaultTimeout}
	cert, _, err = c.fetchCert(conf)

	return cert, err
}

// fetchCert sends a plain TXT query for the provider name to the resolver's
// addresses in order and returns the best valid certificate among the
// published candidates along with the address that answered.
func (c *Client) fetchCert(conf *ResolverConfig) (cert *Cert, addr string, err error) {
	query := &dns.Msg{}
	query.SetQuestion(dns.Fqdn(conf.ProviderName), dns.TypeTXT)

	client := &dns.Client{
		Net:     c.network(),
		UDPSize: maxQueryLen,
		Timeout: c.timeout(),
	}

	var r *dns.Msg
	for _, a := range conf.Addresses {
		r, _, err = client.Exchange(query, a)
		if err == nil {
			addr = a

			break
		}
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrLookup, err)
	}

	if r.Rcode != dns.RcodeSuccess {
		return nil, "", fmt.Errorf("%w: rcode %s", ErrLookup, dns.RcodeToString[r.Rcode])
	}

	cert, err = c.selectCert(conf, r)
	if err != nil {
		return nil, "", err
	}

	return cert, addr, nil
}

// selectCert parses and validates every certificate candidate in the TXT
// answer and picks the preferred one: highest es-version, then highest
// serial, then latest inception date.  Candidates that fail parsing, date, or
// signature checks are discarded and never cached.
func (c *Client) selectCert(conf *ResolverConfig, r *dns.Msg) (cert *Cert, err error) {
	l := c.logger().With("provider", conf.ProviderName)
	now := c.now()

	var certErr error
	current := &Cert{}
	found := false

	for _, rr := range r.Answer {
		txt, ok := rr.(*dns.TXT)
		if !ok {
			continue
		}

		b := txtenc.Unpack(txt.Txt)

		candidate := &Cert{}
		if dErr := candidate.Deserialize(b); dErr != nil {
			certErr = dErr
			l.Debug("parsing certificate", "err", dErr)

			continue
		}

		l.Debug("fetched certificate", "serial", candidate.Serial)

		if !candidate.VerifyDate(now) {
			certErr = ErrInvalidDate
			l.Debug("certificate date is not valid", "serial", candidate.Serial)

			continue
		}

		if !candidate.VerifySignature(conf.PublicKey) {
			certErr = ErrInvalidCertSignature
			l.Debug("certificate signature is not valid", "serial", candidate.Serial)

			continue
		}

		if found && !preferCert(candidate, current) {
			l.Debug("keeping the previous certificate", "serial", current.Serial)

			continue
		}

		current = candidate
		found = true
	}

	if !found {
		if certErr == nil {
			certErr = ErrNoCertificate
		}

		return nil, certErr
	}

	return current, nil
}

// preferCert reports whether candidate should supersede current.  A stronger
// crypto construction always wins; among equal constructions a higher serial
// wins; equal serials are broken by the later inception date.
func preferCert(candidate, current *Cert) (ok bool) {
	if candidate.EsVersion != current.EsVersion {
		return candidate.EsVersion > current.EsVersion
	}

	if candidate.Serial != current.Serial {
		return candidate.Serial > current.Serial
	}

	return candidate.NotBefore > current.NotBefore
}

// certTTL returns how long cert remains valid after now, clamped to be
// non-negative.
func certTTL(cert *Cert, now time.Time) (ttl time.Duration) {
	ttl = time.Unix(int64(cert.NotAfter), 0).Sub(now)
	if ttl < 0 {
		return 0
	}

	return ttl
}

