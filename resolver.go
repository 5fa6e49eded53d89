package dnscrypt

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/miekg/dns"
	gocache "github.com/patrickmn/go-cache"
)

// ResolverOptions are the options for creating a [Resolver].
type ResolverOptions struct {
	// Logger is used for debug logging.  If nil, logs are discarded.
	Logger *slog.Logger

	// Nonces generates client nonce halves.  If nil, the system source is
	// used.  Substituting it is only intended for tests.
	Nonces NonceSource

	// Configs is the ordered list of resolvers to use.  The first resolver
	// is always tried first; the rest are failover targets.  It must not be
	// empty.
	Configs []ResolverConfig

	// Timeout is the timeout of a single certificate lookup or query
	// attempt.  The UDP attempt and the TCP fallback of one query time out
	// independently.  Zero means [defaultTimeout].
	Timeout time.Duration
}

// Resolver resolves DNS queries through an ordered list of DNSCrypt
// resolvers, handling the certificate lifecycle of each of them and failing
// over between them.  It is safe for concurrent use.
type Resolver struct {
	logger *slog.Logger
	nonces NonceSource

	// sessions caches a *ResolverInfo per provider name.  An entry expires
	// together with the certificate it was built from, so observing a miss
	// is how a query discovers that a refresh is due.
	sessions *gocache.Cache

	// states holds the per-resolver state, index-aligned with the
	// configuration order.
	states []*resolverState

	timeout time.Duration
}

// resolverState is the mutable state of one configured resolver.
type resolverState struct {
	conf *ResolverConfig

	// mu serializes certificate refresh for this resolver: a single refresh
	// is in flight at a time and concurrent callers wait for its result
	// instead of each fetching independently.
	mu *sync.Mutex
}

// NewResolver creates a resolver from opts.
func NewResolver(opts *ResolverOptions) (r *Resolver, err error) {
	if len(opts.Configs) == 0 {
		return nil, ErrNoConfigs
	}

	states := make([]*resolverState, 0, len(opts.Configs))
	for i := range opts.Configs {
		conf := &opts.Configs[i]
		if err = conf.validate(); err != nil {
			return nil, err
		}

		states = append(states, &resolverState{
			conf: conf,
			mu:   &sync.Mutex{},
		})
	}

	logger := opts.Logger
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &Resolver{
		logger:   logger,
		nonces:   opts.Nonces,
		sessions: gocache.New(gocache.NoExpiration, time.Minute),
		states:   states,
		timeout:  timeout,
	}, nil
}

// Resolve resolves a raw DNS query and returns the raw DNS answer.  The
// query and answer bytes are treated as opaque apart from the DNS header
// needed for the ID and truncation checks.
func (r *Resolver) Resolve(query []byte) (answer []byte, err error) {
	m := &dns.Msg{}
	if err = m.Unpack(query); err != nil {
		return nil, err
	}

	resp, err := r.Exchange(m)
	if err != nil {
		return nil, err
	}

	return resp.Pack()
}

// Exchange resolves a DNS message through the configured resolvers in order.
// A resolver that fails its bounded retries is skipped and the next one is
// tried; when every resolver has failed, the returned error is a
// [*ResolutionError] listing all of them.  No unauthenticated answer is ever
// returned.
func (r *Resolver) Exchange(m *dns.Msg) (resp *dns.Msg, err error) {
	resErr := &ResolutionError{}

	for _, st := range r.states {
		resp, err = r.exchangeWith(st, m)
		if err == nil {
			return resp, nil
		}

		r.logger.Debug(
			"resolver failed, failing over",
			"provider", st.conf.ProviderName,
			"err", err,
		)

		resErr.Tried = append(resErr.Tried, st.conf.ProviderName)
		resErr.Errs = append(resErr.Errs, err)
	}

	return nil, resErr
}

// FetchCertificate pre-warms the session with the resolver at index i of the
// configuration list and returns its validated certificate.
func (r *Resolver) FetchCertificate(i int) (cert *Cert, err error) {
	if i < 0 || i >= len(r.states) {
		return nil, fmt.Errorf("dnscrypt: no resolver at index %d", i)
	}

	ri, err := r.session(r.states[i])
	if err != nil {
		return nil, err
	}

	return ri.Cert, nil
}

// exchangeWith performs one query against a single resolver, with the
// bounded retry budget: one certificate refetch, one authentication retry
// with a fresh nonce, and one TCP fallback on truncation.
func (r *Resolver) exchangeWith(st *resolverState, m *dns.Msg) (resp *dns.Msg, err error) {
	ri, err := r.session(st)
	if err != nil {
		// Refetch once before failing over.
		ri, err = r.refresh(st)
		if err != nil {
			return nil, err
		}
	}

	resp, err = r.query(st, ri, m)
	if isAuthError(err) {
		// An unauthenticated response is equivalent to no response.  Retry
		// once with a fresh nonce before escalating.
		r.logger.Debug(
			"rejected untrusted response, retrying",
			"provider", st.conf.ProviderName,
			"err", err,
		)

		resp, err = r.query(st, ri, m)
	}

	if err != nil && isTimeout(err) {
		// The resolver may have rotated its keys without waiting for the
		// certificate to expire.  Invalidate the session so that the next
		// attempt starts from a fresh certificate.
		r.sessions.Delete(st.conf.ProviderName)
	}

	return resp, err
}

// query performs a single UDP exchange, falling back to TCP against the same
// resolver when the response is truncated.
func (r *Resolver) query(
	st *resolverState,
	ri *ResolverInfo,
	m *dns.Msg,
) (resp *dns.Msg, err error) {
	client := &Client{
		Logger:  r.logger,
		Nonces:  r.nonces,
		Net:     st.conf.Net,
		Timeout: r.timeout,
	}

	resp, err = client.Exchange(m, ri)
	if err == nil && resp.Truncated && client.network() == NetworkUDP {
		r.logger.Debug("truncated response, retrying over tcp", "provider", st.conf.ProviderName)

		tcpClient := &Client{
			Logger:  r.logger,
			Nonces:  r.nonces,
			Net:     NetworkTCP,
			Timeout: r.timeout,
		}

		resp, err = tcpClient.Exchange(m, ri)
	}

	return resp, err
}

// session returns the current session with the resolver, refreshing the
// certificate when there is none cached or the cached one has expired.
func (r *Resolver) session(st *resolverState) (ri *ResolverInfo, err error) {
	if v, ok := r.sessions.Get(st.conf.ProviderName); ok {
		ri = v.(*ResolverInfo)
		if !ri.expired(time.Now()) {
			return ri, nil
		}
	}

	return r.refresh(st)
}

// refresh fetches and validates a fresh certificate and derives new session
// keys.  Refreshes are serialized per resolver; a caller that lost the race
// reuses the session established by the winner.
func (r *Resolver) refresh(st *resolverState) (ri *ResolverInfo, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	// Re-check under the lock: another caller may have refreshed while this
	// one was waiting.
	if v, ok := r.sessions.Get(st.conf.ProviderName); ok {
		ri = v.(*ResolverInfo)
		if !ri.expired(time.Now()) {
			return ri, nil
		}
	}

	client := &Client{
		Logger:  r.logger,
		Nonces:  r.nonces,
		Net:     st.conf.Net,
		Timeout: r.timeout,
	}

	ri, err = client.DialConfig(st.conf)
	if err != nil {
		return nil, err
	}

	r.logger.Debug(
		"certificate refreshed",
		"provider", st.conf.ProviderName,
		"serial", ri.Cert.Serial,
	)

	r.sessions.Set(st.conf.ProviderName, ri, certTTL(ri.Cert, time.Now()))

	return ri, nil
}

// isAuthError reports whether err means that a response was received but
// must not be trusted.
func isAuthError(err error) (ok bool) {
	return errors.Is(err, ErrInvalidResponse) ||
		errors.Is(err, ErrNonceMismatch) ||
		errors.Is(err, ErrInvalidResolverMagic) ||
		errors.Is(err, ErrInvalidPadding) ||
		errors.Is(err, dns.ErrId)
}

// isTimeout reports whether err means that the resolver did not answer in
// time.
func isTimeout(err error) (ok bool) {
	return errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, io.EOF)
}
