/*
Package dnscrypt implements a client-side DNSCrypt protocol engine: it
discovers and validates resolver certificates, derives per-session encryption
keys, wraps DNS queries into encrypted padded envelopes, and exchanges them
with DNSCrypt resolvers over UDP with a TCP fallback.

The main entry point is [Resolver], which iterates over an ordered list of
[ResolverConfig] entries and fails over between them:

	r, err := dnscrypt.NewResolver(&dnscrypt.ResolverOptions{
		Configs: []dnscrypt.ResolverConfig{conf},
	})
	if err != nil {
		panic(err)
	}

	resp, err := r.Exchange(req)

For callers that manage a single resolver themselves there is the lower-level
[Client] with [Client.DialConfig] and [Client.Exchange], and
[FetchCertificate] for pre-warming or inspecting resolver certificates.

The package does not implement a recursive resolver, caching of DNS answers,
DNS-over-HTTPS/TLS, or DNSSEC validation.
*/
package dnscrypt
