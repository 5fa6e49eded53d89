package dnscrypt

import (
	"fmt"
	"strings"
)

// Error is a dnscrypt protocol error.
type Error string

// type check
var _ error = Error("")

// Error implements the error interface for Error.
func (e Error) Error() (msg string) { return "dnscrypt: " + string(e) }

const (
	// ErrCertTooShort means that a certificate payload is shorter than the
	// fixed binary layout allows.
	ErrCertTooShort = Error("cert is too short")

	// ErrCertMagic means that a certificate payload does not start with the
	// cert magic.
	ErrCertMagic = Error("invalid cert magic")

	// ErrEsVersion means that the certificate advertises an unsupported
	// es-version.
	ErrEsVersion = Error("unsupported es-version")

	// ErrInvalidDate means that the certificate is not valid for the current
	// time.
	ErrInvalidDate = Error("cert has invalid ts-start or ts-end")

	// ErrInvalidCertSignature means that the certificate signature does not
	// verify against the pinned provider key.
	ErrInvalidCertSignature = Error("cert has invalid signature")

	// ErrNoCertificate means that no valid certificate could be selected
	// from the provider's TXT records.
	ErrNoCertificate = Error("no valid certificate found")

	// ErrLookup means that the certificate TXT lookup itself failed.
	ErrLookup = Error("cert lookup failed")

	// ErrInvalidResolverMagic means that a response does not start with the
	// resolver magic.
	ErrInvalidResolverMagic = Error("response contains invalid resolver magic")

	// ErrNonceMismatch means that the client half of the response nonce does
	// not match the nonce sent with the query.
	ErrNonceMismatch = Error("response nonce does not match query nonce")

	// ErrInvalidResponse means that a response failed authenticated
	// decryption and must not be trusted.
	ErrInvalidResponse = Error("response is invalid and cannot be decrypted")

	// ErrInvalidQuery means that a query failed authenticated decryption.
	// It is only returned by the server-side codec.
	ErrInvalidQuery = Error("query is invalid and cannot be decrypted")

	// ErrInvalidClientMagic means that a query does not start with the
	// client magic of the current certificate.  It is only returned by the
	// server-side codec.
	ErrInvalidClientMagic = Error("query contains invalid client magic")

	// ErrInvalidPadding means that the padding of a decrypted packet does
	// not follow the 0x80-then-zeros convention.
	ErrInvalidPadding = Error("invalid padding")

	// ErrQueryTooLarge means that the encrypted query does not fit into the
	// maximum allowed envelope size.
	ErrQueryTooLarge = Error("query is too large")

	// ErrTooShort means that a packet is shorter than the minimum envelope.
	ErrTooShort = Error("message is too short")

	// ErrInvalidDNSStamp means that a server stamp cannot be used for
	// DNSCrypt.
	ErrInvalidDNSStamp = Error("invalid DNS stamp")

	// ErrNoConfigs means that the resolver has no configurations to try.
	ErrNoConfigs = Error("no resolver configurations")
)

// ResolutionError is returned by [Resolver.Exchange] when every configured
// resolver has been tried and failed.  It reports which resolvers were tried
// and why each of them failed.
type ResolutionError struct {
	// Tried lists the provider names of the resolvers that were tried, in
	// order.
	Tried []string

	// Errs contains the final error of each tried resolver, index-aligned
	// with Tried.
	Errs []error
}

// type check
var _ error = (*ResolutionError)(nil)

// Error implements the error interface for *ResolutionError.
func (e *ResolutionError) Error() (msg string) {
	if len(e.Tried) == 0 {
		return ErrNoConfigs.Error()
	}

	b := &strings.Builder{}
	_, _ = fmt.Fprintf(b, "dnscrypt: all %d resolvers failed:", len(e.Tried))
	for i, name := range e.Tried {
		_, _ = fmt.Fprintf(b, " %s: %s;", name, e.Errs[i])
	}

	return strings.TrimSuffix(b.String(), ";")
}

// Unwrap returns the underlying per-resolver errors.
func (e *ResolutionError) Unwrap() (errs []error) { return e.Errs }
