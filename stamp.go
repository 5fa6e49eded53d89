package dnscrypt

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"net"
	"strings"

	"github.com/ameshkov/dnsstamps"
)

// ResolverConfig is the static identity of one DNSCrypt resolver.  It is
// immutable once created: the provider public key is a pinned trust anchor
// and is never replaced at runtime, only the short-term certificates it signs
// rotate.
type ResolverConfig struct {
	// ProviderName is the domain name under which the resolver publishes its
	// certificate TXT record, e.g. "2.dnscrypt-cert.example.org".
	ProviderName string

	// PublicKey is the provider's long-term Ed25519 public key used to
	// validate certificate signatures.
	PublicKey ed25519.PublicKey

	// Addresses are the resolver addresses, as host:port, tried in order for
	// both certificate discovery and query traffic.
	Addresses []string

	// Net is the preferred network for queries, [NetworkUDP] or
	// [NetworkTCP].  Empty means UDP with a TCP fallback on truncation.
	Net string
}

const (
	// NetworkUDP is the UDP network name.
	NetworkUDP = "udp"

	// NetworkTCP is the TCP network name.
	NetworkTCP = "tcp"
)

// validate returns an error if the configuration cannot be used.
func (conf *ResolverConfig) validate() (err error) {
	switch {
	case conf.ProviderName == "":
		return fmt.Errorf("dnscrypt: empty provider name")
	case len(conf.PublicKey) != ed25519.PublicKeySize:
		return fmt.Errorf(
			"dnscrypt: provider %s: bad public key size %d",
			conf.ProviderName,
			len(conf.PublicKey),
		)
	case len(conf.Addresses) == 0:
		return fmt.Errorf("dnscrypt: provider %s: no addresses", conf.ProviderName)
	}

	switch conf.Net {
	case "", NetworkUDP, NetworkTCP:
		// Go on.
	default:
		return fmt.Errorf("dnscrypt: provider %s: bad network %q", conf.ProviderName, conf.Net)
	}

	return nil
}

// ConfigFromStamp creates a ResolverConfig from an sdns:// stamp string.  The
// stamp must be of the DNSCrypt protocol type.
func ConfigFromStamp(stampStr string) (conf *ResolverConfig, err error) {
	stamp, err := dnsstamps.NewServerStampFromString(stampStr)
	if err != nil {
		return nil, fmt.Errorf("dnscrypt: parsing stamp: %w", err)
	}

	if stamp.Proto != dnsstamps.StampProtoTypeDNSCrypt {
		return nil, ErrInvalidDNSStamp
	}

	addr := stamp.ServerAddrStr
	if _, _, sErr := net.SplitHostPort(addr); sErr != nil {
		// A stamp address without a port defaults to the standard DNSCrypt
		// port.
		addr = net.JoinHostPort(addr, "443")
	}

	return &ResolverConfig{
		ProviderName: stamp.ProviderName,
		PublicKey:    ed25519.PublicKey(stamp.ServerPk),
		Addresses:    []string{addr},
	}, nil
}

// ConfigWithKeyHex creates a ResolverConfig from a provider name, a
// hex-encoded provider public key with optional colon separators, and one or
// more resolver addresses.
func ConfigWithKeyHex(
	providerName string,
	publicKeyHex string,
	addrs ...string,
) (conf *ResolverConfig, err error) {
	key, err := hex.DecodeString(strings.ReplaceAll(publicKeyHex, ":", ""))
	if err != nil {
		return nil, fmt.Errorf("dnscrypt: decoding provider key: %w", err)
	}

	conf = &ResolverConfig{
		ProviderName: providerName,
		PublicKey:    ed25519.PublicKey(key),
		Addresses:    addrs,
	}

	return conf, conf.validate()
}
