// dnscrypt-lookup resolves a domain name through configured DNSCrypt
// resolvers and prints the answer records.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/osutil"
	"github.com/miekg/dns"
	"github.com/openalias/dnscrypt"
	"github.com/openalias/dnscrypt/internal/version"
	"gopkg.in/yaml.v3"
)

// exitCodeArgumentError is osutil.ExitCodeArgumentError from newer golibs
// versions, which require a newer Go toolchain than is available here.
const exitCodeArgumentError osutil.ExitCode = 2

func main() {
	os.Exit(run())
}

// run is the actual entry point.  It is separate from main so that deferred
// calls run before the exit code is returned.
func run() (exitCode int) {
	conf := &config{}

	confPath := flag.String("config", "", "path to the YAML resolver list")
	qtypeStr := flag.String("type", "A", "query type")
	verbose := flag.Bool("verbose", false, "verbose output")
	timeout := flag.Duration("timeout", 10*time.Second, "per-attempt timeout")
	flag.Func("stamp", "sdns:// resolver stamp (may be repeated)", func(s string) (err error) {
		conf.Stamps = append(conf.Stamps, s)

		return nil
	})
	flag.Parse()

	l := slogutil.New(&slogutil.Config{
		Output:  os.Stderr,
		Format:  slogutil.FormatDefault,
		Verbose: *verbose,
	})

	l.Debug(
		"dnscrypt-lookup starting",
		"version", version.Version(),
		"revision", version.Revision(),
		"commit_time", version.CommitTime(),
	)

	name := flag.Arg(0)
	if name == "" {
		_, _ = fmt.Fprintln(os.Stderr, "usage: dnscrypt-lookup [flags] <name>")

		return exitCodeArgumentError
	}

	qtype, ok := dns.StringToType[*qtypeStr]
	if !ok {
		_, _ = fmt.Fprintf(os.Stderr, "unknown query type %q\n", *qtypeStr)

		return exitCodeArgumentError
	}

	if *confPath != "" {
		err := conf.load(*confPath)
		if err != nil {
			l.Error("loading config", slogutil.KeyError, err)

			return exitCodeArgumentError
		}
	}

	configs, err := conf.resolverConfigs()
	if err != nil {
		l.Error("preparing resolvers", slogutil.KeyError, err)

		return exitCodeArgumentError
	}

	r, err := dnscrypt.NewResolver(&dnscrypt.ResolverOptions{
		Logger:  l,
		Configs: configs,
		Timeout: *timeout,
	})
	if err != nil {
		l.Error("creating resolver", slogutil.KeyError, err)

		return exitCodeArgumentError
	}

	req := &dns.Msg{}
	req.SetQuestion(dns.Fqdn(name), qtype)
	req.SetEdns0(dns.DefaultMsgSize, false)
	req.RecursionDesired = true

	resp, err := r.Exchange(req)
	if err != nil {
		l.Error("resolving", slogutil.KeyError, err)

		return osutil.ExitCodeFailure
	}

	for _, rr := range resp.Answer {
		fmt.Println(rr)
	}

	return osutil.ExitCodeSuccess
}

// config is the YAML configuration of the resolver list.
type config struct {
	// Resolvers are resolvers given by their explicit properties.
	Resolvers []resolverConf `yaml:"resolvers"`

	// Stamps are resolvers given as sdns:// stamps.
	Stamps []string `yaml:"stamps"`
}

// resolverConf is one explicitly configured resolver.
type resolverConf struct {
	ProviderName string   `yaml:"provider_name"`
	PublicKey    string   `yaml:"public_key"`
	Addresses    []string `yaml:"addresses"`
	Net          string   `yaml:"net"`
}

// load reads and merges the YAML file at path into c.
func (c *config) load(path string) (err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	fileConf := &config{}
	if err = yaml.Unmarshal(b, fileConf); err != nil {
		return err
	}

	c.Resolvers = append(c.Resolvers, fileConf.Resolvers...)
	c.Stamps = append(c.Stamps, fileConf.Stamps...)

	return nil
}

// resolverConfigs converts the configuration into resolver configs, stamps
// last.
func (c *config) resolverConfigs() (configs []dnscrypt.ResolverConfig, err error) {
	for _, rc := range c.Resolvers {
		conf, cErr := dnscrypt.ConfigWithKeyHex(rc.ProviderName, rc.PublicKey, rc.Addresses...)
		if cErr != nil {
			return nil, cErr
		}

		conf.Net = rc.Net
		configs = append(configs, *conf)
	}

	for _, s := range c.Stamps {
		conf, cErr := dnscrypt.ConfigFromStamp(s)
		if cErr != nil {
			return nil, cErr
		}

		configs = append(configs, *conf)
	}

	return configs, nil
}
