// Package lookup resolves the address records currently published for a
// name, as seen by a recursive or authoritative DNS server.
package lookup

import (
	"context"
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/miekg/dns"
)

// DefaultServer is used when no resolver can be read from resolv.conf.
const DefaultServer = "1.1.1.1:53"

// Answer is one published A record.
type Answer struct {
	Address string
	TTL     time.Duration
}

// Resolver queries a single DNS server.
type Resolver struct {
	Server string
	client *dns.Client
}

// NewResolver returns a resolver for server ("host:port"). An empty server
// selects the first nameserver from /etc/resolv.conf.
func NewResolver(server string, timeout time.Duration) *Resolver {
	if server == "" {
		server = SystemServer("/etc/resolv.conf")
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Resolver{Server: server, client: &dns.Client{Timeout: timeout}}
}

// SystemServer returns the first nameserver in the given resolv.conf, or
// DefaultServer.
func SystemServer(path string) string {
	cfg, err := dns.ClientConfigFromFile(path)
	if err != nil || cfg == nil || len(cfg.Servers) == 0 {
		return DefaultServer
	}
	return net.JoinHostPort(cfg.Servers[0], cfg.Port)
}

// Resolve returns the A records for name sorted by address. NXDOMAIN yields
// an empty result, other failures an error.
func (r *Resolver) Resolve(ctx context.Context, name string) ([]Answer, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeA)

	in, _, err := r.client.ExchangeContext(ctx, m, r.Server)
	if err != nil {
		return nil, fmt.Errorf("lookup: query %s via %s: %w", name, r.Server, err)
	}
	switch in.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return nil, nil
	default:
		return nil, fmt.Errorf("lookup: query %s via %s: %s", name, r.Server, dns.RcodeToString[in.Rcode])
	}

	var out []Answer
	for _, rr := range in.Answer {
		if a, ok := rr.(*dns.A); ok {
			out = append(out, Answer{Address: a.A.String(), TTL: time.Duration(a.Hdr.Ttl) * time.Second})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}
