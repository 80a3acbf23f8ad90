package resolver

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"
)

// AsyncResolver issues A and AAAA queries concurrently against a
// configured nameserver and aggregates whichever succeed, following the
// "wait for both, ignore individual failures unless both fail" shape the
// DNS-over-HTTPS resolver also uses. If Hosts is attached, a successful
// hosts-file lookup short-circuits the remote queries entirely.
type AsyncResolver struct {
	*BaseResolver

	client     *dns.Client
	nameserver string
	hosts      *HostsResolver
}

// NewAsyncResolver builds a resolver that queries nameserver (host:port,
// e.g. "1.1.1.1:53") directly over UDP, falling back to TCP on
// truncation. hosts may be nil to skip the hosts-file short-circuit.
func NewAsyncResolver(nameserver string, hosts *HostsResolver, logger *zap.Logger) *AsyncResolver {
	if nameserver == "" {
		nameserver = systemNameserver()
	}
	a := &AsyncResolver{
		client:     &dns.Client{Timeout: 5 * time.Second},
		nameserver: nameserver,
		hosts:      hosts,
	}
	a.BaseResolver = NewBaseResolver(a.lookupNow, logger)
	return a
}

func systemNameserver() string {
	conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(conf.Servers) == 0 {
		return "1.1.1.1:53"
	}
	return net.JoinHostPort(conf.Servers[0], conf.Port)
}

type queryOutcome struct {
	records []Record
	ttl     uint32
	err     error
}

func (a *AsyncResolver) query(ctx context.Context, host string, port int, qtype uint16) queryOutcome {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), qtype)
	msg.RecursionDesired = true

	resp, _, err := a.client.ExchangeContext(ctx, msg, a.nameserver)
	if err != nil {
		return queryOutcome{err: err}
	}
	if resp.Truncated {
		tcp := &dns.Client{Net: "tcp", Timeout: a.client.Timeout}
		resp, _, err = tcp.ExchangeContext(ctx, msg, a.nameserver)
		if err != nil {
			return queryOutcome{err: err}
		}
	}
	if resp.Rcode != dns.RcodeSuccess {
		return queryOutcome{err: fmt.Errorf("resolver: nameserver returned rcode %d", resp.Rcode)}
	}

	var out queryOutcome
	out.ttl = ^uint32(0)
	for _, rr := range resp.Answer {
		var ip string
		switch v := rr.(type) {
		case *dns.A:
			ip = v.A.String()
		case *dns.AAAA:
			ip = v.AAAA.String()
		default:
			continue
		}
		out.records = append(out.records, Record{IP: ip, Port: port})
		if rr.Header().Ttl < out.ttl {
			out.ttl = rr.Header().Ttl
		}
	}
	if len(out.records) == 0 {
		out.err = os.ErrNotExist
	}
	return out
}

func (a *AsyncResolver) lookupNow(ctx context.Context, host string, port int) (*Result, error) {
	if a.hosts != nil {
		if result, err := a.hosts.Lookup(ctx, host, port); err == nil {
			return result, nil
		}
	}

	var wg sync.WaitGroup
	results := make([]queryOutcome, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		results[0] = a.query(ctx, host, port, dns.TypeA)
	}()
	go func() {
		defer wg.Done()
		results[1] = a.query(ctx, host, port, dns.TypeAAAA)
	}()
	wg.Wait()

	var records []Record
	minTTL := ^uint32(0)
	var lastErr error
	for _, r := range results {
		if r.err != nil {
			lastErr = r.err
			continue
		}
		records = append(records, r.records...)
		if r.ttl < minTTL {
			minTTL = r.ttl
		}
	}

	if len(records) == 0 {
		return nil, wrapUnresolvable(host, port, lastErr)
	}

	ttl := time.Duration(minTTL) * time.Second
	if minTTL == ^uint32(0) {
		ttl = a.MinTTL
	}
	return NewResult(host, port, records, ttl), nil
}
