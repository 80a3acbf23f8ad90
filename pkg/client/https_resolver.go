package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	rherrors "github.com/WhileEndless/go-rawhttp/v3/pkg/errors"
	"github.com/WhileEndless/go-rawhttp/v3/pkg/header"
	"github.com/WhileEndless/go-rawhttp/v3/pkg/resolver"
	"go.uber.org/zap"
)

// HttpsResolver resolves over DNS-over-HTTPS (RFC 8484 JSON form). It
// lives in pkg/client rather than pkg/resolver because it needs a full
// HTTP client to issue its queries; giving it its own fallback resolver
// (used only to resolve the DoH endpoint itself) breaks what would
// otherwise be a construction cycle back into this package.
type HttpsResolver struct {
	*resolver.BaseResolver

	dnsURL string
	hosts  *resolver.HostsResolver
	inner  *Client
}

// NewHttpsResolver builds a DNS-over-HTTPS resolver. dnsURL defaults to
// Cloudflare's JSON endpoint. fallback resolves the DoH endpoint's own
// hostname and defaults to a plain SystemResolver.
func NewHttpsResolver(dnsURL string, fallback resolver.Resolver, logger *zap.Logger) *HttpsResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dnsURL == "" {
		dnsURL = "https://cloudflare-dns.com/dns-query"
	}
	if fallback == nil {
		fallback = resolver.NewSystemResolver(logger)
	}

	h := &HttpsResolver{
		dnsURL: dnsURL,
		hosts:  resolver.NewHostsResolver(logger),
		inner: New(Config{
			Resolver:   fallback,
			Timeout:    15 * time.Second,
			RaiseError: false,
			Logger:     logger,
		}),
	}
	h.BaseResolver = resolver.NewBaseResolver(h.lookupNow, logger)
	return h
}

type dohAnswer struct {
	Type int    `json:"type"`
	TTL  int    `json:"TTL"`
	Data string `json:"data"`
}

type dohResponse struct {
	Status int         `json:"Status"`
	Answer []dohAnswer `json:"Answer"`
}

const dohTypeA = 1
const dohTypeAAAA = 28

func (h *HttpsResolver) query(ctx context.Context, host string, port int, recordType string) ([]resolver.Record, uint32, error) {
	wantType := dohTypeA
	if recordType == "AAAA" {
		wantType = dohTypeAAAA
	}

	hdrs := header.New()
	hdrs.Set("Accept", "application/dns-json")

	resp, err := h.inner.Fetch(ctx, "GET", h.dnsURL, FetchRequest{
		PathArgs:         url.Values{"name": {host}, "type": {recordType}},
		Headers:          hdrs,
		ReadResponseBody: true,
	})
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode() != 200 {
		return nil, 0, rherrors.NewUnresolvableHost(host, port, fmt.Errorf("doh endpoint returned HTTP %d", resp.StatusCode()))
	}

	var parsed dohResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, 0, err
	}

	var records []resolver.Record
	minTTL := uint32(0)
	first := true
	for _, ans := range parsed.Answer {
		if ans.Type != wantType {
			continue
		}
		records = append(records, resolver.Record{IP: ans.Data, Port: port})
		ttl := uint32(ans.TTL)
		if first || ttl < minTTL {
			minTTL = ttl
			first = false
		}
	}
	if len(records) == 0 {
		return nil, 0, rherrors.NewUnresolvableHost(host, port, nil)
	}
	return records, minTTL, nil
}

func (h *HttpsResolver) lookupNow(ctx context.Context, host string, port int) (*resolver.Result, error) {
	if result, err := h.hosts.Lookup(ctx, host, port); err == nil {
		return result, nil
	}

	type outcome struct {
		records []resolver.Record
		ttl     uint32
		err     error
	}
	outcomes := make([]outcome, 2)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		recs, ttl, err := h.query(ctx, host, port, "A")
		outcomes[0] = outcome{recs, ttl, err}
	}()
	go func() {
		defer wg.Done()
		recs, ttl, err := h.query(ctx, host, port, "AAAA")
		outcomes[1] = outcome{recs, ttl, err}
	}()
	wg.Wait()

	var records []resolver.Record
	var minTTL uint32
	first := true
	var lastErr error
	for _, o := range outcomes {
		if o.err != nil {
			lastErr = o.err
			continue
		}
		records = append(records, o.records...)
		if first || o.ttl < minTTL {
			minTTL = o.ttl
			first = false
		}
	}

	if len(records) == 0 {
		return nil, rherrors.NewUnresolvableHost(host, port, lastErr)
	}

	ttl := time.Duration(minTTL) * time.Second
	if ttl < h.MinTTL {
		ttl = h.MinTTL
	}
	return resolver.NewResult(host, port, records, ttl), nil
}
