package resolver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runTestNameserver serves canned A/AAAA answers for example.test over
// UDP on a loopback port.
func runTestNameserver(t *testing.T) string {
	t.Helper()

	mux := dns.NewServeMux()
	mux.HandleFunc("example.test.", func(w dns.ResponseWriter, req *dns.Msg) {
		resp := new(dns.Msg)
		resp.SetReply(req)
		switch req.Question[0].Qtype {
		case dns.TypeA:
			resp.Answer = append(resp.Answer, &dns.A{
				Hdr: dns.RR_Header{Name: req.Question[0].Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 300},
				A:   net.ParseIP("192.0.2.10"),
			})
		case dns.TypeAAAA:
			resp.Answer = append(resp.Answer, &dns.AAAA{
				Hdr:  dns.RR_Header{Name: req.Question[0].Name, Rrtype: dns.TypeAAAA, Class: dns.ClassINET, Ttl: 120},
				AAAA: net.ParseIP("2001:db8::10"),
			})
		}
		w.WriteMsg(resp)
	})
	mux.HandleFunc("missing.test.", func(w dns.ResponseWriter, req *dns.Msg) {
		resp := new(dns.Msg)
		resp.SetRcode(req, dns.RcodeNameError)
		w.WriteMsg(resp)
	})

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &dns.Server{PacketConn: pc, Handler: mux}
	go srv.ActivateAndServe()
	t.Cleanup(func() { srv.Shutdown() })

	return pc.LocalAddr().String()
}

func TestAsyncResolverAggregatesAAndAAAA(t *testing.T) {
	ns := runTestNameserver(t)

	r := NewAsyncResolver(ns, nil, nil)
	result, err := r.Lookup(context.Background(), "example.test", 8080)
	require.NoError(t, err)

	require.Len(t, result.Records, 2)
	ips := []string{result.Records[0].IP, result.Records[1].IP}
	assert.Contains(t, ips, "192.0.2.10")
	assert.Contains(t, ips, "2001:db8::10")
	assert.Equal(t, 8080, result.Records[0].Port)
}

func TestAsyncResolverFloorsTTLToMinimumObserved(t *testing.T) {
	ns := runTestNameserver(t)

	r := NewAsyncResolver(ns, nil, nil)
	r.MinTTL = time.Second

	result, err := r.LookupNow(context.Background(), "example.test", 80)
	require.NoError(t, err)
	assert.Equal(t, 120*time.Second, result.TTL, "effective TTL is the minimum across answer sets")
}

func TestAsyncResolverUnresolvableHost(t *testing.T) {
	ns := runTestNameserver(t)

	r := NewAsyncResolver(ns, nil, nil)
	_, err := r.Lookup(context.Background(), "missing.test", 80)
	assert.Error(t, err)
}
