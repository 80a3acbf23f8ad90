// Package resolver implements the pluggable DNS resolver hierarchy: a
// base resolver providing TTL caching and sticky manual overrides, and
// concrete resolvers (hosts file, OS resolver, parallel async A/AAAA)
// layered on top of it. The DNS-over-HTTPS resolver, which needs an HTTP
// client, lives in pkg/client. Result also carries the happy-eyeballs
// connector that races a resolved record set.
package resolver

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/WhileEndless/go-rawhttp/v3/pkg/constants"
	"github.com/WhileEndless/go-rawhttp/v3/pkg/errors"
	"go.uber.org/zap"
)

// Sticky marks a Result that never expires once cached, used for manual
// overrides.
const Sticky time.Duration = -1

// Record is one resolved endpoint for a host: an IP address plus port,
// or a local socket path.
type Record struct {
	IP   string
	Port int
	// Path, when non-empty, marks this record as a local socket; IP and
	// Port are ignored.
	Path string
}

// Network returns the dial network for this record.
func (r Record) Network() string {
	if r.Path != "" {
		return "unix"
	}
	return "tcp"
}

// Addr returns the dial address for this record.
func (r Record) Addr() string {
	if r.Path != "" {
		return r.Path
	}
	return net.JoinHostPort(r.IP, strconv.Itoa(r.Port))
}

func (r Record) String() string { return r.Addr() }

// Result is the outcome of resolving a host:port pair: the candidate
// records plus the TTL governing how long the result may be cached.
type Result struct {
	Host    string
	Port    int
	Records []Record
	TTL     time.Duration

	resolvedAt time.Time

	mu      sync.Mutex
	fastest *Record
}

// NewResult builds a Result stamped with the current time.
func NewResult(host string, port int, records []Record, ttl time.Duration) *Result {
	return &Result{Host: host, Port: port, Records: records, TTL: ttl, resolvedAt: time.Now()}
}

// Expired reports whether the result's TTL has elapsed. A Sticky TTL
// never expires.
func (r *Result) Expired() bool {
	if r.TTL == Sticky {
		return false
	}
	return time.Since(r.resolvedAt) > r.TTL
}

// Resolver is implemented by every layer of the resolver hierarchy.
type Resolver interface {
	// Lookup resolves host:port, consulting overrides and the cache
	// before calling LookupNow.
	Lookup(ctx context.Context, host string, port int) (*Result, error)
	// LookupNow performs a fresh resolution, bypassing the cache.
	LookupNow(ctx context.Context, host string, port int) (*Result, error)
	// Override pins host:port to a fixed Result until RemoveOverride is
	// called, regardless of TTL.
	Override(host string, port int, result *Result)
	// RemoveOverride clears a previously set override.
	RemoveOverride(host string, port int)
}

// BaseResolver implements the cache/override machinery shared by every
// concrete resolver. Concrete resolvers embed a *BaseResolver and supply
// their own LookupNow by setting the lookupNow field in their
// constructor — Go's idiomatic stand-in for a template-method base
// class.
type BaseResolver struct {
	MinTTL           time.Duration
	RespectRemoteTTL bool
	Logger           *zap.Logger

	lookupNow func(ctx context.Context, host string, port int) (*Result, error)

	mu        sync.Mutex
	cache     map[string]*Result
	overrides map[string]*Result
}

// NewBaseResolver constructs a BaseResolver. lookupNow performs the
// concrete, uncached resolution.
func NewBaseResolver(lookupNow func(context.Context, string, int) (*Result, error), logger *zap.Logger) *BaseResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BaseResolver{
		MinTTL:           constants.ResolverMinTTL,
		RespectRemoteTTL: true,
		Logger:           logger,
		lookupNow:        lookupNow,
		cache:            make(map[string]*Result),
		overrides:        make(map[string]*Result),
	}
}

func cacheKey(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}

// Override pins host:port to result until RemoveOverride is called.
func (b *BaseResolver) Override(host string, port int, result *Result) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.overrides[cacheKey(host, port)] = result
}

// RemoveOverride clears a previously set override for host:port.
func (b *BaseResolver) RemoveOverride(host string, port int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.overrides, cacheKey(host, port))
}

// Lookup consults overrides, then the cache, falling back to a fresh
// LookupNow call whose result, with its TTL raised to MinTTL where
// needed, is then cached.
func (b *BaseResolver) Lookup(ctx context.Context, host string, port int) (*Result, error) {
	key := cacheKey(host, port)

	b.mu.Lock()
	if override, ok := b.overrides[key]; ok {
		b.mu.Unlock()
		return override, nil
	}

	if cached, ok := b.cache[key]; ok {
		if !cached.Expired() {
			b.mu.Unlock()
			return cached, nil
		}
		delete(b.cache, key)
		b.Logger.Debug("resolver cache entry expired", zap.String("host", host), zap.Int("port", port))
	}
	b.mu.Unlock()

	result, err := b.lookupNow(ctx, host, port)
	if err != nil {
		return nil, err
	}

	if !b.RespectRemoteTTL || result.TTL < b.MinTTL {
		if result.TTL != Sticky {
			result.TTL = b.MinTTL
		}
	}

	b.mu.Lock()
	b.cache[key] = result
	b.mu.Unlock()

	return result, nil
}

// LookupNow bypasses cache and overrides, delegating directly to the
// concrete resolver's resolution function.
func (b *BaseResolver) LookupNow(ctx context.Context, host string, port int) (*Result, error) {
	return b.lookupNow(ctx, host, port)
}

var _ Resolver = (*BaseResolver)(nil)

func wrapUnresolvable(host string, port int, cause error) error {
	return errors.NewUnresolvableHost(host, port, cause)
}
