package resolver

import (
	"context"
	"net"

	"go.uber.org/zap"
)

// SystemResolver resolves through the operating system's own resolver
// (net.DefaultResolver), which consults the hosts file implicitly.
type SystemResolver struct {
	*BaseResolver

	netResolver *net.Resolver
}

// NewSystemResolver builds a resolver backed by the OS stub resolver.
func NewSystemResolver(logger *zap.Logger) *SystemResolver {
	s := &SystemResolver{netResolver: net.DefaultResolver}
	s.BaseResolver = NewBaseResolver(s.lookupNow, logger)
	return s
}

func (s *SystemResolver) lookupNow(ctx context.Context, host string, port int) (*Result, error) {
	addrs, err := s.netResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, wrapUnresolvable(host, port, err)
	}
	if len(addrs) == 0 {
		return nil, wrapUnresolvable(host, port, nil)
	}

	records := make([]Record, 0, len(addrs))
	for _, addr := range addrs {
		records = append(records, Record{IP: addr.IP.String(), Port: port})
	}
	return NewResult(host, port, records, s.MinTTL), nil
}
