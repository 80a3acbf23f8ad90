// Package constants defines the default configuration values used
// throughout the client when a caller leaves a Config field at its zero
// value.
package constants

import "time"

// Connection lifecycle defaults.
const (
	DefaultIdleTimeout = 10 * time.Second
	DefaultTimeout     = 60 * time.Second
	DefaultConnTimeout = 10 * time.Second
)

// Message size defaults.
const (
	DefaultMaxInitialSize = 64 * 1024       // status line + headers
	DefaultMaxBodySize    = 2 * 1024 * 1024 // response body
	DefaultChunkSize      = 128 * 1024      // body write chunk size
)

// Pool and redirect defaults.
const (
	DefaultMaxIdleConnections = 100
	DefaultMaxRedirects       = 10
)

// ResolverMinTTL is the floor applied to any resolver result whose
// upstream TTL is smaller, and the minimum re-read interval for the
// hosts-file resolver.
const ResolverMinTTL = 60 * time.Second
