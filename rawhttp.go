// Package rawhttp provides an asyncio-flavored HTTP/1.1 client library for
// Go: a pluggable DNS resolver hierarchy, a happy-eyeballs connection
// racer, a keep-alive connection pool, and a status-conditional redirect
// driver, wrapped in a small set of package-level convenience functions
// backed by a lazily-constructed default Client.
package rawhttp

import (
	"context"
	"sync"

	"github.com/WhileEndless/go-rawhttp/v3/pkg/body"
	"github.com/WhileEndless/go-rawhttp/v3/pkg/client"
	"github.com/WhileEndless/go-rawhttp/v3/pkg/errors"
	"github.com/WhileEndless/go-rawhttp/v3/pkg/header"
	"github.com/WhileEndless/go-rawhttp/v3/pkg/resolver"
)

// Version is the current version of the rawhttp library.
const Version = "3.0.0"

// Re-export key types for easier usage.
type (
	// Client fetches HTTP/1.1 requests over a pooled, keep-alive transport.
	Client = client.Client

	// Config controls how a Client resolves hosts, pools connections and
	// follows redirects.
	Config = client.Config

	// FetchRequest is the mutable per-request configuration passed to a
	// fetch call.
	FetchRequest = client.FetchRequest

	// Response is a completed HTTP exchange.
	Response = client.Response

	// Headers is a case-insensitive, insertion-ordered header multimap.
	Headers = header.Ordered

	// Producer streams a request body.
	Producer = body.Producer

	// Error is a structured error with a taxonomy tag and optional
	// request/response context.
	Error = errors.Error

	// Resolver looks up the address records behind a host:port pair.
	Resolver = resolver.Resolver
)

// Re-export error-type tags for convenience.
const (
	ErrorTypeRequestTimeout         = errors.ErrorTypeRequestTimeout
	ErrorTypeBadResponse            = errors.ErrorTypeBadResponse
	ErrorTypeResponseEntityTooLarge = errors.ErrorTypeResponseEntityTooLarge
	ErrorTypeConnectionClosed       = errors.ErrorTypeConnectionClosed
	ErrorTypeFailedRedirection      = errors.ErrorTypeFailedRedirection
	ErrorTypeTooManyRedirects       = errors.ErrorTypeTooManyRedirects
	ErrorTypeHTTPError              = errors.ErrorTypeHTTPError
	ErrorTypeUnresolvableHost       = errors.ErrorTypeUnresolvableHost
	ErrorTypeValidation             = errors.ErrorTypeValidation
)

var (
	defaultClient     *Client
	defaultClientOnce sync.Once
)

// Default returns the lazily-constructed, process-wide Client that the
// package-level Get/Post/... convenience functions use.
func Default() *Client {
	defaultClientOnce.Do(func() {
		defaultClient = client.New(client.DefaultConfig())
	})
	return defaultClient
}

// NewClient builds a standalone Client. Zero-value Config fields fall
// back to DefaultConfig's values, except RaiseError, which stays false.
func NewClient(config Config) *Client {
	return client.New(config)
}

// NewHeaders returns an empty, case-insensitive header multimap.
func NewHeaders() *Headers {
	return header.New()
}

// Fetch issues method against rawURL using the default Client.
func Fetch(ctx context.Context, method, rawURL string, req FetchRequest) (*Response, error) {
	return Default().Fetch(ctx, method, rawURL, req)
}

// Get issues a GET request against the default Client.
func Get(ctx context.Context, url string, req FetchRequest) (*Response, error) {
	return Default().Get(ctx, url, req)
}

// Post issues a POST request against the default Client.
func Post(ctx context.Context, url string, req FetchRequest) (*Response, error) {
	return Default().Post(ctx, url, req)
}

// Put issues a PUT request against the default Client.
func Put(ctx context.Context, url string, req FetchRequest) (*Response, error) {
	return Default().Put(ctx, url, req)
}

// Delete issues a DELETE request against the default Client.
func Delete(ctx context.Context, url string, req FetchRequest) (*Response, error) {
	return Default().Delete(ctx, url, req)
}

// Patch issues a PATCH request against the default Client.
func Patch(ctx context.Context, url string, req FetchRequest) (*Response, error) {
	return Default().Patch(ctx, url, req)
}

// Head issues a HEAD request against the default Client.
func Head(ctx context.Context, url string, req FetchRequest) (*Response, error) {
	return Default().Head(ctx, url, req)
}

// Options issues an OPTIONS request against the default Client.
func Options(ctx context.Context, url string, req FetchRequest) (*Response, error) {
	return Default().Options(ctx, url, req)
}

// IsTimeoutError reports whether err is a request-timeout error, or a
// raw net/context timeout. A structured error wrapped inside another
// error is not unwrapped.
func IsTimeoutError(err error) bool {
	return errors.IsTimeoutError(err)
}

// IsUnresolvableHost reports whether err is an unresolvable-host error.
// Wrapped errors are not unwrapped.
func IsUnresolvableHost(err error) bool {
	return errors.IsUnresolvableHost(err)
}

// GetErrorType returns the taxonomy tag of err, or "" if err is not one
// of this package's structured errors.
func GetErrorType(err error) string {
	return string(errors.GetErrorType(err))
}
