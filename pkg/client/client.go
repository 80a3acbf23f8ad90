// Package client composes the resolver hierarchy, the connection pool
// and the redirect driver into the library's public entry point:
// Client.Fetch and its per-verb convenience wrappers.
package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/WhileEndless/go-rawhttp/v3/pkg/body"
	"github.com/WhileEndless/go-rawhttp/v3/pkg/connection"
	"github.com/WhileEndless/go-rawhttp/v3/pkg/constants"
	rherrors "github.com/WhileEndless/go-rawhttp/v3/pkg/errors"
	"github.com/WhileEndless/go-rawhttp/v3/pkg/header"
	"github.com/WhileEndless/go-rawhttp/v3/pkg/pool"
	"github.com/WhileEndless/go-rawhttp/v3/pkg/resolver"
	"go.uber.org/zap"
)

// Config holds every tunable of a Client. Zero-value fields fall back to
// the constants package's defaults, except the booleans: a zero
// RaiseError stays false (DefaultConfig sets it to true) and a zero
// DisableKeepAlive keeps keep-alive on.
type Config struct {
	IdleTimeout        time.Duration
	Timeout            time.Duration
	MaxInitialSize     int
	MaxBodySize        int64
	ChunkSize          int
	DisableKeepAlive   bool
	TLSConfig          *tls.Config
	MaxIdleConnections int
	MaxRedirects       int
	Resolver           resolver.Resolver
	RaiseError         bool
	ConnTimeout        time.Duration
	Logger             *zap.Logger
}

// DefaultConfig returns a Config with every field at its documented
// default.
func DefaultConfig() Config {
	return Config{
		IdleTimeout:        constants.DefaultIdleTimeout,
		Timeout:            constants.DefaultTimeout,
		MaxInitialSize:     constants.DefaultMaxInitialSize,
		MaxBodySize:        constants.DefaultMaxBodySize,
		ChunkSize:          constants.DefaultChunkSize,
		MaxIdleConnections: constants.DefaultMaxIdleConnections,
		MaxRedirects:       constants.DefaultMaxRedirects,
		RaiseError:         true,
		ConnTimeout:        constants.DefaultConnTimeout,
	}
}

func (c *Config) fillDefaults() {
	d := DefaultConfig()
	if c.IdleTimeout == 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxInitialSize == 0 {
		c.MaxInitialSize = d.MaxInitialSize
	}
	if c.MaxBodySize == 0 {
		c.MaxBodySize = d.MaxBodySize
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.MaxIdleConnections == 0 {
		c.MaxIdleConnections = d.MaxIdleConnections
	}
	if c.MaxRedirects == 0 {
		c.MaxRedirects = d.MaxRedirects
	}
	if c.ConnTimeout == 0 {
		c.ConnTimeout = d.ConnTimeout
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Resolver == nil {
		c.Resolver = resolver.NewSystemResolver(c.Logger)
	}
}

// readWriteLock coordinates fetches against Close: any number of
// in-flight fetches hold the read side concurrently; Close takes the
// write side, which blocks until every fetch has drained.
type readWriteLock struct {
	mu      sync.RWMutex
	closing bool
	gate    sync.Mutex
}

func (l *readWriteLock) enter() error {
	l.gate.Lock()
	defer l.gate.Unlock()
	if l.closing {
		return rherrors.NewConnectionClosed("client_closing", nil)
	}
	// Acquiring the read side under the gate means no fetch can slip in
	// after Close has marked the client closing.
	l.mu.RLock()
	return nil
}

func (l *readWriteLock) leave() {
	l.mu.RUnlock()
}

func (l *readWriteLock) closeGate() {
	l.gate.Lock()
	l.closing = true
	l.gate.Unlock()
	l.mu.Lock()
}

// Client composes a resolver, a connection pool, and the redirect driver
// into request/response fetches.
type Client struct {
	config Config
	pool   *pool.Pool
	lock   readWriteLock
}

// New builds a Client. Fields left at their zero value in config use
// DefaultConfig's values, except RaiseError, which stays false.
func New(config Config) *Client {
	config.fillDefaults()
	return &Client{
		config: config,
		pool:   pool.New(config.MaxIdleConnections, config.Logger),
	}
}

// Close closes every idle pooled connection and blocks new fetches from
// starting, waiting for in-flight ones to finish first.
func (c *Client) Close() error {
	c.lock.closeGate()
	defer c.lock.mu.Unlock()
	c.pool.Close()
	return nil
}

func (c *Client) getConn(id connection.ID) *connection.Connection {
	if conn, ok := c.pool.CheckOut(id); ok && !conn.Closing() {
		return conn
	}
	return connection.New(id, connection.Config{
		MaxInitialSize: c.config.MaxInitialSize,
		ChunkSize:      c.config.ChunkSize,
		TLSConfig:      c.config.TLSConfig,
		IdleTimeout:    c.config.IdleTimeout,
		ConnTimeout:    c.config.ConnTimeout,
		Resolver:       c.config.Resolver,
		Logger:         c.config.Logger,
	})
}

func (c *Client) putConn(conn *connection.Connection) {
	if c.config.DisableKeepAlive {
		conn.Close()
		return
	}
	c.pool.CheckIn(conn)
}

// FetchRequest is the mutable request a caller builds before calling
// Fetch. Body, Form and JSON are mutually exclusive.
type FetchRequest struct {
	PathArgs url.Values
	Headers  *header.Ordered
	Body     body.Producer
	Form     url.Values
	JSON     any

	ReadResponseBody  bool
	Timeout           time.Duration
	FollowRedirection bool
	MaxRedirects      int
	MaxBodySize       int64
	RaiseError        *bool
}

// Fetch issues method against rawURL, merging the URL's own query
// string and req.PathArgs into the wire request (for a key present in
// both, the URL's values come first; the encoded query string is sorted
// by key, so the URL's keys do not all precede PathArgs' keys), then
// either sends it directly or, if req.FollowRedirection is set, drives
// it through the redirect chain. Each hop of a redirect chain comes
// back through Fetch with redirection disabled, so every hop takes its
// own turn on the read/close lock.
func (c *Client) Fetch(ctx context.Context, method, rawURL string, req FetchRequest) (*Response, error) {
	raiseErr := c.config.RaiseError
	if req.RaiseError != nil {
		raiseErr = *req.RaiseError
	}

	var resp *Response
	var err error
	if req.FollowRedirection {
		resp, err = c.handleRedirection(ctx, method, rawURL, req)
	} else {
		var pending *PendingRequest
		pending, err = c.buildPendingRequest(method, rawURL, req)
		if err != nil {
			return nil, err
		}

		readBody := req.ReadResponseBody
		maxBodySize := req.MaxBodySize
		if maxBodySize <= 0 {
			maxBodySize = c.config.MaxBodySize
		}
		timeout := req.Timeout
		if timeout <= 0 {
			timeout = c.config.Timeout
		}
		resp, err = c.sendRequest(ctx, pending, readBody, timeout, maxBodySize)
	}
	if err != nil {
		return nil, err
	}

	if raiseErr && resp.statusCode >= 400 {
		return resp, rherrors.NewHTTPError(resp)
	}
	return resp, nil
}

func (c *Client) buildPendingRequest(method, rawURL string, req FetchRequest) (*PendingRequest, error) {
	method = strings.ToUpper(method)

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, rherrors.NewValidationError("invalid URL: " + err.Error())
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "http"
	}
	scheme := normalizeScheme(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, rherrors.NewValidationError("unsupported scheme: " + scheme)
	}

	pending := NewPendingRequest(method, scheme, splitAuthority(parsed), parsed.Path)
	if pending.Path == "" {
		pending.Path = "/"
	}

	for k, vs := range parsed.Query() {
		for _, v := range vs {
			pending.PathArgs.Add(k, v)
		}
	}
	for k, vs := range req.PathArgs {
		for _, v := range vs {
			pending.PathArgs.Add(k, v)
		}
	}

	if req.Headers != nil {
		for _, p := range req.Headers.Pairs() {
			pending.Headers.Add(p.Key, p.Value)
		}
	}
	pending.Headers.SetDefault("User-Agent", selfIdentifier)
	pending.Headers.SetDefault("Accept", "*/*")

	bodyCount := 0
	if req.Body != nil {
		bodyCount++
	}
	if req.Form != nil {
		bodyCount++
	}
	if req.JSON != nil {
		bodyCount++
	}
	if bodyCount > 1 {
		return nil, rherrors.NewValidationError("body, form and JSON are mutually exclusive")
	}

	switch {
	case req.Body != nil:
		pending.Body = req.Body
	case req.Form != nil:
		form := body.NewUrlEncoded(req.Form)
		pending.Body = form
		pending.Headers.SetDefault("Content-Type", form.ContentType())
	case req.JSON != nil:
		j, err := body.NewJSON(req.JSON)
		if err != nil {
			return nil, rherrors.NewValidationError("invalid JSON body: " + err.Error())
		}
		pending.Body = j
		pending.Headers.SetDefault("Content-Type", j.ContentType())
	}

	if ct, ok := pending.Body.(body.ContentTyper); ok {
		pending.Headers.SetDefault("Content-Type", ct.ContentType())
	}

	if method == "HEAD" {
		if _, known := pending.Body.(*body.Empty); !known {
			return nil, rherrors.NewValidationError("HEAD requests may not carry a body")
		}
	}

	pending.Headers.SetDefault("Host", pending.Authority)

	return pending, nil
}

func (c *Client) sendRequest(ctx context.Context, pending *PendingRequest, readBody bool, timeout time.Duration, maxBodySize int64) (*Response, error) {
	if err := c.lock.enter(); err != nil {
		return nil, err
	}
	defer c.lock.leave()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn := c.getConn(pending.ConnID())

	result, err := conn.SendRequest(ctx, pending.Method, pending.URI(), pending.Headers, pending.Body, connection.SendOptions{
		ReadResponseBody: readBody,
		MaxBodySize:      maxBodySize,
	})
	if err != nil {
		conn.Close()
		if rherrors.IsTimeoutError(err) || ctx.Err() != nil {
			return nil, rherrors.NewRequestTimeout("fetch", timeout, err)
		}
		return nil, err
	}

	if readBody {
		c.putConn(conn)
	}

	resp := &Response{
		Request:    pending,
		Version:    result.Head.Version,
		statusCode: result.Head.StatusCode,
		statusText: result.Head.StatusText,
		Headers:    result.Head.Headers,
	}
	if readBody {
		resp.body = body.ResponseBody(result.Body)
	}
	return resp, nil
}

// locationPattern admits absolute URIs and path-absolute targets;
// relative-path redirects are not followed.
var locationPattern = regexp.MustCompile(`^(http:/|https:/)?/`)

func isAbsoluteLocation(location string) bool {
	return locationPattern.MatchString(location)
}

func authorityURL(scheme, authority string) string {
	return fmt.Sprintf("%s://%s", scheme, authority)
}
