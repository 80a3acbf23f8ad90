package client

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/WhileEndless/go-rawhttp/v3/pkg/body"
	"github.com/WhileEndless/go-rawhttp/v3/pkg/connection"
	"github.com/WhileEndless/go-rawhttp/v3/pkg/header"
)

// selfIdentifier is the default User-Agent value, in the
// "<name>/<version> <codec>/<codec-version>" shape.
const selfIdentifier = "go-rawhttp/3.0.0 codec/1.0.0"

// PendingRequest is a request before it has been sent: enough to derive
// a connection.ID, write wire bytes, and — on a redirect — be rewritten
// and replayed.
type PendingRequest struct {
	Method    string
	Scheme    string
	Authority string
	Path      string
	PathArgs  url.Values
	Headers   *header.Ordered
	Body      body.Producer

	cachedURI string
}

// NewPendingRequest builds a PendingRequest with empty headers and no
// body. User-Agent/Accept/Host defaults are applied by the client once
// caller headers have been merged in.
func NewPendingRequest(method, scheme, authority, path string) *PendingRequest {
	return &PendingRequest{
		Method:    method,
		Scheme:    scheme,
		Authority: authority,
		Path:      path,
		PathArgs:  url.Values{},
		Headers:   header.New(),
		Body:      body.NewEmpty(),
	}
}

// URI returns the request-target: path plus an encoded query string, if
// any, memoized on first access.
func (p *PendingRequest) URI() string {
	if p.cachedURI != "" {
		return p.cachedURI
	}
	if len(p.PathArgs) == 0 {
		p.cachedURI = p.Path
		return p.cachedURI
	}
	p.cachedURI = p.Path + "?" + p.PathArgs.Encode()
	return p.cachedURI
}

// ConnID derives this request's connection.ID.
func (p *PendingRequest) ConnID() connection.ID {
	return connection.ID{Authority: p.Authority, Scheme: p.Scheme, Version: "1.1"}
}

func (p *PendingRequest) String() string {
	return fmt.Sprintf("%s %s://%s%s", p.Method, p.Scheme, p.Authority, p.URI())
}

// Response is a completed HTTP exchange: the request that produced it,
// the parsed status/headers, and the body (empty unless the caller
// asked for it to be read).
type Response struct {
	Request    *PendingRequest
	Version    string
	statusCode int
	statusText string
	Headers    *header.Ordered
	body       body.ResponseBody
}

// StatusCode implements errors.Responser.
func (r *Response) StatusCode() int { return r.statusCode }

// StatusText implements errors.Responser.
func (r *Response) StatusText() string { return r.statusText }

// Body returns the response body, or body.EmptyResponseBody if it was
// never read.
func (r *Response) Body() body.ResponseBody {
	if r.body == nil {
		return body.EmptyResponseBody
	}
	return r.body
}

func (r *Response) String() string {
	return fmt.Sprintf("HTTP %d %s", r.statusCode, r.statusText)
}

// IsRedirect reports whether this status code is one the redirect
// driver knows how to follow.
func (r *Response) IsRedirect() bool {
	switch r.statusCode {
	case 301, 302, 303, 307, 308:
		return true
	default:
		return false
	}
}

func splitAuthority(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	if u.Scheme == "https" {
		return u.Host + ":443"
	}
	return u.Host + ":80"
}

func normalizeScheme(scheme string) string {
	if scheme == "" {
		return "http"
	}
	return strings.ToLower(scheme)
}
