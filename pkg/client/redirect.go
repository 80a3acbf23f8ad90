package client

import (
	"context"
	"strings"

	"github.com/WhileEndless/go-rawhttp/v3/pkg/body"
	rherrors "github.com/WhileEndless/go-rawhttp/v3/pkg/errors"
)

// handleRedirection drives a fetch through its redirect chain: 301/302
// /303 rewrite to a bodyless GET, 307/308 replay the original
// method/body via Rewind. Each hop is issued through Fetch with
// redirection disabled, so it goes through its own pool check-out and
// its own turn on the read/close lock — Close can engage between hops.
// Exceeding maxRedirects raises TooManyRedirects carrying the request
// the next, unfollowed hop would have sent.
func (c *Client) handleRedirection(ctx context.Context, method, rawURL string, req FetchRequest) (*Response, error) {
	maxRedirects := req.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = c.config.MaxRedirects
	}

	// Status handling happens once, in the outermost Fetch; the hops
	// themselves never raise on 4xx/5xx.
	noRaise := false
	hop := req
	hop.FollowRedirection = false
	hop.RaiseError = &noRaise

	for i := 0; i <= maxRedirects; i++ {
		resp, err := c.Fetch(ctx, method, rawURL, hop)
		if err != nil {
			return nil, err
		}
		if !resp.IsRedirect() {
			return resp, nil
		}

		location, ok := resp.Headers.Get("Location")
		if !ok {
			return nil, rherrors.NewBadResponse("redirect response missing Location header", nil)
		}
		if !isAbsoluteLocation(location) {
			return nil, rherrors.NewFailedRedirection("redirect Location must be absolute or root-relative: " + location)
		}

		prev := resp.Request
		if strings.HasPrefix(location, "/") {
			location = authorityURL(prev.Scheme, prev.Authority) + location
		}

		if resp.statusCode < 304 {
			// 301, 302, 303: rewrite to a bodyless GET, dropping prior
			// headers except what a fresh request naturally sets.
			method = "GET"
			hop.Headers = nil
			hop.Body = nil
			hop.Form = nil
			hop.JSON = nil
		} else {
			// 307, 308: preserve method, headers and body, replaying the
			// body from the start.
			if err := rewindForReplay(prev.Body); err != nil {
				return nil, err
			}
			carried := prev.Headers.Clone()
			carried.Del("Host")
			hop.Headers = carried
			hop.Body = prev.Body
			hop.Form = nil
			hop.JSON = nil
		}
		hop.PathArgs = nil
		rawURL = location
	}

	last, err := c.buildPendingRequest(method, rawURL, hop)
	if err != nil {
		last = nil
	}
	return nil, rherrors.NewTooManyRedirects(last)
}

func rewindForReplay(producer body.Producer) error {
	switch b := producer.(type) {
	case *body.Empty:
		return nil
	case body.Rewinder:
		if err := b.Rewind(); err != nil {
			return rherrors.NewFailedRedirection("cannot replay request body for redirect: " + err.Error())
		}
		return nil
	default:
		return rherrors.NewFailedRedirection("request body does not support replay, cannot follow redirect")
	}
}
