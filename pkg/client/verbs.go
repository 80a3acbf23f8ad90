package client

import "context"

// Get issues a GET request with redirects followed.
func (c *Client) Get(ctx context.Context, url string, req FetchRequest) (*Response, error) {
	req.FollowRedirection = true
	req.ReadResponseBody = true
	return c.Fetch(ctx, "GET", url, req)
}

// Post issues a POST request with redirects followed.
func (c *Client) Post(ctx context.Context, url string, req FetchRequest) (*Response, error) {
	req.FollowRedirection = true
	req.ReadResponseBody = true
	return c.Fetch(ctx, "POST", url, req)
}

// Put issues a PUT request with redirects followed.
func (c *Client) Put(ctx context.Context, url string, req FetchRequest) (*Response, error) {
	req.FollowRedirection = true
	req.ReadResponseBody = true
	return c.Fetch(ctx, "PUT", url, req)
}

// Delete issues a DELETE request with redirects followed.
func (c *Client) Delete(ctx context.Context, url string, req FetchRequest) (*Response, error) {
	req.FollowRedirection = true
	req.ReadResponseBody = true
	return c.Fetch(ctx, "DELETE", url, req)
}

// Patch issues a PATCH request with redirects followed.
func (c *Client) Patch(ctx context.Context, url string, req FetchRequest) (*Response, error) {
	req.FollowRedirection = true
	req.ReadResponseBody = true
	return c.Fetch(ctx, "PATCH", url, req)
}

// Head issues a HEAD request. The response body is never read.
func (c *Client) Head(ctx context.Context, url string, req FetchRequest) (*Response, error) {
	req.ReadResponseBody = false
	return c.Fetch(ctx, "HEAD", url, req)
}

// Options issues an OPTIONS request with redirects followed.
func (c *Client) Options(ctx context.Context, url string, req FetchRequest) (*Response, error) {
	req.FollowRedirection = true
	req.ReadResponseBody = true
	return c.Fetch(ctx, "OPTIONS", url, req)
}
