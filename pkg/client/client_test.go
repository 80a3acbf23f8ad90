package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/WhileEndless/go-rawhttp/v3/pkg/body"
	rherrors "github.com/WhileEndless/go-rawhttp/v3/pkg/errors"
	"github.com/WhileEndless/go-rawhttp/v3/pkg/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	line    string
	headers map[string]string
	body    []byte
}

// runScriptedServer accepts a single connection and, for each entry in
// responses, reads one request (headers plus any Content-Length body)
// and writes the corresponding canned response. Every received request
// is recorded in order; done closes once every response has been sent.
func runScriptedServer(t *testing.T, ln net.Listener, responses []string) (*[]capturedRequest, chan struct{}) {
	t.Helper()
	requests := make([]capturedRequest, 0, len(responses))
	done := make(chan struct{})

	go func() {
		defer close(done)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		reader := bufio.NewReader(conn)

		for _, resp := range responses {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			req := capturedRequest{line: strings.TrimRight(line, "\r\n"), headers: map[string]string{}}

			contentLength := 0
			for {
				hline, err := reader.ReadString('\n')
				if err != nil {
					return
				}
				trimmed := strings.TrimRight(hline, "\r\n")
				if trimmed == "" {
					break
				}
				parts := strings.SplitN(trimmed, ":", 2)
				if len(parts) == 2 {
					key := strings.TrimSpace(parts[0])
					val := strings.TrimSpace(parts[1])
					req.headers[strings.ToLower(key)] = val
					if strings.EqualFold(key, "Content-Length") {
						contentLength, _ = strconv.Atoi(val)
					}
				}
			}
			if contentLength > 0 {
				buf := make([]byte, contentLength)
				if _, err := io.ReadFull(reader, buf); err != nil {
					return
				}
				req.body = buf
			}

			requests = append(requests, req)
			if _, err := conn.Write([]byte(resp)); err != nil {
				return
			}
		}
	}()

	return &requests, done
}

func testClient(t *testing.T, ln net.Listener) *Client {
	t.Helper()
	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	res := resolver.NewBaseResolver(func(ctx context.Context, h string, p int) (*resolver.Result, error) {
		return resolver.NewResult(h, p, []resolver.Record{{IP: host, Port: port}}, time.Minute), nil
	}, nil)

	cfg := DefaultConfig()
	cfg.Resolver = res
	return New(cfg)
}

func waitDone(t *testing.T, done chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scripted server did not finish in time")
	}
}

func TestClientSimpleGET(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	requests, done := runScriptedServer(t, ln, []string{
		"HTTP/1.1 200 OK\r\nContent-Length: 13\r\n\r\nHello, World!",
	})

	c := testClient(t, ln)
	defer c.Close()

	resp, err := c.Get(context.Background(), fmt.Sprintf("http://%s/", ln.Addr().String()), FetchRequest{})
	require.NoError(t, err)
	waitDone(t, done)

	assert.Equal(t, 200, resp.StatusCode())
	assert.Equal(t, "Hello, World!", resp.Body().ToString())
	assert.Equal(t, "GET / HTTP/1.1", (*requests)[0].line)
	assert.Contains(t, (*requests)[0].headers["user-agent"], "go-rawhttp")
	assert.Equal(t, "*/*", (*requests)[0].headers["accept"])
	assert.Equal(t, ln.Addr().String(), (*requests)[0].headers["host"])
	assert.NotContains(t, (*requests)[0].headers, "content-length", "an empty body must set no framing headers")
	assert.NotContains(t, (*requests)[0].headers, "transfer-encoding")
}

func TestClientRedirectChainSucceeds(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	responses := make([]string, 0, 11)
	for i := 0; i < 10; i++ {
		responses = append(responses, "HTTP/1.1 302 Found\r\nLocation: /\r\nContent-Length: 0\r\n\r\n")
	}
	responses = append(responses, "HTTP/1.1 200 OK\r\nContent-Length: 13\r\n\r\nHello, World!")
	_, done := runScriptedServer(t, ln, responses)

	c := testClient(t, ln)
	defer c.Close()

	resp, err := c.Get(context.Background(), fmt.Sprintf("http://%s/", ln.Addr().String()), FetchRequest{
		FollowRedirection: true,
		MaxRedirects:      10,
	})
	require.NoError(t, err)
	waitDone(t, done)

	assert.Equal(t, 200, resp.StatusCode())
	assert.Equal(t, "Hello, World!", resp.Body().ToString())
}

func TestClientTooManyRedirects(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	responses := make([]string, 0, 11)
	for i := 0; i < 10; i++ {
		responses = append(responses, "HTTP/1.1 302 Found\r\nLocation: /\r\nContent-Length: 0\r\n\r\n")
	}
	responses = append(responses, "HTTP/1.1 200 OK\r\nContent-Length: 13\r\n\r\nHello, World!")
	runScriptedServer(t, ln, responses)

	c := testClient(t, ln)
	defer c.Close()

	_, err = c.Get(context.Background(), fmt.Sprintf("http://%s/", ln.Addr().String()), FetchRequest{
		FollowRedirection: true,
		MaxRedirects:      9,
	})
	require.Error(t, err)
	assert.Equal(t, rherrors.ErrorTypeTooManyRedirects, rherrors.GetErrorType(err))
}

func TestClient307ReplaysBody(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	requests, done := runScriptedServer(t, ln, []string{
		"HTTP/1.1 307 Temporary Redirect\r\nLocation: /other\r\nContent-Length: 0\r\n\r\n",
		"HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n",
	})

	c := testClient(t, ln)
	defer c.Close()

	_, err = c.Post(context.Background(), fmt.Sprintf("http://%s/", ln.Addr().String()), FetchRequest{
		Body:              body.NewBytes([]byte("1234567890")),
		FollowRedirection: true,
	})
	require.NoError(t, err)
	waitDone(t, done)

	reqs := *requests
	require.Len(t, reqs, 2)
	assert.Equal(t, "POST /other HTTP/1.1", reqs[1].line)
	assert.Equal(t, "1234567890", string(reqs[1].body))
	assert.Equal(t, "10", reqs[1].headers["content-length"])
}

func TestClientUrlEncodedForm(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	requests, done := runScriptedServer(t, ln, []string{
		"HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n",
	})

	c := testClient(t, ln)
	defer c.Close()

	_, err = c.Post(context.Background(), fmt.Sprintf("http://%s/", ln.Addr().String()), FetchRequest{
		Form: url.Values{"a": {"b"}, "c": {"d"}},
	})
	require.NoError(t, err)
	waitDone(t, done)

	req := (*requests)[0]
	assert.Equal(t, "a=b&c=d", string(req.body))
	assert.Equal(t, "application/x-www-form-urlencoded", req.headers["content-type"])
	assert.Equal(t, "7", req.headers["content-length"])
}

func TestClientResponseEntityTooLarge(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	oversized := strings.Repeat("x", 128*1024)
	runScriptedServer(t, ln, []string{
		fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Length: %d\r\n\r\n%s", len(oversized), oversized),
	})

	c := testClient(t, ln)
	defer c.Close()

	_, err = c.Get(context.Background(), fmt.Sprintf("http://%s/", ln.Addr().String()), FetchRequest{
		MaxBodySize: 12,
	})
	require.Error(t, err)
	assert.Equal(t, rherrors.ErrorTypeResponseEntityTooLarge, rherrors.GetErrorType(err))
}

func TestClientMalformedVersionIsBadResponse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	runScriptedServer(t, ln, []string{
		"HTTP/1.2 200 OK\r\nContent-Length: 0\r\n\r\n",
	})

	c := testClient(t, ln)
	defer c.Close()

	_, err = c.Get(context.Background(), fmt.Sprintf("http://%s/", ln.Addr().String()), FetchRequest{})
	require.Error(t, err)
	assert.Equal(t, rherrors.ErrorTypeBadResponse, rherrors.GetErrorType(err))
}
