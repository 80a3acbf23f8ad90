package connection

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/WhileEndless/go-rawhttp/v3/pkg/body"
	"github.com/WhileEndless/go-rawhttp/v3/pkg/codec"
	rherrors "github.com/WhileEndless/go-rawhttp/v3/pkg/errors"
	"github.com/WhileEndless/go-rawhttp/v3/pkg/header"
	"github.com/WhileEndless/go-rawhttp/v3/pkg/resolver"
	"github.com/WhileEndless/go-rawhttp/v3/pkg/timing"
	"go.uber.org/zap"
)

// Config configures a Connection's connect and framing behaviour.
type Config struct {
	MaxInitialSize int
	ChunkSize      int
	TLSConfig      *tls.Config
	IdleTimeout    time.Duration
	ConnTimeout    time.Duration
	Resolver       resolver.Resolver
	Logger         *zap.Logger
}

// SendOptions controls how a single request/response exchange behaves.
type SendOptions struct {
	ReadResponseBody bool
	MaxBodySize      int64
}

// Result is everything SendRequest produces for one exchange.
type Result struct {
	Head    *codec.ResponseHead
	Body    []byte
	Metrics timing.Metrics
}

// Connection is a single HTTP/1.1 connection bound to one ID. It allows
// exactly one in-flight request at a time; the caller is responsible for
// not calling SendRequest concurrently on the same Connection.
type Connection struct {
	id     ID
	config Config

	mu        sync.Mutex
	conn      net.Conn
	closed    bool
	closedCh  chan struct{}
	idleTimer *time.Timer
}

// New creates a Connection that has not yet dialed out. Dialing happens
// lazily on the first SendRequest (via GetReady).
func New(id ID, config Config) *Connection {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	c := &Connection{id: id, config: config, closedCh: make(chan struct{})}
	// Diagnostic only: a connection collected while still open means the
	// caller dropped it without closing or returning it to the pool.
	runtime.SetFinalizer(c, func(c *Connection) {
		if !c.Closing() {
			c.config.Logger.Warn("connection dropped without Close",
				zap.String("authority", c.id.Authority))
			c.Close()
		}
	})
	return c
}

// ID returns the connection's identity.
func (c *Connection) ID() ID { return c.id }

// Closing reports whether the connection has been closed.
func (c *Connection) Closing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Connection) cancelIdleTimer() {
	if c.idleTimer != nil {
		c.idleTimer.Stop()
		c.idleTimer = nil
	}
}

func (c *Connection) armIdleTimer() {
	c.cancelIdleTimer()
	if c.config.IdleTimeout <= 0 {
		return
	}
	c.idleTimer = time.AfterFunc(c.config.IdleTimeout, func() {
		c.config.Logger.Debug("connection idle timeout fired", zap.String("authority", c.id.Authority))
		c.Close()
	})
}

// GetReady ensures the connection has a live transport, dialing lazily
// (racing every resolved record via happy-eyeballs) if needed. timer may
// be nil; when given, it is stamped with the DNS and connect phases a
// fresh dial goes through (a no-op when the connection is already
// connected).
func (c *Connection) GetReady(ctx context.Context, timer *timing.Timer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelIdleTimer()

	if c.closed {
		return rherrors.NewConnectionClosed("get_ready", nil)
	}
	if c.conn != nil {
		return nil
	}

	if timer != nil {
		timer.StartDNS()
	}
	res, err := c.config.Resolver.Lookup(ctx, c.id.Hostname(), c.id.Port())
	if timer != nil {
		timer.EndDNS()
	}
	if err != nil {
		return err
	}

	dial := func(ctx context.Context, rec resolver.Record) (net.Conn, error) {
		d := &net.Dialer{Timeout: c.config.ConnTimeout}
		return d.DialContext(ctx, rec.Network(), rec.Addr())
	}

	var tlsConfig *tls.Config
	if c.id.Scheme == "https" {
		tlsConfig = c.config.TLSConfig
		if tlsConfig == nil {
			tlsConfig = &tls.Config{ServerName: c.id.Hostname()}
		} else if tlsConfig.ServerName == "" {
			clone := tlsConfig.Clone()
			clone.ServerName = c.id.Hostname()
			tlsConfig = clone
		}
	}

	// Happy-eyeballs races TCP connect and the TLS handshake together
	// per candidate record, so they can't be timed as separate phases
	// here; the combined time is attributed to TCPConnect and, when TLS
	// is in play, mirrored onto TLSHandshake so neither phase reads as
	// suspiciously zero.
	if timer != nil {
		timer.StartTCP()
		if tlsConfig != nil {
			timer.StartTLS()
		}
	}
	conn, _, err := res.ConnectFastest(ctx, dial, tlsConfig)
	if timer != nil {
		timer.EndTCP()
		if tlsConfig != nil {
			timer.EndTLS()
		}
	}
	if err != nil {
		return err
	}

	c.conn = conn
	return nil
}

// SendRequest writes method/uri/headers/body over the connection and
// reads the matching response, enforcing maxBodySize and closing the
// connection immediately when the caller does not want the body (the
// connection can't be safely reused without draining it).
func (c *Connection) SendRequest(ctx context.Context, method, uri string, headers *header.Ordered, producer body.Producer, opts SendOptions) (*Result, error) {
	timer := timing.NewTimer()
	if err := c.GetReady(ctx, timer); err != nil {
		return nil, err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, rherrors.NewConnectionClosed("send_request", nil)
	}

	// Bound every read and write on this exchange by the caller's
	// deadline, so a whole-request timeout interrupts mid-stream I/O.
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Time{})
	}

	chunked := false
	if !headers.Has("Content-Length") {
		if l, ok := producer.(body.Lener); ok {
			if n, known := l.Len(); known {
				if n > 0 {
					headers.Set("Content-Length", strconv.FormatInt(n, 10))
				}
			} else {
				chunked = true
			}
		} else {
			chunked = true
		}
	}
	if chunked {
		headers.Set("Transfer-Encoding", "chunked")
	}

	w := codec.NewWriter(conn)
	if err := w.WriteRequestLine(method, uri); err != nil {
		c.Close()
		return nil, rherrors.NewConnectionClosed("write_request_line", err)
	}
	if err := w.WriteHeaders(headers, chunked); err != nil {
		c.Close()
		return nil, rherrors.NewConnectionClosed("write_headers", err)
	}

	buf := make([]byte, c.config.ChunkSize)
	for {
		n, err := producer.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				c.Close()
				return nil, rherrors.NewConnectionClosed("write_body", werr)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			c.Close()
			return nil, err
		}
	}
	if err := w.Finish(); err != nil {
		c.Close()
		return nil, rherrors.NewConnectionClosed("finish_request", err)
	}

	timer.StartTTFB()
	r := codec.NewReaderSize(conn, c.config.MaxInitialSize)
	head, err := r.ReadHead()
	timer.EndTTFB()
	if err != nil {
		c.Close()
		return nil, mapCodecErr(err, c.config.MaxInitialSize)
	}

	var bodyBuf []byte
	if opts.ReadResponseBody {
		limit := opts.MaxBodySize
		if limit <= 0 {
			limit = 1 << 62
		}
		var sink growBuffer
		if err := r.ReadBody(head, method, &sink, limit); err != nil {
			c.Close()
			return nil, mapCodecErr(err, int(limit))
		}
		bodyBuf = sink.Bytes()
		c.mu.Lock()
		if !c.closed {
			c.armIdleTimer()
		}
		c.mu.Unlock()
	} else {
		c.Close()
	}

	return &Result{Head: head, Body: bodyBuf, Metrics: timer.GetMetrics()}, nil
}

func mapCodecErr(err error, limit int) error {
	switch err {
	case codec.ErrEntityTooLarge:
		return rherrors.NewResponseEntityTooLarge(limit)
	case codec.ErrReceivedDataMalformed:
		return rherrors.NewBadResponse("malformed response", err)
	case codec.ErrReadAborted, codec.ErrWriteAborted, codec.ErrWriteAfterFinished:
		return rherrors.NewConnectionClosed("exchange", err)
	default:
		return rherrors.NewConnectionClosed("exchange", err)
	}
}

// Close closes the underlying transport. Idempotent.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Connection) closeLocked() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.cancelIdleTimer()
	close(c.closedCh)
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// WaitClosed blocks until the connection has been closed.
func (c *Connection) WaitClosed(ctx context.Context) error {
	select {
	case <-c.closedCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type growBuffer struct {
	data []byte
}

func (g *growBuffer) Write(p []byte) (int, error) {
	g.data = append(g.data, p...)
	return len(p), nil
}

func (g *growBuffer) Bytes() []byte { return g.data }
