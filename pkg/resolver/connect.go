package resolver

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
)

// Dialer opens a raw connection to a single resolved record.
type Dialer func(ctx context.Context, record Record) (net.Conn, error)

type raceOutcome struct {
	conn   net.Conn
	record Record
	err    error
}

// ConnectFastest races a TCP (and, if tlsConfig is non-nil, TLS) connect
// against every record in the result, returning the first to succeed and
// cancelling the rest. A previously-successful record is tried alone
// first; if it fails, it is evicted and every record races again.
func (r *Result) ConnectFastest(ctx context.Context, dial Dialer, tlsConfig *tls.Config) (net.Conn, Record, error) {
	r.mu.Lock()
	fastest := r.fastest
	r.mu.Unlock()

	if fastest != nil {
		conn, err := connectOne(ctx, dial, tlsConfig, *fastest)
		if err == nil {
			return conn, *fastest, nil
		}
		r.mu.Lock()
		r.fastest = nil
		r.mu.Unlock()
	}

	if len(r.Records) == 0 {
		return nil, Record{}, wrapUnresolvable(r.Host, r.Port, nil)
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan raceOutcome, len(r.Records))
	var wg sync.WaitGroup
	for _, rec := range r.Records {
		wg.Add(1)
		go func(rec Record) {
			defer wg.Done()
			conn, err := connectOne(raceCtx, dial, tlsConfig, rec)
			results <- raceOutcome{conn: conn, record: rec, err: err}
		}(rec)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var winner *raceOutcome
	var lastErr error
	for outcome := range results {
		if outcome.err != nil {
			lastErr = outcome.err
			continue
		}
		if winner == nil {
			o := outcome
			winner = &o
			cancel()
			continue
		}
		outcome.conn.Close()
	}

	if winner == nil {
		return nil, Record{}, wrapUnresolvable(r.Host, r.Port, lastErr)
	}

	r.mu.Lock()
	rec := winner.record
	r.fastest = &rec
	r.mu.Unlock()

	return winner.conn, winner.record, nil
}

func connectOne(ctx context.Context, dial Dialer, tlsConfig *tls.Config, record Record) (net.Conn, error) {
	conn, err := dial(ctx, record)
	if err != nil {
		return nil, err
	}

	if tlsConfig == nil {
		return conn, nil
	}

	tlsConn := tls.Client(conn, tlsConfig)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return tlsConn, nil
}
