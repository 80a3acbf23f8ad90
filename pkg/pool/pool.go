// Package pool implements the idle connection pool: an insertion-ordered
// map from connection.ID to *connection.Connection, FIFO eviction once
// max idle connections is exceeded, and "newcomer loses" check-in
// semantics when two requests race to return a connection for the same
// ID.
package pool

import (
	"container/list"
	"sync"

	"github.com/WhileEndless/go-rawhttp/v3/pkg/connection"
	"go.uber.org/zap"
)

type entry struct {
	id   connection.ID
	conn *connection.Connection
}

// Pool holds idle connections, keyed by connection.ID.
type Pool struct {
	mu      sync.Mutex
	order   *list.List // front = oldest idle entry
	index   map[connection.ID]*list.Element
	maxIdle int
	logger  *zap.Logger
}

// New creates a Pool that evicts the oldest idle connection once more
// than maxIdle are held. maxIdle <= 0 means unlimited.
func New(maxIdle int, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		order:   list.New(),
		index:   make(map[connection.ID]*list.Element),
		maxIdle: maxIdle,
		logger:  logger,
	}
}

// CheckOut removes and returns the idle connection for id, if any.
func (p *Pool) CheckOut(id connection.ID) (*connection.Connection, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	elem, ok := p.index[id]
	if !ok {
		return nil, false
	}
	delete(p.index, id)
	p.order.Remove(elem)
	return elem.Value.(*entry).conn, true
}

// CheckIn returns conn to the pool. If an idle connection already
// occupies conn's ID, the existing entry wins the race and conn is
// closed instead of replacing it. If checking conn in pushes the pool
// over its idle limit, the single oldest idle connection is evicted and
// closed.
func (p *Pool) CheckIn(conn *connection.Connection) {
	if conn.Closing() {
		return
	}

	id := conn.ID()

	p.mu.Lock()
	if _, exists := p.index[id]; exists {
		p.mu.Unlock()
		p.logger.Debug("pool check-in lost race, closing newcomer", zap.String("authority", id.Authority))
		conn.Close()
		return
	}

	elem := p.order.PushBack(&entry{id: id, conn: conn})
	p.index[id] = elem

	var evicted *connection.Connection
	if p.maxIdle > 0 && p.order.Len() > p.maxIdle {
		oldest := p.order.Front()
		oldEntry := oldest.Value.(*entry)
		p.order.Remove(oldest)
		delete(p.index, oldEntry.id)
		evicted = oldEntry.conn
	}
	p.mu.Unlock()

	if evicted != nil {
		p.logger.Debug("pool evicted oldest idle connection", zap.String("authority", evicted.ID().Authority))
		evicted.Close()
	}
}

// Len returns the number of idle connections currently held.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.order.Len()
}

// Close closes every idle connection and empties the pool.
func (p *Pool) Close() {
	p.mu.Lock()
	entries := make([]*connection.Connection, 0, p.order.Len())
	for e := p.order.Front(); e != nil; e = e.Next() {
		entries = append(entries, e.Value.(*entry).conn)
	}
	p.order.Init()
	p.index = make(map[connection.ID]*list.Element)
	p.mu.Unlock()

	for _, c := range entries {
		c.Close()
	}
}
