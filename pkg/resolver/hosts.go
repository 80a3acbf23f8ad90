package resolver

import (
	"bufio"
	"context"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

func systemHostsPath() string {
	if runtime.GOOS == "windows" {
		if root := os.Getenv("SystemRoot"); root != "" {
			return root + `\System32\drivers\etc\hosts`
		}
		return `C:\Windows\System32\drivers\etc\hosts`
	}
	return "/etc/hosts"
}

// HostsResolver resolves hostnames from the system hosts file, re-reading
// it at most once per MinTTL window.
type HostsResolver struct {
	*BaseResolver

	path string

	mu       sync.Mutex
	entries  map[string][]string
	lastRead time.Time
}

// NewHostsResolver builds a resolver backed by the OS hosts file.
func NewHostsResolver(logger *zap.Logger) *HostsResolver {
	h := &HostsResolver{path: systemHostsPath()}
	h.BaseResolver = NewBaseResolver(h.lookupNow, logger)
	return h
}

func (h *HostsResolver) readHostsLocked() {
	if !h.lastRead.IsZero() && time.Since(h.lastRead) < h.MinTTL {
		return
	}
	h.lastRead = time.Now()

	f, err := os.Open(h.path)
	if err != nil {
		h.Logger.Debug("hosts file unavailable", zap.String("path", h.path), zap.Error(err))
		return
	}
	defer f.Close()

	entries := make(map[string][]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		// Only strict "<ip> <name>" pairs are honoured; lines with any
		// other token count are dropped whole.
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		entries[fields[1]] = append(entries[fields[1]], fields[0])
	}
	h.entries = entries
}

func (h *HostsResolver) lookupNow(_ context.Context, host string, port int) (*Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.readHostsLocked()

	ips, ok := h.entries[host]
	if !ok || len(ips) == 0 {
		return nil, wrapUnresolvable(host, port, os.ErrNotExist)
	}

	records := make([]Record, 0, len(ips))
	for _, ip := range ips {
		records = append(records, Record{IP: ip, Port: port})
	}
	return NewResult(host, port, records, h.MinTTL), nil
}
