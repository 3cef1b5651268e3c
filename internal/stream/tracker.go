// Package stream implements the SSE log streaming gateway and its per-IP
// admission control.
package stream

import (
	"fmt"
	"log/slog"
	"sync"
)

// ConnectionLimitError is the backpressure signal for an IP that already
// holds the maximum number of open streams. It is expected under heavy load
// and is not an application failure.
type ConnectionLimitError struct {
	IP  string
	Max int
}

func (e *ConnectionLimitError) Error() string {
	return fmt.Sprintf("connection limit exceeded for %s: at most %d concurrent streams per client", e.IP, e.Max)
}

// Tracker counts open SSE connections per client IP. Acquire and release are
// the only paths that mutate the map; an entry lives exactly as long as at
// least one connection from that IP.
type Tracker struct {
	mu    sync.Mutex
	conns map[string]int
	max   int
	log   *slog.Logger
}

// NewTracker creates a tracker allowing max concurrent connections per IP.
func NewTracker(max int, log *slog.Logger) *Tracker {
	return &Tracker{
		conns: make(map[string]int),
		max:   max,
		log:   log,
	}
}

// TryAcquire reserves a connection slot for the IP. On success the returned
// guard must be released when the stream ends, however it ends.
func (t *Tracker) TryAcquire(ip string) (*Guard, error) {
	var guard *Guard
	var limitErr error

	t.locked(func() {
		if t.conns[ip]+1 > t.max {
			limitErr = &ConnectionLimitError{IP: ip, Max: t.max}
			return
		}
		t.conns[ip]++
		guard = &Guard{tracker: t, ip: ip}
	})

	if limitErr != nil {
		// Expected under load: audit-level warning, never an error.
		t.log.Warn("sse connection limit exceeded", "ip", ip, "max", t.max)
		return nil, limitErr
	}
	return guard, nil
}

// Count returns the number of open connections for the IP.
func (t *Tracker) Count(ip string) int {
	var n int
	t.locked(func() { n = t.conns[ip] })
	return n
}

// TotalConnections returns the number of open connections across all IPs.
func (t *Tracker) TotalConnections() int {
	var n int
	t.locked(func() {
		for _, c := range t.conns {
			n += c
		}
	})
	return n
}

// locked runs f while holding the counter mutex. A panic inside f is
// recovered so that the tracker continues with best-effort state instead of
// taking down unrelated requests.
func (t *Tracker) locked(f func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			t.log.Warn("recovered panic in connection tracker", "panic", r)
		}
	}()
	f()
}

// Guard is a held connection slot. Release is idempotent.
type Guard struct {
	tracker *Tracker
	ip      string
	once    sync.Once
}

// Release returns the slot and removes the IP entry once it drops to zero.
func (g *Guard) Release() {
	g.once.Do(func() {
		g.tracker.locked(func() {
			g.tracker.conns[g.ip]--
			if g.tracker.conns[g.ip] <= 0 {
				delete(g.tracker.conns, g.ip)
			}
		})
	})
}
