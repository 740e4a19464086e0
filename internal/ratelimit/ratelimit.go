// Package ratelimit limits how often a single client may start prompt and
// execution requests. Buckets are kept in memory per client address.
package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultMaxKeys = 100000
	idleAfter      = 10 * time.Minute
)

// Limiter is a per-client token bucket limiter.
type Limiter struct {
	rate    float64 // tokens per second
	burst   float64
	maxKeys int
	counter prometheus.Counter
	now     func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	stop     chan struct{}
	stopOnce sync.Once
}

type bucket struct {
	tokens float64
	last   time.Time
}

type Option func(*Limiter)

// WithCounter increments c on every rejected request.
func WithCounter(c prometheus.Counter) Option {
	return func(l *Limiter) { l.counter = c }
}

// WithMaxKeys caps the number of tracked clients; the least recently
// seen client is evicted first.
func WithMaxKeys(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.maxKeys = n
		}
	}
}

// New allows rps requests per second per client with the given burst. A
// burst below one is raised to one. Stop releases the cleanup goroutine.
func New(rps float64, burst int, opts ...Option) *Limiter {
	if burst < 1 {
		burst = 1
	}
	l := &Limiter{
		rate:    rps,
		burst:   float64(burst),
		maxKeys: defaultMaxKeys,
		now:     time.Now,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	go l.cleanup(5 * time.Minute)
	return l
}

// Middleware rejects requests over the limit with 429 and a JSON error
// body. Clients are keyed by the host part of RemoteAddr, which the
// router's RealIP middleware has already resolved.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, wait := l.allow(clientKey(r))
		if !ok {
			if l.counter != nil {
				l.counter.Inc()
			}
			secs := int(math.Ceil(wait.Seconds()))
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded","error_code":"RATE_LIMITED"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// allow takes a token for key. When none is left it reports how long
// until the next one.
func (l *Limiter) allow(key string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= l.maxKeys {
			l.evictOldest()
		}
		b = &bucket{tokens: l.burst, last: now}
		l.buckets[key] = b
	}

	if elapsed := now.Sub(b.last); elapsed > 0 {
		b.tokens = math.Min(l.burst, b.tokens+elapsed.Seconds()*l.rate)
		b.last = now
	}

	if b.tokens < 1 {
		if l.rate <= 0 {
			return false, time.Second
		}
		return false, time.Duration((1 - b.tokens) / l.rate * float64(time.Second))
	}
	b.tokens--
	return true, 0
}

// evictOldest must be called with l.mu held.
func (l *Limiter) evictOldest() {
	var (
		oldestKey  string
		oldestTime time.Time
	)
	for k, b := range l.buckets {
		if oldestKey == "" || b.last.Before(oldestTime) {
			oldestKey, oldestTime = k, b.last
		}
	}
	delete(l.buckets, oldestKey)
}

func (l *Limiter) prune() {
	cutoff := l.now().Add(-idleAfter)
	l.mu.Lock()
	for k, b := range l.buckets {
		if b.last.Before(cutoff) {
			delete(l.buckets, k)
		}
	}
	l.mu.Unlock()
}

// Stop terminates the cleanup goroutine. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Limiter) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.prune()
		case <-l.stop:
			return
		}
	}
}
