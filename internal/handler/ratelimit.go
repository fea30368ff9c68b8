package handler

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	appI18n "github.com/tamkeen-edu/tamkeen/internal/i18n"
)

const visitorIdle = 10 * time.Minute

// visitor pairs a client's limiter with its last request time for cleanup.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter allows each client IP up to max requests per window with an
// equal burst.
type rateLimiter struct {
	interval time.Duration
	burst    int

	mu       sync.Mutex
	visitors map[string]*visitor
	done     chan struct{}
	once     sync.Once
}

func newRateLimiter(max int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		interval: window / time.Duration(max),
		burst:    max,
		visitors: make(map[string]*visitor),
		done:     make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(rl.interval), rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = time.Now()
	return v.limiter.Allow()
}

func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.mu.Lock()
			for key, v := range rl.visitors {
				if time.Since(v.lastSeen) > visitorIdle {
					delete(rl.visitors, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

func (rl *rateLimiter) Close() {
	rl.once.Do(func() { close(rl.done) })
}

// Middleware rejects over-limit clients with 429. It keys on RemoteAddr,
// which chi's RealIP middleware rewrites behind a proxy.
func (rl *rateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !rl.allow(ip) {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(rl.interval.Seconds()))))
			writeErrorBody(w, http.StatusTooManyRequests, errorBody{
				Kind:    kindRateLimited,
				Message: appI18n.Error(r.Context(), kindRateLimited),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
