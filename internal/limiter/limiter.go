package limiter

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/itstheanurag/snipexec/internal/metrics"
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter admits requests against a global rate, a per-client rate and a
// cap on requests in flight.
type RateLimiter struct {
	globalLimiter *rate.Limiter
	ipRate        rate.Limit
	ipBurst       int
	maxConcurrent int64

	mu          sync.Mutex
	perIP       map[string]*ipLimiter
	currentConc int64

	stop     chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

func NewRateLimiter(globalRPS float64, perIPRPS float64, perIPBurst int, maxConcurrent int) *RateLimiter {
	burst := int(globalRPS) * 2
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		globalLimiter: rate.NewLimiter(rate.Limit(globalRPS), burst),
		ipRate:        rate.Limit(perIPRPS),
		ipBurst:       perIPBurst,
		maxConcurrent: int64(maxConcurrent),
		perIP:         make(map[string]*ipLimiter),
		stop:          make(chan struct{}),
		now:           time.Now,
	}
}

func (rl *RateLimiter) getIPLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.perIP[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(rl.ipRate, rl.ipBurst)}
		rl.perIP[ip] = entry
	}
	entry.lastSeen = rl.now()
	return entry.limiter
}

func (rl *RateLimiter) Allow(ip string) bool {
	if !rl.globalLimiter.Allow() {
		metrics.RateLimitHits.Inc()
		return false
	}

	if !rl.getIPLimiter(ip).Allow() {
		metrics.RateLimitHits.Inc()
		return false
	}

	rl.mu.Lock()
	if rl.currentConc >= rl.maxConcurrent {
		rl.mu.Unlock()
		metrics.RateLimitHits.Inc()
		return false
	}
	rl.currentConc++
	rl.mu.Unlock()

	return true
}

func (rl *RateLimiter) Done() {
	rl.mu.Lock()
	if rl.currentConc > 0 {
		rl.currentConc--
	}
	rl.mu.Unlock()
}

// Middleware expects r.RemoteAddr to already reflect the client, e.g. via
// chi's RealIP middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientIP(r.RemoteAddr)) {
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		defer rl.Done()

		next.ServeHTTP(w, r)
	})
}

func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// StartCleanup periodically forgets clients idle for longer than interval.
func (rl *RateLimiter) StartCleanup(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.cleanup(interval)
			case <-rl.stop:
				return
			}
		}
	}()
}

func (rl *RateLimiter) cleanup(idle time.Duration) int {
	cutoff := rl.now().Add(-idle)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	removed := 0
	for ip, entry := range rl.perIP {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.perIP, ip)
			removed++
		}
	}
	return removed
}

func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}
