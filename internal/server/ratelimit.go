package server

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/kode4food/beckn/pkg/api"
)

type (
	// RateLimiter applies a token bucket per initiator and evicts buckets
	// that have been idle for a while
	RateLimiter struct {
		limit   rate.Limit
		burst   int
		idleTTL time.Duration
		now     func() time.Time
		mu      sync.Mutex
		byKey   map[string]*bucket
		hits    uint64
	}

	bucket struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}
)

const (
	DefaultIdleTTL = 10 * time.Minute

	evictEvery     = 512
	initiatorField = "context.bap_id"
	errRateLimited = "too many requests from initiator"
)

// NewRateLimiter creates a per-initiator limiter. It returns nil, which
// allows everything, when rps or burst is not positive
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	return &RateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: DefaultIdleTTL,
		now:     time.Now,
		byKey:   map[string]*bucket{},
	}
}

// Allow reports whether one more request from key may proceed
func (l *RateLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.byKey[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byKey[key] = b
	}
	b.lastSeen = now
	allowed := b.limiter.AllowN(now, 1)

	l.hits++
	if l.hits%evictEvery == 0 {
		cutoff := now.Add(-l.idleTTL)
		for k, v := range l.byKey {
			if v.lastSeen.Before(cutoff) {
				delete(l.byKey, k)
			}
		}
	}
	return allowed
}

// Middleware NACKs with 429 once an initiator runs out of tokens. The
// initiator is the envelope's bap_id, or the client address without one
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			nack(c, http.StatusBadRequest, api.ErrCodeInvalidRequest, err)
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		key := gjson.GetBytes(body, initiatorField).String()
		if key == "" {
			key = c.ClientIP()
		}
		if !l.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				api.NewNack(api.ErrCodeRateLimited, errRateLimited),
			)
			return
		}
		c.Next()
	}
}
