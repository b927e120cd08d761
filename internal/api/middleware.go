package api

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"farm-market/internal/auth"
	"farm-market/internal/models"
	"farm-market/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	ctxUserID   = "user_id"
	ctxRole     = "role"
	ctxFarmerID = "farmer_id"
)

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		util.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
		util.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		util.GetLogger().Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

// authRequired accepts a bearer access token and stores the caller in the
// request context.
func (h *Handler) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := h.tokens.Verify(token, auth.AccessToken)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(ctxUserID, claims.UserID())
		c.Set(ctxRole, models.Role(claims.Role))
		c.Next()
	}
}

func requireRole(min models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get(ctxRole)
		r, _ := role.(models.Role)
		if !models.RoleAtLeast(r, min) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
			return
		}
		c.Next()
	}
}

// farmerContext resolves the caller's farmer profile.
func (h *Handler) farmerContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		farmer, err := h.svc.Farmers.ForUser(c.Request.Context(), userID(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.Set(ctxFarmerID, farmer.ID)
		c.Next()
	}
}

func userID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

func farmerID(c *gin.Context) string {
	return c.GetString(ctxFarmerID)
}

// maxTrackedClients caps the limiter map between sweeps.
const maxTrackedClients = 10000

type clientLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter hands each client IP its own token bucket. A bucket idle
// for longer than it takes to refill is dropped, since a new one starts
// full anyway.
type ipRateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*clientLimiter
	limit     rate.Limit
	burst     int
	idle      time.Duration
	max       int
	lastSweep time.Time
	now       func() time.Time
}

func newIPRateLimiter(perMinute int) *ipRateLimiter {
	if perMinute <= 0 {
		return &ipRateLimiter{}
	}
	return &ipRateLimiter{
		clients: make(map[string]*clientLimiter),
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   perMinute,
		idle:    time.Minute,
		max:     maxTrackedClients,
		now:     time.Now,
	}
}

func (l *ipRateLimiter) allow(ip string) bool {
	if l.clients == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.idle {
		l.sweep(now)
	}

	c, ok := l.clients[ip]
	if !ok {
		if len(l.clients) >= l.max {
			l.sweep(now)
			if len(l.clients) >= l.max {
				l.evictOldest()
			}
		}
		c = &clientLimiter{lim: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = c
	}
	c.lastSeen = now
	return c.lim.AllowN(now, 1)
}

// sweep drops idle buckets. Callers hold mu.
func (l *ipRateLimiter) sweep(now time.Time) {
	for ip, c := range l.clients {
		if now.Sub(c.lastSeen) >= l.idle {
			delete(l.clients, ip)
		}
	}
	l.lastSweep = now
}

func (l *ipRateLimiter) evictOldest() {
	var (
		oldest string
		seen   time.Time
	)
	for ip, c := range l.clients {
		if oldest == "" || c.lastSeen.Before(seen) {
			oldest, seen = ip, c.lastSeen
		}
	}
	delete(l.clients, oldest)
}

func (l *ipRateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests, try again later"})
			return
		}
		c.Next()
	}
}
