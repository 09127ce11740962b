package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	database "github.com/juralis/juralis-backend/internal"
)

func getJwtSecret() ([]byte, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable not set")
	}
	return []byte(secret), nil
}

// AuthMiddleware validates a user JWT (Bearer token) for the admin surface.
// On success sets userID and userGroups in the context.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}"})
			return
		}
		jwtSecret, err := getJwtSecret()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "JWT secret configuration error"})
			return
		}
		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return jwtSecret, nil
		})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token: " + err.Error()})
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		userID, _ := claims["user_id"].(string)
		c.Set("userID", userID)
		if groups, ok := claims["groups"].([]any); ok {
			out := make([]string, 0, len(groups))
			for _, g := range groups {
				if s, ok := g.(string); ok {
					out = append(out, s)
				}
			}
			c.Set("userGroups", out)
		}
		c.Next()
	}
}

// RequireAdmin gates the destructive endpoints (retention runs, erasure) on
// the "admin" group claim.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		groups, _ := c.Get("userGroups")
		if gs, ok := groups.([]string); ok {
			for _, g := range gs {
				if g == "admin" {
					c.Next()
					return
				}
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin privileges required"})
	}
}

// ApiKeyAuthMiddleware authenticates webhook callers with a tenant API key.
// Expected header: X-API-Key or Authorization: JURALIS <key>. On success
// sets tenantID, apiKeyPrefix and apiKeyID in the context.
func ApiKeyAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("X-API-Key")
		if raw == "" {
			auth := c.GetHeader("Authorization")
			if auth != "" {
				parts := strings.SplitN(auth, " ", 2)
				if len(parts) == 2 && strings.EqualFold(parts[0], "JURALIS") {
					raw = parts[1]
				}
			}
		}
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API key required"})
			return
		}
		const prefix = "jur_sk_"
		if !strings.HasPrefix(raw, prefix) || len(raw) <= len(prefix)+8 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key format"})
			return
		}
		keyPrefix := raw[len(prefix) : len(prefix)+8]

		var key database.APIKey
		err := database.DB.Get(&key, `SELECT id, tenant_id, name, key_prefix, hashed_key, last_used_at, expires_at, revoked_at, created_at FROM api_keys WHERE key_prefix=$1 AND revoked_at IS NULL LIMIT 1`, keyPrefix)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API key not found or revoked"})
			return
		}
		if key.ExpiresAt != nil && time.Now().After(*key.ExpiresAt) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API key expired"})
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(key.HashedKey), []byte(raw)); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			return
		}
		_, _ = database.DB.Exec(`UPDATE api_keys SET last_used_at=$1 WHERE id=$2`, time.Now(), key.ID)
		RecordAPIKeyUsage(keyPrefix, key.TenantID)
		c.Set("tenantID", key.TenantID)
		c.Set("apiKeyPrefix", keyPrefix)
		c.Set("apiKeyID", key.ID.String())
		c.Next()
	}
}

// RequestIDMiddleware ensures every request carries an X-Request-ID.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-ID")
		if rid == "" {
			rid = uuid.New().String()
		}
		ctx := context.WithValue(c.Request.Context(), "requestID", rid)
		c.Request = c.Request.WithContext(ctx)
		c.Set("requestID", rid)
		c.Writer.Header().Set("X-Request-ID", rid)
		c.Next()
	}
}

// Simple in-memory IP rate limiter (fixed window)
type clientWindow struct {
	count       int
	windowStart time.Time
}

type ipLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientWindow
	limit   int
	window  time.Duration
}

func newIPLimiter(limit int, window time.Duration) *ipLimiter {
	return &ipLimiter{
		clients: make(map[string]*clientWindow),
		limit:   limit,
		window:  window,
	}
}

func (l *ipLimiter) allow(ip string) (bool, time.Duration) {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	cw, ok := l.clients[ip]
	if !ok {
		l.clients[ip] = &clientWindow{count: 1, windowStart: now}
		return true, 0
	}
	if now.Sub(cw.windowStart) >= l.window {
		cw.count = 1
		cw.windowStart = now
		return true, 0
	}
	if cw.count < l.limit {
		cw.count++
		return true, 0
	}
	retryAfter := l.window - now.Sub(cw.windowStart)
	return false, retryAfter
}

// RateLimitMiddleware limits requests per client IP.
func RateLimitMiddleware(limitPerMinute int) gin.HandlerFunc {
	if limitPerMinute <= 0 {
		limitPerMinute = 120
	}
	limiter := newIPLimiter(limitPerMinute, time.Minute)
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if net.ParseIP(ip) == nil {
			ip = "unknown"
		}
		ok, retryAfter := limiter.allow(ip)
		if !ok {
			c.Header("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded. Try again later."})
			return
		}
		c.Next()
	}
}

// RateLimitMiddlewareFromEnv builds a rate-limit middleware from env config:
// JURALIS_WEBHOOK_RPM (default 120). With JURALIS_REDIS_ADDR set the window
// counters live in Redis so limits hold across replicas; otherwise in-memory.
func RateLimitMiddlewareFromEnv() gin.HandlerFunc {
	rpm := 120
	if v := os.Getenv("JURALIS_WEBHOOK_RPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			rpm = n
		}
	}
	addr := os.Getenv("JURALIS_REDIS_ADDR")
	if addr == "" {
		return RateLimitMiddleware(rpm)
	}
	rc := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("JURALIS_REDIS_PASSWORD"),
		DB:       parseEnvInt("JURALIS_REDIS_DB", 0),
	})
	// Shared across requests: the fallback only limits anything if its
	// window counters outlive the request that hit the redis error.
	fallback := newIPLimiter(rpm, time.Minute)

	return func(c *gin.Context) {
		ip := c.ClientIP()
		if net.ParseIP(ip) == nil {
			ip = "unknown"
		}
		now := time.Now().UTC()
		key := fmt.Sprintf("juralis:rl:%s:%04d%02d%02d%02d%02d", ip, now.Year(), int(now.Month()), now.Day(), now.Hour(), now.Minute())
		ctx, cancel := context.WithTimeout(c.Request.Context(), 200*time.Millisecond)
		defer cancel()

		n, err := rc.Incr(ctx, key).Result()
		if err != nil {
			// redis down: degrade to the in-memory limiter rather than block
			ok, retryAfter := fallback.allow(ip)
			if !ok {
				c.Header("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())))
				c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded. Try again later."})
				return
			}
			c.Next()
			return
		}
		_ = rc.Expire(ctx, key, 61*time.Second).Err()
		if int(n) > rpm {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded. Try again later."})
			return
		}
		c.Next()
	}
}

func parseEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
