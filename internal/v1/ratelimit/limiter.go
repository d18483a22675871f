// Package ratelimit implements rate limiting logic using Redis or local memory.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/roomfabric/hub/internal/v1/config"
	"github.com/roomfabric/hub/internal/v1/logging"
	"github.com/roomfabric/hub/internal/v1/metrics"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

// PublicKeyContextKey is the gin context key a signature-verification
// middleware sets once a request's frame/header signature checks out. Its
// value is the hex-encoded public key of the signer. Absence means the
// caller is unauthenticated and falls back to IP-based limits.
const PublicKeyContextKey = "signer_public_key"

// RateLimiter holds the rate limiter instances
type RateLimiter struct {
	apiGlobal   *limiter.Limiter
	apiPublic   *limiter.Limiter
	apiRooms    *limiter.Limiter
	apiMessages *limiter.Limiter
	wsJoin      *limiter.Limiter
	wsBroadcast *limiter.Limiter
	store       limiter.Store
	redisClient *redis.Client
}

// NewRateLimiter creates a new RateLimiter instance
func NewRateLimiter(cfg *config.Config, redisClient *redis.Client) (*RateLimiter, error) {
	apiGlobalRate, err := limiter.NewRateFromFormatted(cfg.RateLimitAPIGlobal)
	if err != nil {
		return nil, fmt.Errorf("invalid API global rate: %w", err)
	}

	apiPublicRate, err := limiter.NewRateFromFormatted(cfg.RateLimitAPIPublic)
	if err != nil {
		return nil, fmt.Errorf("invalid API public rate: %w", err)
	}

	apiRoomsRate, err := limiter.NewRateFromFormatted(cfg.RateLimitAPIRooms)
	if err != nil {
		return nil, fmt.Errorf("invalid API rooms rate: %w", err)
	}

	apiMessagesRate, err := limiter.NewRateFromFormatted(cfg.RateLimitAPIMessages)
	if err != nil {
		return nil, fmt.Errorf("invalid API messages rate: %w", err)
	}

	wsJoinRate, err := limiter.NewRateFromFormatted(cfg.RateLimitWSJoin)
	if err != nil {
		return nil, fmt.Errorf("invalid WS join rate: %w", err)
	}

	wsBroadcastRate, err := limiter.NewRateFromFormatted(cfg.RateLimitWSBroadcast)
	if err != nil {
		return nil, fmt.Errorf("invalid WS broadcast rate: %w", err)
	}

	var store limiter.Store
	if redisClient != nil {
		s, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{
			Prefix: "limiter:v1:",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis store: %w", err)
		}
		store = s
		logging.Info(context.Background(), "rate limiter using Redis store")
	} else {
		store = memory.NewStore()
		logging.Warn(context.Background(), "rate limiter using memory store (Redis disabled or unavailable)")
	}

	return &RateLimiter{
		apiGlobal:   limiter.New(store, apiGlobalRate),
		apiPublic:   limiter.New(store, apiPublicRate),
		apiRooms:    limiter.New(store, apiRoomsRate),
		apiMessages: limiter.New(store, apiMessagesRate),
		wsJoin:      limiter.New(store, wsJoinRate),
		wsBroadcast: limiter.New(store, wsBroadcastRate),
		store:       store,
		redisClient: redisClient,
	}, nil
}

// signerKey returns the authenticated public key for the request, if a
// signature-verification middleware has already run and set one.
func signerKey(c *gin.Context) (string, bool) {
	v, exists := c.Get(PublicKeyContextKey)
	if !exists {
		return "", false
	}
	key, ok := v.(string)
	return key, ok && key != ""
}

// GlobalMiddleware returns a Gin middleware that enforces global rate limits:
// a generous per-key budget for signed requests, a tighter per-IP budget for
// everything else.
func (rl *RateLimiter) GlobalMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var limiterInstance *limiter.Limiter
		var key, limitType string

		if pubKey, ok := signerKey(c); ok {
			key = pubKey
			limiterInstance = rl.apiGlobal
			limitType = "key"
		} else {
			key = c.ClientIP()
			limiterInstance = rl.apiPublic
			limitType = "ip"
		}

		ctx := c.Request.Context()
		lctx, err := limiterInstance.Get(ctx, key)
		if err != nil {
			logging.Error(ctx, "rate limiter store failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if lctx.Reached {
			metrics.RateLimitExceeded.WithLabelValues(c.FullPath(), limitType).Inc()
			c.Header("Retry-After", strconv.FormatInt(lctx.Reset-time.Now().Unix(), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests",
				"retry_after": lctx.Reset,
			})
			return
		}

		metrics.RateLimitRequests.WithLabelValues(c.FullPath()).Inc()
		c.Next()
	}
}

// MiddlewareForEndpoint returns a Gin middleware that enforces a specific endpoint rate limit
func (rl *RateLimiter) MiddlewareForEndpoint(endpointType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var limiterInstance *limiter.Limiter

		switch endpointType {
		case "rooms":
			limiterInstance = rl.apiRooms
		case "messages":
			limiterInstance = rl.apiMessages
		default:
			limiterInstance = rl.apiGlobal
		}

		var key string
		if pubKey, ok := signerKey(c); ok {
			key = pubKey
		} else {
			key = c.ClientIP()
		}

		ctx := c.Request.Context()
		lctx, err := limiterInstance.Get(ctx, key)
		if err != nil {
			logging.Error(ctx, "rate limiter store failed", zap.Error(err))
			c.Next()
			return
		}

		if lctx.Reached {
			metrics.RateLimitExceeded.WithLabelValues(c.FullPath(), endpointType).Inc()
			c.Header("X-RateLimit-Retry-After", strconv.FormatInt(lctx.Reset, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests",
				"retry_after": lctx.Reset,
			})
			return
		}

		metrics.RateLimitRequests.WithLabelValues(c.FullPath()).Inc()
		c.Next()
	}
}

// CheckWebSocketJoin checks whether a join attempt from this IP should be allowed.
// Returns true if allowed, false if the limit is exceeded (and writes the error response).
func (rl *RateLimiter) CheckWebSocketJoin(c *gin.Context) bool {
	ctx := c.Request.Context()

	ip := c.ClientIP()
	ipContext, err := rl.wsJoin.Get(ctx, ip)
	if err != nil {
		logging.Error(ctx, "WS rate limiter store failed (join)", zap.Error(err))
		return true // Fail open
	}

	if ipContext.Reached {
		metrics.RateLimitExceeded.WithLabelValues("ws_join", "ip").Inc()
		c.Header("X-RateLimit-Retry-After", strconv.FormatInt(ipContext.Reset, 10))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many join attempts from this IP"})
		return false
	}

	return true
}

// CheckWebSocketBroadcast checks the per-key broadcast frequency limit. Call
// this once a frame's signer is known (after signature verification).
func (rl *RateLimiter) CheckWebSocketBroadcast(ctx context.Context, publicKey string) error {
	keyContext, err := rl.wsBroadcast.Get(ctx, publicKey)
	if err != nil {
		logging.Error(ctx, "WS rate limiter store failed (broadcast)", zap.Error(err))
		return nil // Fail open
	}

	if keyContext.Reached {
		metrics.RateLimitExceeded.WithLabelValues("ws_broadcast", "key").Inc()
		return fmt.Errorf("rate limit exceeded for key")
	}

	return nil
}

// StandardMiddleware exposes the stock ulule/limiter middleware for callers
// that want IP-only limiting without the key/IP branching above.
func (rl *RateLimiter) StandardMiddleware() gin.HandlerFunc {
	return mgin.NewMiddleware(rl.apiPublic)
}
