package app

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	u "portalgate/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/keyauth"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	memoryStorage "github.com/gofiber/storage/memory/v2"
	redisStorage "github.com/gofiber/storage/redis/v2"
	"github.com/rs/xid"
)

// A portal open is cheap to request but launches a real browser on the host,
// so both token-authenticated and anonymous callers carry open budgets.

var (
	limiterCache struct {
		sync.RWMutex
		byBudget map[int]fiber.Handler
	}
	rateLimitStore fiber.Storage
)

func limitReachedResponse(c *fiber.Ctx, who string) error {
	u.Warn("Open budget exhausted", "caller", who, "path", c.Path())
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    fiber.StatusTooManyRequests,
			"message": "Too Many Requests",
		},
	})
}

// clientFingerprint identifies an anonymous caller. IP alone is too coarse
// for shared kiosk seats behind one NAT, so the agent string folds in.
func clientFingerprint(c *fiber.Ctx) string {
	sum := sha256.Sum256([]byte(c.IP() + c.Get("User-Agent")))
	return hex.EncodeToString(sum[:])
}

// limiterForBudget returns a sliding-window limiter for the given per-interval
// open budget. Tokens sharing a budget share the handler; their windows stay
// separate because the token itself is the limiter key.
func limiterForBudget(budget int) fiber.Handler {
	limiterCache.RLock()
	h, ok := limiterCache.byBudget[budget]
	limiterCache.RUnlock()
	if ok {
		return h
	}

	h = limiter.New(limiter.Config{
		Max:               budget,
		Expiration:        u.GetConfig().RateLimiter.Interval,
		LimiterMiddleware: limiter.SlidingWindow{},
		Storage:           rateLimitStore,
		KeyGenerator: func(c *fiber.Ctx) string {
			token, _ := c.Locals("api_key").(string)
			return token
		},
		LimitReached: func(c *fiber.Ctx) error {
			token, _ := c.Locals("api_key").(string)
			return limitReachedResponse(c, "token:"+token)
		},
	})

	limiterCache.Lock()
	if limiterCache.byBudget == nil {
		limiterCache.byBudget = make(map[int]fiber.Handler)
	}
	limiterCache.byBudget[budget] = h
	limiterCache.Unlock()

	return h
}

// tokenRateLimit enforces each API token's own open budget, as configured in
// the portal_tokens table. Tokens without a budget pass through.
func tokenRateLimit() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := c.Locals("api_key").(string)
		if !ok || token == "" {
			return c.Next()
		}
		budget := u.GetRateLimit(token)
		if budget == 0 {
			return c.Next()
		}
		return limiterForBudget(budget)(c)
	}
}

// anonymousRateLimit throttles unauthenticated callers by client fingerprint
// so an unattended launcher page cannot spam browser opens.
func anonymousRateLimit(cfg u.Config) fiber.Handler {
	if cfg.RateLimiter.UserLimit <= 0 {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	anonLimiter := limiter.New(limiter.Config{
		Max:               cfg.RateLimiter.UserLimit,
		Expiration:        cfg.RateLimiter.Interval,
		LimiterMiddleware: limiter.SlidingWindow{},
		Storage:           rateLimitStore,
		KeyGenerator:      clientFingerprint,
		LimitReached: func(c *fiber.Ctx) error {
			return limitReachedResponse(c, "client:"+clientFingerprint(c))
		},
	})

	return func(c *fiber.Ctx) error {
		// Token holders already passed the token limiter; the anonymous
		// budget does not apply to them.
		if token, ok := c.Locals("api_key").(string); ok && token != "" {
			return c.Next()
		}
		return anonLimiter(c)
	}
}

// newRateLimitStore prefers Redis so budgets survive restarts and preforked
// workers agree; it falls back to process memory when Redis is unreachable.
func newRateLimitStore(cfg u.Config) fiber.Storage {
	var store fiber.Storage = memoryStorage.New()

	func() {
		defer func() {
			if r := recover(); r != nil {
				u.Error("Redis limiter store init panicked, falling back to memory", "panic", r)
			}
		}()
		store = redisStorage.New(redisStorage.Config{
			Addrs:    []string{cfg.Cache.RedisHost},
			Database: cfg.Cache.RateLimitDB,
		})
		u.Info("Using Redis for rate limiting", "addr", cfg.Cache.RedisHost, "db", cfg.Cache.RateLimitDB)
	}()

	return store
}

// apiKeyAuth validates X-API-Key headers against the token cache. Anonymous
// requests pass through and answer to the anonymous limiter instead.
func apiKeyAuth() fiber.Handler {
	return keyauth.New(keyauth.Config{
		KeyLookup:  "header:X-API-Key",
		ContextKey: "api_key",
		Validator: func(c *fiber.Ctx, key string) (bool, error) {
			// Distinguish "store still loading" from "bad key" during startup.
			if !u.TokensReady() {
				return false, u.ErrTokenStoreNotReady
			}
			if !u.ValidateToken(key) {
				return false, u.ErrInvalidAPIKey
			}
			return true, nil
		},
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || c.Get("X-API-Key") == ""
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Keyauth can call ErrorHandler with a nil error.
			status := fiber.StatusUnauthorized
			if err == nil {
				err = fiber.ErrUnauthorized
			}
			if err == u.ErrTokenStoreNotReady {
				status = fiber.StatusServiceUnavailable
			}
			return c.Status(status).JSON(fiber.Map{
				"error": fiber.Map{
					"code":    status,
					"message": err.Error(),
				},
			})
		},
	})
}

// RegisterMiddleware attaches global middleware to the app
func RegisterMiddleware(app *fiber.App, cfg u.Config) {
	rateLimitStore = newRateLimitStore(cfg)

	app.Use(cors.New())

	app.Use(requestid.New(requestid.Config{
		Generator: func() string {
			return xid.New().String()
		},
	}))

	app.Use(healthcheck.New())

	app.Use(apiKeyAuth())

	app.Use(tokenRateLimit())

	if cfg.RateLimiter.EnableUserLimiter || cfg.RateLimiter.UserLimit > 0 {
		app.Use(anonymousRateLimit(cfg))
	}

	app.Use(func(c *fiber.Ctx) error {
		requestID := c.Get("X-Request-ID")
		if requestID == "" {
			requestID = c.GetRespHeader("X-Request-ID")
		}
		u.Info("Incoming request", "method", c.Method(), "path", c.Path(), "request_id", requestID)
		return c.Next()
	})
}
