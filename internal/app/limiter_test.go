package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"portalgate/internal/handlers"
	"portalgate/internal/platform"
	"portalgate/internal/portal"
	u "portalgate/internal/utils"

	"github.com/gofiber/fiber/v2"
	memoryStorage "github.com/gofiber/storage/memory/v2"
)

// countingOpener stands in for the system browser so limiter tests can
// assert how many opens actually went through.
type countingOpener struct {
	mu   sync.Mutex
	urls []string
}

func (o *countingOpener) Open(_ context.Context, rawURL string) error {
	o.mu.Lock()
	o.urls = append(o.urls, rawURL)
	o.mu.Unlock()
	return nil
}

func (o *countingOpener) opens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.urls)
}

func resetLimiterState() {
	rateLimitStore = memoryStorage.New()
	limiterCache.Lock()
	limiterCache.byBudget = nil
	limiterCache.Unlock()
}

// newPortalApp wires the real auth and limiter chain in front of the real
// open handler, with browser launches replaced by a countingOpener.
func newPortalApp(t *testing.T, cfg u.Config) (*fiber.App, *countingOpener) {
	t.Helper()

	opener := &countingOpener{}
	svc := handlers.NewPortalService(cfg, nil)
	svc.SetServiceForTest(portal.NewWithOpeners(platform.Fixed{Kind: platform.System}, opener, opener))

	app := fiber.New()
	app.Use(apiKeyAuth())
	app.Use(tokenRateLimit())
	if cfg.RateLimiter.UserLimit > 0 {
		app.Use(anonymousRateLimit(cfg))
	}
	app.Post("/v1/portal", svc.HandleOpen)

	return app, opener
}

func openRequest(token, agent string) *http.Request {
	req := httptest.NewRequest("POST", "/v1/portal?url=https://example.com/doc.pdf", nil)
	req.Header.Set("User-Agent", agent)
	req.RemoteAddr = "10.0.0.7:40000"
	if token != "" {
		req.Header.Set("X-API-Key", token)
	}
	return req
}
