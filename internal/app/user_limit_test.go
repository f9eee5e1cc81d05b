package app

import (
	"testing"
	"time"

	u "portalgate/internal/utils"

	"github.com/gofiber/fiber/v2"
)

func TestAnonymousOpenBudgetEnforcedOnPortalRoute(t *testing.T) {
	u.LoadTokensFromMap(map[string]int{})
	u.AppConfig.RateLimiter.Interval = time.Hour
	resetLimiterState()

	var cfg u.Config
	cfg.Portal.Platform = "system"
	cfg.Portal.TimeoutSecs = 5
	cfg.RateLimiter.EnableUserLimiter = true
	cfg.RateLimiter.UserLimit = 2
	cfg.RateLimiter.Interval = time.Hour
	app, opener := newPortalApp(t, cfg)

	for i := 0; i < cfg.RateLimiter.UserLimit; i++ {
		resp, err := app.Test(openRequest("", "launcher-page"), -1)
		if err != nil {
			t.Fatalf("anonymous open %d failed: %v", i+1, err)
		}
		if resp.StatusCode != fiber.StatusAccepted {
			t.Fatalf("anonymous open %d: expected 202 but got %d", i+1, resp.StatusCode)
		}
	}

	resp, err := app.Test(openRequest("", "launcher-page"), -1)
	if err != nil {
		t.Fatalf("over-budget anonymous open failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429 after anonymous budget but got %d", resp.StatusCode)
	}
	if got := opener.opens(); got != cfg.RateLimiter.UserLimit {
		t.Fatalf("expected %d browser opens, got %d", cfg.RateLimiter.UserLimit, got)
	}

	// A different client fingerprint carries its own budget.
	resp, err = app.Test(openRequest("", "other-seat"), -1)
	if err != nil {
		t.Fatalf("other-seat open failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("other seat: expected 202 but got %d", resp.StatusCode)
	}
}
