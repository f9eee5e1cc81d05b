package app

import (
	"testing"
	"time"

	u "portalgate/internal/utils"

	"github.com/gofiber/fiber/v2"
)

// A token holder answers to its own open budget only. Exhausting the
// anonymous budget for a seat must not lock out the authenticated kiosk
// running on the same seat.
func TestTokenBudgetOverridesAnonymousBudget(t *testing.T) {
	token := "kiosk-front-desk"
	u.LoadTokensFromMap(map[string]int{token: 100})
	u.AppConfig.RateLimiter.Interval = time.Hour
	resetLimiterState()

	var cfg u.Config
	cfg.Portal.Platform = "system"
	cfg.Portal.TimeoutSecs = 5
	cfg.RateLimiter.EnableUserLimiter = true
	cfg.RateLimiter.UserLimit = 2
	cfg.RateLimiter.Interval = time.Hour
	app, opener := newPortalApp(t, cfg)

	// Exhaust the anonymous budget from this seat.
	for i := 0; i < cfg.RateLimiter.UserLimit; i++ {
		resp, err := app.Test(openRequest("", "kiosk-shell"), -1)
		if err != nil {
			t.Fatalf("anonymous open %d failed: %v", i+1, err)
		}
		if resp.StatusCode != fiber.StatusAccepted {
			t.Fatalf("anonymous open %d: expected 202 but got %d", i+1, resp.StatusCode)
		}
	}
	resp, err := app.Test(openRequest("", "kiosk-shell"), -1)
	if err != nil {
		t.Fatalf("anonymous exceed open failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429 for anonymous exceed but got %d", resp.StatusCode)
	}

	// Same seat, now with the token: the open goes through.
	resp, err = app.Test(openRequest(token, "kiosk-shell"), -1)
	if err != nil {
		t.Fatalf("token open failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("expected 202 for token open but got %d", resp.StatusCode)
	}
	if got := opener.opens(); got != cfg.RateLimiter.UserLimit+1 {
		t.Fatalf("expected %d browser opens, got %d", cfg.RateLimiter.UserLimit+1, got)
	}
}
