package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"portalgate/internal/chrome"
	"portalgate/internal/platform"
	"portalgate/internal/portal"
	u "portalgate/internal/utils"
)

// PortalService bundles configuration and dependencies for the launcher
// endpoints.
type PortalService struct {
	Config *u.Config
	Redis  *redis.Client

	svcMu  sync.Mutex
	svc    *portal.Service
	pool   *chrome.Pool
	svcErr error

	opensSystem   atomic.Int64
	opensEmbedded atomic.Int64
	failures      atomic.Int64
	debounced     atomic.Int64
}

// NewPortalService creates a new PortalService instance.
func NewPortalService(cfg u.Config, rdb *redis.Client) *PortalService {
	return &PortalService{
		Config: &cfg,
		Redis:  rdb,
	}
}

func (s *PortalService) getService() (*portal.Service, error) {
	s.svcMu.Lock()
	defer s.svcMu.Unlock()

	if s.svc != nil {
		return s.svc, nil
	}
	// Construction fails only when the injected script is rejected, which a
	// retry cannot repair. Keep answering with the first error.
	if s.svcErr != nil {
		return nil, s.svcErr
	}

	if s.pool == nil && s.Config.Portal.ChromePoolSize > 0 {
		pool, err := chrome.NewPool(*s.Config)
		if err != nil {
			u.Warn("Chrome pool init failed, opens fall back to one-shot browsers", "error", err.Error())
		} else {
			s.pool = pool
		}
	}

	svc, err := portal.New(*s.Config, s.pool)
	if err != nil {
		s.svcErr = err
		return nil, err
	}
	s.svc = svc
	return s.svc, nil
}

// SetServiceForTest pins the portal service. Tests use this to inject fake
// openers.
func (s *PortalService) SetServiceForTest(svc *portal.Service) {
	s.svcMu.Lock()
	s.svc = svc
	s.svcMu.Unlock()
}

// HandleOpen triggers a portal open. The open outcome is never surfaced to
// the client: failures are logged and the response stays 202.
func (s *PortalService) HandleOpen(c *fiber.Ctx) error {
	rawURL := c.FormValue("url")
	if rawURL == "" {
		rawURL = c.Query("url")
	}
	if err := portal.ValidateURL(rawURL); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid URL: must be absolute HTTP or HTTPS")
	}

	requestID := c.Get("X-Request-ID")
	if requestID == "" {
		requestID = c.GetRespHeader("X-Request-ID")
	}

	if s.isDebounced(c, rawURL) {
		s.debounced.Add(1)
		u.Info("Portal open debounced", "url", rawURL, "request_id", requestID)
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "debounced"})
	}

	svc, err := s.getService()
	if err != nil {
		u.Error("Portal service unavailable", "error", err.Error(), "request_id", requestID)
		s.failures.Add(1)
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted"})
	}

	kind := svc.Platform()

	// Detach from the request context: the open may outlive the HTTP
	// exchange and the caller cannot abort it anyway.
	openCtx, cancel := context.WithTimeout(context.Background(), time.Duration(s.Config.Portal.TimeoutSecs)*time.Second)
	defer cancel()

	if err := svc.OpenPortal(openCtx, rawURL); err != nil {
		// Second log at the caller boundary, then swallow.
		u.Error("Portal launch failed", "url", rawURL, "request_id", requestID, "error", err.Error())
		s.failures.Add(1)
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted"})
	}

	if kind == platform.Embedded {
		s.opensEmbedded.Add(1)
	} else {
		s.opensSystem.Add(1)
	}
	u.Info("Portal open accepted", "url", rawURL, "platform", kind.String(), "request_id", requestID)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted"})
}

// isDebounced suppresses duplicate opens of the same URL inside the
// configured window. One user action is one open.
func (s *PortalService) isDebounced(c *fiber.Ctx, rawURL string) bool {
	if s.Redis == nil || !s.Config.Cache.DebounceEnabled {
		return false
	}

	ctx, cancel := context.WithTimeout(c.Context(), 1*time.Second)
	defer cancel()

	key := debounceKey(rawURL)
	set, err := s.Redis.SetNX(ctx, key, 1, s.Config.Cache.DebounceTTL).Result()
	if err != nil {
		u.Warn("Redis debounce check failed", "error", err.Error())
		return false
	}
	return !set
}

func debounceKey(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return "portal:seen:" + hex.EncodeToString(sum[:])
}

// HandleStats exposes open counters and browser pool state.
func (s *PortalService) HandleStats(c *fiber.Ctx) error {
	s.svcMu.Lock()
	pool := s.pool
	s.svcMu.Unlock()

	poolStats := chrome.Stats{PoolSizeConf: s.Config.Portal.ChromePoolSize}
	if pool != nil {
		poolStats = pool.Stats(s.Config.Portal.TimeoutSecs)
	}

	return c.JSON(fiber.Map{
		"opens_system":   s.opensSystem.Load(),
		"opens_embedded": s.opensEmbedded.Load(),
		"failures":       s.failures.Load(),
		"debounced":      s.debounced.Load(),
		"platform":       s.Config.Portal.Platform,
		"timeout_secs":   s.Config.Portal.TimeoutSecs,
		"chrome_pool":    poolStats,
	})
}
