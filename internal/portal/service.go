// Package portal implements the popup workaround service: it decides, per
// platform, how to open a portal URL so blob-URL downloads are not blocked.
package portal

import (
	"context"
	"fmt"
	neturl "net/url"

	"portalgate/internal/chrome"
	"portalgate/internal/platform"
	"portalgate/internal/sandbox"
	u "portalgate/internal/utils"
)

// Service dispatches portal opens to the right browser capability. The
// platform is resolved once per call; each branch invokes its opener exactly
// once.
type Service struct {
	detector platform.Detector
	system   Opener
	embedded Opener
}

// New builds the service for the given config. The injected script is
// verified in the sandbox before it can ever reach a real browser; a script
// that breaks its contract fails construction.
func New(cfg u.Config, pool *chrome.Pool) (*Service, error) {
	if err := sandbox.Verify(BlobOpenScript); err != nil {
		return nil, fmt.Errorf("blob-open script rejected: %w", err)
	}
	return &Service{
		detector: platform.FromConfig(cfg.Portal.Platform),
		system:   SystemOpener{},
		embedded: NewEmbeddedOpener(cfg, pool),
	}, nil
}

// NewWithOpeners is used by tests to exercise both branches without a real
// browser.
func NewWithOpeners(det platform.Detector, system, embedded Opener) *Service {
	return &Service{detector: det, system: system, embedded: embedded}
}

// ValidateURL checks that raw is an absolute http(s) URL.
func ValidateURL(raw string) error {
	parsed, err := neturl.ParseRequestURI(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("portal url must be an absolute http or https url")
	}
	return nil
}

// Platform reports the branch the next open would take.
func (s *Service) Platform() platform.Kind {
	return s.detector.Detect()
}

// OpenPortal opens the URL for the current platform. Failures are logged
// here with context and returned to the caller; the HTTP boundary decides
// whether to surface them (it does not — it logs again and answers 202).
func (s *Service) OpenPortal(ctx context.Context, rawURL string) error {
	if err := ValidateURL(rawURL); err != nil {
		return err
	}

	kind := s.detector.Detect()

	var err error
	switch kind {
	case platform.System:
		err = s.system.Open(ctx, rawURL)
	default:
		err = s.embedded.Open(ctx, rawURL)
	}

	if err != nil {
		u.Error("Portal open failed", "url", rawURL, "platform", kind.String(), "error", err.Error())
		return fmt.Errorf("open portal (%s): %w", kind, err)
	}

	u.Info("Portal opened", "url", rawURL, "platform", kind.String())
	return nil
}
