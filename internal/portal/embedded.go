package portal

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"portalgate/internal/chrome"
	u "portalgate/internal/utils"
)

// EmbeddedOpener shows portals in the embedded browser container with the
// blob-open workaround injected at document start.
type EmbeddedOpener struct {
	cfg       u.Config
	container Container
}

// NewEmbeddedOpener wires the opener to a Chrome-backed container. pool may
// be nil, in which case every open launches a one-shot browser.
func NewEmbeddedOpener(cfg u.Config, pool *chrome.Pool) *EmbeddedOpener {
	return &EmbeddedOpener{
		cfg:       cfg,
		container: &chromeContainer{cfg: cfg, pool: pool},
	}
}

// NewEmbeddedOpenerWithContainer is used by tests to substitute the container.
func NewEmbeddedOpenerWithContainer(cfg u.Config, c Container) *EmbeddedOpener {
	return &EmbeddedOpener{cfg: cfg, container: c}
}

// Open builds the container config for the URL and shows it. The injection
// timing is always document-start so the override exists before any page
// script can call window.open.
func (o *EmbeddedOpener) Open(ctx context.Context, rawURL string) error {
	return o.container.Show(ctx, ContainerConfig{
		URL:              rawURL,
		Title:            o.cfg.Portal.Title,
		ShowToolbar:      o.cfg.Portal.ShowToolbar,
		ShowReload:       o.cfg.Portal.ShowReload,
		EnableGestures:   o.cfg.Portal.EnableGestures,
		PresentAfterLoad: o.cfg.Portal.PresentAfterLoad,
		InjectAt:         InjectAtDocumentStart,
		Script:           BlobOpenScript,
	})
}

// chromeContainer drives the embedded browser over CDP.
type chromeContainer struct {
	cfg  u.Config
	pool *chrome.Pool
}

func (cc *chromeContainer) Show(ctx context.Context, conf ContainerConfig) error {
	timeout := time.Duration(cc.cfg.Portal.TimeoutSecs) * time.Second

	// App mode is a browser-launch flag. Pooled tabs share one already-running
	// browser, so a portal that needs its own chrome gets a one-shot launch
	// even when the pool is up.
	if cc.pool == nil || dedicatedBrowserFor(conf) {
		return cc.showOneShot(ctx, conf, timeout)
	}

	runOnce := func() error {
		acquireCtx, acquireCancel := context.WithTimeout(ctx, 5*time.Second)
		defer acquireCancel()

		tab, err := cc.pool.Acquire(acquireCtx)
		if err != nil {
			return err
		}

		showCtx, cancel := context.WithTimeout(tab.Ctx, timeout)
		err = showInTab(showCtx, conf)
		cancel()

		// On success the tab stays alive displaying the portal; the slot
		// only bounds concurrent open operations.
		cc.pool.Release(tab, err)
		return err
	}

	err := runOnce()
	if err != nil && chrome.IsSessionInterrupted(err) {
		u.Warn("Chrome session interrupted; restarting pool and retrying once", "error", err.Error())
		_ = cc.pool.Restart()
		return runOnce()
	}
	return err
}

// showOneShot launches a dedicated browser for this portal. The browser is
// intentionally left running afterwards: it is the window the user looks at.
func (cc *chromeContainer) showOneShot(ctx context.Context, conf ContainerConfig, timeout time.Duration) error {
	profileDir, err := os.MkdirTemp("", "portalgate-chrome-*")
	if err != nil {
		return fmt.Errorf("cannot create temp profile dir: %w", err)
	}

	opts := oneShotAllocatorOptions(cc.cfg, conf, profileDir)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	showCtx, cancel := context.WithTimeout(browserCtx, timeout)
	err = showInTab(showCtx, conf)
	cancel()

	if err != nil {
		browserCancel()
		allocCancel()
		_ = os.RemoveAll(profileDir)
		return err
	}
	return nil
}

// dedicatedBrowserFor reports whether the requested chrome cannot be served
// by a pooled tab. Chrome offers no toolbar without a reload control, so
// hiding either one means launching in app mode.
func dedicatedBrowserFor(conf ContainerConfig) bool {
	return !conf.ShowToolbar || !conf.ShowReload
}

// oneShotAllocatorOptions derives the launch flags from the container request
// itself: gestures and app mode are launch-time decisions.
func oneShotAllocatorOptions(cfg u.Config, conf ContainerConfig, profileDir string) []chromedp.ExecAllocatorOption {
	opts := chrome.AllocatorOptions(cfg, profileDir)
	if conf.EnableGestures {
		opts = append(opts, chrome.GestureNavigation())
	}
	if dedicatedBrowserFor(conf) {
		opts = append(opts, chromedp.Flag("app", conf.URL))
	}
	return opts
}

// showInTab installs the script and navigates. With document-start timing the
// script is registered before navigation and also run immediately, so the
// override covers both the current and every future document in the tab.
func showInTab(ctx context.Context, conf ContainerConfig) error {
	actions := []chromedp.Action{}

	if conf.InjectAt == InjectAtDocumentStart {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(conf.Script).
				WithRunImmediately(true).
				Do(ctx)
			return err
		}))
	}

	actions = append(actions, chromedp.Navigate(conf.URL))

	if conf.PresentAfterLoad {
		actions = append(actions, chromedp.WaitReady("body", chromedp.ByQuery))
	}
	if conf.InjectAt == InjectAtDocumentEnd {
		actions = append(actions, chromedp.Evaluate(conf.Script, nil))
	}
	if conf.Title != "" {
		actions = append(actions, chromedp.Evaluate(fmt.Sprintf("document.title = %q", conf.Title), nil))
	}

	return chromedp.Run(ctx, actions...)
}
