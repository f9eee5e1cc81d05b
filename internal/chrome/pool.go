// Package chrome manages a shared embedded Chrome instance and a bounded set
// of tabs for portal opens. Keeping one warm browser avoids paying process
// startup for every open on the embedded platform.
package chrome

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	u "portalgate/internal/utils"
)

// Tab is one acquired browser tab. Ctx is a chromedp context ready for Run.
type Tab struct {
	Ctx    context.Context
	cancel context.CancelFunc
}

// Pool bounds concurrent tabs of a single embedded browser.
type Pool struct {
	cfg        u.Config
	sem        chan struct{}
	profileDir string

	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc

	mu          sync.Mutex
	closed      bool
	restarts    int
	lastRestart time.Time
}

// Stats is a snapshot of pool state for the stats endpoint.
type Stats struct {
	Enabled      bool      `json:"enabled"`
	Capacity     int       `json:"capacity"`
	Idle         int       `json:"idle"`
	InUse        int       `json:"in_use"`
	PoolSizeConf int       `json:"pool_size_conf"`
	ProfileDir   string    `json:"profile_dir"`
	Restarts     int       `json:"restarts"`
	LastRestart  time.Time `json:"last_restart"`
}

func createProfileDir(cfg u.Config) (string, error) {
	base := cfg.Portal.UserDataDir
	if base == "" {
		return os.MkdirTemp("", "portalgate-chrome-*")
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", fmt.Errorf("cannot create profile base dir: %w", err)
	}
	return os.MkdirTemp(base, "profile-*")
}

// AllocatorOptions builds the exec allocator options for the embedded
// browser. Headful: the container is a visible window, not a renderer.
func AllocatorOptions(cfg u.Config, profileDir string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(profileDir),
		chromedp.Flag("headless", false),
		// Software rendering keeps minimal container environments working.
		chromedp.Flag("disable-gpu-compositing", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if cfg.Portal.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.Portal.ChromePath))
	}
	if cfg.Portal.ChromeNoSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true))
	}
	return opts
}

// GestureNavigation enables swipe back/forward inside the container, like a
// native webview.
func GestureNavigation() chromedp.ExecAllocatorOption {
	return chromedp.Flag("enable-features", "OverscrollHistoryNavigation")
}

// poolAllocatorOptions is the launch configuration for the shared browser.
// Gestures are a browser-launch flag, so the pool takes them from the config;
// per-open settings that need their own launch go to a one-shot browser.
func poolAllocatorOptions(cfg u.Config, profileDir string) []chromedp.ExecAllocatorOption {
	opts := AllocatorOptions(cfg, profileDir)
	if cfg.Portal.EnableGestures {
		opts = append(opts, GestureNavigation())
	}
	return opts
}

// NewPool sets up the allocator and browser context. Chrome itself launches
// lazily on the first Run against a tab.
func NewPool(cfg u.Config) (*Pool, error) {
	size := cfg.Portal.ChromePoolSize
	if size <= 0 {
		return nil, errors.New("chrome pool disabled (pool size <= 0)")
	}

	profileDir, err := createProfileDir(cfg)
	if err != nil {
		return nil, err
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), poolAllocatorOptions(cfg, profileDir)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	p := &Pool{
		cfg:           cfg,
		sem:           make(chan struct{}, size),
		profileDir:    profileDir,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}
	for i := 0; i < size; i++ {
		p.sem <- struct{}{}
	}
	return p, nil
}

// Acquire takes a tab slot, blocking until one frees up or ctx expires.
func (p *Pool) Acquire(ctx context.Context) (*Tab, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errors.New("chrome pool is closed")
	}
	browserCtx := p.browserCtx
	p.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.sem:
	}

	tabCtx, cancel := chromedp.NewContext(browserCtx)
	return &Tab{Ctx: tabCtx, cancel: cancel}, nil
}

// Release returns the tab slot. A failed tab is torn down; a successful open
// leaves its tab alive, still displaying the portal. Slots bound concurrent
// open operations, not visible windows.
func (p *Pool) Release(tab *Tab, err error) {
	if tab != nil && err != nil && tab.cancel != nil {
		tab.cancel()
	}
	select {
	case p.sem <- struct{}{}:
	default:
	}
	if err != nil && IsSessionInterrupted(err) {
		u.Warn("Released tab after interrupted session", "error", err.Error())
	}
}

// Restart tears the browser down and builds a fresh allocator with a new
// profile dir. In-flight tabs are invalidated.
func (p *Pool) Restart() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errors.New("chrome pool is closed")
	}

	if p.browserCancel != nil {
		p.browserCancel()
	}
	if p.allocCancel != nil {
		p.allocCancel()
	}

	profileDir, err := createProfileDir(p.cfg)
	if err != nil {
		return err
	}
	if p.profileDir != "" {
		_ = os.RemoveAll(p.profileDir)
	}
	p.profileDir = profileDir

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), poolAllocatorOptions(p.cfg, profileDir)...)
	p.browserCtx, p.browserCancel = chromedp.NewContext(allocCtx)
	p.allocCancel = allocCancel

	p.restarts++
	p.lastRestart = time.Now()

	// Refill slots dropped by invalidated tabs.
	for len(p.sem) < cap(p.sem) {
		p.sem <- struct{}{}
	}
	return nil
}

// Close shuts the pool down. Idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	if p.browserCancel != nil {
		p.browserCancel()
	}
	if p.allocCancel != nil {
		p.allocCancel()
	}
	if p.profileDir != "" {
		_ = os.RemoveAll(p.profileDir)
	}
}

// Stats reports current pool occupancy.
func (p *Pool) Stats(timeoutSecs int) Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return Stats{PoolSizeConf: p.cfg.Portal.ChromePoolSize, Restarts: p.restarts, LastRestart: p.lastRestart}
	}

	idle := len(p.sem)
	capacity := cap(p.sem)
	return Stats{
		Enabled:      true,
		Capacity:     capacity,
		Idle:         idle,
		InUse:        capacity - idle,
		PoolSizeConf: p.cfg.Portal.ChromePoolSize,
		ProfileDir:   p.profileDir,
		Restarts:     p.restarts,
		LastRestart:  p.lastRestart,
	}
}

// IsSessionInterrupted reports whether err looks like a torn-down browser
// session rather than a page-level failure.
func IsSessionInterrupted(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{"target closed", "session closed", "browser closed", "websocket: close"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
