package portal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portalgate/internal/chrome"
	u "portalgate/internal/utils"
)

type fakeContainer struct {
	configs []ContainerConfig
	err     error
}

func (f *fakeContainer) Show(ctx context.Context, cfg ContainerConfig) error {
	f.configs = append(f.configs, cfg)
	return f.err
}

func embeddedTestConfig() u.Config {
	var cfg u.Config
	cfg.Portal.Title = "Portal"
	cfg.Portal.ShowToolbar = true
	cfg.Portal.ShowReload = true
	cfg.Portal.EnableGestures = true
	cfg.Portal.PresentAfterLoad = true
	cfg.Portal.TimeoutSecs = 1
	return cfg
}

func TestEmbeddedOpen_ContainerConfig(t *testing.T) {
	fc := &fakeContainer{}
	o := NewEmbeddedOpenerWithContainer(embeddedTestConfig(), fc)

	err := o.Open(context.Background(), "https://x.example/doc")
	require.NoError(t, err)
	require.Len(t, fc.configs, 1, "container must be invoked exactly once")

	got := fc.configs[0]
	assert.Equal(t, "https://x.example/doc", got.URL)
	assert.Equal(t, InjectAtDocumentStart, got.InjectAt, "override must be in place before any page script")
	assert.Equal(t, BlobOpenScript, got.Script)
	assert.Equal(t, "Portal", got.Title)
	assert.True(t, got.ShowToolbar)
	assert.True(t, got.ShowReload)
	assert.True(t, got.EnableGestures)
	assert.True(t, got.PresentAfterLoad)
}

func TestEmbeddedOpen_PropagatesContainerError(t *testing.T) {
	boom := errors.New("container launch failed")
	fc := &fakeContainer{err: boom}
	o := NewEmbeddedOpenerWithContainer(embeddedTestConfig(), fc)

	err := o.Open(context.Background(), "https://x.example/doc")
	assert.True(t, errors.Is(err, boom))
}

func TestDedicatedBrowserFor(t *testing.T) {
	cases := []struct {
		name      string
		toolbar   bool
		reload    bool
		dedicated bool
	}{
		{"full chrome pools fine", true, true, false},
		{"no toolbar needs app mode", false, true, true},
		{"no reload needs app mode", true, false, true},
		{"bare window needs app mode", false, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conf := ContainerConfig{ShowToolbar: tc.toolbar, ShowReload: tc.reload}
			assert.Equal(t, tc.dedicated, dedicatedBrowserFor(conf))
		})
	}
}

func TestOneShotAllocatorOptions_FollowContainerConfig(t *testing.T) {
	cfg := embeddedTestConfig()
	base := len(chrome.AllocatorOptions(cfg, t.TempDir()))

	plain := ContainerConfig{URL: "https://x.example/doc", ShowToolbar: true, ShowReload: true}
	assert.Len(t, oneShotAllocatorOptions(cfg, plain, t.TempDir()), base,
		"full chrome without gestures adds no launch flags")

	gestures := plain
	gestures.EnableGestures = true
	assert.Len(t, oneShotAllocatorOptions(cfg, gestures, t.TempDir()), base+1,
		"gesture flag must come from the container request")

	appMode := plain
	appMode.ShowToolbar = false
	assert.Len(t, oneShotAllocatorOptions(cfg, appMode, t.TempDir()), base+1,
		"hidden toolbar must add the app-mode flag")

	noReload := plain
	noReload.ShowReload = false
	assert.Len(t, oneShotAllocatorOptions(cfg, noReload, t.TempDir()), base+1,
		"hidden reload control must add the app-mode flag")
}

func TestInjectionTimeString(t *testing.T) {
	assert.Equal(t, "document-start", InjectAtDocumentStart.String())
	assert.Equal(t, "document-end", InjectAtDocumentEnd.String())
}
