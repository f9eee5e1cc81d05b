package portal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portalgate/internal/platform"
)

type fakeOpener struct {
	calls []string
	err   error
}

func (f *fakeOpener) Open(ctx context.Context, rawURL string) error {
	f.calls = append(f.calls, rawURL)
	return f.err
}

func TestOpenPortal_SystemBranch(t *testing.T) {
	sys := &fakeOpener{}
	emb := &fakeOpener{}
	svc := NewWithOpeners(platform.Fixed{Kind: platform.System}, sys, emb)

	err := svc.OpenPortal(context.Background(), "https://x.example/doc")
	require.NoError(t, err)

	require.Len(t, sys.calls, 1)
	assert.Equal(t, "https://x.example/doc", sys.calls[0])
	assert.Empty(t, emb.calls, "embedded opener must not be invoked on the system platform")
}

func TestOpenPortal_EmbeddedBranch(t *testing.T) {
	sys := &fakeOpener{}
	emb := &fakeOpener{}
	svc := NewWithOpeners(platform.Fixed{Kind: platform.Embedded}, sys, emb)

	err := svc.OpenPortal(context.Background(), "https://x.example/doc")
	require.NoError(t, err)

	require.Len(t, emb.calls, 1)
	assert.Equal(t, "https://x.example/doc", emb.calls[0])
	assert.Empty(t, sys.calls, "system opener must not be invoked on the embedded platform")
}

func TestOpenPortal_OpenerFailureIsWrappedNotPanicked(t *testing.T) {
	boom := errors.New("browser unavailable")
	emb := &fakeOpener{err: boom}
	svc := NewWithOpeners(platform.Fixed{Kind: platform.Embedded}, &fakeOpener{}, emb)

	err := svc.OpenPortal(context.Background(), "https://x.example/doc")
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Len(t, emb.calls, 1, "a failing open is not retried")
}

func TestOpenPortal_RejectsInvalidURLs(t *testing.T) {
	sys := &fakeOpener{}
	emb := &fakeOpener{}
	svc := NewWithOpeners(platform.Fixed{Kind: platform.System}, sys, emb)

	for _, raw := range []string{"", "not a url", "ftp://x.example/f", "blob:https://x.example/a", "/relative/path"} {
		err := svc.OpenPortal(context.Background(), raw)
		assert.Error(t, err, "url %q should be rejected", raw)
	}
	assert.Empty(t, sys.calls)
	assert.Empty(t, emb.calls)
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		raw string
		ok  bool
	}{
		{raw: "https://x.example/doc", ok: true},
		{raw: "http://x.example", ok: true},
		{raw: "https://x.example/doc?d=1&f=2", ok: true},
		{raw: "x.example/doc", ok: false},
		{raw: "file:///etc/passwd", ok: false},
		{raw: "", ok: false},
	}
	for _, tc := range tests {
		err := ValidateURL(tc.raw)
		if tc.ok {
			assert.NoError(t, err, "url %q", tc.raw)
		} else {
			assert.Error(t, err, "url %q", tc.raw)
		}
	}
}

func TestPlatformReportsDetectorResult(t *testing.T) {
	svc := NewWithOpeners(platform.Fixed{Kind: platform.Embedded}, &fakeOpener{}, &fakeOpener{})
	assert.Equal(t, platform.Embedded, svc.Platform())
}
