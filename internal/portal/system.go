package portal

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
)

// SystemOpener hands the URL to the OS default browser, which manages popups
// and blob downloads itself. No workaround needed on this platform.
type SystemOpener struct{}

func systemCommand(ctx context.Context, rawURL string) *exec.Cmd {
	switch runtime.GOOS {
	case "darwin":
		return exec.CommandContext(ctx, "open", rawURL)
	case "windows":
		// rundll32 instead of "cmd /c start": start mishandles & and ? in
		// URLs (interprets & as a command separator).
		return exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", rawURL)
	default:
		return exec.CommandContext(ctx, "xdg-open", rawURL)
	}
}

// Open launches the default browser with the exact URL, unmodified.
func (SystemOpener) Open(ctx context.Context, rawURL string) error {
	cmd := systemCommand(ctx, rawURL)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch system browser: %w", err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
