package portal

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemCommand_PassesURLUnmodified(t *testing.T) {
	rawURL := "https://x.example/doc?d=1&f=2"
	cmd := systemCommand(context.Background(), rawURL)
	require.NotNil(t, cmd)

	require.NotEmpty(t, cmd.Args)
	assert.Equal(t, rawURL, cmd.Args[len(cmd.Args)-1], "url must be the final argument, untouched")
}

func TestSystemCommand_PerOSLauncher(t *testing.T) {
	cmd := systemCommand(context.Background(), "https://x.example")
	name := filepath.Base(cmd.Args[0])

	switch runtime.GOOS {
	case "darwin":
		assert.Equal(t, "open", name)
	case "windows":
		assert.Equal(t, "rundll32", name)
	default:
		assert.Equal(t, "xdg-open", name)
	}
}
