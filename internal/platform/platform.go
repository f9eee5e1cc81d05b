// Package platform resolves which browsing environment the service runs in.
//
// Two kinds are recognized: System, where the OS default browser is available
// and already handles popups and blob downloads, and Embedded, a restricted
// deployment (kiosk, managed host) where portals must be shown in an embedded
// browser container with the blob-open workaround applied.
package platform

import "os"

// Kind is the resolved browsing environment.
type Kind int

const (
	// System delegates to the OS default browser.
	System Kind = iota
	// Embedded opens portals in an embedded browser container.
	Embedded
)

// String returns the config-file spelling of the kind.
func (k Kind) String() string {
	if k == Embedded {
		return "embedded"
	}
	return "system"
}

// Detector resolves the platform once per open call.
type Detector interface {
	Detect() Kind
}

// Fixed is a Detector that always reports the same kind. Used when the
// platform is pinned in config, and in tests.
type Fixed struct {
	Kind Kind
}

func (f Fixed) Detect() Kind { return f.Kind }

// Env resolves the platform from the environment: a deployment that marks
// itself restricted (PORTALGATE_EMBEDDED set) gets the embedded container,
// everything else the system browser. The absence of a display is not a
// signal here: the embedded container is a visible browser window and needs
// a display seat just as much as the system browser does.
type Env struct{}

func (Env) Detect() Kind {
	if os.Getenv("PORTALGATE_EMBEDDED") != "" {
		return Embedded
	}
	return System
}

// FromConfig maps the config value to a Detector. "system" and "embedded"
// pin the platform; anything else (typically "auto") falls back to Env.
func FromConfig(value string) Detector {
	switch value {
	case "system":
		return Fixed{Kind: System}
	case "embedded":
		return Fixed{Kind: Embedded}
	default:
		return Env{}
	}
}
