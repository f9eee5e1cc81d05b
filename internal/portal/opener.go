package portal

import "context"

// InjectionTime is the point in the page-load lifecycle at which a
// host-supplied script runs relative to the page's own scripts.
type InjectionTime int

const (
	// InjectAtDocumentStart runs the script before any page script. The
	// blob-open override must be installed this early or the page could call
	// the original window.open first.
	InjectAtDocumentStart InjectionTime = iota
	// InjectAtDocumentEnd runs the script after the page has loaded.
	InjectAtDocumentEnd
)

func (t InjectionTime) String() string {
	if t == InjectAtDocumentEnd {
		return "document-end"
	}
	return "document-start"
}

// ContainerConfig is the configuration surface of the embedded browser
// container.
type ContainerConfig struct {
	URL              string
	Title            string
	ShowToolbar      bool
	ShowReload       bool
	EnableGestures   bool
	PresentAfterLoad bool
	InjectAt         InjectionTime
	Script           string
}

// Opener is the capability of putting a portal URL in front of the user.
// Exactly one implementation runs per open, selected by platform.
type Opener interface {
	Open(ctx context.Context, rawURL string) error
}

// Container shows a portal inside an embedded browser window per the config.
type Container interface {
	Show(ctx context.Context, cfg ContainerConfig) error
}
