package portal

import (
	_ "embed"
)

// BlobOpenScript is the workaround injected into the embedded container
// before any page script runs. It overrides window.open so blob: URLs
// navigate in place instead of opening a popup, and ends with a truthy value
// as the container's evaluation contract requires. The script is
// foreign-runtime code and is treated as an opaque string; internal/sandbox
// holds the harness that verifies it.
//
//go:embed blobopen.js
var BlobOpenScript string
