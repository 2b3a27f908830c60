// Package hyprctl speaks the compositor's IPC surface: the control socket
// for dispatch commands and JSON state queries, and the event socket for the
// asynchronous event stream.
//
// Both sockets live under $XDG_RUNTIME_DIR/hypr/$HYPRLAND_INSTANCE_SIGNATURE/.
// The control socket serves one request per connection. The event socket is a
// newline-delimited stream that only ever flows toward the client.
package hyprctl

import (
	"os"
	"path/filepath"

	ferrors "github.com/gyromean/hywoma/internal/foundation/errors"
)

const (
	controlSocketName = ".socket.sock"
	eventSocketName   = ".socket2.sock"
)

// Sockets holds the resolved compositor socket paths.
type Sockets struct {
	Control string
	Events  string
}

// Discover resolves the socket paths from the session environment. The
// compositor exports both variables to processes it spawns, so their absence
// means the daemon is not running inside a compositor session.
func Discover() (Sockets, error) {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		return Sockets{}, ferrors.ConfigError("XDG_RUNTIME_DIR is not set").Build()
	}

	signature := os.Getenv("HYPRLAND_INSTANCE_SIGNATURE")
	if signature == "" {
		return Sockets{}, ferrors.ConfigError("HYPRLAND_INSTANCE_SIGNATURE is not set").
			WithContext("hint", "start hywoma from inside a Hyprland session").
			Build()
	}

	base := filepath.Join(runtimeDir, "hypr", signature)
	return Sockets{
		Control: filepath.Join(base, controlSocketName),
		Events:  filepath.Join(base, eventSocketName),
	}, nil
}
