package hyprctl

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	ferrors "github.com/gyromean/hywoma/internal/foundation/errors"
)

func TestDiscoverResolvesSocketPaths(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	t.Setenv("HYPRLAND_INSTANCE_SIGNATURE", "abc123_1700000000_42")

	socks, err := Discover()
	require.NoError(t, err)

	base := filepath.Join("/run/user/1000", "hypr", "abc123_1700000000_42")
	require.Equal(t, filepath.Join(base, ".socket.sock"), socks.Control)
	require.Equal(t, filepath.Join(base, ".socket2.sock"), socks.Events)
}

func TestDiscoverMissingSignature(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	t.Setenv("HYPRLAND_INSTANCE_SIGNATURE", "")

	_, err := Discover()
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestDiscoverMissingRuntimeDir(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "")
	t.Setenv("HYPRLAND_INSTANCE_SIGNATURE", "abc123")

	_, err := Discover()
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}
