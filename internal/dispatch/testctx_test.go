package dispatch

import (
	"context"
	"testing"
)

// testContext stands in for testing.T.Context, which needs a newer Go
// toolchain than this module builds with: it returns a context that is
// canceled when the test finishes.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
