// Package testutils holds shared test doubles used across the core
// packages' _test.go files.
package testutils

import (
	"testing"

	"go.uber.org/goleak"
)

// VerifyNoLeaks runs m after installing goleak's process exit hook. Our
// background tasks (balancer ticks, idle sweeps) are all owned by a
// context and expected to exit cleanly, so a blanket leak check is
// appropriate rather than a case-specific ignore list.
func VerifyNoLeaks(m *testing.M, extra ...goleak.Option) {
	goleak.VerifyTestMain(m, extra...)
}
