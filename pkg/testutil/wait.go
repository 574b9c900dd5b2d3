package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	waitTimeout = 2 * time.Second
	waitTick    = 5 * time.Millisecond
)

// AwaitLen blocks until count reports at least n, failing the test after a
// short timeout. Sinks are fed asynchronously, so assertions on their
// contents wait for delivery first.
func AwaitLen(t *testing.T, n int, count func() int) {
	t.Helper()
	require.Eventually(t, func() bool { return count() >= n }, waitTimeout, waitTick,
		"expected at least %d items", n)
}
