package importer

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain uses goleak to verify the poll-loop goroutine Start launches
// is always gone by the time a test finishes (every test that calls
// Start must pair it with Stop, directly or via defer).
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
