package testflags

import (
	"flag"
	"testing"
)

// Both kinds of test run unless turned off, e.g. `go test ./... -integration=false`.
var (
	unitTest        = flag.Bool("unit", true, "Run the unit go tests")
	integrationTest = flag.Bool("integration", true, "Run the integration go tests")
)

// UnitTest marks a fast, self contained test. It runs in parallel with other
// tests when -unit is set or under -short.
func UnitTest(t *testing.T) {
	if !*unitTest && !testing.Short() {
		t.SkipNow()
	}
	t.Parallel()
}

// IntegrationTest marks a test that touches disk or the network. It runs in
// parallel with other tests when -integration is set, never under -short.
func IntegrationTest(t *testing.T) {
	if !*integrationTest || testing.Short() {
		t.SkipNow()
	}
	t.Parallel()
}

// BadUnitTestWithSideEffects is UnitTest for tests that mutate process
// globals. They run serially.
func BadUnitTestWithSideEffects(t *testing.T) {
	if !*unitTest && !testing.Short() {
		t.SkipNow()
	}
}
