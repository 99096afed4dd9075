package app

import (
	"os"
	"sync/atomic"
)

const testModeEnv = "ODYSSEY_TEST_MODE"

// testMode caches the flag; nil until first read.
var testMode atomic.Pointer[bool]

// InTestMode reports whether binaries should skip connecting to Postgres and
// Redis. It is set by ODYSSEY_TEST_MODE=1.
func InTestMode() bool {
	if v := testMode.Load(); v != nil {
		return *v
	}
	return RefreshTestMode()
}

// RefreshTestMode re-reads ODYSSEY_TEST_MODE and returns the new value.
func RefreshTestMode() bool {
	on := os.Getenv(testModeEnv) == "1"
	testMode.Store(&on)
	return on
}
