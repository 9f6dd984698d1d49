package app

import (
	"os"
	"sync"
	"sync/atomic"
)

const testModeEnv = "ODYSSEY_TEST_MODE"

var (
	testMode     atomic.Bool
	testModeOnce sync.Once
)

// InTestMode reports whether binaries should skip external side effects
// such as connecting to Redis or Postgres.
func InTestMode() bool {
	testModeOnce.Do(func() { testMode.Store(os.Getenv(testModeEnv) == "1") })
	return testMode.Load()
}

// SetTestMode overrides the detected flag.
func SetTestMode(on bool) {
	testModeOnce.Do(func() {})
	testMode.Store(on)
}
