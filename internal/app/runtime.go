package app

import (
	"os"
	"strconv"
	"sync"
)

// TestModeEnv, when truthy, makes the binaries return before opening
// connections. Test helpers set it from init.
const TestModeEnv = "CROSSBRIDGE_TEST_MODE"

var (
	testModeOnce sync.Once
	testMode     bool
)

// InTestMode reports whether runtime side effects should be skipped. The
// environment is read once per process.
func InTestMode() bool {
	testModeOnce.Do(func() {
		testMode = envTruthy(os.Getenv(TestModeEnv))
	})
	return testMode
}

func envTruthy(v string) bool {
	ok, err := strconv.ParseBool(v)
	return err == nil && ok
}
