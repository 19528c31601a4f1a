// Package guard flips the binaries into test mode as soon as a test binary
// imports it, before any package-level config is read.
package guard

import "os"

func init() {
	if _, set := os.LookupEnv("CROSSBRIDGE_TEST_MODE"); !set {
		_ = os.Setenv("CROSSBRIDGE_TEST_MODE", "1")
	}
	if _, set := os.LookupEnv("LOG_FORMAT"); !set {
		_ = os.Setenv("LOG_FORMAT", "json")
	}
}
