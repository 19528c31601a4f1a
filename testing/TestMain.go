// Package testing is imported for its side effects by handler tests: it puts
// the process in test mode and points the bill store at an in-memory SQLite
// database unless the caller chose one.
package testing

import (
	"os"
	stdtesting "testing"
)

var defaults = [][2]string{
	{"CROSSBRIDGE_TEST_MODE", "1"},
	{"BILL_STORE", "sqlite"},
	{"SQLITE_PATH", ":memory:"},
	{"REDIS_ADDR", "127.0.0.1:0"},
}

func init() {
	for _, kv := range defaults {
		if _, set := os.LookupEnv(kv[0]); !set {
			_ = os.Setenv(kv[0], kv[1])
		}
	}
}

// TestMain lets packages delegate their TestMain here.
func TestMain(m *stdtesting.M) {
	os.Exit(m.Run())
}
