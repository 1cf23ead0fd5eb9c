// Package testing switches ledger binaries into test mode when imported, so
// calling their main functions from tests never dials Postgres or Redis.
package testing

import (
	"os"
	"sync"
)

// TestModeEnv is read by app.InTestMode.
const TestModeEnv = "LEDGER_TEST_MODE"

var once sync.Once

// Enable sets TestModeEnv unless the environment already defines it.
func Enable() {
	once.Do(func() {
		if _, ok := os.LookupEnv(TestModeEnv); !ok {
			_ = os.Setenv(TestModeEnv, "1")
		}
	})
}

func init() {
	Enable()
}
