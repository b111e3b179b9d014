// Package guard flips the process into test mode when imported so binaries skip runtime side effects.
package guard

import (
	"os"
	"sync"
)

const envTestMode = "FULFILLMENT_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(envTestMode) == "" {
			_ = os.Setenv(envTestMode, "1")
		}
	})
}
