package app

import (
	"os"
	"strconv"
	"sync"
)

// TestModeEnv switches both binaries into a no-op start.
const TestModeEnv = "SPPI_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	on, _ := strconv.ParseBool(os.Getenv(TestModeEnv))
	return on
})

// InTestMode reports whether SPPI_TEST_MODE was set when first asked.
func InTestMode() bool {
	return testMode()
}
