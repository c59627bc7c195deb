// Package testing is imported for its side effect by tests that construct
// the application: it puts the process in test mode and fills the
// environment LoadConfig requires.
package testing

import "os"

var defaults = map[string]string{
	"SPPI_TEST_MODE":    "1",
	"JWT_SECRET":        "test-secret-0123456789",
	"GOTENBERG_URL":     "http://127.0.0.1:0",
	"ATTACHMENT_DRIVER": "local",
}

func init() {
	for key, value := range defaults {
		if os.Getenv(key) == "" {
			_ = os.Setenv(key, value)
		}
	}
}
