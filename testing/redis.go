// Package testing holds helpers shared by package tests. Importing it puts
// the process in test mode so binaries skip their runtime startup.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("ODYSSEY_TEST_MODE", "1")
	})
}

func init() {
	ensureTestMode()
}

// NewRedis starts an in-memory Redis for the duration of t and returns a
// client connected to it.
func NewRedis(t stdtesting.TB) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	ensureTestMode()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}
