package app

import (
	"bytes"
	"os"
	"sync"
	"testing"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// SetupAppTest creates an app with debug logging captured in a buffer. The
// log is printed when SEGMENTGRID_TEST_LOGS=true.
func SetupAppTest(t *testing.T, cfg *Config, opts ...Option) (*App, *SafeBuffer, *SafeBuffer) {
	t.Helper()

	out := &SafeBuffer{}
	logs := &SafeBuffer{}
	cfg.LogLevel = "debug"
	testApp := NewApp(out, logs, cfg, opts...)

	t.Cleanup(func() {
		if os.Getenv("SEGMENTGRID_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logs.String())
		}
	})

	return testApp, out, logs
}
