package app

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/minemods/internal/testutil"
)

// SetupAppTest creates an App rooted at root with debug logging captured in
// a buffer. The mod loader is enabled unless cfg says otherwise; pass nil
// for the defaults. Set MINEMODS_TEST_LOGS=true to print the log of each
// test.
func SetupAppTest(t *testing.T, root string, cfg *Config, opts ...Option) (*App, *testutil.SafeBuffer) {
	t.Helper()

	if cfg == nil {
		cfg = &Config{EnableModLoader: true}
	}
	cfg.Root = root
	cfg.LogLevel = "debug"
	validated, err := NewConfig(*cfg)
	require.NoError(t, err)

	logBuffer := &testutil.SafeBuffer{}
	testApp, err := New(validated, append([]Option{WithOutput(logBuffer)}, opts...)...)
	require.NoError(t, err)

	t.Cleanup(func() {
		if os.Getenv("MINEMODS_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, logBuffer
}
