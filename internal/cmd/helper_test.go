package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/probeflow/probeflow/internal/cmn/logger"
)

// cmdTest defines a single command test case.
type cmdTest struct {
	args        []string
	expectedOut []string
}

// harness bundles what a command test needs: an isolated application
// home, a cancellable context and a captured log stream.
type harness struct {
	context.Context

	cancel context.CancelFunc
	output *syncBuffer
	home   string
}

// setupCommand points the application home at a temp directory and
// fixes the context logger to a capture buffer. Commands share global
// viper state, so tests using this must not run in parallel.
func setupCommand(t *testing.T) *harness {
	t.Helper()

	home := t.TempDir()
	t.Setenv("PROBEFLOW_HOME", home)
	viper.Reset()

	out := &syncBuffer{}
	ctx := logger.WithFixedLogger(context.Background(), logger.NewLogger(
		logger.WithDebug(),
		logger.WithFormat("text"),
		logger.WithWriter(out),
	))
	ctx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)

	return &harness{Context: ctx, cancel: cancel, output: out, home: home}
}

// runCommand executes the command under a fresh root and asserts that
// every expected fragment appears in the captured log output.
func (th *harness) runCommand(t *testing.T, cmd *cobra.Command, tc cmdTest) {
	t.Helper()

	root := &cobra.Command{Use: "root"}
	root.AddCommand(cmd)
	root.SetArgs(tc.args)

	require.NoError(t, root.ExecuteContext(th.Context))

	out := th.output.String()
	for _, want := range tc.expectedOut {
		require.Contains(t, out, want)
	}
}

// dataDir returns the path of one of the default store directories
// under the harness home.
func (th *harness) dataDir(elem string) string {
	return filepath.Join(th.home, "data", elem)
}

// writeFile drops a definition file into the harness home and returns
// its path.
func (th *harness) writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(th.home, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// syncBuffer guards the capture buffer against concurrent writes from
// run goroutines.
type syncBuffer struct {
	buf  bytes.Buffer
	lock sync.Mutex
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.String()
}
