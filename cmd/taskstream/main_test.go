// ABOUTME: Tests for the CLI commands against an in-process agent server
// ABOUTME: Drives the cobra root command with captured output and no colour

package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/taskstream/internal/config"
	"github.com/2389/taskstream/internal/gateway"
	"github.com/2389/taskstream/internal/store"
)

func startServer(t *testing.T) string {
	t.Helper()

	cfg := config.Default()
	cfg.Runner.StepDelay = time.Millisecond
	cfg.Runner.StepJitter = 0
	cfg.Server.KeepAlive = time.Hour

	gw := gateway.NewWithStore(cfg, store.NewMockStore(), nil)
	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(srv.Close)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = gw.Shutdown(ctx)
	})
	return srv.URL
}

// execute runs the root command with args and returns its output.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("TASKSTREAM_CONFIG", filepath.Join(t.TempDir(), "client.toml"))

	cfgFile, serverURL, logLevel = "", "", "error"

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append(args, "--no-color"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := rootCmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestSend_RendersCompletedTurn(t *testing.T) {
	url := startServer(t)

	out, err := execute(t, "", "send", "--server", url, "buy", "milk")
	require.NoError(t, err)

	assert.Contains(t, out, "agent>")
	assert.Contains(t, out, "[completed]")
	assert.Contains(t, out, "buy milk")
}

func TestSend_AgentFailureIsAnError(t *testing.T) {
	url := startServer(t)

	out, err := execute(t, "", "send", "--server", url, "buy milk #fail")
	require.Error(t, err)
	assert.Contains(t, out, "[error]")
}

func TestSend_ServerUnavailable(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()

	out, err := execute(t, "", "send", "--server", url, "hello")
	require.Error(t, err)
	assert.Contains(t, out, "something went wrong")
}

func TestChat_SlashCommandsAndTurn(t *testing.T) {
	url := startServer(t)

	out, err := execute(t, "/session\nsearch for go docs\n/session\n/bogus\n/quit\n", "chat", "--server", url)
	require.NoError(t, err)

	assert.Contains(t, out, "no session yet")
	assert.Contains(t, out, "session: ")
	assert.Contains(t, out, "[completed]")
	assert.Contains(t, out, "unknown command /bogus")
}

func TestSessionsAndHealth(t *testing.T) {
	url := startServer(t)

	out, err := execute(t, "", "sessions", "--server", url)
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions found.")

	_, err = execute(t, "", "send", "--server", url, "hello there")
	require.NoError(t, err)

	out, err = execute(t, "", "sessions", "--server", url)
	require.NoError(t, err)
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "Total: 1 sessions")

	out, err = execute(t, "", "health", "--server", url)
	require.NoError(t, err)
	assert.Contains(t, out, "taskstream-server")
}
