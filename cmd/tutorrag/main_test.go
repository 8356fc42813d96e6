package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestRun_ServesHealthAndShutsDown(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	port := freePort(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SERVER_HTTP_PORT", strconv.Itoa(port))
	t.Setenv("VECTORSTORE_PROVIDER", "chromem")
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("LOG_LEVEL", "error")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, "")
	}()

	url := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("VECTORSTORE_PROVIDER", "sqlite")

	err := run(context.Background(), "")
	assert.ErrorContains(t, err, "unsupported vector store provider")
}
