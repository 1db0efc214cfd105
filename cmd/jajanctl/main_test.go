package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"jajanin-relay/internal/devbackend"
	"jajanin-relay/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func startBackend(t *testing.T) (*devbackend.Server, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dev := devbackend.New(devbackend.Options{})
	dev.AddCreator("budi", "sk-budi")
	srv := httptest.NewServer(dev.Handler())
	t.Cleanup(srv.Close)
	return dev, srv.URL
}

func run(ctx context.Context, url string, args ...string) (string, error) {
	out := &syncBuffer{}
	cmd := rootCmd()
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(append([]string{"--backend", url}, args...))
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestTestAlertCommand(t *testing.T) {
	_, url := startBackend(t)

	out, err := run(context.Background(), url, "test-alert", "sk-budi")
	require.NoError(t, err)
	assert.Contains(t, out, "sent to 0 overlay(s)")

	_, err = run(context.Background(), url, "test-alert", "sk-unknown")
	assert.Error(t, err)
}

func TestStatusCommand(t *testing.T) {
	_, url := startBackend(t)

	out, err := run(context.Background(), url, "status", "JJN-unknown")
	require.NoError(t, err)
	assert.Contains(t, out, "JJN-unknown: pending")
}

func TestFeeCommand(t *testing.T) {
	dev, url := startBackend(t)
	dev.SetFeePercent(2)

	out, err := run(context.Background(), url, "fee", "--price", "10000", "--qty", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Admin fee: 2% (backend)")
	assert.Contains(t, out, "Total:     Rp 20.400")
}

func TestWatchCommand(t *testing.T) {
	dev, url := startBackend(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := run(ctx, url, "watch", "sk-budi", "--count", "1")
		done <- result{out, err}
	}()

	require.Eventually(t, func() bool { return dev.ClientCount("budi") == 1 }, 3*time.Second, 10*time.Millisecond)
	dev.Publish("budi", models.AlertEvent{SupporterName: "Sari", Amount: 15000, Message: "semangat"})

	res := <-done
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "Sari: Rp 15.000")
	assert.Contains(t, res.out, `"semangat"`)
}
