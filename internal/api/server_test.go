package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/noughts/internal/testutil"
)

func TestServerShutdownEndsStreams(t *testing.T) {
	streamsDone := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		select {
		case <-streamsDone:
		case <-r.Context().Done():
		}
	})

	cfg := DefaultServerConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.ShutdownTimeout = 5 * time.Second
	server := NewServer(mux, cfg, testutil.NopLogger())
	server.OnShutdown(func() { close(streamsDone) })

	require.NoError(t, server.Listen())
	assert.NotEqual(t, "127.0.0.1:0", server.Addr())

	served := make(chan error, 1)
	go func() { served <- server.Serve() }()

	resp, err := http.Get("http://" + server.Addr() + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	start := time.Now()
	require.NoError(t, server.Shutdown(context.Background()))
	assert.Less(t, time.Since(start), cfg.ShutdownTimeout)

	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
}

func TestServerListenFailsOnBusyPort(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	first := NewServer(http.NotFoundHandler(), cfg, testutil.NopLogger())
	require.NoError(t, first.Listen())
	defer func() { _ = first.Shutdown(context.Background()) }()

	_, port, err := net.SplitHostPort(first.Addr())
	require.NoError(t, err)
	cfg.Port, err = strconv.Atoi(port)
	require.NoError(t, err)
	second := NewServer(http.NotFoundHandler(), cfg, testutil.NopLogger())
	assert.Error(t, second.Listen())
}
