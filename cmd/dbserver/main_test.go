package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/perchdb/perch/internal/cluster"
)

// TestRegister verifies the boot-time registration handshake.
func TestRegister(t *testing.T) {
	t.Run("registers on first attempt", func(t *testing.T) {
		var got cluster.RegisterRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/servers/register", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		register(context.Background(), srv.URL, "dbs-1", "http://10.0.0.5:8081")

		assert.Equal(t, cluster.ServerID("dbs-1"), got.Server.ID)
		assert.Equal(t, "http://10.0.0.5:8081", got.Server.Addr)
	})

	t.Run("retries through transient failures", func(t *testing.T) {
		var attempts atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if attempts.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		register(context.Background(), srv.URL, "dbs-1", ":8081")
		assert.Equal(t, int32(3), attempts.Load())
	})

	t.Run("gives up after the retry budget", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		fatals := 0
		origFatal := logFatal
		logFatal = func(msg string, fields ...zap.Field) { fatals++ }
		defer func() { logFatal = origFatal }()

		register(context.Background(), srv.URL, "dbs-1", ":8081")
		assert.Equal(t, 1, fatals, "Expected a fatal after exhausting retries")
	})
}
