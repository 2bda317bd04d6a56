package observability

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/synop-bufr-etl/internal/config"
)

func TestNewLogger_AppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "synop.log")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("previous run\n"), 0o644))

	logger, closer, err := NewLogger(&config.Config{LogLevel: "info", LogFormat: "json", LogFile: path})
	require.NoError(t, err)
	logger.Warn("no raw files for slot", "slot", "today-SMAL-0600")
	logger.Debug("filtered out by level")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.True(t, strings.HasPrefix(content, "previous run\n"))
	assert.Contains(t, content, "level=WARN")
	assert.Contains(t, content, "slot=today-SMAL-0600")
	assert.Contains(t, content, "time=")
	assert.NotContains(t, content, "filtered out by level")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestTeeHandler_DuplicatesRecords(t *testing.T) {
	var a, b strings.Builder
	h := TeeHandler(
		slog.NewTextHandler(&a, nil),
		nil,
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelError}),
	)
	logger := slog.New(h).With("run_id", "r1")

	logger.Info("polling")
	logger.Error("encoder failed")

	assert.Contains(t, a.String(), "polling")
	assert.Contains(t, a.String(), "encoder failed")
	assert.NotContains(t, b.String(), "polling")
	assert.Contains(t, b.String(), "encoder failed")
	assert.Contains(t, b.String(), "run_id=r1")
}

func TestMetricsForTesting_Isolated(t *testing.T) {
	m1 := NewMetricsForTesting()
	m2 := NewMetricsForTesting()

	m1.PollAttempts.Inc()
	m1.Slots.WithLabelValues("archived").Add(2)

	assert.InDelta(t, 1, testutil.ToFloat64(m1.PollAttempts), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m2.PollAttempts), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m1.Slots.WithLabelValues("archived")), 0)
}

func TestMetrics_Push(t *testing.T) {
	var hits atomic.Int32
	var gotPath atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		gotPath.Store(r.URL.Path)
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewMetricsForTesting()
	m.RunsTotal.WithLabelValues("finished").Inc()

	require.NoError(t, m.Push(context.Background(), srv.URL, "synop_bufr"))
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, "/metrics/job/synop_bufr", gotPath.Load())
}
