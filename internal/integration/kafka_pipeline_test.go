//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/synop-bufr-etl/internal/adapter/encoder"
	"github.com/couchcryptid/synop-bufr-etl/internal/adapter/kafka"
	"github.com/couchcryptid/synop-bufr-etl/internal/adapter/ledger"
	"github.com/couchcryptid/synop-bufr-etl/internal/archive"
	"github.com/couchcryptid/synop-bufr-etl/internal/convert"
	"github.com/couchcryptid/synop-bufr-etl/internal/domain"
	"github.com/couchcryptid/synop-bufr-etl/internal/extract"
	"github.com/couchcryptid/synop-bufr-etl/internal/observability"
	"github.com/couchcryptid/synop-bufr-etl/internal/pipeline"
	"github.com/couchcryptid/synop-bufr-etl/internal/poller"
)

const testTopic = "test-bufr-artifacts"

// readEvent reads a single notification from the topic.
func readEvent(ctx context.Context, t *testing.T, consumer *kafkago.Reader) (kafka.ArtifactEvent, map[string]string) {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from notification topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var event kafka.ArtifactEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event), "unmarshal notification")
	assert.Equal(t, event.Name, string(msg.Key))
	return event, headers
}

// TestNotifierPublishes verifies the notifier round-trips events through Kafka.
func TestNotifierPublishes(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	notifier := kafka.NewNotifier([]string{broker}, testTopic, discardLogger())
	t.Cleanup(func() { _ = notifier.Close() })

	archived := domain.ArchivedArtifact{
		Slot:       domain.DefaultCalendar()[0],
		Date:       time.Date(2026, time.October, 18, 0, 0, 0, 0, time.UTC),
		Path:       "/archive/2026/10/18/Synop_202610180000.bufr",
		Size:       321,
		ArchivedAt: time.Date(2026, time.October, 19, 7, 35, 0, 0, time.UTC),
	}
	require.NoError(t, notifier.Notify(ctx, "run-42", []domain.ArchivedArtifact{archived}))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	event, headers := readEvent(ctx, t, consumer)
	assert.Equal(t, "run-42", event.RunID)
	assert.Equal(t, "yesterday-SMAL-0000", event.Slot)
	assert.Equal(t, int64(321), event.Size)
	assert.Equal(t, "run-42", headers["run_id"])
	_, err := time.Parse(time.RFC3339, headers["archived_at"])
	assert.NoError(t, err, "archived_at should be valid RFC3339")
}

// TestPipelineEndToEnd runs a full cycle with a scripted encoder, the sqlite
// ledger and Kafka notifications.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	root := t.TempDir()
	dataDir := filepath.Join(root, "tac")
	outBase := filepath.Join(root, "bufr")
	now := time.Date(2026, time.October, 19, 7, 30, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(now)

	writeBulletin(t, filepath.Join(dataDir, "2026", "10", "18", "SMAL40DAAA181200"), "AAXX 18121\n60390 32970 70000=\n60403 NIL=\n")
	writeBulletin(t, filepath.Join(dataDir, "2026", "10", "19", "SMAL40DAAA190600"), "AAXX 19061\n60390 32970 70000=\n")

	encoderPath := filepath.Join(root, "synop2bufr")
	require.NoError(t, os.WriteFile(encoderPath, []byte("#!/bin/sh\nprintf 'BUFR' > \"$2\"; cat \"$1\" >> \"$2\"; printf '7777' >> \"$2\"\n"), 0o755))

	store, err := ledger.Open(ctx, filepath.Join(root, "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	notifier := kafka.NewNotifier([]string{broker}, testTopic, discardLogger())
	t.Cleanup(func() { _ = notifier.Close() })

	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()
	cal := domain.DefaultCalendar()
	p := pipeline.New(pipeline.Config{WorkDir: filepath.Join(root, "work"), Calendar: cal, Clock: clock}, pipeline.Stages{
		Poller:    poller.New(poller.Config{SourceRoot: dataDir, MaxAttempts: 1}, cal, clock, logger, metrics),
		Extractor: extract.New(cal, domain.NewMissingReportFilter("60", "NIL"), logger, metrics),
		Converter: convert.New(encoder.NewClient(encoderPath, "", logger), convert.Config{DefaultChannel: 96, Workers: 2}, logger, metrics),
		Archiver:  archive.New(outBase, clock, logger, metrics),
		Recorder:  store,
		Notifier:  notifier,
	}, logger, metrics)

	summary, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Archived())

	data, err := os.ReadFile(filepath.Join(outBase, "2026", "10", "18", "Synop_202610181200.bufr"))
	require.NoError(t, err)
	assert.Equal(t, "BUFRAAXX 18121\n60390 32970 70000=\n7777", string(data))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testTopic,
		GroupID:     fmt.Sprintf("test-e2e-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	names := map[string]bool{}
	for range 2 {
		event, _ := readEvent(ctx, t, consumer)
		assert.Equal(t, summary.RunID, event.RunID)
		names[event.Name] = true
	}
	assert.True(t, names["Synop_202610181200.bufr"])
	assert.True(t, names["Synop_202610190600.bufr"])

	runs, err := store.LastRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, summary.RunID, runs[0].RunID)
	assert.Equal(t, 2, runs[0].Archived)
}

func writeBulletin(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
