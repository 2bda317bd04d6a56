package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/synop-bufr-etl/internal/domain"
)

func archivedArtifact() domain.ArchivedArtifact {
	return domain.ArchivedArtifact{
		Slot:       domain.Slot{Label: "1800", Day: domain.Yesterday, Family: "SMAL", Pattern: "SMAL*{DD}1800*"},
		Date:       time.Date(2026, time.October, 18, 0, 0, 0, 0, time.UTC),
		Path:       "/data/bufr/2026/10/18/Synop_202610181800.bufr",
		Size:       2048,
		ArchivedAt: time.Date(2026, time.October, 19, 7, 31, 0, 0, time.UTC),
	}
}

func TestNewArtifactEvent(t *testing.T) {
	got := newArtifactEvent("run-1", archivedArtifact())
	want := ArtifactEvent{
		RunID:      "run-1",
		Slot:       "yesterday-SMAL-1800",
		Family:     "SMAL",
		ObservedAt: time.Date(2026, time.October, 18, 18, 0, 0, 0, time.UTC),
		Name:       "Synop_202610181800.bufr",
		Path:       "/data/bufr/2026/10/18/Synop_202610181800.bufr",
		Size:       2048,
		ArchivedAt: time.Date(2026, time.October, 19, 7, 31, 0, 0, time.UTC),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("event mismatch (-want +got):\n%s", diff)
	}
}

func TestSerializeToMessage(t *testing.T) {
	event := newArtifactEvent("run-1", archivedArtifact())

	msg, err := serializeToMessage(event)
	require.NoError(t, err)

	assert.Equal(t, []byte("Synop_202610181800.bufr"), msg.Key)
	assert.Contains(t, string(msg.Value), `"slot":"yesterday-SMAL-1800"`)
	assert.Contains(t, string(msg.Value), `"observed_at":"2026-10-18T18:00:00Z"`)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "run_id", msg.Headers[0].Key)
	assert.Equal(t, []byte("run-1"), msg.Headers[0].Value)
	assert.Equal(t, "archived_at", msg.Headers[1].Key)
	assert.Equal(t, []byte("2026-10-19T07:31:00Z"), msg.Headers[1].Value)

	var back ArtifactEvent
	require.NoError(t, json.Unmarshal(msg.Value, &back))
	assert.Equal(t, int64(2048), back.Size)
}

func TestObservedAt_BadLabelKeepsDate(t *testing.T) {
	date := time.Date(2026, time.October, 18, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, date, observedAt(date, "xx"))
}

func TestNotify_NothingToPublish(t *testing.T) {
	n := NewNotifier([]string{"127.0.0.1:1"}, "bufr-artifacts", slog.Default())
	defer n.Close()

	require.NoError(t, n.Notify(context.Background(), "run-1", nil))
}
