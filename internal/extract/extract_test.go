package extract

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/synop-bufr-etl/internal/domain"
	"github.com/couchcryptid/synop-bufr-etl/internal/observability"
	"github.com/couchcryptid/synop-bufr-etl/internal/poller"
)

var testDates = domain.NewRunDates(time.Date(2026, time.October, 19, 7, 30, 0, 0, time.UTC))

type testLayout struct{ root string }

func (l testLayout) RawDir() string   { return filepath.Join(l.root, "raw") }
func (l testLayout) SlotsDir() string { return filepath.Join(l.root, "slots") }

func newLayout(t *testing.T) testLayout {
	t.Helper()
	l := testLayout{root: t.TempDir()}
	require.NoError(t, os.MkdirAll(l.RawDir(), 0o755))
	require.NoError(t, os.MkdirAll(l.SlotsDir(), 0o755))
	return l
}

func stage(t *testing.T, l testLayout, date time.Time, name, content string) {
	t.Helper()
	dir := poller.StagedDir(l.RawDir(), date)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func newExtractor() *Extractor {
	return New(domain.DefaultCalendar(), domain.NewMissingReportFilter("60", "NIL"),
		slog.Default(), observability.NewMetricsForTesting())
}

func TestExtract_OneFilePerSlot(t *testing.T) {
	l := newLayout(t)
	stage(t, l, testDates.Today, "SMAL40DAAA190600", "SMAL40 DAAA 190600\nAAXX 19061\n60390 32970 70000=\n")

	batches, err := newExtractor().Extract(context.Background(), l, testDates)
	require.NoError(t, err)
	require.Len(t, batches, len(domain.DefaultCalendar()))

	for _, b := range batches {
		info, err := os.Stat(b.Path)
		require.NoError(t, err, "intermediate file for %s", b.Slot.ID())
		if b.Slot.ID() == "today-SMAL-0600" {
			assert.False(t, b.Empty())
			assert.Equal(t, 3, b.Lines)
			assert.Equal(t, testDates.Today, b.Date)
			continue
		}
		assert.True(t, b.Empty(), b.Slot.ID())
		assert.Zero(t, info.Size(), b.Slot.ID())
	}
}

func TestExtract_DropsMissingReports(t *testing.T) {
	l := newLayout(t)
	stage(t, l, testDates.Yesterday, "SMAL40DAAA181800", strings.Join([]string{
		"SMAL40 DAAA 181800",
		"AAXX 18181",
		"60390 NIL=",
		"60403 32970 70000 10135=",
		"  60418 NIL=",
		"61052 NIL=",
	}, "\n"))

	batches, err := newExtractor().Extract(context.Background(), l, testDates)
	require.NoError(t, err)

	b := findBatch(t, batches, "yesterday-SMAL-1800")
	assert.Equal(t, 4, b.Lines)
	assert.Equal(t, 2, b.Dropped)

	data, err := os.ReadFile(b.Path)
	require.NoError(t, err)
	want := "SMAL40 DAAA 181800\nAAXX 18181\n60403 32970 70000 10135=\n61052 NIL=\n"
	if diff := cmp.Diff(want, string(data)); diff != "" {
		t.Fatalf("intermediate mismatch (-want +got):\n%s", diff)
	}
}

func TestExtract_ConcatenatesInDiscoveryOrder(t *testing.T) {
	l := newLayout(t)
	stage(t, l, testDates.Yesterday, "SIAL41DAAA180900", "second\n")
	stage(t, l, testDates.Yesterday, "SIAL40DAAA180900", "first")

	batches, err := newExtractor().Extract(context.Background(), l, testDates)
	require.NoError(t, err)

	b := findBatch(t, batches, "yesterday-SIAL-0900")
	require.Len(t, b.Sources, 2)
	assert.Equal(t, "SIAL40DAAA180900", filepath.Base(b.Sources[0]))

	data, err := os.ReadFile(b.Path)
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(data))
}

func TestExtract_OnlyMissingReportsIsEmpty(t *testing.T) {
	l := newLayout(t)
	stage(t, l, testDates.Today, "SMAL40DAAA190000", "60390 NIL=\n60403 NIL=\n")

	batches, err := newExtractor().Extract(context.Background(), l, testDates)
	require.NoError(t, err)

	b := findBatch(t, batches, "today-SMAL-0000")
	assert.True(t, b.Empty())
	assert.Equal(t, 2, b.Dropped)
}

func TestExtract_UnreadableSourceIsFatal(t *testing.T) {
	l := newLayout(t)
	// A directory matching the pattern cannot be read as a bulletin.
	require.NoError(t, os.MkdirAll(filepath.Join(poller.StagedDir(l.RawDir(), testDates.Today), "SMAL40DAAA190600"), 0o755))

	_, err := newExtractor().Extract(context.Background(), l, testDates)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "today-SMAL-0600")
}

func TestDiscover_IsReadOnly(t *testing.T) {
	l := newLayout(t)
	stage(t, l, testDates.Today, "SMAL40DAAA190600", "x\n")
	slot := domain.Slot{Label: "0600", Day: domain.Today, Family: "SMAL", Pattern: "SMAL*{DD}0600*"}

	first, err := Discover(l.RawDir(), slot, testDates.Today)
	require.NoError(t, err)
	second, err := Discover(l.RawDir(), slot, testDates.Today)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	entries, err := os.ReadDir(l.SlotsDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func findBatch(t *testing.T, batches []domain.SlotBatch, id string) domain.SlotBatch {
	t.Helper()
	for _, b := range batches {
		if b.Slot.ID() == id {
			return b
		}
	}
	t.Fatalf("no batch for slot %s", id)
	return domain.SlotBatch{}
}
