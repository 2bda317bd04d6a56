package summary

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/couchcryptid/synop-bufr-etl/internal/domain"
)

func TestTable_PadsShortRows(t *testing.T) {
	out := Table([]string{"A", "B"}, [][]string{{"x"}}, nil)
	assert.Contains(t, out, "A")
	assert.Contains(t, out, "x")
	assert.Equal(t, 5, strings.Count(out, "\n")+1, "top, header, separator, row, bottom")
}

func TestTable_NoHeaders(t *testing.T) {
	assert.Empty(t, Table(nil, [][]string{{"x"}}, nil))
}

func TestRender(t *testing.T) {
	start := time.Date(2026, time.October, 19, 7, 30, 0, 0, time.UTC)
	cal := domain.DefaultCalendar()
	s := domain.RunSummary{
		RunID:      "run-1",
		State:      domain.StateAborted,
		StartedAt:  start,
		FinishedAt: start.Add(95 * time.Second),
		Staged:     3,
		Slots: []domain.SlotReport{
			{Slot: cal[9], Date: start, Outcome: domain.OutcomeArchived, Sources: 1, Lines: 12, Dropped: 2, Artifact: "/a/2026/10/19/Synop_202610190600.bufr", Size: 2048},
			{Slot: cal[0], Date: start.AddDate(0, 0, -1), Outcome: domain.OutcomeSkipped},
		},
		Err: errors.New("archive failed"),
	}

	out := Render(s)
	assert.Contains(t, out, "run run-1 aborted in 1m35s: 3 staged, 1 archived")
	assert.Contains(t, out, "error: archive failed")
	assert.Contains(t, out, "today-SMAL-0600")
	assert.Contains(t, out, "Synop_202610190600.bufr")
	assert.Contains(t, out, "2.0 KiB")
	assert.Contains(t, out, "skipped")
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "-"},
		{512, "512 B"},
		{1536, "1.5 KiB"},
		{5 << 20, "5.0 MiB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.in))
	}
}
