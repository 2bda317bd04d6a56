// Package extract turns staged raw bulletins into one intermediate text file
// per observation slot.
package extract

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/synop-bufr-etl/internal/domain"
	"github.com/couchcryptid/synop-bufr-etl/internal/observability"
	"github.com/couchcryptid/synop-bufr-etl/internal/poller"
)

// maxLineSize bounds a single bulletin line.
const maxLineSize = 1 << 20

// Layout is the part of the workspace the extractor reads from and writes to.
type Layout interface {
	RawDir() string
	SlotsDir() string
}

// Extractor builds intermediate files for every slot of a calendar.
type Extractor struct {
	calendar domain.Calendar
	filter   domain.MissingReportFilter
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// New creates an Extractor that drops lines recognised by filter.
func New(calendar domain.Calendar, filter domain.MissingReportFilter, logger *slog.Logger, metrics *observability.Metrics) *Extractor {
	return &Extractor{
		calendar: calendar,
		filter:   filter,
		logger:   logger,
		metrics:  metrics,
	}
}

// Discover lists the staged files belonging to slot on date, in the order
// they are concatenated. It only reads the directory.
func Discover(rawDir string, slot domain.Slot, date time.Time) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(poller.StagedDir(rawDir, date), slot.Glob(date)))
	if err != nil {
		return nil, fmt.Errorf("slot %s: %w", slot.ID(), err)
	}
	return matches, nil
}

// IntermediatePath is the intermediate file of slot inside slotsDir.
func IntermediatePath(slotsDir string, slot domain.Slot) string {
	return filepath.Join(slotsDir, slot.ID()+".txt")
}

// Extract writes one intermediate file per slot, in calendar order. A slot
// without raw files yields an empty file and a warning. Read or write errors
// abort extraction.
func (e *Extractor) Extract(ctx context.Context, ws Layout, dates domain.RunDates) ([]domain.SlotBatch, error) {
	batches := make([]domain.SlotBatch, 0, len(e.calendar))
	for _, slot := range e.calendar {
		if err := ctx.Err(); err != nil {
			return batches, err
		}
		batch, err := e.extractSlot(ws, slot, dates.For(slot.Day))
		if err != nil {
			return batches, err
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

func (e *Extractor) extractSlot(ws Layout, slot domain.Slot, date time.Time) (domain.SlotBatch, error) {
	logger := e.logger.With("slot", slot.ID(), "date", date.Format(time.DateOnly))

	sources, err := Discover(ws.RawDir(), slot, date)
	if err != nil {
		return domain.SlotBatch{}, err
	}

	batch := domain.SlotBatch{
		Slot:    slot,
		Date:    date,
		Path:    IntermediatePath(ws.SlotsDir(), slot),
		Sources: sources,
	}

	out, err := os.Create(batch.Path)
	if err != nil {
		return batch, fmt.Errorf("create intermediate file: %w", err)
	}
	defer out.Close()

	if len(sources) == 0 {
		logger.Warn("no raw files for slot")
		return batch, out.Close()
	}

	w := bufio.NewWriter(out)
	for _, src := range sources {
		lines, dropped, err := e.appendFiltered(w, src)
		if err != nil {
			return batch, fmt.Errorf("slot %s: read %s: %w", slot.ID(), filepath.Base(src), err)
		}
		batch.Lines += lines
		batch.Dropped += dropped
	}
	if err := w.Flush(); err != nil {
		return batch, fmt.Errorf("write intermediate file: %w", err)
	}
	if err := out.Close(); err != nil {
		return batch, fmt.Errorf("write intermediate file: %w", err)
	}

	e.metrics.DroppedReports.Add(float64(batch.Dropped))
	logger.Info("slot extracted",
		"sources", len(sources),
		"lines", batch.Lines,
		"dropped_missing", batch.Dropped,
	)
	return batch, nil
}

// appendFiltered copies src line by line into w, skipping missing-report
// placeholders. It returns the number of lines kept and dropped.
func (e *Extractor) appendFiltered(w *bufio.Writer, src string) (int, int, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, 0, err
	}
	defer in.Close()

	kept, dropped := 0, 0
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		line := sc.Text()
		if e.filter.IsMissing(line) {
			dropped++
			continue
		}
		if _, err := w.WriteString(line); err != nil {
			return kept, dropped, err
		}
		if err := w.WriteByte('\n'); err != nil {
			return kept, dropped, err
		}
		kept++
	}
	return kept, dropped, sc.Err()
}
