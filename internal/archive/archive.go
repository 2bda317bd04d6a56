// Package archive moves validated BUFR artifacts into the date-partitioned
// observation store.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/synop-bufr-etl/internal/domain"
	"github.com/couchcryptid/synop-bufr-etl/internal/fsutil"
	"github.com/couchcryptid/synop-bufr-etl/internal/observability"
)

// Archiver places artifacts under {base}/{YYYY}/{MM}/{DD}/.
type Archiver struct {
	baseDir string
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates an Archiver rooted at baseDir. A nil clock selects the real clock.
func New(baseDir string, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Archiver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Archiver{baseDir: baseDir, clock: clock, logger: logger, metrics: metrics}
}

// Dir is the destination directory for artifacts observed on date.
func (a *Archiver) Dir(date time.Time) string {
	return filepath.Join(a.baseDir, domain.DatePath(date))
}

// EnsureDirs creates the destination directory of every date. It is
// idempotent.
func (a *Archiver) EnsureDirs(dates ...time.Time) error {
	seen := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		dir := a.Dir(d)
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: create %s: %w", domain.ErrArchive, dir, err)
		}
	}
	return nil
}

// Archive creates every destination directory the run needs, then moves each
// artifact into place, replacing any file of the same name. The first
// failure aborts archiving with domain.ErrArchive.
func (a *Archiver) Archive(ctx context.Context, dates domain.RunDates, artifacts []domain.Artifact) ([]domain.ArchivedArtifact, error) {
	if err := a.EnsureDirs(dates.Yesterday, dates.Today); err != nil {
		return nil, err
	}
	extra := make([]time.Time, 0, len(artifacts))
	for _, art := range artifacts {
		extra = append(extra, art.Date)
	}
	if err := a.EnsureDirs(extra...); err != nil {
		return nil, err
	}

	sorted := append([]domain.Artifact(nil), artifacts...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	archived := make([]domain.ArchivedArtifact, 0, len(sorted))
	for _, art := range sorted {
		if err := ctx.Err(); err != nil {
			return archived, err
		}
		dst := filepath.Join(a.Dir(art.Date), filepath.Base(art.Path))
		if err := fsutil.MoveFile(art.Path, dst); err != nil {
			return archived, fmt.Errorf("%w: move %s: %w", domain.ErrArchive, filepath.Base(art.Path), err)
		}
		a.metrics.ArtifactsArchived.Inc()
		a.metrics.ArchivedBytes.Add(float64(art.Size))
		a.logger.Info("artifact archived", "slot", art.Slot.ID(), "path", dst, "size", art.Size)

		archived = append(archived, domain.ArchivedArtifact{
			Slot:       art.Slot,
			Date:       art.Date,
			Path:       dst,
			Size:       art.Size,
			ArchivedAt: a.clock.Now(),
		})
	}
	return archived, nil
}
