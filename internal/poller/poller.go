// Package poller waits for raw observation files to show up in the source
// tree and stages them into the run workspace.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/synop-bufr-etl/internal/domain"
	"github.com/couchcryptid/synop-bufr-etl/internal/fsutil"
	"github.com/couchcryptid/synop-bufr-etl/internal/observability"
)

// Staging is the part of the workspace the poller writes into.
type Staging interface {
	Reset() error
	RawDir() string
}

// Config bounds the wait: at most MaxAttempts attempts, Interval apart.
type Config struct {
	SourceRoot  string
	MaxAttempts int
	Interval    time.Duration
}

// Poller repeatedly stages raw files until some are found or the attempt
// budget runs out.
type Poller struct {
	cfg      Config
	calendar domain.Calendar
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// New creates a Poller. A nil clock selects the real clock.
func New(cfg Config, calendar domain.Calendar, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Poller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Poller{
		cfg:      cfg,
		calendar: calendar,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
	}
}

// Wait stages raw files for dates into ws. It returns the number of staged
// files as soon as an attempt stages at least one. Every empty attempt,
// including the last, is followed by a sleep of Interval, so exhausting
// MaxAttempts attempts waits MaxAttempts*Interval before failing with
// domain.ErrDataUnavailable.
func (p *Poller) Wait(ctx context.Context, ws Staging, dates domain.RunDates) (int, error) {
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		p.metrics.PollAttempts.Inc()

		staged, err := p.stage(ws, dates)
		if err != nil {
			return 0, err
		}
		if staged > 0 {
			p.metrics.StagedFiles.Set(float64(staged))
			p.logger.Info("observation data staged", "attempt", attempt, "files", staged)
			return staged, nil
		}

		p.logger.Info("no observation data yet, waiting",
			"attempt", attempt,
			"max_attempts", p.cfg.MaxAttempts,
			"retry_in", p.cfg.Interval,
		)
		if err := p.sleep(ctx); err != nil {
			return 0, err
		}
	}

	return 0, fmt.Errorf("%w: nothing under %s after %d attempts",
		domain.ErrDataUnavailable, p.cfg.SourceRoot, p.cfg.MaxAttempts)
}

// stage performs one attempt: clear the staging area, then copy every file
// matching a slot pattern from that slot's date directory. A pattern without
// matches, or a date directory that does not exist yet, is not an error.
func (p *Poller) stage(ws Staging, dates domain.RunDates) (int, error) {
	if err := ws.Reset(); err != nil {
		return 0, err
	}

	staged := 0
	copied := make(map[string]struct{})
	for _, slot := range p.calendar {
		date := dates.For(slot.Day)
		srcDir := filepath.Join(p.cfg.SourceRoot, domain.DatePath(date))
		matches, err := filepath.Glob(filepath.Join(srcDir, slot.Glob(date)))
		if err != nil {
			return 0, fmt.Errorf("slot %s: %w", slot.ID(), err)
		}
		if len(matches) == 0 {
			p.logger.Debug("no raw files for pattern", "slot", slot.ID(), "dir", srcDir)
			continue
		}

		dstDir := StagedDir(ws.RawDir(), date)
		if err := os.MkdirAll(dstDir, 0o755); err != nil {
			return 0, fmt.Errorf("create staging dir: %w", err)
		}
		for _, src := range matches {
			if _, done := copied[src]; done {
				continue
			}
			info, err := os.Stat(src)
			if err != nil {
				return 0, fmt.Errorf("stat raw file: %w", err)
			}
			if !info.Mode().IsRegular() {
				continue
			}
			if err := fsutil.CopyFile(src, filepath.Join(dstDir, filepath.Base(src))); err != nil {
				return 0, fmt.Errorf("stage %s: %w", src, err)
			}
			copied[src] = struct{}{}
			staged++
		}
	}
	return staged, nil
}

func (p *Poller) sleep(ctx context.Context) error {
	if p.cfg.Interval <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.clock.After(p.cfg.Interval):
		return nil
	}
}

// StagedDir is where raw files of date are staged inside rawDir.
func StagedDir(rawDir string, date time.Time) string {
	return filepath.Join(rawDir, date.Format("20060102"))
}
