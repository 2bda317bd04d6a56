// Package pipeline runs one acquisition → extraction → conversion → archive
// cycle inside a scratch workspace that is always removed afterwards.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/synop-bufr-etl/internal/convert"
	"github.com/couchcryptid/synop-bufr-etl/internal/domain"
	"github.com/couchcryptid/synop-bufr-etl/internal/extract"
	"github.com/couchcryptid/synop-bufr-etl/internal/observability"
	"github.com/couchcryptid/synop-bufr-etl/internal/poller"
	"github.com/couchcryptid/synop-bufr-etl/internal/workspace"
)

// Poller waits for raw files and stages them into the workspace.
type Poller interface {
	Wait(ctx context.Context, ws poller.Staging, dates domain.RunDates) (int, error)
}

// Extractor builds one intermediate file per slot from the staged files.
type Extractor interface {
	Extract(ctx context.Context, ws extract.Layout, dates domain.RunDates) ([]domain.SlotBatch, error)
}

// Converter encodes intermediate files into BUFR artifacts under outDir.
type Converter interface {
	Convert(ctx context.Context, batches []domain.SlotBatch, outDir string) ([]domain.Conversion, error)
}

// Archiver moves artifacts into the date-partitioned store.
type Archiver interface {
	Archive(ctx context.Context, dates domain.RunDates, artifacts []domain.Artifact) ([]domain.ArchivedArtifact, error)
}

// Recorder persists the summary of a finished or aborted run.
type Recorder interface {
	Record(ctx context.Context, summary domain.RunSummary) error
}

// Notifier announces archived artifacts to downstream consumers.
type Notifier interface {
	Notify(ctx context.Context, runID string, archived []domain.ArchivedArtifact) error
}

// Workspace is the scratch area of one run.
type Workspace interface {
	poller.Staging
	SlotsDir() string
	OutDir() string
	Release() error
}

// AcquireFunc locks and prepares the workspace rooted at root.
type AcquireFunc func(root string, logger *slog.Logger) (Workspace, error)

// Stages are the collaborators a run is made of. Recorder and Notifier are
// optional.
type Stages struct {
	Poller    Poller
	Extractor Extractor
	Converter Converter
	Archiver  Archiver
	Recorder  Recorder
	Notifier  Notifier
}

// Config holds the run settings.
type Config struct {
	WorkDir  string
	Calendar domain.Calendar
	// Clock fixes the run dates; nil selects the real clock.
	Clock clockwork.Clock
	// Acquire defaults to workspace.Acquire.
	Acquire AcquireFunc
}

// Pipeline executes runs. It is safe to query Status and CheckReadiness
// while Run is in progress.
type Pipeline struct {
	cfg     Config
	stages  Stages
	logger  *slog.Logger
	metrics *observability.Metrics

	ready   atomic.Bool
	mu      sync.Mutex
	current domain.RunSummary
}

// New creates a Pipeline with the given stages and observability.
func New(cfg Config, stages Stages, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Acquire == nil {
		cfg.Acquire = acquireWorkspace
	}
	return &Pipeline{
		cfg:     cfg,
		stages:  stages,
		logger:  logger,
		metrics: metrics,
		current: domain.RunSummary{State: domain.StateIdle},
	}
}

// CheckReadiness returns nil once a run has staged raw data, or an error
// describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no observation data staged yet")
	}
	return nil
}

// Status returns a snapshot of the current or last run.
func (p *Pipeline) Status() domain.RunSummary {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.current
	s.Slots = append([]domain.SlotReport(nil), p.current.Slots...)
	return s
}

// Run executes one cycle. The returned summary is always populated; a
// non-nil error means the run aborted. The workspace has been removed by
// the time Run returns, whatever the outcome.
func (p *Pipeline) Run(ctx context.Context) (domain.RunSummary, error) {
	start := p.cfg.Clock.Now()
	summary := domain.RunSummary{
		RunID:     uuid.NewString(),
		State:     domain.StateIdle,
		Dates:     domain.NewRunDates(start),
		StartedAt: start,
		Slots:     initialReports(p.cfg.Calendar, domain.NewRunDates(start)),
	}
	logger := p.logger.With("run_id", summary.RunID)
	p.ready.Store(false)
	p.publish(summary)

	p.metrics.RunInProgress.Set(1)
	defer p.metrics.RunInProgress.Set(0)

	logger.Info("run started",
		"today", summary.Dates.Today.Format("2006-01-02"),
		"yesterday", summary.Dates.Yesterday.Format("2006-01-02"),
		"slots", len(p.cfg.Calendar),
	)

	archived, err := p.execute(ctx, logger, &summary)

	summary.FinishedAt = p.cfg.Clock.Now()
	if err != nil {
		summary.Err = err
		p.transition(logger, &summary, domain.StateAborted)
		logger.Error("run aborted", "error", err)
	} else {
		p.transition(logger, &summary, domain.StateFinished)
		p.metrics.LastSuccess.Set(float64(summary.FinishedAt.Unix()))
		logger.Info("run finished",
			"archived", summary.Archived(),
			"duration", summary.FinishedAt.Sub(start),
		)
	}
	p.observe(summary)
	p.report(ctx, logger, summary, archived)

	return summary, err
}

// execute runs the stages inside an acquired workspace. The workspace is
// released before execute returns on every path; a failed release aborts
// the run with domain.ErrCleanup joined to any stage error.
func (p *Pipeline) execute(ctx context.Context, logger *slog.Logger, summary *domain.RunSummary) (archived []domain.ArchivedArtifact, err error) {
	ws, err := p.cfg.Acquire(p.cfg.WorkDir, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if relErr := ws.Release(); relErr != nil {
			err = errors.Join(err, fmt.Errorf("%w: %w", domain.ErrCleanup, relErr))
		}
	}()

	p.transition(logger, summary, domain.StatePolling)
	staged, err := p.stages.Poller.Wait(ctx, ws, summary.Dates)
	if err != nil {
		return nil, err
	}
	summary.Staged = staged
	p.ready.Store(true)

	p.transition(logger, summary, domain.StateExtracting)
	batches, err := p.stages.Extractor.Extract(ctx, ws, summary.Dates)
	applyBatches(summary, batches)
	if err != nil {
		return nil, err
	}

	p.transition(logger, summary, domain.StateConverting)
	conversions, err := p.stages.Converter.Convert(ctx, batches, ws.OutDir())
	applyConversions(summary, conversions)
	if err != nil {
		return nil, err
	}

	p.transition(logger, summary, domain.StateArchiving)
	archived, err = p.stages.Archiver.Archive(ctx, summary.Dates, convert.Artifacts(conversions))
	applyArchived(summary, archived)
	return archived, err
}

func acquireWorkspace(root string, logger *slog.Logger) (Workspace, error) {
	ws, err := workspace.Acquire(root, logger)
	if err != nil {
		return nil, err
	}
	return ws, nil
}

func (p *Pipeline) transition(logger *slog.Logger, summary *domain.RunSummary, next domain.RunState) {
	logger.Info("run state changed", "from", summary.State, "to", next)
	summary.State = next
	p.publish(*summary)
}

func (p *Pipeline) publish(summary domain.RunSummary) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = summary
	p.current.Slots = append([]domain.SlotReport(nil), summary.Slots...)
}

func (p *Pipeline) observe(summary domain.RunSummary) {
	p.metrics.RunsTotal.WithLabelValues(string(summary.State)).Inc()
	p.metrics.RunDuration.Observe(summary.FinishedAt.Sub(summary.StartedAt).Seconds())
	for _, r := range summary.Slots {
		p.metrics.Slots.WithLabelValues(string(r.Outcome)).Inc()
	}
}

// report hands the summary to the optional recorder and notifier. Their
// failures never change the outcome of the run.
func (p *Pipeline) report(ctx context.Context, logger *slog.Logger, summary domain.RunSummary, archived []domain.ArchivedArtifact) {
	if p.stages.Recorder != nil {
		if err := p.stages.Recorder.Record(context.WithoutCancel(ctx), summary); err != nil {
			logger.Warn("failed to record run", "error", err)
		}
	}
	if p.stages.Notifier != nil && len(archived) > 0 {
		if err := p.stages.Notifier.Notify(ctx, summary.RunID, archived); err != nil {
			logger.Warn("failed to publish archive notifications", "error", err, "artifacts", len(archived))
		}
	}
}

func initialReports(calendar domain.Calendar, dates domain.RunDates) []domain.SlotReport {
	reports := make([]domain.SlotReport, len(calendar))
	for i, slot := range calendar {
		reports[i] = domain.SlotReport{
			Slot:    slot,
			Date:    dates.For(slot.Day),
			Outcome: domain.OutcomeSkipped,
		}
	}
	return reports
}

func findReport(summary *domain.RunSummary, slot domain.Slot) *domain.SlotReport {
	for i := range summary.Slots {
		if summary.Slots[i].Slot.ID() == slot.ID() {
			return &summary.Slots[i]
		}
	}
	return nil
}

func applyBatches(summary *domain.RunSummary, batches []domain.SlotBatch) {
	for _, b := range batches {
		if r := findReport(summary, b.Slot); r != nil {
			r.Sources = len(b.Sources)
			r.Lines = b.Lines
			r.Dropped = b.Dropped
		}
	}
}

func applyConversions(summary *domain.RunSummary, conversions []domain.Conversion) {
	for _, c := range conversions {
		r := findReport(summary, c.Batch.Slot)
		if r == nil {
			continue
		}
		r.Outcome = c.Outcome
		if c.Artifact != nil {
			r.Size = c.Artifact.Size
		}
	}
}

func applyArchived(summary *domain.RunSummary, archived []domain.ArchivedArtifact) {
	for _, a := range archived {
		if r := findReport(summary, a.Slot); r != nil {
			r.Outcome = domain.OutcomeArchived
			r.Artifact = a.Path
			r.Size = a.Size
		}
	}
}
