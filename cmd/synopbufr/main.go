// Command synopbufr runs one SYNOP acquisition cycle: wait for the raw
// bulletins of today and yesterday, extract them per observation slot,
// encode each slot to BUFR and archive the results. It takes no arguments;
// see internal/config for the environment it reads.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/synop-bufr-etl/internal/adapter/encoder"
	httpadapter "github.com/couchcryptid/synop-bufr-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/synop-bufr-etl/internal/adapter/kafka"
	"github.com/couchcryptid/synop-bufr-etl/internal/adapter/ledger"
	"github.com/couchcryptid/synop-bufr-etl/internal/archive"
	"github.com/couchcryptid/synop-bufr-etl/internal/config"
	"github.com/couchcryptid/synop-bufr-etl/internal/convert"
	"github.com/couchcryptid/synop-bufr-etl/internal/domain"
	"github.com/couchcryptid/synop-bufr-etl/internal/extract"
	"github.com/couchcryptid/synop-bufr-etl/internal/observability"
	"github.com/couchcryptid/synop-bufr-etl/internal/pipeline"
	"github.com/couchcryptid/synop-bufr-etl/internal/poller"
	"github.com/couchcryptid/synop-bufr-etl/internal/preflight"
	"github.com/couchcryptid/synop-bufr-etl/internal/summary"
)

const pushJob = "synop_bufr"

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger, logCloser, err := observability.NewLogger(cfg)
	if err != nil {
		slog.Error("failed to set up logging", "error", err)
		return 1
	}
	defer logCloser.Close()

	calendar, err := config.LoadCalendar(cfg.CalendarFile)
	if err != nil {
		logger.Error("failed to load slot calendar", "error", err)
		return 1
	}

	if err := preflight.Check(preflight.Settings{
		DataDir:           cfg.DataDir,
		EncoderPath:       cfg.EncoderPath,
		EncoderSupportDir: cfg.EncoderSupportDir,
	}); err != nil {
		logger.Error("prerequisite check failed", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	stages := pipeline.Stages{
		Poller: poller.New(poller.Config{
			SourceRoot:  cfg.DataDir,
			MaxAttempts: cfg.PollMaxAttempts,
			Interval:    cfg.PollInterval,
		}, calendar, clock, logger, metrics),
		Extractor: extract.New(calendar,
			domain.NewMissingReportFilter(cfg.MissingStationPrefix, cfg.MissingMarker), logger, metrics),
		Converter: convert.New(
			encoder.NewClient(cfg.EncoderPath, cfg.EncoderSupportDir, logger),
			convert.Config{DefaultChannel: cfg.EncoderChannel, Workers: cfg.Workers},
			logger, metrics),
		Archiver: archive.New(cfg.OutputBaseDir, clock, logger, metrics),
	}

	// Run ledger (optional).
	if cfg.LedgerPath != "" {
		store, err := ledger.Open(ctx, cfg.LedgerPath)
		if err != nil {
			logger.Warn("run ledger unavailable, continuing without it", "path", cfg.LedgerPath, "error", err)
		} else {
			defer store.Close()
			stages.Recorder = store
			logger.Info("run ledger enabled", "path", cfg.LedgerPath)
		}
	}

	// Archive notifications (optional).
	if cfg.NotificationsEnabled() {
		notifier := kafkaadapter.NewNotifier(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		defer func() {
			if err := notifier.Close(); err != nil {
				logger.Error("kafka notifier close error", "error", err)
			}
		}()
		stages.Notifier = notifier
		logger.Info("archive notifications enabled", "topic", cfg.KafkaTopic)
	}

	p := pipeline.New(pipeline.Config{
		WorkDir:  cfg.WorkDir,
		Calendar: calendar,
		Clock:    clock,
	}, stages, logger, metrics)

	// Status server for the duration of the run (optional).
	if cfg.HTTPAddr != "" {
		srv := httpadapter.NewServer(cfg.HTTPAddr, p, p, metrics.Gatherer(), logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http server shutdown error", "error", err)
			}
		}()
	}

	result, runErr := p.Run(ctx)
	fmt.Println(summary.Render(result))

	if cfg.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := metrics.Push(pushCtx, cfg.PushgatewayURL, pushJob); err != nil {
			logger.Warn("failed to push metrics", "url", cfg.PushgatewayURL, "error", err)
		}
		cancel()
	}

	if runErr != nil {
		return 1
	}
	return 0
}
