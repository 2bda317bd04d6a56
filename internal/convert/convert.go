// Package convert drives the external encoder over the intermediate slot
// files and keeps the artifacts worth archiving.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/synop-bufr-etl/internal/domain"
	"github.com/couchcryptid/synop-bufr-etl/internal/observability"
)

// Encoder turns one intermediate text file into a BUFR file.
type Encoder interface {
	Encode(ctx context.Context, req domain.EncodeRequest) (domain.EncodeResult, error)
}

// Config controls how conversions are issued.
type Config struct {
	// DefaultChannel is used for slots that do not set their own channel.
	DefaultChannel int
	// Workers bounds concurrent encoder invocations.
	Workers int
}

// Converter runs the encoder for every slot that has data.
type Converter struct {
	encoder Encoder
	cfg     Config
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a Converter. Workers below 1 are treated as 1.
func New(encoder Encoder, cfg Config, logger *slog.Logger, metrics *observability.Metrics) *Converter {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Converter{encoder: encoder, cfg: cfg, logger: logger, metrics: metrics}
}

// Convert encodes each non-empty batch into outDir and returns one
// Conversion per batch, in batch order.
//
// A non-zero encoder exit aborts the stage with domain.ErrEncoderFailed and
// no further conversion is started; slots never reached keep the skipped
// outcome. Output that is missing or empty is removed and reported as
// domain.OutcomeEmptyOutput without failing the run.
func (c *Converter) Convert(ctx context.Context, batches []domain.SlotBatch, outDir string) ([]domain.Conversion, error) {
	conversions := make([]domain.Conversion, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)

	for i, batch := range batches {
		conversions[i] = domain.Conversion{Batch: batch, Outcome: domain.OutcomeSkipped}
		if batch.Empty() {
			conversions[i].Outcome = domain.OutcomeNoData
			c.logger.Info("no data for slot, skipping conversion", "slot", batch.Slot.ID())
			continue
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			conv, err := c.convertOne(gctx, batch, outDir)
			if err != nil {
				return err
			}
			conversions[i] = conv
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return conversions, err
	}
	if err := ctx.Err(); err != nil {
		return conversions, err
	}
	return conversions, nil
}

func (c *Converter) convertOne(ctx context.Context, batch domain.SlotBatch, outDir string) (domain.Conversion, error) {
	slot := batch.Slot
	logger := c.logger.With("slot", slot.ID())

	req := domain.EncodeRequest{
		Input:   batch.Path,
		Output:  filepath.Join(outDir, slot.ArtifactName(batch.Date)),
		Channel: c.channel(slot),
	}

	start := time.Now()
	res, err := c.encoder.Encode(ctx, req)
	c.metrics.EncoderDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return domain.Conversion{}, ctx.Err()
		}
		c.metrics.EncoderFailures.Inc()
		return domain.Conversion{}, fmt.Errorf("%w: slot %s: %w", domain.ErrEncoderFailed, slot.ID(), err)
	}

	if res.ExitCode != 0 {
		c.metrics.EncoderFailures.Inc()
		logger.Error("encoder exited with error", "exit_code", res.ExitCode, "stderr", res.Stderr)
		return domain.Conversion{}, fmt.Errorf("%w: slot %s: exit status %d", domain.ErrEncoderFailed, slot.ID(), res.ExitCode)
	}

	if !res.OutputExists || res.OutputSize == 0 {
		if err := os.Remove(req.Output); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return domain.Conversion{}, fmt.Errorf("remove empty output for slot %s: %w", slot.ID(), err)
		}
		logger.Warn("encoder produced no output, slot not archived", "output", filepath.Base(req.Output))
		return domain.Conversion{Batch: batch, Outcome: domain.OutcomeEmptyOutput}, nil
	}

	logger.Info("slot converted", "artifact", filepath.Base(req.Output), "size", res.OutputSize)
	return domain.Conversion{
		Batch:   batch,
		Outcome: domain.OutcomeConverted,
		Artifact: &domain.Artifact{
			Slot: slot,
			Date: batch.Date,
			Path: req.Output,
			Size: res.OutputSize,
		},
	}, nil
}

func (c *Converter) channel(slot domain.Slot) int {
	if slot.Channel > 0 {
		return slot.Channel
	}
	return c.cfg.DefaultChannel
}

// Artifacts returns the artifacts of the successful conversions.
func Artifacts(conversions []domain.Conversion) []domain.Artifact {
	var out []domain.Artifact
	for _, conv := range conversions {
		if conv.Artifact != nil {
			out = append(out, *conv.Artifact)
		}
	}
	return out
}
