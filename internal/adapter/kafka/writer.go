package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/synop-bufr-etl/internal/domain"
)

// ArtifactEvent is the message published for every archived BUFR file.
type ArtifactEvent struct {
	RunID      string    `json:"run_id"`
	Slot       string    `json:"slot"`
	Family     string    `json:"family"`
	ObservedAt time.Time `json:"observed_at"`
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	ArchivedAt time.Time `json:"archived_at"`
}

// Notifier publishes archive notifications to a Kafka topic.
// It implements pipeline.Notifier.
type Notifier struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewNotifier creates a Kafka producer for the notification topic.
func NewNotifier(brokers []string, topic string, logger *slog.Logger) *Notifier {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
		WriteTimeout: 10 * time.Second,
	}
	return &Notifier{writer: w, logger: logger}
}

// Notify publishes one event per archived artifact in a single
// WriteMessages call.
func (n *Notifier) Notify(ctx context.Context, runID string, archived []domain.ArchivedArtifact) error {
	if len(archived) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(archived))
	for i := range archived {
		msg, err := serializeToMessage(newArtifactEvent(runID, archived[i]))
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := n.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish archive notifications: %w", err)
	}
	n.logger.Info("archive notifications published", "topic", n.writer.Topic, "count", len(msgs))
	return nil
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

// observedAt combines the slot date with its HHMM label.
func observedAt(date time.Time, label string) time.Time {
	t, err := time.Parse("1504", label)
	if err != nil {
		return date
	}
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, date.Location())
}

func newArtifactEvent(runID string, a domain.ArchivedArtifact) ArtifactEvent {
	return ArtifactEvent{
		RunID:      runID,
		Slot:       a.Slot.ID(),
		Family:     a.Slot.Family,
		ObservedAt: observedAt(a.Date, a.Slot.Label),
		Name:       filepath.Base(a.Path),
		Path:       a.Path,
		Size:       a.Size,
		ArchivedAt: a.ArchivedAt,
	}
}

// serializeToMessage marshals an ArtifactEvent into a Kafka message keyed
// by artifact name.
func serializeToMessage(event ArtifactEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize artifact event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.Name),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(event.RunID)},
			{Key: "archived_at", Value: []byte(event.ArchivedAt.Format(time.RFC3339))},
		},
	}, nil
}
