package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/linklit/LinkLit/internal/app/model"
	"github.com/linklit/LinkLit/internal/app/repository"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// EventArchiver drains the lifecycle stream into the Postgres archive. It
// tolerates at-least-once delivery; the archive dedupes on event id.
type EventArchiver struct {
	js      nats.JetStreamContext
	logger  *zap.Logger
	archive *repository.EventArchive
	done    chan struct{}
}

// NewEventArchiver creates a lifecycle event consumer.
func NewEventArchiver(js nats.JetStreamContext, logger *zap.Logger, archive *repository.EventArchive) *EventArchiver {
	return &EventArchiver{js: js, logger: logger, archive: archive, done: make(chan struct{})}
}

// Start ensures the stream and durable consumer exist and begins draining.
func (a *EventArchiver) Start() error {
	_, err := a.js.StreamInfo(model.EventStreamName)
	if err != nil {
		_, err = a.js.AddStream(&nats.StreamConfig{
			Name:     model.EventStreamName,
			Subjects: []string{model.EventStreamSubject},
			MaxBytes: model.EventStreamMaxBytes,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
	}

	_, err = a.js.ConsumerInfo(model.EventStreamName, model.EventConsumerName)
	if err != nil {
		_, err = a.js.AddConsumer(model.EventStreamName, &nats.ConsumerConfig{
			Durable:   model.EventConsumerName,
			AckPolicy: nats.AckExplicitPolicy,
		})
		if err != nil {
			return fmt.Errorf("failed to create consumer: %w", err)
		}
	}

	sub, err := a.js.PullSubscribe(model.EventStreamSubject, model.EventConsumerName)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go a.consume(sub)
	return nil
}

// Stop ends the consume loop. In-flight messages are left unacked and
// redelivered on the next start.
func (a *EventArchiver) Stop() {
	close(a.done)
}

func (a *EventArchiver) consume(sub *nats.Subscription) {
	ctx := context.Background()
	for {
		select {
		case <-a.done:
			_ = sub.Unsubscribe()
			return
		default:
		}

		msgs, err := sub.Fetch(10, nats.MaxWait(5*time.Second))
		if err != nil && err != nats.ErrTimeout {
			a.logger.Error("failed to fetch lifecycle events", zap.Error(err))
			continue
		}

		for _, msg := range msgs {
			var event model.LifecycleEvent
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				a.logger.Error("failed to unmarshal lifecycle event", zap.Error(err))
				msg.Nak()
				continue
			}

			if err := a.archive.Save(ctx, &event); err != nil {
				a.logger.Error("failed to archive lifecycle event",
					zap.String("id", event.ID),
					zap.String("type", event.Type),
					zap.Error(err))
				msg.Nak()
				continue
			}

			a.logger.Debug("lifecycle event archived",
				zap.String("id", event.ID),
				zap.String("type", event.Type),
				zap.String("slug", event.Slug),
			)

			msg.Ack()
		}
	}
}
