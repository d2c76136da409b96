package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/nsriram/docsearch/pkg/kafka"
)

// Publisher delivers a batch of events.
type Publisher interface {
	PublishEvents(ctx context.Context, events []Event) error
}

// KafkaPublisher publishes events to a Kafka topic, keyed by event type.
type KafkaPublisher struct {
	producer *kafka.Producer
}

func NewKafkaPublisher(p *kafka.Producer) *KafkaPublisher {
	return &KafkaPublisher{producer: p}
}

func (k *KafkaPublisher) PublishEvents(ctx context.Context, events []Event) error {
	batch := make([]kafka.Event, len(events))
	for i, e := range events {
		batch[i] = kafka.Event{Key: string(e.Type), Value: e}
	}
	return k.producer.PublishBatch(ctx, batch)
}

type CollectorConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

// Collector decouples request paths from event delivery. Track never
// blocks: when the buffer is full the event is dropped.
type Collector struct {
	publisher Publisher
	cfg       CollectorConfig
	eventCh   chan Event
	done      chan struct{}
	logger    *slog.Logger
}

func NewCollector(publisher Publisher, cfg CollectorConfig) *Collector {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 10000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	return &Collector{
		publisher: publisher,
		cfg:       cfg,
		eventCh:   make(chan Event, cfg.BufferSize),
		done:      make(chan struct{}),
		logger:    slog.Default().With("component", "analytics-collector"),
	}
}

// Start runs the delivery loop until ctx is cancelled or Close is called.
// Buffered events are flushed before the loop exits.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.cfg.FlushInterval)
		defer ticker.Stop()

		batch := make([]Event, 0, c.cfg.BatchSize)
		flush := func(ctx context.Context) {
			if len(batch) == 0 {
				return
			}
			if err := c.publisher.PublishEvents(ctx, batch); err != nil {
				c.logger.Error("failed to publish analytics batch", "events", len(batch), "error", err)
			}
			batch = make([]Event, 0, c.cfg.BatchSize)
		}

		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					flush(context.Background())
					return
				}
				batch = append(batch, event)
				if len(batch) >= c.cfg.BatchSize {
					flush(ctx)
				}
			case <-ticker.C:
				flush(ctx)
			case <-ctx.Done():
				drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			drain:
				for {
					select {
					case event, ok := <-c.eventCh:
						if !ok {
							break drain
						}
						batch = append(batch, event)
					default:
						break drain
					}
				}
				flush(drainCtx)
				cancel()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started",
		"buffer_size", c.cfg.BufferSize,
		"batch_size", c.cfg.BatchSize,
		"flush_interval", c.cfg.FlushInterval,
	)
}

func (c *Collector) Track(event Event) {
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("analytics event dropped (buffer full)", "type", event.Type)
	}
}

// Close stops accepting events and waits for the final flush. Track must
// not be called after Close.
func (c *Collector) Close() {
	close(c.eventCh)
	<-c.done
}
