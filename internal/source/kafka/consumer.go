// Package kafka consumes order events from a Kafka topic as part of a consumer group.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-logger/glog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/otiai10/orderhook/internal/config"
	"github.com/otiai10/orderhook/internal/source"
)

// Origin tags events produced by this consumer
const Origin = "kafka"

const (
	defaultGroup  = "orderhook"
	commitTimeout = 10 * time.Second
)

// Consumer polls a topic and commits offsets once events are dispatched
type Consumer struct {
	brokers []string
	topic   string
	group   string
	logger  glog.Logger
	types   []string

	client *kgo.Client
	stream *source.Stream
	cancel context.CancelFunc
	done   chan struct{}
}

var _ source.Source = (*Consumer)(nil)

type Option func(*Consumer)

func WithLogger(logger glog.Logger) Option {
	return func(c *Consumer) {
		c.logger = glog.Ensure(logger)
	}
}

func WithTypes(types ...string) Option {
	return func(c *Consumer) {
		c.types = types
	}
}

func NewConsumer(cfg config.KafkaSourceConfig, opts ...Option) *Consumer {
	c := &Consumer{
		brokers: cfg.Brokers,
		topic:   cfg.Topic,
		group:   cfg.Group,
		logger:  glog.Nop(),
		done:    make(chan struct{}),
	}
	if c.group == "" {
		c.group = defaultGroup
	}
	for _, opt := range opts {
		opt(c)
	}
	c.stream = source.NewStream(Origin, c.logger, c.types, 100)
	return c
}

// Connect creates the client and starts the poll loop
func (c *Consumer) Connect(ctx context.Context) error {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(c.brokers...),
		kgo.ConsumerGroup(c.group),
		kgo.ConsumeTopics(c.topic),
		kgo.BlockRebalanceOnPoll(),
		kgo.AutoCommitMarks(),
	)
	if err != nil {
		return fmt.Errorf("failed to create kafka client: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return fmt.Errorf("failed to reach kafka brokers: %w", err)
	}
	c.client = client

	ctx, c.cancel = context.WithCancel(ctx)
	go c.poll(ctx, client)

	c.logger.Info("Consuming kafka topic", "topic", c.topic, "group", c.group)
	return nil
}

func (c *Consumer) poll(ctx context.Context, client *kgo.Client) {
	defer close(c.done)
	for {
		fetches := client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.logger.Error("Kafka fetch failed", "topic", topic, "partition", partition, "error", err)
		})

		if !c.handleBatch(ctx, fetches.Records(), client.MarkCommitRecords) {
			return
		}
		client.AllowRebalance()
	}
}

// handleBatch queues every record of one poll and waits until each has been
// acknowledged, so partitions are not revoked while their records are still
// being dispatched. It reports false when ctx ends first.
func (c *Consumer) handleBatch(ctx context.Context, records []*kgo.Record, mark func(...*kgo.Record)) bool {
	var pending sync.WaitGroup
	for _, record := range records {
		pending.Add(1)
		var once sync.Once
		c.handleRecord(record, func() {
			once.Do(func() {
				mark(record)
				pending.Done()
			})
		})
	}

	handled := make(chan struct{})
	go func() {
		pending.Wait()
		close(handled)
	}()
	select {
	case <-handled:
		return true
	case <-ctx.Done():
		return false
	}
}

// handleRecord queues one record. Record headers travel with the event so
// the dispatch span can continue the producer's trace.
func (c *Consumer) handleRecord(record *kgo.Record, ack func()) bool {
	var carrier map[string]string
	if len(record.Headers) > 0 {
		carrier = make(map[string]string, len(record.Headers))
		for _, h := range record.Headers {
			carrier[h.Key] = string(h.Value)
		}
	}
	fallbackID := fmt.Sprintf("%s/%d/%d", record.Topic, record.Partition, record.Offset)
	return c.stream.Accept(record.Value, fallbackID, carrier, ack)
}

func (c *Consumer) Events() <-chan source.Event {
	return c.stream.Events()
}

// Close stops polling, commits marked offsets and leaves the group.
// Events acknowledged after Close are not committed and will be redelivered.
func (c *Consumer) Close() error {
	c.stream.Stop()
	if c.client == nil {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	ctx, cancel := context.WithTimeout(context.Background(), commitTimeout)
	defer cancel()
	if err := c.client.CommitMarkedOffsets(ctx); err != nil {
		c.logger.Warn("Failed to commit offsets on close", "error", err)
	}
	c.client.Close()
	c.client = nil
	return nil
}
