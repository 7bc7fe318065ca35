// Package natsstan consumes order events from a NATS Streaming channel.
//
// Messages are acknowledged manually: once the event has been dispatched, or
// straight away when it is dropped as invalid, filtered or duplicate.
package natsstan

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/goliatone/go-logger/glog"
	stan "github.com/nats-io/stan.go"

	"github.com/otiai10/orderhook/internal/config"
	"github.com/otiai10/orderhook/internal/source"
)

// Origin tags events produced by this subscriber
const Origin = "nats"

const (
	defaultQueue   = "orderhook-workers"
	defaultDurable = "orderhook"
	defaultAckWait = 60 * time.Second
)

// Subscriber reads order events from a NATS Streaming subject
type Subscriber struct {
	url       string
	clusterID string
	clientID  string
	subject   string
	queue     string
	durable   string
	ackWait   time.Duration
	logger    glog.Logger
	types     []string

	stream *source.Stream

	mu   sync.Mutex
	conn stan.Conn
	sub  stan.Subscription
}

var _ source.Source = (*Subscriber)(nil)

type Option func(*Subscriber)

func WithLogger(logger glog.Logger) Option {
	return func(s *Subscriber) {
		s.logger = glog.Ensure(logger)
	}
}

func WithTypes(types ...string) Option {
	return func(s *Subscriber) {
		s.types = types
	}
}

// WithAckWait sets how long the server waits for an ack before redelivering.
// It should exceed the worst-case dispatch time.
func WithAckWait(d time.Duration) Option {
	return func(s *Subscriber) {
		if d > 0 {
			s.ackWait = d
		}
	}
}

// NewSubscriber creates a subscriber from its config block
func NewSubscriber(cfg config.NATSSourceConfig, opts ...Option) *Subscriber {
	s := &Subscriber{
		url:       cfg.URL,
		clusterID: cfg.ClusterID,
		clientID:  cfg.ClientID,
		subject:   cfg.Subject,
		queue:     cfg.Queue,
		durable:   cfg.Durable,
		ackWait:   defaultAckWait,
		logger:    glog.Nop(),
	}
	if s.clientID == "" {
		s.clientID = fmt.Sprintf("orderhook-%d", time.Now().UnixNano())
	}
	if s.queue == "" {
		s.queue = defaultQueue
	}
	if s.durable == "" {
		s.durable = defaultDurable
	}
	for _, opt := range opts {
		opt(s)
	}
	s.stream = source.NewStream(Origin, s.logger, s.types, 100)
	return s
}

// Connect opens the streaming connection and subscribes to the subject
func (s *Subscriber) Connect(ctx context.Context) error {
	conn, err := stan.Connect(s.clusterID, s.clientID,
		stan.NatsURL(s.url),
		stan.SetConnectionLostHandler(func(_ stan.Conn, reason error) {
			s.logger.Error("NATS streaming connection lost", "cluster_id", s.clusterID, "error", reason)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS streaming: %w", err)
	}

	sub, err := conn.QueueSubscribe(s.subject, s.queue, func(m *stan.Msg) {
		s.handle(m.Data, m.Sequence, func() {
			if err := m.Ack(); err != nil {
				s.logger.Warn("Failed to ack message", "sequence", m.Sequence, "error", err)
			}
		})
	}, stan.DurableName(s.durable), stan.SetManualAckMode(), stan.AckWait(s.ackWait), stan.DeliverAllAvailable())
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", s.subject, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.sub = sub
	s.mu.Unlock()

	s.logger.Info("Subscribed to NATS streaming", "subject", s.subject, "queue", s.queue, "client_id", s.clientID)

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.stream.Done():
		}
	}()
	return nil
}

// handle queues one message. The sequence number identifies redeliveries
// of events that carry no id of their own.
func (s *Subscriber) handle(data []byte, sequence uint64, ack func()) bool {
	return s.stream.Accept(data, "seq-"+strconv.FormatUint(sequence, 10), nil, ack)
}

func (s *Subscriber) Events() <-chan source.Event {
	return s.stream.Events()
}

// Close unsubscribes (keeping the durable position) and closes the connection
func (s *Subscriber) Close() error {
	s.stream.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	if s.sub != nil {
		_ = s.sub.Close()
		s.sub = nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
