// Package redisq consumes order events pushed onto a Redis list.
//
// Producers LPUSH JSON events; the consumer pops them from the tail with
// BRPOP, so each event is handed to exactly one notifier instance.
package redisq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-logger/glog"
	"github.com/redis/go-redis/v9"

	"github.com/otiai10/orderhook/internal/config"
	"github.com/otiai10/orderhook/internal/source"
)

// Origin tags events produced by this consumer
const Origin = "redis"

const (
	popTimeout = 5 * time.Second
	errBackoff = time.Second
)

// Queue pops order events from a Redis list
type Queue struct {
	client *redis.Client
	key    string
	logger glog.Logger
	types  []string

	stream *source.Stream
	cancel context.CancelFunc
	done   chan struct{}
}

var _ source.Source = (*Queue)(nil)

type Option func(*Queue)

func WithLogger(logger glog.Logger) Option {
	return func(q *Queue) {
		q.logger = glog.Ensure(logger)
	}
}

func WithTypes(types ...string) Option {
	return func(q *Queue) {
		q.types = types
	}
}

func NewQueue(cfg config.RedisSourceConfig, opts ...Option) *Queue {
	q := &Queue{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		key:    cfg.Key,
		logger: glog.Nop(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.stream = source.NewStream(Origin, q.logger, q.types, 100)
	return q
}

// Connect checks the server is reachable and starts popping
func (q *Queue) Connect(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := q.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	ctx, q.cancel = context.WithCancel(ctx)
	go q.run(ctx)

	q.logger.Info("Consuming redis list", "key", q.key)
	return nil
}

func (q *Queue) run(ctx context.Context) {
	defer close(q.done)
	for {
		if ctx.Err() != nil {
			return
		}

		// result is [key, value]
		result, err := q.client.BRPop(ctx, popTimeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.logger.Error("Redis pop failed, retrying", "key", q.key, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(errBackoff):
			}
			continue
		}
		q.handle(result)
	}
}

func (q *Queue) handle(result []string) bool {
	if len(result) < 2 {
		return false
	}
	return q.stream.Accept([]byte(result[1]), "", nil, nil)
}

func (q *Queue) Events() <-chan source.Event {
	return q.stream.Events()
}

func (q *Queue) Close() error {
	q.stream.Stop()
	if q.cancel != nil {
		q.cancel()
		<-q.done
		q.cancel = nil
	}
	if q.client == nil {
		return nil
	}
	err := q.client.Close()
	q.client = nil
	return err
}
