package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the stream sink.
type RedisOptions struct {
	Address  string
	Password string
	DB       int
	Stream   string
	MaxLen   int64
}

// RedisStream appends events to a capped Redis stream.
type RedisStream struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisStream(opts RedisOptions) *RedisStream {
	if opts.Stream == "" {
		opts.Stream = "portfolio:questions"
	}
	if opts.MaxLen <= 0 {
		opts.MaxLen = 10000
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &RedisStream{client: client, stream: opts.Stream, maxLen: opts.MaxLen}
}

func (r *RedisStream) Capture(ctx context.Context, e Event) error {
	values, err := streamValues(e)
	if err != nil {
		return err
	}
	err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		MaxLen: r.maxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", r.stream, err)
	}
	return nil
}

func (r *RedisStream) Close() error {
	return r.client.Close()
}

func streamValues(e Event) (map[string]any, error) {
	props, err := json.Marshal(e.Properties)
	if err != nil {
		return nil, fmt.Errorf("encode properties: %w", err)
	}
	return map[string]any{
		"event":       e.Name,
		"distinct_id": e.DistinctID,
		"timestamp":   e.Timestamp.UTC().Format(time.RFC3339Nano),
		"properties":  string(props),
	}, nil
}
