package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/AbNAt-Cell/NoteTaker/stt"
)

const DefaultRedisStream = "transcription_segments"

// RedisStream appends each durable snapshot to a Redis stream as one
// entry whose "payload" field holds the JSON message.
type RedisStream struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

func NewRedisStream(client redis.Cmdable, stream string, maxLen int64) *RedisStream {
	if stream == "" {
		stream = DefaultRedisStream
	}
	return &RedisStream{client: client, stream: stream, maxLen: maxLen}
}

func (r *RedisStream) StoreTranscript(ctx context.Context, msg stt.DurableMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]any{"payload": string(payload)},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", r.stream, err)
	}
	return nil
}

// RedisChannel publishes live segments on "<prefix>:<uid>".
type RedisChannel struct {
	client redis.Cmdable
	prefix string
}

func NewRedisChannel(client redis.Cmdable, prefix string) *RedisChannel {
	if prefix == "" {
		prefix = "transcripts:live"
	}
	return &RedisChannel{client: client, prefix: prefix}
}

func (r *RedisChannel) SendLive(ctx context.Context, msg stt.LiveMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode segment: %w", err)
	}
	channel := r.prefix + ":" + msg.UID
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
