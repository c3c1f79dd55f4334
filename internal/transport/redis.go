package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahmadhassan44/random-walk/pkg/protocol"
	backend "github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces signal lists.
const DefaultRedisPrefix = "randwalk:"

// pollInterval bounds each BLPOP so cancellation is noticed promptly.
const pollInterval = time.Second

// Redis is a completion channel on a Redis list: senders RPUSH, the single
// receiver BLPOPs. Each run uses its own list.
type Redis struct {
	client *backend.Client
	prefix string
	key    string
	poll   time.Duration
}

// RedisOption configures the queue.
type RedisOption func(*Redis)

// WithRedisPrefix sets the key prefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

// WithPollInterval sets the BLPOP slice length. Redis counts whole seconds.
func WithPollInterval(d time.Duration) RedisOption {
	return func(r *Redis) {
		r.poll = d
	}
}

// NewRedis creates a queue for runID on an existing client.
func NewRedis(client *backend.Client, runID string, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		prefix: DefaultRedisPrefix,
		poll:   pollInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.key = r.prefix + runID + ":signals"
	return r
}

// DialRedis connects to addr and creates a queue for runID.
func DialRedis(ctx context.Context, addr, runID string, opts ...RedisOption) (*Redis, error) {
	client := backend.NewClient(&backend.Options{
		Addr:                  addr,
		ContextTimeoutEnabled: true,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", addr, err)
	}
	return NewRedis(client, runID, opts...), nil
}

// Key is the list used for this run.
func (r *Redis) Key() string {
	return r.key
}

func (r *Redis) Send(ctx context.Context, sig protocol.CompletionSignal) error {
	body, err := protocol.Encode(sig)
	if err != nil {
		return fmt.Errorf("failed to encode signal: %w", err)
	}
	if err := r.client.RPush(ctx, r.key, body).Err(); err != nil {
		return fmt.Errorf("redis error sending signal: %w", err)
	}
	return nil
}

func (r *Redis) Receive(ctx context.Context) (protocol.Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			return protocol.Message{}, err
		}

		res, err := r.client.BLPop(ctx, r.poll, r.key).Result()
		if err != nil {
			if errors.Is(err, backend.Nil) {
				continue
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return protocol.Message{}, ctxErr
			}
			return protocol.Message{}, fmt.Errorf("redis error receiving signal: %w", err)
		}

		// BLPOP replies with [key, value].
		return protocol.Message{Source: res[0], Body: []byte(res[1])}, nil
	}
}

// Purge deletes the run's list.
func (r *Redis) Purge(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}

// Close releases the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
