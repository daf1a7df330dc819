// Package sink publishes rendered views to external stores.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"depthview/internal/logger"
	"depthview/internal/model"
)

const writeTimeout = 500 * time.Millisecond

// RedisPublisher keeps the latest view for one instrument in Redis under
// depthview:view:{instrument}. Each write refreshes the TTL.
type RedisPublisher struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	log    *logger.Logger
}

// NewRedisPublisher connects and pings before returning.
func NewRedisPublisher(ctx context.Context, redisURL, password, instrument string, ttl time.Duration, log *logger.Logger) (*RedisPublisher, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid redis URL")
	}
	if password != "" {
		opt.Password = password
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis ping failed")
	}
	return NewRedisPublisherWithClient(client, instrument, ttl, log), nil
}

func NewRedisPublisherWithClient(client *redis.Client, instrument string, ttl time.Duration, log *logger.Logger) *RedisPublisher {
	return &RedisPublisher{
		client: client,
		key:    Key(instrument),
		ttl:    ttl,
		log:    log.WithFields(logger.NewField("component", "redis_publisher")),
	}
}

// Key is the cache key for an instrument's latest view.
func Key(instrument string) string {
	return fmt.Sprintf("depthview:view:%s", instrument)
}

func (p *RedisPublisher) Name() string { return "redis" }

// Render overwrites the stored view.
func (p *RedisPublisher) Render(ctx context.Context, v model.View) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal view")
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := p.client.Set(ctx, p.key, b, p.ttl).Err(); err != nil {
		return errors.Wrapf(err, "redis SET %s", p.key)
	}
	p.log.Debug("view cached", logger.NewField("seq", v.Seq), logger.NewField("size_bytes", len(b)))
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
