package kvstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix      = "scptracker:"
	defaultRedisDialTimeout = 5 * time.Second
	defaultRedisMaxRetries  = 3
)

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Addrs       []string      `yaml:"addrs"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	Prefix      string        `yaml:"prefix"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	MaxRetries  int           `yaml:"max_retries"`
}

// Redis stores documents as plain string values under a key prefix.
type Redis struct {
	client redis.UniversalClient
	prefix string

	closeOnce sync.Once
	closeErr  error
}

// NewRedis connects and pings with exponential backoff.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	if len(cfg.Addrs) == 0 {
		return nil, errors.New("kvstore: redis requires at least one address")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultRedisDialTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultRedisMaxRetries
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:       cfg.Addrs,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(cfg.MaxRetries)),
		ctx,
	)
	ping := func() error {
		return client.Ping(ctx).Err()
	}
	if err := backoff.Retry(ping, policy); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "kvstore: redis ping")
	}
	return NewRedisFromClient(client, cfg.Prefix), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client redis.UniversalClient, prefix string) *Redis {
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

// Get returns the stored value.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "kvstore: redis get %s", key)
	}
	return value, true, nil
}

// Set stores value without expiry.
func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return errors.Wrapf(err, "kvstore: redis set %s", key)
	}
	return nil
}

// Delete removes key.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return errors.Wrapf(err, "kvstore: redis delete %s", key)
	}
	return nil
}

// Close releases the client. It is idempotent.
func (r *Redis) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.client.Close()
	})
	return r.closeErr
}
