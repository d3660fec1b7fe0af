// Package kvstore provides the key/value backends used to persist tracker
// state and sessions.
package kvstore

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// ErrUnknownDriver is returned by Open for unsupported driver names.
var ErrUnknownDriver = errors.New("kvstore: unknown driver")

// ErrInvalidKey is returned for keys that are empty or unsafe for the backend.
var ErrInvalidKey = errors.New("kvstore: invalid key")

// Store is a durable string-keyed document store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Driver string      `yaml:"driver"`
	Path   string      `yaml:"path"`
	DSN    string      `yaml:"dsn"`
	Redis  RedisConfig `yaml:"redis"`
}

// Open builds the backend named by cfg.Driver. An empty driver means memory.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverFile:
		return NewFile(cfg.Path)
	case DriverSQLite:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = cfg.Path
		}
		return OpenSQL(ctx, DriverSQLite, dsn)
	case DriverPostgres:
		return OpenSQL(ctx, DriverPostgres, cfg.DSN)
	case DriverRedis:
		return NewRedis(ctx, cfg.Redis)
	default:
		return nil, errors.Wrapf(ErrUnknownDriver, "driver %q", cfg.Driver)
	}
}

func validKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	return nil
}
