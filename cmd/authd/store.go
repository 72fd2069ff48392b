package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/account"
	"github.com/MrEthical07/authcore/redisstore"
	"github.com/MrEthical07/authcore/sqlstore"
)

// backend is the selected credential store plus the Redis client used for
// login throttling, when there is one.
type backend struct {
	store   account.Store
	redis   redis.UniversalClient
	closers []func() error
}

func (b *backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func openBackend(ctx context.Context, cfg Config) (*backend, error) {
	b := &backend{}

	switch cfg.Store {
	case "memory":
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start in-memory redis: %w", err)
		}
		b.closers = append(b.closers, func() error { mr.Close(); return nil })
		b.useRedis(redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}}), cfg.RedisPrefix)

	case "redis":
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{cfg.RedisAddr}})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
		}
		b.useRedis(client, cfg.RedisPrefix)

	case "postgres", "sqlite":
		dialect, err := sqlstore.ParseDialect(cfg.Store)
		if err != nil {
			return nil, err
		}
		dsn := cfg.DatabaseDSN
		if dialect == sqlstore.SQLite {
			dsn = cfg.SQLitePath
		}
		s, err := sqlstore.Open(ctx, dialect, dsn)
		if err != nil {
			return nil, err
		}
		b.store = s
		b.closers = append(b.closers, s.Close)

	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}

	return b, nil
}

func (b *backend) useRedis(client redis.UniversalClient, prefix string) {
	b.redis = client
	b.store = redisstore.New(client, prefix)
	b.closers = append(b.closers, client.Close)
}
