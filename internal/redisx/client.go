package redisx

import (
	"time"

	"github.com/redis/go-redis/v9"
)

type Options struct {
	Addr     string
	Password string
	PoolSize int
	Timeout  time.Duration
}

// New builds the shared Redis client. Checkout beyond PoolSize blocks the
// caller until a connection is returned.
func New(opts Options) *redis.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second
	}
	return redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		PoolSize:     opts.PoolSize,
		DialTimeout:  opts.Timeout,
		ReadTimeout:  opts.Timeout,
		WriteTimeout: opts.Timeout,
		PoolTimeout:  opts.Timeout * 2,
	})
}
