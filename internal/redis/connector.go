// Package redis opens go-redis clients for the storage backends, retrying
// until the server answers or the connect timeout expires.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/nodekeeper/internal/logger"
)

// ConnectOptions defines the client settings and the startup retry policy.
type ConnectOptions struct {
	Name           string        // label used in logs (ex: shard key), defaults to the address
	Addr           string        // Redis address (ex: "localhost:6379")
	User           string        // Optional username
	Password       string        // Optional password
	RedisDB        int           // Redis DB number
	DialTimeout    time.Duration // Redis dial timeout
	ReadTimeout    time.Duration // Redis read timeout
	WriteTimeout   time.Duration // Redis write timeout
	PoolSize       int           // Redis connection pool size
	ConnectTimeout time.Duration // Total time allowed for connection attempts (ex: 30s)
	RetryInterval  time.Duration // Initial wait between retries, doubled after each failure
	MaxWait        time.Duration // Cap on the wait between retries (ex: 10s)
	PingTimeout    time.Duration // Timeout for each ping attempt (ex: 2s)
	WarnThreshold  int           // Attempts logged as warnings before escalating to errors
}

func (o ConnectOptions) validate() error {
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"ConnectTimeout", o.ConnectTimeout},
		{"RetryInterval", o.RetryInterval},
		{"MaxWait", o.MaxWait},
		{"PingTimeout", o.PingTimeout},
	} {
		if d.value <= 0 {
			return fmt.Errorf("%s must be > 0, got %v", d.name, d.value)
		}
	}
	if o.WarnThreshold < 0 {
		return fmt.Errorf("WarnThreshold must be >= 0, got %d", o.WarnThreshold)
	}
	return nil
}

// New connects to a single Redis server described by opts.
func New(opts ConnectOptions, log logger.Logger) (*redis.Client, error) {
	return connect(&redis.Options{
		Addr:     opts.Addr,
		Username: opts.User,
		Password: opts.Password,
		DB:       opts.RedisDB,
	}, opts, log)
}

// NewFromURL connects to the Redis server described by a redis:// URL
// (used for shards). Address, credentials and DB come from the URL, the
// timeouts and retry policy from opts.
func NewFromURL(url string, opts ConnectOptions, log logger.Logger) (*redis.Client, error) {
	parsed, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opts.Addr = parsed.Addr
	return connect(parsed, opts, log)
}

func connect(base *redis.Options, opts ConnectOptions, log logger.Logger) (*redis.Client, error) {
	if opts.Name == "" {
		opts.Name = opts.Addr
	}
	if err := opts.validate(); err != nil {
		log.Error("invalid redis connect options",
			logger.String("redis", opts.Name),
			logger.Error(err))
		return nil, err
	}

	base.DialTimeout = opts.DialTimeout
	base.ReadTimeout = opts.ReadTimeout
	base.WriteTimeout = opts.WriteTimeout
	base.PoolSize = opts.PoolSize
	client := redis.NewClient(base)

	d := &dialer{client: client, opts: opts, logger: log}
	if err := d.waitReady(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// dialer pings a fresh client until it answers.
type dialer struct {
	client *redis.Client
	opts   ConnectOptions
	logger logger.Logger
}

func (d *dialer) waitReady() error {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.ConnectTimeout)
	defer cancel()

	start := time.Now()
	wait := d.opts.RetryInterval

	d.logger.Info("connecting to redis",
		logger.String("redis", d.opts.Name),
		logger.String("addr", d.opts.Addr),
		logger.Duration("timeout", d.opts.ConnectTimeout))

	for attempt := 1; ; attempt++ {
		pingCtx, pingCancel := context.WithTimeout(ctx, d.opts.PingTimeout)
		err := d.client.Ping(pingCtx).Err()
		pingCancel()

		if err == nil {
			d.connected(attempt, time.Since(start))
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			d.logger.Error("redis unavailable, giving up",
				logger.String("redis", d.opts.Name),
				logger.Int("attempts", attempt),
				logger.Duration("timeout", d.opts.ConnectTimeout),
				logger.Error(err))
			return fmt.Errorf("redis %s unavailable at %s after %d attempts (timeout: %v): %w",
				d.opts.Name, d.opts.Addr, attempt, d.opts.ConnectTimeout, err)
		case <-timer.C:
		}

		d.failed(attempt, remaining(ctx), wait, err)
		wait = min(wait*2, d.opts.MaxWait)
	}
}

func (d *dialer) connected(attempts int, elapsed time.Duration) {
	if attempts == 1 {
		d.logger.Info("connected to redis",
			logger.String("redis", d.opts.Name))
		return
	}
	d.logger.Warn("connected to redis after retry",
		logger.String("redis", d.opts.Name),
		logger.Int("attempts", attempts),
		logger.Duration("elapsed", elapsed))
}

// failed logs warnings for the first attempts, errors once the threshold
// is passed or the deadline is close.
func (d *dialer) failed(attempt int, left, next time.Duration, err error) {
	log := d.logger.Error
	msg := "redis still unavailable, retrying"
	switch {
	case left < 10*time.Second:
		msg = "redis still down, connect timeout approaching"
	case attempt <= d.opts.WarnThreshold:
		log = d.logger.Warn
		msg = "redis connection failed, retrying"
	}

	log(msg,
		logger.String("redis", d.opts.Name),
		logger.Int("attempt", attempt),
		logger.Duration("remaining", left),
		logger.Duration("next_retry_in", next),
		logger.Error(err))
}

func remaining(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}
	return time.Until(deadline)
}
