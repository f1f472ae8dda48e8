package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ifuryst/cadence/internal/config"
)

// ErrRunInProgress is returned when another publish run holds the run lock.
var ErrRunInProgress = errors.New("a publish run is already in progress")

const releaseTimeout = 5 * time.Second

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

var extendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// RunLock keeps overlapping invocations from selecting the same due rows.
type RunLock interface {
	// Acquire returns ErrRunInProgress when the lock is held elsewhere. The
	// returned func releases the lock; later calls are no-ops.
	Acquire(ctx context.Context) (release func(), err error)
}

// RedisRunLock is a SET NX lock with a TTL so a crashed run can't hold it
// forever. While held, the TTL is extended every third of its length, so a
// run may outlast lock_ttl. Release only deletes the key if it still carries
// our token.
type RedisRunLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisRunLock(client *redis.Client, key string, ttl time.Duration, logger *zap.Logger) *RedisRunLock {
	return &RedisRunLock{
		client: client,
		key:    key,
		ttl:    ttl,
		logger: logger,
	}
}

func (l *RedisRunLock) Acquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}

	stop := make(chan struct{})
	stopped := make(chan struct{})
	go l.keepAlive(token, stop, stopped)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-stopped
			l.release(token)
		})
	}, nil
}

func (l *RedisRunLock) keepAlive(token string, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	interval := l.ttl / 3
	if interval <= 0 {
		interval = l.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			extended, err := extendScript.Run(ctx, l.client, []string{l.key}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				l.logger.Warn("Failed to extend run lock", zap.String("key", l.key), zap.Error(err))
				continue
			}
			if extended == 0 {
				l.logger.Warn("Run lock lost before the run finished", zap.String("key", l.key))
				return
			}
		}
	}
}

func (l *RedisRunLock) release(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	released, err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Int()
	if err != nil {
		l.logger.Warn("Failed to release run lock", zap.String("key", l.key), zap.Error(err))
		return
	}
	if released == 0 {
		l.logger.Warn("Run lock expired before release", zap.String("key", l.key), zap.Duration("ttl", l.ttl))
	}
}

type noopRunLock struct{}

func (noopRunLock) Acquire(context.Context) (func(), error) {
	return func() {}, nil
}

// NewRunLock connects to Redis when an address is configured. Without one
// runs are not coordinated. The returned close func is never nil.
func NewRunLock(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (RunLock, func() error, error) {
	if cfg.Addr == "" {
		logger.Info("Redis not configured, publish runs are not locked")
		return noopRunLock{}, func() error { return nil }, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	logger.Info("Publish run lock enabled", zap.String("addr", cfg.Addr), zap.String("key", cfg.LockKey))
	return NewRedisRunLock(client, cfg.LockKey, cfg.TTL(), logger), client.Close, nil
}
