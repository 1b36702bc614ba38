package lock

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"invoicing/pkg/idgen"

	"github.com/go-redis/redis/v8"
)

// ChainLockKey 发票链锁
//
// 所有发票和退款单共用一条 footprint 链，
// 必须保证第 N 张的 footprint 在第 N-1 张提交之后才计算，所以开票是全局串行的。
const ChainLockKey = "invoice:lock:chain"

// RefundLockKey 同一张发票的退款互斥
func RefundLockKey(invoiceID int64) string {
	return fmt.Sprintf("invoice:lock:refund:%d", invoiceID)
}

// Unlock 释放锁
type Unlock func(ctx context.Context) error

// Locker 按 key 互斥
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// RedisLocker 多实例部署时使用
type RedisLocker struct {
	client        *redis.Client
	expiration    time.Duration
	retryInterval time.Duration
	maxRetries    int
}

func NewRedisLocker(client *redis.Client, expiration time.Duration) *RedisLocker {
	return &RedisLocker{
		client:        client,
		expiration:    expiration,
		retryInterval: 20 * time.Millisecond,
		maxRetries:    int(expiration / (20 * time.Millisecond)),
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	dl := NewDistributedLock(l.client, key, strconv.FormatInt(idgen.NextID(), 10), l.expiration)
	if err := dl.Lock(ctx, l.retryInterval, l.maxRetries); err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return dl.Unlock, nil
}

// LocalLocker 单进程内的锁，用于命令行工具和测试
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]chan struct{})}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[key] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", key, ctx.Err())
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() { <-slot })
		return nil
	}, nil
}
