package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 分布式锁
// ============================================================================
//
// 【为什么生成扫描要加锁？】
//
// 多实例部署时每个实例都在跑打款生成任务，同一个到期排程会被多个实例
// 同时扫到。认领事务里的条件更新保证了不会重复出账（后到的事务认领
// 不到支付记录，整体回滚），但回滚也是白白消耗数据库资源。
// 排程粒度加一把锁，让同一排程同一时刻只有一个实例去算账。
//
// 【Redis 分布式锁原理】
//
// 加锁：SET key value NX EX timeout
//   - NX: 只有 key 不存在时才设置（保证互斥）
//   - EX: 设置过期时间（防止死锁）
//   - value: 锁持有者标识（释放时验证，防止误删别人的锁）
//
// 释放锁：使用 Lua 脚本保证原子性
//   - 先检查 value 是否是自己的
//   - 再删除 key
//
// ============================================================================

var ErrLockFailed = errors.New("获取分布式锁失败")

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string        // 锁的 key
	value      string        // 锁的 value（用于验证锁的持有者）
	expiration time.Duration // 锁的过期时间
}

// NewDistributedLock 创建分布式锁
func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
			// 继续重试
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁
//
// 【关键点】使用 Lua 脚本保证"检查+删除"操作的原子性，
// 锁过期后被别的实例持有时，自己的 Unlock 不会误删别人的锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// ============================================================================
// 排程锁
// ============================================================================

// ScheduleLocker 排程粒度的锁工厂
// 锁的 value 用实例标识+纳秒时间戳，便于追踪是哪个实例持有
type ScheduleLocker struct {
	client     *redis.Client
	instanceID string
	expiration time.Duration
}

func NewScheduleLocker(client *redis.Client, instanceID string) *ScheduleLocker {
	return &ScheduleLocker{
		client:     client,
		instanceID: instanceID,
		expiration: 30 * time.Second,
	}
}

// WithLock 持有排程锁执行 fn；抢不到锁直接放弃，等下一轮扫描
func (f *ScheduleLocker) WithLock(ctx context.Context, scheduleID int64, fn func() error) error {
	key := fmt.Sprintf("payout:lock:schedule:%d", scheduleID)
	value := fmt.Sprintf("%s-%d", f.instanceID, time.Now().UnixNano())

	l := NewDistributedLock(f.client, key, value, f.expiration)
	ok, err := l.TryLock(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	defer l.Unlock(ctx)

	return fn()
}
