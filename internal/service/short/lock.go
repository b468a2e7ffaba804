package short

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"

	"reelcast/internal/pkg/cache"
	"reelcast/internal/pkg/id"
)

// OutputLocker 输出路径的独占写锁
// 只有合成引擎在写最终文件时持有，返回的函数用于释放
type OutputLocker interface {
	Lock(ctx context.Context, outputPath string) (unlock func(), err error)
}

// FileLocker 在输出目录下用 flock(2) 锁住 .<name>.lock
// 适用于单机上的多个渲染进程，持锁进程退出后内核自动释放
type FileLocker struct{}

// FileLockPath 返回输出文件对应的锁文件路径
func FileLockPath(outputPath string) string {
	return filepath.Join(filepath.Dir(outputPath), "."+filepath.Base(outputPath)+".lock")
}

// Lock 获取锁，其他进程持有时返回 ErrOutputLocked
// 锁文件释放后保留在原处，删除它会让并发的加锁方锁在不同的 inode 上
func (FileLocker) Lock(_ context.Context, outputPath string) (func(), error) {
	lockPath := FileLockPath(outputPath)
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	fl := flock.New(lockPath)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", lockPath, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOutputLocked, outputPath)
	}

	return func() {
		if err := fl.Unlock(); err != nil {
			log.Warn().Err(err).Str("lock", lockPath).Msg("failed to release lock file")
		}
	}, nil
}

// RedisLocker 使用 Redis SET NX 实现的输出锁，多个 worker 节点共享
type RedisLocker struct {
	cache *cache.RedisCache
	ttl   time.Duration
}

// NewRedisLocker 创建 Redis 输出锁，ttl 需覆盖最长的编码时间
func NewRedisLocker(c *cache.RedisCache, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisLocker{cache: c, ttl: ttl}
}

// Lock 获取锁
func (l *RedisLocker) Lock(ctx context.Context, outputPath string) (func(), error) {
	key := cache.OutputLockKey(outputPath)
	token := id.New()
	ok, err := l.cache.TryLock(ctx, key, token, l.ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire output lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOutputLocked, outputPath)
	}

	return func() {
		// 调用方的 ctx 可能已经取消，释放锁使用独立的超时
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.cache.Unlock(ctx, key, token); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to release output lock")
		}
	}, nil
}
