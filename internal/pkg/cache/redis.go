package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"reelcast/internal/config"
)

// RedisCache Redis 缓存封装
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache 创建 Redis 缓存客户端
func NewRedisCache(cfg *config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisCache{client: client}, nil
}

// GetString 获取字符串值，key 不存在时返回空字符串
func (c *RedisCache) GetString(ctx context.Context, key string) (string, error) {
	v, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

// SetString 设置字符串值
func (c *RedisCache) SetString(ctx context.Context, key, value string, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

// Ping 检查连接
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close 关闭连接
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// 常用 key 模式
const (
	RenderQueueKey       = "reelcast:renders"
	OutputLockKeyPrefix  = "lock:output:"
	BackgroundLastPrefix = "bg:last:"
	BackgroundLastTTL    = 7 * 24 * time.Hour
)

// OutputLockKey 生成输出文件锁 key
func OutputLockKey(outputPath string) string {
	return OutputLockKeyPrefix + outputPath
}

// BackgroundLastKey 生成背景素材目录最近使用记录的 key
func BackgroundLastKey(dir string) string {
	return BackgroundLastPrefix + dir
}
