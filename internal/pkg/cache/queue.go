package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Enqueue 把任务ID推入队列
func (c *RedisCache) Enqueue(ctx context.Context, queue, id string) error {
	return c.client.LPush(ctx, queue, id).Err()
}

// Dequeue 阻塞等待队列中的下一个任务ID
// 超时返回空字符串和 nil
func (c *RedisCache) Dequeue(ctx context.Context, queue string, timeout time.Duration) (string, error) {
	result, err := c.client.BRPop(ctx, timeout, queue).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	// BRPop 返回 [key, value]
	if len(result) < 2 {
		return "", nil
	}
	return result[1], nil
}

// QueueLength 队列长度
func (c *RedisCache) QueueLength(ctx context.Context, queue string) (int64, error) {
	return c.client.LLen(ctx, queue).Result()
}
