package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Queue 阻塞读取任务ID的队列
type Queue interface {
	Dequeue(ctx context.Context, queue string, timeout time.Duration) (string, error)
}

// Handler 处理一个任务
type Handler func(ctx context.Context, renderID string) error

// Worker 渲染队列消费者
// 每个协程独立阻塞读取队列，同时最多渲染 concurrency 个内容单元
type Worker struct {
	queue       Queue
	queueName   string
	concurrency int
	pollTimeout time.Duration
	handle      Handler
}

// New 创建 worker
func New(queue Queue, queueName string, concurrency int, pollTimeout time.Duration, handle Handler) *Worker {
	if concurrency <= 0 {
		concurrency = 1
	}
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}
	return &Worker{
		queue:       queue,
		queueName:   queueName,
		concurrency: concurrency,
		pollTimeout: pollTimeout,
		handle:      handle,
	}
}

// Run 开始消费，直到 ctx 被取消
// 正在渲染的任务会收到取消信号，Run 等待所有协程退出后返回
func (w *Worker) Run(ctx context.Context) error {
	log.Info().
		Str("queue", w.queueName).
		Int("concurrency", w.concurrency).
		Msg("worker started")

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		slot := i
		g.Go(func() error {
			w.loop(gctx, slot)
			return nil
		})
	}
	err := g.Wait()

	log.Info().Str("queue", w.queueName).Msg("worker stopped")
	return err
}

func (w *Worker) loop(ctx context.Context, slot int) {
	for {
		if ctx.Err() != nil {
			return
		}

		renderID, err := w.queue.Dequeue(ctx, w.queueName, w.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Int("slot", slot).Msg("failed to pop from queue")
			// 避免 Redis 不可用时空转
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if renderID == "" {
			continue
		}

		start := time.Now()
		log.Info().Str("render_id", renderID).Int("slot", slot).Msg("received render task")
		if err := w.handle(ctx, renderID); err != nil {
			if errors.Is(err, context.Canceled) {
				log.Warn().Str("render_id", renderID).Msg("render interrupted by shutdown")
				return
			}
			log.Error().Err(err).Str("render_id", renderID).Dur("elapsed", time.Since(start)).Msg("render task failed")
			continue
		}
		log.Info().Str("render_id", renderID).Dur("elapsed", time.Since(start)).Msg("render task finished")
	}
}
