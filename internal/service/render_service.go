package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"reelcast/internal/model/short"
	"reelcast/internal/pkg/ctxutil"
	"reelcast/internal/pkg/id"
	"reelcast/internal/pkg/storage"
	renderRepo "reelcast/internal/repository/render"
	shortsvc "reelcast/internal/service/short"
)

var (
	ErrRenderNotFound = errors.New("渲染任务不存在")
	ErrInvalidUnit    = errors.New("内容单元无效")
	ErrUnavailable    = errors.New("渲染队列或数据库未配置")
)

// UnitRenderer 把一个内容单元渲染为视频文件
type UnitRenderer interface {
	Run(ctx context.Context, unit short.Unit, outputPath string) (*shortsvc.Result, error)
}

// JobQueue 渲染任务队列
type JobQueue interface {
	Enqueue(ctx context.Context, queue, id string) error
	QueueLength(ctx context.Context, queue string) (int64, error)
}

// downloadURLTTL 查询时重新签发的下载地址有效期
const downloadURLTTL = time.Hour

// RenderService 渲染服务接口
type RenderService interface {
	// Submit 创建渲染任务并放入队列，由 worker 异步执行
	Submit(ctx context.Context, req *SubmitRenderRequest) (*short.Render, error)

	// Process 执行一个渲染任务并记录结果（worker 调用）
	// 已完成的任务直接返回
	Process(ctx context.Context, renderID string) error

	// Get 查询渲染任务，已发布的成品会重新签发下载地址
	Get(ctx context.Context, renderID string) (*short.Render, error)

	// QueueDepth 队列中等待 worker 领取的任务数
	QueueDepth(ctx context.Context) (int64, error)

	// RequeueStale 把长时间停留在处理中的任务重新放入队列（worker 异常退出后恢复）
	RequeueStale(ctx context.Context, olderThan time.Duration) (int, error)

	// RenderFile 直接渲染内容采集文件中的所有单元，不经过数据库和队列（命令行使用）
	RenderFile(ctx context.Context, req *RenderFileRequest) (*RenderFileResult, error)
}

// SubmitRenderRequest 提交渲染任务请求
type SubmitRenderRequest struct {
	Kind short.Kind
	Unit json.RawMessage
}

// RenderFileRequest 命令行渲染请求
type RenderFileRequest struct {
	Kind      short.Kind
	Input     io.Reader
	OutputDir string
	Now       time.Time
}

// RenderFileResult 命令行渲染结果
type RenderFileResult struct {
	Results  []*shortsvc.Result
	Failures map[int]error // 单元序号 -> 错误
}

// renderService 渲染服务实现
type renderService struct {
	repo      renderRepo.RenderRepository
	pipeline  UnitRenderer
	queue     JobQueue
	queueName string
	storage   storage.Storage // 可为空
	outputDir string
}

// NewRenderService 创建渲染服务
// repo 和 queue 为空时只能使用 RenderFile
func NewRenderService(
	repo renderRepo.RenderRepository,
	pipeline UnitRenderer,
	queue JobQueue,
	queueName string,
	storage storage.Storage,
	outputDir string,
) RenderService {
	return &renderService{
		repo:      repo,
		pipeline:  pipeline,
		queue:     queue,
		queueName: queueName,
		storage:   storage,
		outputDir: outputDir,
	}
}

// Submit 创建渲染任务
func (s *renderService) Submit(ctx context.Context, req *SubmitRenderRequest) (*short.Render, error) {
	if s.repo == nil || s.queue == nil {
		return nil, ErrUnavailable
	}

	unit, err := short.DecodeUnit(req.Kind, req.Unit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUnit, err)
	}

	renderID := id.New()
	render := &short.Render{
		ID:         renderID,
		UnitID:     unit.ID(),
		Kind:       unit.Kind(),
		Title:      unit.Title(),
		Payload:    string(req.Unit),
		OutputPath: filepath.Join(s.outputDir, renderID, outputName(unit.Kind())),
		Status:     short.RenderStatusPending,
	}
	if err := s.repo.Create(ctx, render); err != nil {
		return nil, fmt.Errorf("create render: %w", err)
	}

	if err := s.queue.Enqueue(ctx, s.queueName, renderID); err != nil {
		if markErr := s.repo.MarkFailed(ctx, renderID, "enqueue failed: "+err.Error(), nil); markErr != nil {
			log.Error().Err(markErr).Str("render_id", renderID).Msg("failed to mark render as failed")
		}
		return nil, fmt.Errorf("enqueue render: %w", err)
	}

	reqID, _ := ctxutil.GetRequestID(ctx)
	log.Info().
		Str("render_id", renderID).
		Str("request_id", reqID).
		Str("unit_id", render.UnitID).
		Str("kind", render.Kind.String()).
		Msg("render submitted")
	return render, nil
}

// Process 执行渲染任务
func (s *renderService) Process(ctx context.Context, renderID string) error {
	render, err := s.find(ctx, renderID)
	if err != nil {
		return err
	}
	if render.Status == short.RenderStatusCompleted {
		log.Info().Str("render_id", renderID).Msg("render already completed, skipping")
		return nil
	}

	if err := s.repo.UpdateStatus(ctx, renderID, short.RenderStatusProcessing, ""); err != nil {
		return fmt.Errorf("update render status: %w", err)
	}

	unit, err := short.DecodeUnit(render.Kind, []byte(render.Payload))
	if err != nil {
		return s.fail(ctx, renderID, fmt.Errorf("%w: %v", ErrInvalidUnit, err))
	}

	result, err := s.pipeline.Run(ctx, unit, render.OutputPath)
	if err != nil {
		return s.fail(ctx, renderID, err)
	}

	completed := &short.Render{
		OutputPath: result.OutputPath,
		Duration:   result.Duration.Seconds(),
		Skipped:    result.Skipped,
	}
	if s.storage != nil {
		key := storage.RenderKey(renderID)
		url, err := s.publish(ctx, key, result.OutputPath)
		if err != nil {
			// 成品仍保留在本地输出目录
			log.Warn().Err(err).Str("render_id", renderID).Msg("failed to publish render")
		} else {
			completed.StorageKey = key
			completed.OutputURL = url
		}
	}

	if err := s.repo.MarkCompleted(ctx, renderID, completed); err != nil {
		// 记录没有写入时不保留已发布的对象，重试时会重新上传
		if completed.StorageKey != "" {
			if delErr := s.storage.Delete(ctx, completed.StorageKey); delErr != nil {
				log.Warn().Err(delErr).Str("key", completed.StorageKey).Msg("failed to delete published render")
			}
		}
		return fmt.Errorf("mark render completed: %w", err)
	}
	return nil
}

func (s *renderService) fail(ctx context.Context, renderID string, cause error) error {
	log.Error().Err(cause).Str("render_id", renderID).Msg("render failed")
	if err := s.repo.MarkFailed(ctx, renderID, cause.Error(), nil); err != nil {
		log.Error().Err(err).Str("render_id", renderID).Msg("failed to mark render as failed")
	}
	return cause
}

// publish 上传成品
// worker 在上传后、写入记录前退出时，重新处理的任务直接复用已上传的对象
func (s *renderService) publish(ctx context.Context, key, path string) (string, error) {
	exists, err := s.storage.Exists(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to check published render, uploading again")
	}
	if exists {
		log.Info().Str("key", key).Msg("render already published")
		return s.storage.GetPresignedDownloadURL(ctx, key, downloadURLTTL)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return s.storage.Upload(ctx, key, f, "video/mp4")
}

// Get 查询渲染任务
func (s *renderService) Get(ctx context.Context, renderID string) (*short.Render, error) {
	render, err := s.find(ctx, renderID)
	if err != nil {
		return nil, err
	}
	if s.storage != nil && render.StorageKey != "" && render.Status == short.RenderStatusCompleted {
		url, err := s.storage.GetPresignedDownloadURL(ctx, render.StorageKey, downloadURLTTL)
		if err != nil {
			log.Warn().Err(err).Str("render_id", renderID).Msg("failed to sign download url")
		} else {
			render.OutputURL = url
		}
	}
	return render, nil
}

// QueueDepth 查询队列长度
func (s *renderService) QueueDepth(ctx context.Context) (int64, error) {
	if s.queue == nil {
		return 0, ErrUnavailable
	}
	n, err := s.queue.QueueLength(ctx, s.queueName)
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	return n, nil
}

func (s *renderService) find(ctx context.Context, renderID string) (*short.Render, error) {
	if s.repo == nil {
		return nil, ErrUnavailable
	}
	render, err := s.repo.FindByID(ctx, renderID)
	if errors.Is(err, renderRepo.ErrNotFound) {
		return nil, ErrRenderNotFound
	}
	if err != nil {
		return nil, err
	}
	return render, nil
}

// RequeueStale 重新入队停滞的任务
func (s *renderService) RequeueStale(ctx context.Context, olderThan time.Duration) (int, error) {
	if s.repo == nil || s.queue == nil {
		return 0, ErrUnavailable
	}
	renders, err := s.repo.FindByStatus(ctx, short.RenderStatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("find processing renders: %w", err)
	}

	deadline := time.Now().Add(-olderThan)
	n := 0
	for _, r := range renders {
		if r.UpdatedAt.After(deadline) {
			continue
		}
		if err := s.repo.UpdateStatus(ctx, r.ID, short.RenderStatusPending, ""); err != nil {
			return n, err
		}
		if err := s.queue.Enqueue(ctx, s.queueName, r.ID); err != nil {
			return n, fmt.Errorf("enqueue render %s: %w", r.ID, err)
		}
		log.Info().Str("render_id", r.ID).Time("updated_at", r.UpdatedAt).Msg("requeued stale render")
		n++
	}
	return n, nil
}

// RenderFile 逐个渲染文件中的内容单元
// 单个单元失败不影响其他单元，失败记录在 Failures 中
func (s *renderService) RenderFile(ctx context.Context, req *RenderFileRequest) (*RenderFileResult, error) {
	units, err := short.DecodeUnits(req.Kind, req.Input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUnit, err)
	}

	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}

	out := &RenderFileResult{Failures: make(map[int]error)}
	for i, unit := range units {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		folder := fmt.Sprintf("%s_%s_%d", req.Kind, now.Format("20060102_1504"), i)
		outputPath := filepath.Join(req.OutputDir, folder, outputName(req.Kind))

		result, err := s.pipeline.Run(ctx, unit, outputPath)
		if err != nil {
			log.Error().Err(err).Int("index", i).Str("title", unit.Title()).Msg("failed to render unit")
			out.Failures[i] = err
			continue
		}
		out.Results = append(out.Results, result)
	}
	return out, nil
}

func outputName(kind short.Kind) string {
	return "finalized_" + kind.String() + ".mp4"
}
