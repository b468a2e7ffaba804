package short

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"reelcast/internal/config"
	"reelcast/internal/model/short"
	"reelcast/internal/pkg/shorttools"
)

// Renderer 执行最终合成
type Renderer interface {
	Render(ctx context.Context, spec *short.RenderSpec) error
}

// PipelineConfig 单个流水线实例的配置
// 每个实例持有自己的随机种子和临时目录根，多个实例可以并发渲染
type PipelineConfig struct {
	BackgroundDir  string
	Extensions     []string
	Seed           uint64 // 0 表示每次渲染使用不同的随机序列
	TempDir        string // 为空时使用系统临时目录
	Concurrency    int
	Pause          time.Duration
	TitlePause     time.Duration
	MaxVideoLength time.Duration
	BodyChunkChars int
	Settings       short.RenderSettings
}

// NewPipelineConfig 从全局配置构建流水线配置
func NewPipelineConfig(cfg *config.Config) PipelineConfig {
	r := cfg.Render
	pc := PipelineConfig{
		BackgroundDir:  cfg.Background.Dir,
		Extensions:     cfg.Background.Extensions,
		Seed:           r.Seed,
		TempDir:        r.TempDir,
		Concurrency:    r.Concurrency,
		Pause:          r.Pause,
		TitlePause:     r.TitlePause,
		MaxVideoLength: r.MaxVideoLength,
		BodyChunkChars: r.BodyChunkChars,
		Settings: short.RenderSettings{
			Width:      r.Width,
			Height:     r.Height,
			FPS:        r.FPS,
			VideoCodec: r.VideoCodec,
			AudioCodec: r.AudioCodec,
			CRF:        r.CRF,
			Preset:     r.Preset,
			FontName:   r.FontName,
			FontSize:   r.FontSize,
			TitleSize:  r.TitleFontSize,
		},
	}
	if r.Outro.Enabled {
		pc.Settings.Outro = short.Outro{
			Text:     r.Outro.Text,
			Duration: r.Outro.Duration,
			FontSize: r.Outro.FontSize,
		}
	}
	return pc
}

// Result 一次渲染的结果
type Result struct {
	UnitID     string                 `json:"unit_id"`
	OutputPath string                 `json:"output_path"`
	Duration   time.Duration          `json:"duration"`
	Timeline   []short.TimelineEntry  `json:"timeline"`
	Background short.BackgroundClip   `json:"background"`
	Skipped    []short.SkippedSegment `json:"skipped,omitempty"`
}

// Pipeline 流水线编排器
// 按顺序驱动合成、字幕切分、背景选择，最后调用一次合成引擎
type Pipeline struct {
	cfg       PipelineConfig
	synth     *Synthesizer
	segmenter *shorttools.CaptionSegmenter
	selector  *Selector
	renderer  Renderer
}

// NewPipeline 创建流水线
func NewPipeline(cfg PipelineConfig, synth *Synthesizer, segmenter *shorttools.CaptionSegmenter, selector *Selector, renderer Renderer) *Pipeline {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Pipeline{
		cfg:       cfg,
		synth:     synth,
		segmenter: segmenter,
		selector:  selector,
		renderer:  renderer,
	}
}

// Run 渲染一个内容单元到 outputPath
// 标题合成失败、没有可用背景或合成失败时返回错误，目标路径上不会留下文件；
// 其他段落合成失败只会被跳过并记录在 Result.Skipped 中
func (p *Pipeline) Run(ctx context.Context, unit short.Unit, outputPath string) (*Result, error) {
	segs := unit.Segments(short.SegmentOptions{BodyChunkChars: p.cfg.BodyChunkChars})
	if err := short.ValidateSegments(segs); err != nil {
		return nil, err
	}

	logger := log.With().Str("unit_id", unit.ID()).Str("kind", unit.Kind().String()).Logger()

	sources, err := ListSources(p.cfg.BackgroundDir, p.cfg.Extensions)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSourceAvailable, err)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSourceAvailable, p.cfg.BackgroundDir)
	}

	workDir, err := os.MkdirTemp(p.cfg.TempDir, "reelcast-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Warn().Err(err).Str("dir", workDir).Msg("failed to remove work dir")
		}
	}()

	// 1. 并发合成所有段落
	clips, failures, err := p.synthesizeAll(ctx, segs, workDir)
	if err != nil {
		return nil, err
	}

	// 2. 切分字幕，合成失败的段落被跳过
	var skipped []short.SkippedSegment
	items := make([]Narrated, 0, len(segs))
	for i, seg := range segs {
		if failures[i] != nil {
			logger.Warn().Err(failures[i]).Str("segment_id", seg.ID).Msg("skipping segment")
			skipped = append(skipped, short.SkippedSegment{SegmentID: seg.ID, Role: seg.Role, Reason: failures[i].Error()})
			continue
		}
		captions, err := SegmentCaptions(p.segmenter, seg.ID, CaptionText(seg), clips[i].Duration)
		if err != nil {
			if seg.Role.Primary() {
				return nil, fmt.Errorf("caption segment %s: %w", seg.ID, err)
			}
			logger.Warn().Err(err).Str("segment_id", seg.ID).Msg("skipping segment without captions")
			skipped = append(skipped, short.SkippedSegment{SegmentID: seg.ID, Role: seg.Role, Reason: err.Error()})
			continue
		}
		items = append(items, Narrated{Segment: seg, Clip: *clips[i], Captions: captions})
	}

	// 3. 排列时间轴，超出最大时长的尾部段落被丢弃
	// 段落优先，片尾只占用剩余的时长
	timeline := BuildTimeline(items, p.cfg.Pause, p.cfg.TitlePause)
	settings := p.cfg.Settings
	if p.cfg.MaxVideoLength > 0 {
		var dropped []string
		timeline, dropped = TrimToMaxDuration(timeline, p.cfg.MaxVideoLength)
		for _, segID := range dropped {
			skipped = append(skipped, short.SkippedSegment{SegmentID: segID, Role: roleOf(segs, segID), Reason: "exceeds max video length"})
		}
		remaining := max(p.cfg.MaxVideoLength-short.TimelineDuration(timeline), 0)
		settings.Outro.Duration = min(settings.Outro.Duration, remaining)
	}
	if err := short.ValidateTimeline(timeline); err != nil {
		return nil, fmt.Errorf("build timeline: %w", err)
	}

	// 4. 选择背景，时长覆盖时间轴和片尾
	total := short.TimelineDuration(timeline) + settings.Outro.Duration
	bg, err := p.selector.Select(ctx, p.newRand(), sources, total)
	if err != nil {
		return nil, err
	}

	// 5. 合成
	spec := &short.RenderSpec{
		UnitID:     unit.ID(),
		Title:      unit.Title(),
		Timeline:   timeline,
		Background: *bg,
		OutputPath: outputPath,
		WorkDir:    workDir,
		Settings:   settings,
	}
	if err := p.renderer.Render(ctx, spec); err != nil {
		return nil, err
	}
	p.selector.Remember(ctx, bg.SourcePath)

	logger.Info().
		Str("output", outputPath).
		Dur("duration", total).
		Int("segments", len(timeline)).
		Int("skipped", len(skipped)).
		Msg("unit rendered")

	return &Result{
		UnitID:     unit.ID(),
		OutputPath: outputPath,
		Duration:   total,
		Timeline:   timeline,
		Background: *bg,
		Skipped:    skipped,
	}, nil
}

// synthesizeAll 并发合成，结果按段落顺序返回
// 主段落失败时立即返回错误并取消其余合成；其他段落的失败记录在 failures 中
func (p *Pipeline) synthesizeAll(ctx context.Context, segs []short.TextSegment, dir string) ([]*short.NarrationClip, []error, error) {
	clips := make([]*short.NarrationClip, len(segs))
	failures := make([]error, len(segs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i, seg := range segs {
		g.Go(func() error {
			clip, err := p.synth.Synthesize(gctx, seg, dir)
			if err != nil {
				if seg.Role.Primary() {
					return err
				}
				failures[i] = err
				return nil
			}
			clips[i] = clip
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return clips, failures, nil
}

func (p *Pipeline) newRand() *rand.Rand {
	if p.cfg.Seed == 0 {
		return rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(p.cfg.Seed, p.cfg.Seed))
}

func roleOf(segs []short.TextSegment, segID string) short.Role {
	for _, s := range segs {
		if s.ID == segID {
			return s.Role
		}
	}
	return ""
}

