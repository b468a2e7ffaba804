package short

import (
	"fmt"

	"reelcast/internal/config"
	"reelcast/internal/pkg/cache"
	"reelcast/internal/pkg/ffmpeg"
	"reelcast/internal/pkg/shorttools"
	"reelcast/internal/pkg/tts"
)

// Build 按配置组装流水线
// redis 为空时使用本地锁文件和 .last_used 记录，适用于单机命令行渲染
func Build(cfg *config.Config, redis *cache.RedisCache) (*Pipeline, error) {
	provider, err := tts.NewProvider(cfg.TTS)
	if err != nil {
		return nil, fmt.Errorf("init tts provider: %w", err)
	}

	ff := ffmpeg.NewClient(cfg.FFmpeg.FFmpegPath, cfg.FFmpeg.FFprobePath)

	var (
		history History      = FileHistory{}
		locker  OutputLocker = FileLocker{}
	)
	if redis != nil {
		history = NewRedisHistory(redis)
		locker = NewRedisLocker(redis, cfg.Render.LockTTL)
	}

	synth := NewSynthesizer(provider, ff, ff, cfg.Render.MaxSegmentChars, cfg.TTS.Tempo)
	segmenter := shorttools.NewCaptionSegmenter(cfg.Render.MaxCaptionChars)
	selector := NewSelector(ff, history, cfg.Background.AvoidRepeat)
	composer := NewComposer(ff, locker)

	return NewPipeline(NewPipelineConfig(cfg), synth, segmenter, selector, composer), nil
}
