package short

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"reelcast/internal/model/short"
	"reelcast/internal/pkg/ffmpeg"
	"reelcast/internal/pkg/shorttools"
	"reelcast/internal/pkg/tts"
)

// MediaProber 测量媒体文件时长
type MediaProber interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// MediaRunner 执行 ffmpeg 命令
type MediaRunner interface {
	Run(ctx context.Context, args ...string) error
}

// Synthesizer 朗读合成器
// 把一个段落合成为音频文件，时长以实际产出的文件为准
type Synthesizer struct {
	provider tts.Provider
	prober   MediaProber
	runner   MediaRunner
	maxChars int     // 0 表示不限制
	tempo    float64 // 合成后变速，1 表示不变速
}

// NewSynthesizer 创建朗读合成器
func NewSynthesizer(provider tts.Provider, prober MediaProber, runner MediaRunner, maxChars int, tempo float64) *Synthesizer {
	if tempo <= 0 {
		tempo = 1
	}
	return &Synthesizer{
		provider: provider,
		prober:   prober,
		runner:   runner,
		maxChars: maxChars,
		tempo:    tempo,
	}
}

// CheckLength 检查文本长度，超出上限的段落直接拒绝，不做截断
func (s *Synthesizer) CheckLength(text string) error {
	if s.maxChars <= 0 {
		return nil
	}
	if n := utf8.RuneCountInString(text); n > s.maxChars {
		return fmt.Errorf("%w: %d characters, limit %d", ErrSegmentTooLong, n, s.maxChars)
	}
	return nil
}

// Synthesize 合成一个段落，音频写入 dir
// 返回的错误均为 *SynthesisError
func (s *Synthesizer) Synthesize(ctx context.Context, seg short.TextSegment, dir string) (*short.NarrationClip, error) {
	clip, err := s.synthesize(ctx, seg, dir)
	if err != nil {
		return nil, &SynthesisError{SegmentID: seg.ID, Role: seg.Role, Err: err}
	}
	return clip, nil
}

func (s *Synthesizer) synthesize(ctx context.Context, seg short.TextSegment, dir string) (*short.NarrationClip, error) {
	text := shorttools.SanitizeForSpeech(seg.Text)
	if text == "" {
		return nil, errors.New("text is empty")
	}
	if err := s.CheckLength(text); err != nil {
		return nil, err
	}
	if !shorttools.HasSpeakable(text) {
		return nil, errors.New("text has no speakable characters")
	}

	ext := s.provider.Ext()
	audioPath := filepath.Join(dir, seg.ID+ext)
	rawPath := audioPath
	if s.tempo != 1 {
		rawPath = filepath.Join(dir, seg.ID+".raw"+ext)
	}

	if err := s.provider.Synthesize(ctx, text, rawPath); err != nil {
		return nil, fmt.Errorf("%s: %w", s.provider.Name(), err)
	}

	if s.tempo != 1 {
		filter, err := ffmpeg.AtempoFilter(s.tempo)
		if err != nil {
			return nil, err
		}
		if err := s.runner.Run(ctx, "-y", "-i", rawPath, "-filter:a", filter, "-vn", audioPath); err != nil {
			return nil, fmt.Errorf("change tempo: %w", err)
		}
	}

	duration, err := s.prober.Duration(ctx, audioPath)
	if err != nil {
		return nil, fmt.Errorf("measure duration: %w", err)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("audio %s has zero duration", filepath.Base(audioPath))
	}

	return &short.NarrationClip{
		SegmentID: seg.ID,
		AudioPath: audioPath,
		Duration:  duration,
	}, nil
}

// CaptionText 字幕展示的文本（保留原文，只整理空白）
func CaptionText(seg short.TextSegment) string {
	return strings.TrimSpace(shorttools.NormalizeSpace(seg.Text))
}
