package short

import (
	"errors"
	"fmt"

	"reelcast/internal/model/short"
)

var (
	// ErrSynthesisFailure 段落朗读合成失败
	ErrSynthesisFailure = errors.New("synthesis failure")
	// ErrSegmentTooLong 段落文本超过允许的最大长度
	ErrSegmentTooLong = errors.New("segment text too long")
	// ErrNoSourceAvailable 没有可用的背景视频
	ErrNoSourceAvailable = errors.New("no background source available")
	// ErrUnreadableSource 背景视频无法读取时长
	ErrUnreadableSource = errors.New("unreadable background source")
	// ErrRenderFailure 合成或编码失败
	ErrRenderFailure = errors.New("render failure")
	// ErrOutputLocked 输出路径正被其他渲染占用
	ErrOutputLocked = errors.New("output path is locked")
)

// SynthesisError 段落合成错误，携带段落信息
type SynthesisError struct {
	SegmentID string
	Role      short.Role
	Err       error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesize segment %s (%s): %v", e.SegmentID, e.Role, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// Is 所有合成错误都匹配 ErrSynthesisFailure
func (e *SynthesisError) Is(target error) bool { return target == ErrSynthesisFailure }

// SourceError 背景素材错误
type SourceError struct {
	Path string
	Err  error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("background source %s: %v", e.Path, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Is 匹配 ErrUnreadableSource
func (e *SourceError) Is(target error) bool { return target == ErrUnreadableSource }

// RenderError 合成阶段错误
type RenderError struct {
	Stage      string // lock, captions, encode, finalize
	OutputPath string
	Err        error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s (%s): %v", e.OutputPath, e.Stage, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Is 匹配 ErrRenderFailure
func (e *RenderError) Is(target error) bool { return target == ErrRenderFailure }
