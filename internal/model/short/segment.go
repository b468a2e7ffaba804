package short

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role 段落角色
type Role string

const (
	RoleTitle   Role = "title"   // 标题（主段落，合成失败时整条视频失败）
	RoleBody    Role = "body"    // advice 正文片段
	RoleComment Role = "comment" // qna 评论
)

// String 返回角色的字符串表示
func (r Role) String() string {
	return string(r)
}

// Primary 是否为主段落
func (r Role) Primary() bool {
	return r == RoleTitle
}

// TextSegment 一段待朗读的文本
type TextSegment struct {
	ID    string `json:"id" bson:"id"`
	Role  Role   `json:"role" bson:"role"`
	Text  string `json:"text" bson:"text"`
	Order int    `json:"order" bson:"order"`           // 朗读顺序，从 0 开始连续递增
	Score int    `json:"score,omitempty" bson:"score"` // qna 评论得分
}

// ErrInvalidSegments 段落序列不满足顺序约束
var ErrInvalidSegments = errors.New("invalid segment sequence")

// ValidateSegments 校验段落序列：非空、第一段为标题、Order 从 0 开始严格连续
func ValidateSegments(segs []TextSegment) error {
	if len(segs) == 0 {
		return fmt.Errorf("%w: no segments", ErrInvalidSegments)
	}
	if segs[0].Role != RoleTitle {
		return fmt.Errorf("%w: first segment must be the title, got %s", ErrInvalidSegments, segs[0].Role)
	}
	seen := make(map[string]struct{}, len(segs))
	for i, seg := range segs {
		if seg.Order != i {
			return fmt.Errorf("%w: segment %s has order %d, want %d", ErrInvalidSegments, seg.ID, seg.Order, i)
		}
		if i > 0 && seg.Role == RoleTitle {
			return fmt.Errorf("%w: segment %s is a second title", ErrInvalidSegments, seg.ID)
		}
		if seg.ID == "" {
			return fmt.Errorf("%w: segment %d has no id", ErrInvalidSegments, i)
		}
		if _, dup := seen[seg.ID]; dup {
			return fmt.Errorf("%w: duplicate segment id %s", ErrInvalidSegments, seg.ID)
		}
		seen[seg.ID] = struct{}{}
	}
	return nil
}

// NarrationClip 一段文本的朗读音频
// 音频文件位于渲染的临时目录中，随临时目录一起释放
type NarrationClip struct {
	SegmentID string        `json:"segment_id"`
	AudioPath string        `json:"audio_path"`
	Duration  time.Duration `json:"duration"` // 从实际音频文件测得
}

// CaptionChunk 一块字幕及其在段落内的时间窗口
type CaptionChunk struct {
	SegmentID string        `json:"segment_id"`
	Text      string        `json:"text"`
	Start     time.Duration `json:"start"`
	End       time.Duration `json:"end"`
}

// TimelineEntry 一个段落在全局时间轴上的位置
// Captions 已平移到全局时间
type TimelineEntry struct {
	SegmentID   string         `json:"segment_id"`
	Role        Role           `json:"role"`
	Clip        NarrationClip  `json:"clip"`
	GlobalStart time.Duration  `json:"global_start"`
	GlobalEnd   time.Duration  `json:"global_end"` // 含段后停顿
	Captions    []CaptionChunk `json:"captions"`
}

// Window 段落在时间轴上占用的时长
func (e TimelineEntry) Window() time.Duration {
	return e.GlobalEnd - e.GlobalStart
}

// TimelineDuration 时间轴总时长
func TimelineDuration(entries []TimelineEntry) time.Duration {
	if len(entries) == 0 {
		return 0
	}
	return entries[len(entries)-1].GlobalEnd
}

// ValidateTimeline 校验时间轴首尾相接、严格递增，字幕不越界且不重叠
func ValidateTimeline(entries []TimelineEntry) error {
	if len(entries) == 0 {
		return errors.New("timeline is empty")
	}
	if entries[0].GlobalStart != 0 {
		return fmt.Errorf("timeline starts at %s, want 0", entries[0].GlobalStart)
	}
	for i, e := range entries {
		if e.GlobalEnd <= e.GlobalStart {
			return fmt.Errorf("segment %s has empty window", e.SegmentID)
		}
		if i > 0 && entries[i-1].GlobalEnd != e.GlobalStart {
			return fmt.Errorf("gap or overlap between %s and %s", entries[i-1].SegmentID, e.SegmentID)
		}
		prev := e.GlobalStart
		for _, c := range e.Captions {
			if c.Start < prev || c.End < c.Start || c.End > e.GlobalEnd {
				return fmt.Errorf("caption %q of %s is out of order", c.Text, e.SegmentID)
			}
			prev = c.End
		}
	}
	return nil
}

// Span 背景素材中被使用的一段
type Span struct {
	Start    time.Duration `json:"start"`
	Duration time.Duration `json:"duration"`
}

// BackgroundClip 选中的背景视频片段
type BackgroundClip struct {
	SourcePath     string        `json:"source_path"`
	SourceDuration time.Duration `json:"source_duration"`
	ClipStart      time.Duration `json:"clip_start"`
	ClipDuration   time.Duration `json:"clip_duration"`
	Loops          int           `json:"loops"` // 素材被播放的次数，1 表示不循环
}

// Spans 拼接出 ClipDuration 所使用的素材片段
// 循环时每一轮都从素材开头播放，最后一轮截断，各段时长之和严格等于 ClipDuration
func (b BackgroundClip) Spans() []Span {
	if b.Loops <= 1 || b.SourceDuration <= 0 {
		return []Span{{Start: b.ClipStart, Duration: b.ClipDuration}}
	}
	spans := make([]Span, 0, b.Loops)
	for remaining := b.ClipDuration; remaining > 0; {
		d := min(b.SourceDuration, remaining)
		spans = append(spans, Span{Start: 0, Duration: d})
		remaining -= d
	}
	return spans
}

// RenderSettings 单次渲染使用的输出参数
type RenderSettings struct {
	Width      int
	Height     int
	FPS        int
	VideoCodec string
	AudioCodec string
	CRF        int
	Preset     string
	FontName   string
	FontSize   int
	TitleSize  int
	Outro      Outro
}

// Outro 片尾引导语
type Outro struct {
	Text     string
	Duration time.Duration
	FontSize int
}

// RenderSpec 一次渲染的完整描述
// 由编排器在所有段落处理完成后创建，交给合成引擎使用一次
type RenderSpec struct {
	UnitID     string
	Title      string
	Timeline   []TimelineEntry
	Background BackgroundClip
	OutputPath string
	WorkDir    string // 本次渲染的临时目录
	Settings   RenderSettings
}

// Total 输出视频总时长（时间轴 + 片尾）
func (s *RenderSpec) Total() time.Duration {
	return TimelineDuration(s.Timeline) + s.Settings.Outro.Duration
}

// Validate 校验渲染描述的完整性
func (s *RenderSpec) Validate() error {
	if strings.TrimSpace(s.OutputPath) == "" {
		return errors.New("output path is required")
	}
	if err := ValidateTimeline(s.Timeline); err != nil {
		return err
	}
	if s.Background.ClipDuration != s.Total() {
		return fmt.Errorf("background clip lasts %s, timeline needs %s", s.Background.ClipDuration, s.Total())
	}
	if s.Settings.Width <= 0 || s.Settings.Height <= 0 || s.Settings.FPS <= 0 {
		return errors.New("render settings are incomplete")
	}
	return nil
}
