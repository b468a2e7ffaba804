package short

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"reelcast/internal/model/short"
	"reelcast/internal/pkg/ffmpeg"
	"reelcast/internal/pkg/id"
	"reelcast/internal/pkg/shorttools"
)

const (
	narrationSampleRate = 44100
	captionsFileName    = "captions.ass"
)

// Composition 一次合成的完整描述
// 由 BuildComposition 一次性生成，Render 只负责执行
type Composition struct {
	Inputs       []string              // 输入文件，第一个为背景视频
	Events       []shorttools.ASSEvent // 字幕事件（全局时间）
	Captions     string                // ASS 字幕内容
	CaptionsPath string                // 字幕文件路径（位于渲染临时目录）
	FilterGraph  string
	Args         []string // 完整的 ffmpeg 参数
	PartialPath  string   // 编码输出的临时文件，成功后改名为 OutputPath
	OutputPath   string
	Total        time.Duration
}

// PartialPath 编码中间文件路径，与输出文件同目录以便原子改名
// 以点号开头，不会被当作成品
func PartialPath(outputPath, unitID string) string {
	dir, name := filepath.Split(outputPath)
	tag := strings.ReplaceAll(unitID, "-", "")
	if len(tag) > 12 {
		tag = tag[:12]
	}
	if tag == "" {
		tag = id.Short()
	}
	return filepath.Join(dir, "."+strings.TrimSuffix(name, filepath.Ext(name))+"."+tag+".partial"+filepath.Ext(name))
}

// BuildComposition 把渲染描述转换为字幕文档、滤镜图和 ffmpeg 参数
func BuildComposition(spec *short.RenderSpec) (*Composition, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	st := spec.Settings
	total := spec.Total()
	timelineEnd := short.TimelineDuration(spec.Timeline)

	events := captionEvents(spec.Timeline)
	if st.Outro.Duration > 0 && strings.TrimSpace(st.Outro.Text) != "" {
		events = append(events, shorttools.ASSEvent{
			Start: timelineEnd,
			End:   total,
			Style: shorttools.StyleOutro,
			Text:  strings.Join(shorttools.WrapText(st.Outro.Text, 12), "\n"),
		})
	}

	gen := shorttools.NewASSGenerator(shorttools.ASSStyle{
		Width:         st.Width,
		Height:        st.Height,
		FontName:      st.FontName,
		FontSize:      st.FontSize,
		TitleFontSize: st.TitleSize,
		OutroFontSize: st.Outro.FontSize,
	})

	comp := &Composition{
		Events:       events,
		Captions:     gen.GenerateASSContent(events, spec.Title),
		CaptionsPath: filepath.Join(spec.WorkDir, captionsFileName),
		PartialPath:  PartialPath(spec.OutputPath, spec.UnitID),
		OutputPath:   spec.OutputPath,
		Total:        total,
	}

	bg := spec.Background
	comp.Inputs = append(comp.Inputs, bg.SourcePath)
	var args []string
	if bg.Loops > 1 {
		// 循环时每一轮从头播放，由 -t 和 trim 截断到目标时长
		args = append(args, "-stream_loop", strconv.Itoa(bg.Loops-1), "-i", bg.SourcePath)
	} else {
		args = append(args, "-ss", ffmpeg.Seconds(bg.ClipStart), "-t", ffmpeg.Seconds(bg.ClipDuration), "-i", bg.SourcePath)
	}
	for _, e := range spec.Timeline {
		comp.Inputs = append(comp.Inputs, e.Clip.AudioPath)
		args = append(args, "-i", e.Clip.AudioPath)
	}

	comp.FilterGraph = filterGraph(spec, comp.CaptionsPath, total)

	args = append(args,
		"-filter_complex", comp.FilterGraph,
		"-map", "[v]",
		"-map", "[a]",
		"-c:v", st.VideoCodec,
		"-preset", st.Preset,
		"-crf", strconv.Itoa(st.CRF),
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(st.FPS),
		"-c:a", st.AudioCodec,
		"-b:a", "192k",
		"-t", ffmpeg.Seconds(total),
		"-movflags", "+faststart",
		"-y", comp.PartialPath,
	)
	comp.Args = args

	return comp, nil
}

func captionEvents(timeline []short.TimelineEntry) []shorttools.ASSEvent {
	var events []shorttools.ASSEvent
	for _, e := range timeline {
		style := shorttools.StyleCaption
		if e.Role == short.RoleTitle {
			style = shorttools.StyleTitle
		}
		for _, c := range e.Captions {
			events = append(events, shorttools.ASSEvent{
				Start: c.Start,
				End:   c.End,
				Style: style,
				Text:  c.Text,
			})
		}
	}
	return events
}

// filterGraph 视频：截取、铺满裁剪到竖屏、叠加字幕；音频：每段补齐到段落窗口后按顺序拼接
func filterGraph(spec *short.RenderSpec, captionsPath string, total time.Duration) string {
	st := spec.Settings
	var parts []string

	parts = append(parts, fmt.Sprintf("[0:v]trim=duration=%s,setpts=PTS-STARTPTS,%s,fps=%d,ass=filename=%s[v]",
		ffmpeg.Seconds(total), ffmpeg.CoverCropFilter(st.Width, st.Height), st.FPS, ffmpeg.QuoteFilterPath(captionsPath)))

	var labels strings.Builder
	for i, e := range spec.Timeline {
		label := fmt.Sprintf("[a%d]", i)
		parts = append(parts, fmt.Sprintf("[%d:a]aresample=%d,aformat=channel_layouts=stereo,apad,atrim=end=%s,asetpts=N/SR/TB%s",
			i+1, narrationSampleRate, ffmpeg.Seconds(e.Window()), label))
		labels.WriteString(label)
	}
	parts = append(parts, fmt.Sprintf("%sconcat=n=%d:v=0:a=1,apad,atrim=end=%s[a]",
		labels.String(), len(spec.Timeline), ffmpeg.Seconds(total)))

	return strings.Join(parts, ";")
}

// Composer 合成引擎
// 唯一持有输出路径写锁的组件；编码结果先写入临时文件，成功后才改名为目标文件
type Composer struct {
	runner MediaRunner
	locker OutputLocker
}

// NewComposer 创建合成引擎
func NewComposer(runner MediaRunner, locker OutputLocker) *Composer {
	if locker == nil {
		locker = FileLocker{}
	}
	return &Composer{runner: runner, locker: locker}
}

// Render 执行一次合成
// 失败时目标路径上不会留下任何文件，返回的错误均为 *RenderError
func (c *Composer) Render(ctx context.Context, spec *short.RenderSpec) error {
	comp, err := BuildComposition(spec)
	if err != nil {
		return &RenderError{Stage: "validate", OutputPath: spec.OutputPath, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(comp.OutputPath), 0o755); err != nil {
		return &RenderError{Stage: "prepare", OutputPath: comp.OutputPath, Err: err}
	}

	unlock, err := c.locker.Lock(ctx, comp.OutputPath)
	if err != nil {
		return &RenderError{Stage: "lock", OutputPath: comp.OutputPath, Err: err}
	}
	defer unlock()

	if err := os.WriteFile(comp.CaptionsPath, []byte(comp.Captions), 0o644); err != nil {
		return &RenderError{Stage: "captions", OutputPath: comp.OutputPath, Err: err}
	}

	start := time.Now()
	log.Info().
		Str("unit_id", spec.UnitID).
		Str("output", comp.OutputPath).
		Str("background", spec.Background.SourcePath).
		Int("segments", len(spec.Timeline)).
		Dur("total", comp.Total).
		Msg("encoding video")

	if err := c.runner.Run(ctx, comp.Args...); err != nil {
		removePartial(comp.PartialPath)
		return &RenderError{Stage: "encode", OutputPath: comp.OutputPath, Err: err}
	}

	if err := os.Rename(comp.PartialPath, comp.OutputPath); err != nil {
		removePartial(comp.PartialPath)
		return &RenderError{Stage: "finalize", OutputPath: comp.OutputPath, Err: err}
	}

	log.Info().
		Str("unit_id", spec.UnitID).
		Str("output", comp.OutputPath).
		Dur("elapsed", time.Since(start)).
		Msg("video written")
	return nil
}

func removePartial(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("path", path).Msg("failed to remove partial output")
	}
}
