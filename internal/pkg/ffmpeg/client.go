package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Client FFmpeg 客户端
// 用于封装 FFmpeg / FFprobe 命令调用
type Client struct {
	ffmpegPath  string // FFmpeg 可执行文件路径（默认: ffmpeg）
	ffprobePath string // FFprobe 可执行文件路径（默认: ffprobe）
}

// NewClient 创建 FFmpeg 客户端
// 参数为空时依次读取环境变量 FFMPEG_PATH / FFPROBE_PATH，最后使用 PATH 中的命令
func NewClient(ffmpegPath, ffprobePath string) *Client {
	if ffmpegPath == "" {
		ffmpegPath = os.Getenv("FFMPEG_PATH")
	}
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}

	if ffprobePath == "" {
		ffprobePath = os.Getenv("FFPROBE_PATH")
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}

	return &Client{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}
}

// MediaInfo 媒体信息
type MediaInfo struct {
	Width    int           // 宽度（无视频流时为 0）
	Height   int           // 高度
	FPS      float64       // 帧率
	Duration time.Duration // 时长
	HasAudio bool
	HasVideo bool
}

type probeOutput struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
		Duration   string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe 获取媒体信息
// ffprobe -v error -show_entries stream=codec_type,width,height,r_frame_rate,duration -show_entries format=duration -of json input
func (c *Client) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	cmd := exec.CommandContext(ctx, c.ffprobePath,
		"-v", "error",
		"-show_entries", "stream=codec_type,width,height,r_frame_rate,duration",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s failed: %w: %s", path, err, lastLines(stderr.String(), 3))
	}

	return parseProbeOutput(output)
}

func parseProbeOutput(output []byte) (*MediaInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(output, &out); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := &MediaInfo{}
	var streamDuration float64
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if info.HasVideo {
				continue
			}
			info.HasVideo = true
			info.Width = s.Width
			info.Height = s.Height
			info.FPS = parseFrameRate(s.RFrameRate)
		case "audio":
			info.HasAudio = true
		default:
			continue
		}
		if d, err := strconv.ParseFloat(s.Duration, 64); err == nil && d > streamDuration {
			streamDuration = d
		}
	}

	seconds, err := strconv.ParseFloat(out.Format.Duration, 64)
	if err != nil || !(seconds > 0) || math.IsInf(seconds, 0) {
		seconds = streamDuration
	}
	if seconds <= 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return nil, errors.New("media has no measurable duration")
	}
	info.Duration = FromSeconds(seconds)

	return info, nil
}

// Duration 获取媒体时长
func (c *Client) Duration(ctx context.Context, path string) (time.Duration, error) {
	info, err := c.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	return info.Duration, nil
}

// Run 执行 ffmpeg 命令，失败时附带 stderr 的最后几行
func (c *Client) Run(ctx context.Context, args ...string) error {
	start := time.Now()
	cmd := exec.CommandContext(ctx, c.ffmpegPath, append([]string{"-hide_banner", "-nostdin"}, args...)...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	log.Debug().Strs("args", args).Msg("running ffmpeg")

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg interrupted: %w", ctx.Err())
		}
		return fmt.Errorf("ffmpeg failed: %w: %s", err, lastLines(stderr.String(), 5))
	}

	log.Debug().Dur("elapsed", time.Since(start)).Msg("ffmpeg finished")
	return nil
}

// ChangeTempo 变速不变调（atempo）
func (c *Client) ChangeTempo(ctx context.Context, inputPath, outputPath string, factor float64) error {
	filter, err := AtempoFilter(factor)
	if err != nil {
		return err
	}
	return c.Run(ctx,
		"-y",
		"-i", inputPath,
		"-filter:a", filter,
		"-vn",
		outputPath,
	)
}

// AtempoFilter 构建 atempo 滤镜链
// 单个 atempo 只接受 [0.5, 2.0]，超出范围时串联多个
func AtempoFilter(factor float64) (string, error) {
	if factor <= 0 || factor == 1 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return "", fmt.Errorf("invalid tempo factor %v", factor)
	}
	var parts []string
	for factor > 2.0 {
		parts = append(parts, "atempo=2.0")
		factor /= 2.0
	}
	for factor < 0.5 {
		parts = append(parts, "atempo=0.5")
		factor /= 0.5
	}
	parts = append(parts, "atempo="+strconv.FormatFloat(factor, 'f', -1, 64))
	return strings.Join(parts, ","), nil
}

// CoverCropFilter 等比放大到覆盖目标画面后居中裁剪
// scale=W:H:force_original_aspect_ratio=increase,crop=W:H:(in_w-W)/2:(in_h-H)/2,setsar=1
func CoverCropFilter(width, height int) string {
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d:(in_w-%d)/2:(in_h-%d)/2,setsar=1",
		width, height, width, height, width, height)
}

// Seconds 把时长格式化为 ffmpeg 接受的秒数（微秒精度）
func Seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 6, 64)
}

// FromSeconds 把 ffprobe 输出的秒数转换为时长（取整到微秒）
func FromSeconds(s float64) time.Duration {
	return time.Duration(math.Round(s*1e6)) * time.Microsecond
}

// QuoteFilterPath 把文件路径作为滤镜参数引用起来
// 路径来自本进程创建的临时目录，只需处理单引号
func QuoteFilterPath(path string) string {
	return "'" + strings.ReplaceAll(path, "'", `'\''`) + "'"
}

func parseFrameRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		f, _ := strconv.ParseFloat(s, 64)
		return f
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
