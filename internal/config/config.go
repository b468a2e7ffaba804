package config

import (
	"errors"
	"fmt"
	"time"
)

// Config 应用配置根结构
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Mongo      MongoConfig      `mapstructure:"mongo"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Storage    StorageConfig    `mapstructure:"storage"`
	TTS        TTSConfig        `mapstructure:"tts"`
	Render     RenderConfig     `mapstructure:"render"`
	Background BackgroundConfig `mapstructure:"background"`
	FFmpeg     FFmpegConfig     `mapstructure:"ffmpeg"`
	Worker     WorkerConfig     `mapstructure:"worker"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LogConfig 日志配置 (Zerolog)
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	TimeFormat string `mapstructure:"time_format"`
}

// MongoConfig MongoDB 配置
type MongoConfig struct {
	URI         string `mapstructure:"uri"`
	Database    string `mapstructure:"database"`
	MaxPoolSize uint64 `mapstructure:"max_pool_size"`
	MinPoolSize uint64 `mapstructure:"min_pool_size"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StorageConfig 成品视频发布存储配置（为空表示只保留本地输出文件）
type StorageConfig struct {
	Type  string       `mapstructure:"type"` // "", local, oss
	Local *LocalConfig `mapstructure:"local,omitempty"`
	OSS   *OSSConfig   `mapstructure:"oss,omitempty"`
}

// LocalConfig 本地文件系统配置
type LocalConfig struct {
	BasePath string `mapstructure:"base_path"` // 基础路径
	BaseURL  string `mapstructure:"base_url"`  // 基础URL（用于生成访问URL）
}

// OSSConfig 阿里云OSS配置
type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`          // OSS端点
	Bucket          string `mapstructure:"bucket"`            // Bucket名称
	AccessKeyID     string `mapstructure:"access_key_id"`     // AccessKey ID
	AccessKeySecret string `mapstructure:"access_key_secret"` // AccessKey Secret
	PresignExpiry   int    `mapstructure:"presign_expiry"`    // 预签名URL过期时间（秒）
}

// TTSConfig 语音合成配置
type TTSConfig struct {
	Provider string           `mapstructure:"provider"` // volc, command
	Tempo    float64          `mapstructure:"tempo"`    // 合成后的变速倍率（1 表示不变速）
	Volc     VolcTTSConfig    `mapstructure:"volc"`
	Command  CommandTTSConfig `mapstructure:"command"`
}

// VolcTTSConfig 火山引擎 openspeech TTS 配置
type VolcTTSConfig struct {
	APIURL      string        `mapstructure:"api_url"`
	AccessToken string        `mapstructure:"access_token"`
	AppID       string        `mapstructure:"app_id"`
	Cluster     string        `mapstructure:"cluster"`
	VoiceType   string        `mapstructure:"voice_type"`
	Language    string        `mapstructure:"language"`
	SampleRate  int           `mapstructure:"sample_rate"`
	SpeedRatio  float64       `mapstructure:"speed_ratio"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// CommandTTSConfig 本地命令行 TTS 配置
// Args 中的 {text} 和 {output} 会被替换为待朗读文本和输出文件路径
type CommandTTSConfig struct {
	Path string   `mapstructure:"path"`
	Args []string `mapstructure:"args"`
	Ext  string   `mapstructure:"ext"`
}

// RenderConfig 视频合成配置
type RenderConfig struct {
	Width           int           `mapstructure:"width"`
	Height          int           `mapstructure:"height"`
	FPS             int           `mapstructure:"fps"`
	AspectRatio     string        `mapstructure:"aspect_ratio"`      // 例如 9:16
	MaxCaptionChars int           `mapstructure:"max_caption_chars"` // 每条字幕最大字符数
	MaxSegmentChars int           `mapstructure:"max_segment_chars"` // 单段朗读文本最大字符数，超出则拒绝
	BodyChunkChars  int           `mapstructure:"body_chunk_chars"`  // advice 正文切分长度
	Pause           time.Duration `mapstructure:"pause"`             // 段落之间的停顿
	TitlePause      time.Duration `mapstructure:"title_pause"`       // 标题读完后的停顿
	MaxVideoLength  time.Duration `mapstructure:"max_video_length"`  // 0 表示不限制
	Seed            uint64        `mapstructure:"seed"`              // 0 表示每次渲染随机
	TempDir         string        `mapstructure:"temp_dir"`
	OutputDir       string        `mapstructure:"output_dir"`
	Concurrency     int           `mapstructure:"concurrency"` // 单次渲染内的并发合成数
	FontName        string        `mapstructure:"font_name"`
	FontSize        int           `mapstructure:"font_size"`
	TitleFontSize   int           `mapstructure:"title_font_size"`
	VideoCodec      string        `mapstructure:"video_codec"`
	AudioCodec      string        `mapstructure:"audio_codec"`
	CRF             int           `mapstructure:"crf"`
	Preset          string        `mapstructure:"preset"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
	Outro           OutroConfig   `mapstructure:"outro"`
}

// OutroConfig 片尾引导语配置
type OutroConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Text     string        `mapstructure:"text"`
	Duration time.Duration `mapstructure:"duration"`
	FontSize int           `mapstructure:"font_size"`
}

// BackgroundConfig 背景视频素材配置
type BackgroundConfig struct {
	Dir         string   `mapstructure:"dir"`
	Extensions  []string `mapstructure:"extensions"`
	AvoidRepeat bool     `mapstructure:"avoid_repeat"` // 避免连续两次使用同一个素材
}

// FFmpegConfig FFmpeg 可执行文件配置
type FFmpegConfig struct {
	FFmpegPath  string `mapstructure:"ffmpeg_path"`
	FFprobePath string `mapstructure:"ffprobe_path"`
}

// WorkerConfig 渲染队列消费者配置
type WorkerConfig struct {
	Queue       string        `mapstructure:"queue"`
	Concurrency int           `mapstructure:"concurrency"` // 同时渲染的内容单元数
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
	StaleAfter  time.Duration `mapstructure:"stale_after"` // 处理中超过该时长的任务在启动时重新入队
}

// Validate 验证配置有效性
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("invalid server port")
	}

	validModes := map[string]bool{"debug": true, "release": true, "test": true}
	if !validModes[c.Server.Mode] {
		return errors.New("invalid server mode, must be debug/release/test")
	}

	return c.Render.Validate()
}

// Validate 验证渲染配置
func (r *RenderConfig) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("invalid output resolution %dx%d", r.Width, r.Height)
	}
	if r.Width%2 != 0 || r.Height%2 != 0 {
		return fmt.Errorf("output resolution %dx%d must be even", r.Width, r.Height)
	}
	if r.FPS <= 0 {
		return errors.New("fps must be positive")
	}
	if r.MaxCaptionChars <= 0 {
		return errors.New("max_caption_chars must be positive")
	}
	if r.Pause < 0 || r.TitlePause < 0 || r.MaxVideoLength < 0 {
		return errors.New("pause, title_pause and max_video_length must not be negative")
	}
	if r.AspectRatio != "" {
		w, h, err := ParseAspectRatio(r.AspectRatio)
		if err != nil {
			return err
		}
		// 允许 1 像素的取整误差
		if diff := r.Width*h - r.Height*w; diff > h || diff < -h {
			return fmt.Errorf("resolution %dx%d does not match aspect ratio %s", r.Width, r.Height, r.AspectRatio)
		}
	}
	if r.Outro.Enabled && r.Outro.Duration <= 0 {
		return errors.New("outro duration must be positive when outro is enabled")
	}
	return nil
}

// ParseAspectRatio 解析 "9:16" 形式的宽高比
func ParseAspectRatio(s string) (int, int, error) {
	var w, h int
	if _, err := fmt.Sscanf(s, "%d:%d", &w, &h); err != nil || w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("invalid aspect ratio %q", s)
	}
	return w, h, nil
}
