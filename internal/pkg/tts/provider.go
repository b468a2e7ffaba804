package tts

import (
	"context"
	"fmt"
	"strings"

	"reelcast/internal/config"
)

// Provider 文本转语音服务
// Synthesize 把一段文本合成为音频文件并写入 outPath
type Provider interface {
	Name() string
	Ext() string // 输出音频文件扩展名，含点号
	Synthesize(ctx context.Context, text, outPath string) error
}

// NewProvider 根据配置创建 TTS 提供方
func NewProvider(cfg config.TTSConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "volc":
		return NewVolcProvider(cfg.Volc)
	case "command":
		return NewCommandProvider(cfg.Command)
	default:
		return nil, fmt.Errorf("unsupported tts provider: %s", cfg.Provider)
	}
}
