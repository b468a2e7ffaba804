package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"reelcast/internal/config"
)

// CommandProvider 调用本地命令合成语音（espeak-ng、piper 等）
type CommandProvider struct {
	path string
	args []string
	ext  string
}

// NewCommandProvider 创建本地命令 TTS 提供方
// 未配置时使用 espeak-ng 输出 wav
func NewCommandProvider(cfg config.CommandTTSConfig) (*CommandProvider, error) {
	p := &CommandProvider{path: cfg.Path, args: cfg.Args, ext: cfg.Ext}
	if p.path == "" {
		p.path = "espeak-ng"
		if len(p.args) == 0 {
			p.args = []string{"-w", "{output}", "--", "{text}"}
		}
	}
	if p.ext == "" {
		p.ext = ".wav"
	}
	if !strings.HasPrefix(p.ext, ".") {
		p.ext = "." + p.ext
	}
	if !hasPlaceholder(p.args, "{output}") {
		return nil, errors.New("tts command args must contain {output}")
	}
	return p, nil
}

// Name 提供方名称
func (p *CommandProvider) Name() string { return "command" }

// Ext 输出文件扩展名
func (p *CommandProvider) Ext() string { return p.ext }

// Synthesize 执行命令，文本通过 {text} 占位符或标准输入传入
func (p *CommandProvider) Synthesize(ctx context.Context, text, outPath string) error {
	cmd := exec.CommandContext(ctx, p.path, p.expandArgs(text, outPath)...)
	if !hasPlaceholder(p.args, "{text}") {
		cmd.Stdin = strings.NewReader(text)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w: %s", p.path, err, strings.TrimSpace(stderr.String()))
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return fmt.Errorf("%s produced no output: %w", p.path, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%s produced an empty file", p.path)
	}
	return nil
}

func (p *CommandProvider) expandArgs(text, outPath string) []string {
	r := strings.NewReplacer("{text}", text, "{output}", outPath)
	args := make([]string, len(p.args))
	for i, a := range p.args {
		args[i] = r.Replace(a)
	}
	return args
}

func hasPlaceholder(args []string, placeholder string) bool {
	for _, a := range args {
		if strings.Contains(a, placeholder) {
			return true
		}
	}
	return false
}
