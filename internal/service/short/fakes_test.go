package short

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// fakeProvider 把文本写入输出文件，texts 中列出的文本合成失败
type fakeProvider struct {
	fail map[string]bool
}

func (p *fakeProvider) Name() string { return "fake" }
func (p *fakeProvider) Ext() string  { return ".wav" }

func (p *fakeProvider) Synthesize(_ context.Context, text, outPath string) error {
	if p.fail[text] {
		return errors.New("backend unavailable")
	}
	return os.WriteFile(outPath, []byte(text), 0o644)
}

// fakeProber 按文件名（不含扩展名）返回预设时长
type fakeProber struct {
	durations map[string]time.Duration
}

func (p *fakeProber) Duration(_ context.Context, path string) (time.Duration, error) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	d, ok := p.durations[name]
	if !ok {
		return 0, fmt.Errorf("cannot probe %s", path)
	}
	return d, nil
}

// fakeRunner 记录调用参数，把最后一个参数当作输出文件写入
type fakeRunner struct {
	mu   sync.Mutex
	err  error
	runs [][]string
}

func (r *fakeRunner) Run(_ context.Context, args ...string) error {
	r.mu.Lock()
	r.runs = append(r.runs, args)
	r.mu.Unlock()

	out := args[len(args)-1]
	if r.err != nil {
		// 模拟编码到一半失败，留下不完整的文件
		_ = os.WriteFile(out, []byte("partial"), 0o644)
		return r.err
	}
	return os.WriteFile(out, []byte("media"), 0o644)
}

func (r *fakeRunner) calls() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.runs...)
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func touch(path string) {
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	_ = os.WriteFile(path, nil, 0o644)
}

func indexOf(args []string, flag string) int {
	for i, a := range args {
		if a == flag {
			return i
		}
	}
	return -1
}
