package short

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"reelcast/internal/model/short"
	"reelcast/internal/pkg/cache"
)

// DefaultSourceExtensions 默认的背景视频扩展名
var DefaultSourceExtensions = []string{".mp4"}

// ListSources 列出目录下的背景视频，按路径排序
func ListSources(dir string, exts []string) ([]string, error) {
	if len(exts) == 0 {
		exts = DefaultSourceExtensions
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read background dir %s: %w", dir, err)
	}

	var sources []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		for _, want := range exts {
			if ext == strings.ToLower(want) {
				sources = append(sources, filepath.Join(dir, e.Name()))
				break
			}
		}
	}
	slices.Sort(sources)
	return sources, nil
}

// History 记录背景素材目录最近使用的素材
type History interface {
	Last(ctx context.Context, dir string) (string, error)
	Remember(ctx context.Context, dir, source string) error
}

// Selector 背景视频选择器
type Selector struct {
	prober      MediaProber
	history     History // 可为空
	avoidRepeat bool
}

// NewSelector 创建背景视频选择器
func NewSelector(prober MediaProber, history History, avoidRepeat bool) *Selector {
	return &Selector{prober: prober, history: history, avoidRepeat: avoidRepeat}
}

// Select 从 sources 中随机选择一个素材并截取 target 时长
// 素材够长时随机选择起点；不够长时从头循环播放，最后一轮截断
func (s *Selector) Select(ctx context.Context, rng *rand.Rand, sources []string, target time.Duration) (*short.BackgroundClip, error) {
	if len(sources) == 0 {
		return nil, ErrNoSourceAvailable
	}
	if target <= 0 {
		return nil, fmt.Errorf("invalid background target duration %s", target)
	}

	candidates := s.candidates(ctx, sources)
	source := candidates[0]
	if len(candidates) > 1 {
		source = candidates[rng.IntN(len(candidates))]
	}

	duration, err := s.prober.Duration(ctx, source)
	if err != nil {
		return nil, &SourceError{Path: source, Err: err}
	}
	if duration <= 0 {
		return nil, &SourceError{Path: source, Err: errors.New("source has zero duration")}
	}

	clip := &short.BackgroundClip{
		SourcePath:     source,
		SourceDuration: duration,
		ClipDuration:   target,
		Loops:          1,
	}
	if duration >= target {
		clip.ClipStart = randomStart(rng, duration-target)
	} else {
		clip.Loops = int((target + duration - 1) / duration)
	}

	return clip, nil
}

// Remember 记录最近使用的素材，只应在视频写出成功后调用
func (s *Selector) Remember(ctx context.Context, source string) {
	if !s.avoidRepeat || s.history == nil {
		return
	}
	if err := s.history.Remember(ctx, filepath.Dir(source), source); err != nil {
		log.Warn().Err(err).Str("source", source).Msg("failed to remember background source")
	}
}

// candidates 开启 avoid_repeat 时排除上一次使用的素材（仅在有多个素材时）
func (s *Selector) candidates(ctx context.Context, sources []string) []string {
	if !s.avoidRepeat || s.history == nil || len(sources) < 2 {
		return sources
	}
	last, err := s.history.Last(ctx, filepath.Dir(sources[0]))
	if err != nil {
		log.Warn().Err(err).Msg("failed to read background history")
		return sources
	}
	out := make([]string, 0, len(sources))
	for _, src := range sources {
		if src != last {
			out = append(out, src)
		}
	}
	if len(out) == 0 {
		return sources
	}
	return out
}

// randomStart 在 [0, maxStart] 内按毫秒粒度均匀选择起点
func randomStart(rng *rand.Rand, maxStart time.Duration) time.Duration {
	steps := int64(maxStart / time.Millisecond)
	if steps <= 0 {
		return 0
	}
	return time.Duration(rng.Int64N(steps+1)) * time.Millisecond
}

// FileHistory 把最近使用的素材记在素材目录下的 .last_used 文件中
type FileHistory struct{}

const lastUsedFile = ".last_used"

// Last 读取最近使用的素材
func (FileHistory) Last(_ context.Context, dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, lastUsedFile))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Remember 记录最近使用的素材
func (FileHistory) Remember(_ context.Context, dir, source string) error {
	return os.WriteFile(filepath.Join(dir, lastUsedFile), []byte(source+"\n"), 0o644)
}

// RedisHistory 使用 Redis 记录最近使用的素材，多个 worker 共享
type RedisHistory struct {
	cache *cache.RedisCache
}

// NewRedisHistory 创建 Redis 素材历史
func NewRedisHistory(c *cache.RedisCache) *RedisHistory {
	return &RedisHistory{cache: c}
}

// Last 读取最近使用的素材
func (h *RedisHistory) Last(ctx context.Context, dir string) (string, error) {
	return h.cache.GetString(ctx, cache.BackgroundLastKey(dir))
}

// Remember 记录最近使用的素材
func (h *RedisHistory) Remember(ctx context.Context, dir, source string) error {
	return h.cache.SetString(ctx, cache.BackgroundLastKey(dir), source, cache.BackgroundLastTTL)
}
