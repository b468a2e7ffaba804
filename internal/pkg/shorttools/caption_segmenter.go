package shorttools

import (
	"errors"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-ego/gse"
)

var (
	// ErrInvalidDuration 字幕切分时段落时长必须为正
	ErrInvalidDuration = errors.New("caption duration must be positive")
	// ErrEmptyText 没有可切分的单词
	ErrEmptyText = errors.New("caption text is empty")
)

// TimedText 带时间窗口的字幕片段，时间相对于所属段落的起点
type TimedText struct {
	Text  string        `json:"text"`
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

// CaptionSegmenter 字幕切分器
// 按单词边界把段落文本打包成不超过 maxChars 的字幕块，并按字符数比例分配朗读时长
type CaptionSegmenter struct {
	maxChars int

	segOnce   sync.Once
	segmenter *gse.Segmenter // 无空格的中日文文本用 gse 分词取词边界
}

// NewCaptionSegmenter 创建字幕切分器实例
func NewCaptionSegmenter(maxChars int) *CaptionSegmenter {
	if maxChars <= 0 {
		maxChars = 30
	}
	return &CaptionSegmenter{maxChars: maxChars}
}

// MaxChars 每块字幕的最大字符数
func (cs *CaptionSegmenter) MaxChars() int {
	return cs.maxChars
}

// Segment 切分文本并为每块分配 [0, total] 内的时间窗口
// 各块首尾相接，最后一块的结束时间严格等于 total
func (cs *CaptionSegmenter) Segment(text string, total time.Duration) ([]TimedText, error) {
	if total <= 0 {
		return nil, ErrInvalidDuration
	}

	words, sep := cs.words(text)
	if len(words) == 0 {
		return nil, ErrEmptyText
	}

	chunks := packWords(words, sep, cs.maxChars)
	return distribute(chunks, total), nil
}

// words 返回单词列表和拼接单词时使用的分隔符
func (cs *CaptionSegmenter) words(text string) ([]string, string) {
	fields := strings.Fields(text)
	if len(fields) != 1 || utf8.RuneCountInString(fields[0]) <= cs.maxChars || !containsHan(fields[0]) {
		return fields, " "
	}

	seg := cs.cjkSegmenter()
	if seg == nil {
		return fields, " "
	}

	var words []string
	for _, w := range seg.Cut(fields[0], false) {
		if strings.TrimSpace(w) != "" {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return fields, " "
	}
	return words, ""
}

func (cs *CaptionSegmenter) cjkSegmenter() *gse.Segmenter {
	cs.segOnce.Do(func() {
		segmenter, err := gse.New()
		if err != nil {
			// 初始化失败时退回整词处理
			return
		}
		cs.segmenter = &segmenter
	})
	return cs.segmenter
}

// chunk 字幕块及其计时用字符数（不含单词之间的分隔符）
type chunk struct {
	text  string
	chars int
}

// packWords 贪心打包单词，单个超长单词独占一块而不拆开
func packWords(words []string, sep string, maxChars int) []chunk {
	var (
		chunks  []chunk
		current []string
		length  int // 含分隔符的显示长度
		chars   int
	)

	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, chunk{text: strings.Join(current, sep), chars: chars})
		}
		current, length, chars = nil, 0, 0
	}

	sepLen := utf8.RuneCountInString(sep)
	for _, w := range words {
		n := utf8.RuneCountInString(w)
		if len(current) > 0 && length+sepLen+n > maxChars {
			flush()
		}
		if len(current) > 0 {
			length += sepLen
		}
		current = append(current, w)
		length += n
		chars += n
	}
	flush()

	return chunks
}

// distribute 按累计字符数比例计算每块的结束时间
// 使用整数运算，相邻块共享边界，不会出现空隙或重叠
func distribute(chunks []chunk, total time.Duration) []TimedText {
	totalChars := 0
	for _, c := range chunks {
		totalChars += c.chars
	}

	out := make([]TimedText, 0, len(chunks))
	var start time.Duration
	cum := 0
	for i, c := range chunks {
		cum += c.chars
		end := time.Duration(int64(total) * int64(cum) / int64(totalChars))
		if i == len(chunks)-1 {
			end = total
		}
		out = append(out, TimedText{Text: c.text, Start: start, End: end})
		start = end
	}
	return out
}

// WrapText 按单词边界把文本折成不超过 width 字符的多行，不拆分长单词
func WrapText(text string, width int) []string {
	chunks := packWords(strings.Fields(text), " ", width)
	lines := make([]string, len(chunks))
	for i, c := range chunks {
		lines[i] = c.text
	}
	return lines
}

func containsHan(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) {
			return true
		}
	}
	return false
}
