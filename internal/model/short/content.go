package short

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"reelcast/internal/pkg/shorttools"
)

// Kind 内容形态
type Kind string

const (
	KindQnA    Kind = "qna"    // 提问 + 高赞评论（AskReddit 类）
	KindAdvice Kind = "advice" // 标题 + 长正文（AmItheAsshole 类）
)

// String 返回形态的字符串表示
func (k Kind) String() string {
	return string(k)
}

// ParseKind 解析内容形态
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindQnA:
		return KindQnA, nil
	case KindAdvice:
		return KindAdvice, nil
	default:
		return "", fmt.Errorf("unsupported content kind %q (want qna or advice)", s)
	}
}

// SegmentOptions 把内容单元展开为段落时的参数
type SegmentOptions struct {
	BodyChunkChars int // advice 正文切分长度
}

// Unit 一个内容单元（渲染为一条视频）
// 不同形态通过各自的实现展开为统一的段落序列
type Unit interface {
	ID() string
	Kind() Kind
	Title() string
	Segments(opts SegmentOptions) []TextSegment
}

// Comment qna 评论
type Comment struct {
	Text  string `json:"comment"`
	Score int    `json:"comment_score"`
}

// QnAUnit 标题 + 评论
type QnAUnit struct {
	PostTitle string    `json:"title"`
	Comments  []Comment `json:"comments"`
}

// ID 根据内容生成的稳定ID，重复渲染同一内容时保持不变
func (u *QnAUnit) ID() string { return unitID(KindQnA, u.PostTitle) }

// Kind 内容形态
func (u *QnAUnit) Kind() Kind { return KindQnA }

// Title 标题
func (u *QnAUnit) Title() string { return u.PostTitle }

// Segments 标题在前，之后按原顺序排列非空评论
func (u *QnAUnit) Segments(SegmentOptions) []TextSegment {
	segs := []TextSegment{{ID: "title", Role: RoleTitle, Text: u.PostTitle, Order: 0}}
	for i, c := range u.Comments {
		if strings.TrimSpace(c.Text) == "" {
			continue
		}
		segs = append(segs, TextSegment{
			ID:    fmt.Sprintf("comment-%d", i),
			Role:  RoleComment,
			Text:  c.Text,
			Order: len(segs),
			Score: c.Score,
		})
	}
	return segs
}

// AdviceUnit 标题 + 长正文
type AdviceUnit struct {
	PostTitle string `json:"title"`
	PostBody  string `json:"postbody"`
}

// ID 根据内容生成的稳定ID
func (u *AdviceUnit) ID() string { return unitID(KindAdvice, u.PostTitle) }

// Kind 内容形态
func (u *AdviceUnit) Kind() Kind { return KindAdvice }

// Title 标题
func (u *AdviceUnit) Title() string { return u.PostTitle }

// Segments 标题在前，正文按单词边界切分为多段
func (u *AdviceUnit) Segments(opts SegmentOptions) []TextSegment {
	segs := []TextSegment{{ID: "title", Role: RoleTitle, Text: u.PostTitle, Order: 0}}
	for i, part := range shorttools.SplitBody(u.PostBody, opts.BodyChunkChars) {
		segs = append(segs, TextSegment{
			ID:    fmt.Sprintf("body-%d", i),
			Role:  RoleBody,
			Text:  part,
			Order: len(segs),
		})
	}
	return segs
}

func unitID(kind Kind, title string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(string(kind)+"\x00"+title)).String()
}

// DecodeUnit 解析单个内容单元
func DecodeUnit(kind Kind, raw []byte) (Unit, error) {
	var unit Unit
	switch kind {
	case KindQnA:
		unit = &QnAUnit{}
	case KindAdvice:
		unit = &AdviceUnit{}
	default:
		return nil, fmt.Errorf("unsupported content kind %q", kind)
	}
	if err := json.Unmarshal(raw, unit); err != nil {
		return nil, fmt.Errorf("decode %s unit: %w", kind, err)
	}
	if strings.TrimSpace(unit.Title()) == "" {
		return nil, fmt.Errorf("decode %s unit: title is empty", kind)
	}
	return unit, nil
}

// DecodeUnits 解析内容采集步骤产出的 JSON 数组
func DecodeUnits(kind Kind, r io.Reader) ([]Unit, error) {
	var raws []json.RawMessage
	if err := json.NewDecoder(r).Decode(&raws); err != nil {
		return nil, fmt.Errorf("decode %s content: %w", kind, err)
	}
	units := make([]Unit, 0, len(raws))
	for i, raw := range raws {
		unit, err := DecodeUnit(kind, raw)
		if err != nil {
			return nil, fmt.Errorf("unit %d: %w", i, err)
		}
		units = append(units, unit)
	}
	return units, nil
}
