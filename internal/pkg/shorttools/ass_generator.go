package shorttools

import (
	"fmt"
	"strings"
	"time"
)

// ASS 样式名
const (
	StyleCaption = "Caption"
	StyleTitle   = "Title"
	StyleOutro   = "Outro"
)

// ASSStyle 竖屏字幕样式参数
type ASSStyle struct {
	Width         int    // PlayResX，与输出分辨率一致
	Height        int    // PlayResY
	FontName      string // 字体
	FontSize      int    // 正文字幕字号
	TitleFontSize int    // 标题字幕字号
	OutroFontSize int    // 片尾字号
}

// ASSEvent 一条字幕事件（全局时间）
type ASSEvent struct {
	Start time.Duration
	End   time.Duration
	Style string
	Text  string
}

// ASSGenerator ASS字幕生成器
type ASSGenerator struct {
	style ASSStyle
}

// NewASSGenerator 创建ASS字幕生成器实例
func NewASSGenerator(style ASSStyle) *ASSGenerator {
	if style.FontName == "" {
		style.FontName = "Calibri"
	}
	if style.FontSize <= 0 {
		style.FontSize = 60
	}
	if style.TitleFontSize <= 0 {
		style.TitleFontSize = 70
	}
	if style.OutroFontSize <= 0 {
		style.OutroFontSize = 150
	}
	return &ASSGenerator{style: style}
}

// GenerateASSContent 生成ASS格式内容
// 白字黑描边，居中显示；标题与正文使用不同字号
func (ag *ASSGenerator) GenerateASSContent(events []ASSEvent, title string) string {
	if title == "" {
		title = "reelcast captions"
	}

	s := ag.style
	// 竖屏画面中字幕放在中上部，MarginV 按画面高度的比例换算
	marginV := s.Height / 6

	var b strings.Builder
	fmt.Fprintf(&b, `[Script Info]
Title: %s
ScriptType: v4.00+
WrapStyle: 0
ScaledBorderAndShadow: yes
YCbCr Matrix: TV.601
PlayResX: %d
PlayResY: %d

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: %s,%s,%d,&H00FFFFFF,&H000000FF,&H00000000,&H80000000,-1,0,0,0,100,100,0,0,1,3,0,8,40,40,%d,1
Style: %s,%s,%d,&H00FFFFFF,&H000000FF,&H00000000,&H80000000,-1,0,0,0,100,100,0,0,1,3,0,8,40,40,%d,1
Style: %s,%s,%d,&H00FFFFFF,&H000000FF,&H00000000,&H80000000,-1,0,0,0,100,100,0,0,1,3,0,5,40,40,0,1

[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
`, escapeHeader(title), s.Width, s.Height,
		StyleCaption, s.FontName, s.FontSize, marginV,
		StyleTitle, s.FontName, s.TitleFontSize, marginV,
		StyleOutro, s.FontName, s.OutroFontSize)

	for _, ev := range events {
		style := ev.Style
		if style == "" {
			style = StyleCaption
		}
		fmt.Fprintf(&b, "Dialogue: 0,%s,%s,%s,,0,0,0,,%s\n",
			formatTimeForASS(ev.Start), formatTimeForASS(ev.End), style, escapeASSText(ev.Text))
	}

	return b.String()
}

// formatTimeForASS 将时长转换为ASS时间格式 (H:MM:SS.CC)
// 四舍五入到厘秒；相邻字幕共享同一边界值，取整后依然首尾相接
func formatTimeForASS(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	cs := int64((d + 5*time.Millisecond) / (10 * time.Millisecond))
	hours := cs / 360000
	minutes := (cs % 360000) / 6000
	secs := (cs % 6000) / 100
	frac := cs % 100
	return fmt.Sprintf("%d:%02d:%02d.%02d", hours, minutes, secs, frac)
}

// escapeASSText 转义会被 libass 当作控制序列的字符
func escapeASSText(text string) string {
	r := strings.NewReplacer(
		`\`, `/`,
		"{", `\{`,
		"}", `\}`,
		"\r\n", `\N`,
		"\n", `\N`,
	)
	return r.Replace(text)
}

func escapeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
