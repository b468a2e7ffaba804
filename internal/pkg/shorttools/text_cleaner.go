package shorttools

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	censoredWordRe = regexp.MustCompile(`\*{2,}`)
	lineBreakRe    = regexp.MustCompile(`[\r\n]+`)
	spaceRe        = regexp.MustCompile(`\s+`)
)

// SanitizeForSpeech 把被屏蔽的单词（"****"）替换为 "beep"，并去掉零散的 *，
// 否则 TTS 会把每个星号都念出来
func SanitizeForSpeech(text string) string {
	text = censoredWordRe.ReplaceAllString(text, "beep")
	text = strings.ReplaceAll(text, "*", "")
	return NormalizeSpace(text)
}

// NormalizeSpace 去掉换行并合并连续空白
func NormalizeSpace(text string) string {
	text = lineBreakRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
}

// HasSpeakable 文本中是否包含可朗读的字符（字母或数字）
func HasSpeakable(text string) bool {
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return true
		}
	}
	return false
}

// SplitBody 把长正文按单词边界切成不超过 maxChars 的片段，每段单独朗读
func SplitBody(body string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = 300
	}
	return WrapText(NormalizeSpace(body), maxChars)
}
