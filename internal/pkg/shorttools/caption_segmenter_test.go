package shorttools

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCaptionSegmenter_Segment(t *testing.T) {
	Convey("CaptionSegmenter.Segment 按单词边界切分并按字符比例分配时长", t, func() {
		segmenter := NewCaptionSegmenter(12)

		Convey("时长非正时返回 ErrInvalidDuration", func() {
			_, err := segmenter.Segment("hello world", 0)
			So(err, ShouldEqual, ErrInvalidDuration)

			_, err = segmenter.Segment("hello world", -time.Second)
			So(err, ShouldEqual, ErrInvalidDuration)
		})

		Convey("空白文本返回 ErrEmptyText", func() {
			_, err := segmenter.Segment(" \n\t ", time.Second)
			So(err, ShouldEqual, ErrEmptyText)
		})

		Convey("每块不超过最大字符数且不拆分单词", func() {
			text := "Is this normal or should I be worried about it at all"
			chunks, err := segmenter.Segment(text, 3*time.Second)
			So(err, ShouldBeNil)
			So(len(chunks), ShouldBeGreaterThan, 1)

			var words []string
			for _, c := range chunks {
				So(utf8.RuneCountInString(c.Text), ShouldBeLessThanOrEqualTo, 12)
				words = append(words, strings.Fields(c.Text)...)
			}
			So(words, ShouldResemble, strings.Fields(text))
		})

		Convey("时间窗口首尾相接且总和严格等于总时长", func() {
			total := 1234567891 * time.Nanosecond
			chunks, err := segmenter.Segment("Yes, very common. Happens to everyone sooner or later.", total)
			So(err, ShouldBeNil)

			So(chunks[0].Start, ShouldEqual, time.Duration(0))
			So(chunks[len(chunks)-1].End, ShouldEqual, total)

			var sum time.Duration
			for i, c := range chunks {
				So(c.End, ShouldBeGreaterThanOrEqualTo, c.Start)
				if i > 0 {
					So(c.Start, ShouldEqual, chunks[i-1].End)
				}
				sum += c.End - c.Start
			}
			So(sum, ShouldEqual, total)
		})

		Convey("时长按字符数而非单词数分配", func() {
			s := NewCaptionSegmenter(5)
			// "aaaa" 4 个字符，"b" 1 个字符，各成一块
			chunks, err := s.Segment("aaaa b", 5*time.Second)
			So(err, ShouldBeNil)
			So(len(chunks), ShouldEqual, 2)
			So(chunks[0].End, ShouldEqual, 4*time.Second)
			So(chunks[1].End-chunks[1].Start, ShouldEqual, time.Second)
		})

		Convey("超长单词独占一块而不被拆开", func() {
			chunks, err := segmenter.Segment("a supercalifragilistic word", 2*time.Second)
			So(err, ShouldBeNil)
			So(len(chunks), ShouldEqual, 3)
			So(chunks[0].Text, ShouldEqual, "a")
			So(chunks[1].Text, ShouldEqual, "supercalifragilistic")
			So(chunks[2].Text, ShouldEqual, "word")
		})

		Convey("单块文本占满整个时长", func() {
			chunks, err := segmenter.Segment("No, seek help", 1300*time.Millisecond)
			So(err, ShouldBeNil)
			So(len(chunks), ShouldEqual, 2)
			So(chunks[1].End, ShouldEqual, 1300*time.Millisecond)
		})
	})
}

func TestCaptionSegmenter_CJK(t *testing.T) {
	Convey("无空格的中文文本按分词结果切分", t, func() {
		segmenter := NewCaptionSegmenter(12)
		text := "今天天气很好我们一起去公园散步然后回家吃饭"
		total := 3 * time.Second

		chunks, err := segmenter.Segment(text, total)
		So(err, ShouldBeNil)
		So(len(chunks), ShouldBeGreaterThan, 1)

		var joined strings.Builder
		for i, c := range chunks {
			joined.WriteString(c.Text)
			if i > 0 {
				So(c.Start, ShouldEqual, chunks[i-1].End)
			}
		}
		So(joined.String(), ShouldEqual, text)
		So(chunks[0].Start, ShouldEqual, time.Duration(0))
		So(chunks[len(chunks)-1].End, ShouldEqual, total)
	})
}

func TestWrapText(t *testing.T) {
	Convey("WrapText 折行不拆分长单词", t, func() {
		lines := WrapText("the quick brown fox jumps", 10)
		So(lines, ShouldResemble, []string{"the quick", "brown fox", "jumps"})

		lines = WrapText("extraordinarily long", 5)
		So(lines, ShouldResemble, []string{"extraordinarily", "long"})

		So(WrapText("   ", 10), ShouldBeEmpty)
	})
}
