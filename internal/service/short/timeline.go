package short

import (
	"time"

	"reelcast/internal/model/short"
	"reelcast/internal/pkg/shorttools"
)

// Narrated 合成成功的段落及其段内字幕
type Narrated struct {
	Segment  short.TextSegment
	Clip     short.NarrationClip
	Captions []short.CaptionChunk // 相对段落起点
}

// SegmentCaptions 切分段落字幕，时间相对于段落起点
func SegmentCaptions(segmenter *shorttools.CaptionSegmenter, segmentID, text string, total time.Duration) ([]short.CaptionChunk, error) {
	timed, err := segmenter.Segment(text, total)
	if err != nil {
		return nil, err
	}
	chunks := make([]short.CaptionChunk, len(timed))
	for i, t := range timed {
		chunks[i] = short.CaptionChunk{
			SegmentID: segmentID,
			Text:      t.Text,
			Start:     t.Start,
			End:       t.End,
		}
	}
	return chunks, nil
}

// BuildTimeline 按顺序首尾相接地排列段落
// 标题后插入 titlePause（未设置时使用 pause），其他段落之间插入 pause，最后一段之后不留空白
// 停顿只延长段落窗口，字幕仍落在朗读时间内
func BuildTimeline(items []Narrated, pause, titlePause time.Duration) []short.TimelineEntry {
	entries := make([]short.TimelineEntry, 0, len(items))
	var cursor time.Duration
	for i, it := range items {
		window := it.Clip.Duration
		if i < len(items)-1 {
			gap := pause
			if it.Segment.Role == short.RoleTitle && titlePause > 0 {
				gap = titlePause
			}
			window += gap
		}

		captions := make([]short.CaptionChunk, len(it.Captions))
		for j, c := range it.Captions {
			c.Start += cursor
			c.End += cursor
			captions[j] = c
		}

		entries = append(entries, short.TimelineEntry{
			SegmentID:   it.Segment.ID,
			Role:        it.Segment.Role,
			Clip:        it.Clip,
			GlobalStart: cursor,
			GlobalEnd:   cursor + window,
			Captions:    captions,
		})
		cursor += window
	}
	return entries
}

// TrimToMaxDuration 丢弃超出 limit 的尾部段落，标题始终保留
// 返回保留的段落和被丢弃的段落ID；limit <= 0 表示不限制
func TrimToMaxDuration(entries []short.TimelineEntry, limit time.Duration) ([]short.TimelineEntry, []string) {
	if limit <= 0 || len(entries) == 0 || short.TimelineDuration(entries) <= limit {
		return entries, nil
	}

	keep := 1
	for keep < len(entries) && entries[keep].GlobalStart+entries[keep].Clip.Duration <= limit {
		keep++
	}

	var dropped []string
	for _, e := range entries[keep:] {
		dropped = append(dropped, e.SegmentID)
	}

	kept := append([]short.TimelineEntry(nil), entries[:keep]...)
	// 新的最后一段不再需要段后停顿
	last := &kept[len(kept)-1]
	last.GlobalEnd = last.GlobalStart + last.Clip.Duration
	return kept, dropped
}
