package short

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"reelcast/internal/model/short"
	"reelcast/internal/pkg/shorttools"
)

type pipelineFixture struct {
	pipeline *Pipeline
	provider *fakeProvider
	prober   *fakeProber
	runner   *fakeRunner
	cfg      PipelineConfig
	output   string
	tempRoot string
	history  History
}

func newPipelineFixture(t *testing.T, bgDuration time.Duration) *pipelineFixture {
	root := t.TempDir()
	bgDir := filepath.Join(root, "backgrounds")
	touch(filepath.Join(bgDir, "bg.mp4"))
	tempRoot := filepath.Join(root, "tmp")
	_ = os.MkdirAll(tempRoot, 0o755)

	f := &pipelineFixture{
		provider: &fakeProvider{fail: map[string]bool{}},
		prober: &fakeProber{durations: map[string]time.Duration{
			"title":     ms(1500),
			"comment-0": ms(1200),
			"comment-1": ms(1300),
			"bg":        bgDuration,
		}},
		runner:   &fakeRunner{},
		output:   filepath.Join(root, "out", "finalized_qna.mp4"),
		tempRoot: tempRoot,
	}
	f.cfg = PipelineConfig{
		BackgroundDir: bgDir,
		Seed:          42,
		TempDir:       tempRoot,
		Concurrency:   3,
		Settings: short.RenderSettings{
			Width: 1080, Height: 1920, FPS: 30,
			VideoCodec: "libx264", AudioCodec: "aac", CRF: 23, Preset: "veryfast",
		},
	}
	f.build()
	return f
}

func (f *pipelineFixture) build() {
	synth := NewSynthesizer(f.provider, f.prober, f.runner, 0, 1)
	selector := NewSelector(f.prober, f.history, f.history != nil)
	f.pipeline = NewPipeline(f.cfg, synth, shorttools.NewCaptionSegmenter(30), selector, NewComposer(f.runner, FileLocker{}))
}

func sampleUnit() short.Unit {
	return &short.QnAUnit{
		PostTitle: "Is this normal?",
		Comments: []short.Comment{
			{Text: "Yes, very common.", Score: 1500},
			{Text: "No, seek help.", Score: 1100},
		},
	}
}

func windows(entries []short.TimelineEntry) [][2]time.Duration {
	out := make([][2]time.Duration, len(entries))
	for i, e := range entries {
		out[i] = [2]time.Duration{e.GlobalStart, e.GlobalEnd}
	}
	return out
}

func workDirsLeft(root string) int {
	entries, _ := os.ReadDir(root)
	return len(entries)
}

func TestPipeline_Run(t *testing.T) {
	Convey("Pipeline.Run 渲染一个 qna 内容单元", t, func() {
		f := newPipelineFixture(t, 10*time.Second)
		ctx := context.Background()

		Convey("段落首尾相接，总时长为各段之和", func() {
			res, err := f.pipeline.Run(ctx, sampleUnit(), f.output)
			So(err, ShouldBeNil)
			So(windows(res.Timeline), ShouldResemble, [][2]time.Duration{
				{0, ms(1500)}, {ms(1500), ms(2700)}, {ms(2700), ms(4000)},
			})
			So(res.Duration, ShouldEqual, 4*time.Second)
			So(res.Background.ClipDuration, ShouldEqual, 4*time.Second)
			So(res.Skipped, ShouldBeEmpty)

			for _, e := range res.Timeline {
				So(e.Captions[0].Start, ShouldEqual, e.GlobalStart)
				So(e.Captions[len(e.Captions)-1].End, ShouldEqual, e.GlobalEnd)
			}

			_, statErr := os.Stat(f.output)
			So(statErr, ShouldBeNil)
			// 渲染结束后锁已释放
			unlock, lockErr := FileLocker{}.Lock(ctx, f.output)
			So(lockErr, ShouldBeNil)
			unlock()
			So(workDirsLeft(f.tempRoot), ShouldEqual, 0)

			// 不变速时只有一次编码调用
			calls := f.runner.calls()
			So(len(calls), ShouldEqual, 1)
			args := calls[0]
			So(args[indexOf(args, "-t")+1], ShouldEqual, "4.000000")
		})

		Convey("评论合成失败时跳过该段，时长为 2.7 秒", func() {
			f.provider.fail["No, seek help."] = true
			res, err := f.pipeline.Run(ctx, sampleUnit(), f.output)
			So(err, ShouldBeNil)
			So(windows(res.Timeline), ShouldResemble, [][2]time.Duration{
				{0, ms(1500)}, {ms(1500), ms(2700)},
			})
			So(res.Duration, ShouldEqual, ms(2700))
			So(len(res.Skipped), ShouldEqual, 1)
			So(res.Skipped[0].SegmentID, ShouldEqual, "comment-1")
			So(res.Skipped[0].Reason, ShouldContainSubstring, "backend unavailable")
		})

		Convey("标题合成失败时不产出文件", func() {
			f.provider.fail["Is this normal?"] = true
			res, err := f.pipeline.Run(ctx, sampleUnit(), f.output)
			So(res, ShouldBeNil)
			So(errors.Is(err, ErrSynthesisFailure), ShouldBeTrue)

			var synthErr *SynthesisError
			So(errors.As(err, &synthErr), ShouldBeTrue)
			So(synthErr.SegmentID, ShouldEqual, "title")

			_, statErr := os.Stat(f.output)
			So(os.IsNotExist(statErr), ShouldBeTrue)
			So(len(f.runner.calls()), ShouldEqual, 0)
			So(workDirsLeft(f.tempRoot), ShouldEqual, 0)
		})

		Convey("编码失败时不留下半成品", func() {
			f.runner.err = errors.New("encoder crashed")
			_, err := f.pipeline.Run(ctx, sampleUnit(), f.output)
			So(errors.Is(err, ErrRenderFailure), ShouldBeTrue)

			// 输出目录只剩下锁文件
			entries, _ := os.ReadDir(filepath.Dir(f.output))
			So(len(entries), ShouldEqual, 1)
			So(entries[0].Name(), ShouldEqual, filepath.Base(FileLockPath(f.output)))
			So(workDirsLeft(f.tempRoot), ShouldEqual, 0)
		})

		Convey("编码失败时不记录背景素材，成功后才记录", func() {
			f.history = FileHistory{}
			f.build()
			f.runner.err = errors.New("encoder crashed")
			_, err := f.pipeline.Run(ctx, sampleUnit(), f.output)
			So(errors.Is(err, ErrRenderFailure), ShouldBeTrue)

			last, err := FileHistory{}.Last(ctx, f.cfg.BackgroundDir)
			So(err, ShouldBeNil)
			So(last, ShouldBeEmpty)

			f.runner.err = nil
			_, err = f.pipeline.Run(ctx, sampleUnit(), f.output)
			So(err, ShouldBeNil)
			last, err = FileHistory{}.Last(ctx, f.cfg.BackgroundDir)
			So(err, ShouldBeNil)
			So(filepath.Base(last), ShouldEqual, "bg.mp4")
		})

		Convey("残留的锁文件不影响渲染", func() {
			_ = os.MkdirAll(filepath.Dir(f.output), 0o755)
			So(os.WriteFile(FileLockPath(f.output), []byte("999999"), 0o644), ShouldBeNil)
			_, err := f.pipeline.Run(ctx, sampleUnit(), f.output)
			So(err, ShouldBeNil)
			_, statErr := os.Stat(f.output)
			So(statErr, ShouldBeNil)
		})

		Convey("没有背景素材时失败", func() {
			_ = os.Remove(filepath.Join(f.cfg.BackgroundDir, "bg.mp4"))
			_, err := f.pipeline.Run(ctx, sampleUnit(), f.output)
			So(errors.Is(err, ErrNoSourceAvailable), ShouldBeTrue)
		})

		Convey("背景素材无法读取时失败并带上路径", func() {
			delete(f.prober.durations, "bg")
			_, err := f.pipeline.Run(ctx, sampleUnit(), f.output)
			So(errors.Is(err, ErrUnreadableSource), ShouldBeTrue)
			var srcErr *SourceError
			So(errors.As(err, &srcErr), ShouldBeTrue)
			So(filepath.Base(srcErr.Path), ShouldEqual, "bg.mp4")
		})

		Convey("固定种子重复渲染选择相同的起点", func() {
			first, err := f.pipeline.Run(ctx, sampleUnit(), f.output)
			So(err, ShouldBeNil)
			_ = os.Remove(f.output)
			second, err := f.pipeline.Run(ctx, sampleUnit(), f.output)
			So(err, ShouldBeNil)
			So(second.Background.ClipStart, ShouldEqual, first.Background.ClipStart)
		})

		Convey("超过最大时长时丢弃尾部评论", func() {
			f.cfg.MaxVideoLength = 3 * time.Second
			f.build()
			res, err := f.pipeline.Run(ctx, sampleUnit(), f.output)
			So(err, ShouldBeNil)
			So(res.Duration, ShouldEqual, ms(2700))
			So(res.Skipped[0].Reason, ShouldEqual, "exceeds max video length")
		})

		Convey("片尾引导语延长总时长", func() {
			f.cfg.Settings.Outro = short.Outro{Text: "Like & Follow for more!", Duration: 2 * time.Second}
			f.build()
			res, err := f.pipeline.Run(ctx, sampleUnit(), f.output)
			So(err, ShouldBeNil)
			So(res.Duration, ShouldEqual, 6*time.Second)
			So(short.TimelineDuration(res.Timeline), ShouldEqual, 4*time.Second)
		})

		Convey("片尾不超过最大时长，先裁剪段落再压缩片尾", func() {
			f.cfg.MaxVideoLength = 3 * time.Second
			f.cfg.Settings.Outro = short.Outro{Text: "Like & Follow for more!", Duration: 3 * time.Second}
			f.build()
			res, err := f.pipeline.Run(ctx, sampleUnit(), f.output)
			So(err, ShouldBeNil)
			So(short.TimelineDuration(res.Timeline), ShouldEqual, ms(2700))
			So(res.Duration, ShouldEqual, 3*time.Second)
			So(res.Skipped[0].SegmentID, ShouldEqual, "comment-1")

			args := f.runner.calls()[0]
			So(args[indexOf(args, "-t")+1], ShouldEqual, "3.000000")
		})

		Convey("段落已占满最大时长时片尾为零", func() {
			f.cfg.MaxVideoLength = ms(2700)
			f.cfg.Settings.Outro = short.Outro{Text: "Like & Follow for more!", Duration: 3 * time.Second}
			f.build()
			res, err := f.pipeline.Run(ctx, sampleUnit(), f.output)
			So(err, ShouldBeNil)
			So(res.Duration, ShouldEqual, ms(2700))
		})
	})

	Convey("背景素材短于目标时长时循环播放", t, func() {
		f := newPipelineFixture(t, 2*time.Second)
		res, err := f.pipeline.Run(context.Background(), sampleUnit(), f.output)
		So(err, ShouldBeNil)
		So(res.Background.Loops, ShouldEqual, 2)
		So(res.Background.ClipStart, ShouldEqual, time.Duration(0))

		var sum time.Duration
		for _, s := range res.Background.Spans() {
			sum += s.Duration
		}
		So(sum, ShouldEqual, 4*time.Second)

		args := f.runner.calls()[0]
		So(args[indexOf(args, "-stream_loop")+1], ShouldEqual, "1")
	})
}
