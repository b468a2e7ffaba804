package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"reelcast/internal/model/short"
	"reelcast/internal/pkg/storage"
	renderRepo "reelcast/internal/repository/render"
	shortsvc "reelcast/internal/service/short"
)

type memRenderRepo struct {
	mu          sync.Mutex
	renders     map[string]*short.Render
	completeErr error
}

func newMemRenderRepo() *memRenderRepo {
	return &memRenderRepo{renders: map[string]*short.Render{}}
}

func (r *memRenderRepo) Create(_ context.Context, render *short.Render) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *render
	r.renders[render.ID] = &cp
	return nil
}

func (r *memRenderRepo) FindByID(_ context.Context, id string) (*short.Render, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	render, ok := r.renders[id]
	if !ok {
		return nil, renderRepo.ErrNotFound
	}
	cp := *render
	return &cp, nil
}

func (r *memRenderRepo) FindByUnitID(context.Context, string) ([]*short.Render, error) {
	return nil, nil
}

func (r *memRenderRepo) FindByStatus(_ context.Context, status short.RenderStatus) ([]*short.Render, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*short.Render
	for _, render := range r.renders {
		if render.Status == status {
			cp := *render
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memRenderRepo) UpdateStatus(_ context.Context, id string, status short.RenderStatus, errorMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renders[id].Status = status
	r.renders[id].ErrorMessage = errorMsg
	return nil
}

func (r *memRenderRepo) MarkCompleted(_ context.Context, id string, result *short.Render) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completeErr != nil {
		return r.completeErr
	}
	render := r.renders[id]
	render.Status = short.RenderStatusCompleted
	render.StorageKey = result.StorageKey
	render.OutputURL = result.OutputURL
	render.OutputPath = result.OutputPath
	render.Duration = result.Duration
	render.Skipped = result.Skipped
	return nil
}

func (r *memRenderRepo) MarkFailed(_ context.Context, id string, errorMsg string, _ []short.SkippedSegment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renders[id].Status = short.RenderStatusFailed
	r.renders[id].ErrorMessage = errorMsg
	return nil
}

type memQueue struct {
	ids []string
	err error
}

func (q *memQueue) Enqueue(_ context.Context, _ string, id string) error {
	if q.err != nil {
		return q.err
	}
	q.ids = append(q.ids, id)
	return nil
}

func (q *memQueue) QueueLength(context.Context, string) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}
	return int64(len(q.ids)), nil
}

// memStorage 记录上传和删除的对象，签发的地址带上调用次数
type memStorage struct {
	objects map[string][]byte
	uploads int
	signs   int
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}}
}

func (m *memStorage) Upload(_ context.Context, key string, data io.Reader, _ string) (string, error) {
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	m.objects[key] = b
	m.uploads++
	return "https://cdn.test/" + key, nil
}

func (m *memStorage) GetPresignedDownloadURL(_ context.Context, key string, _ time.Duration) (string, error) {
	m.signs++
	return fmt.Sprintf("https://cdn.test/%s?sig=%d", key, m.signs), nil
}

func (m *memStorage) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func (m *memStorage) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memStorage) GetStorageType() string { return "mem" }

type stubPipeline struct {
	err     error
	outputs []string
}

func (p *stubPipeline) Run(_ context.Context, unit short.Unit, outputPath string) (*shortsvc.Result, error) {
	p.outputs = append(p.outputs, outputPath)
	if p.err != nil {
		return nil, p.err
	}
	return &shortsvc.Result{
		UnitID:     unit.ID(),
		OutputPath: outputPath,
		Duration:   2700 * time.Millisecond,
		Skipped:    []short.SkippedSegment{{SegmentID: "comment-1", Role: short.RoleComment, Reason: "backend unavailable"}},
	}, nil
}

// fixedOutputPipeline 忽略目标路径，返回一个已存在的文件
type fixedOutputPipeline struct {
	path string
}

func (p *fixedOutputPipeline) Run(_ context.Context, unit short.Unit, _ string) (*shortsvc.Result, error) {
	return &shortsvc.Result{UnitID: unit.ID(), OutputPath: p.path, Duration: time.Second}, nil
}

const qnaPayload = `{"title":"Is this normal?","comments":[{"comment":"Yes, very common.","comment_score":10}]}`

func TestRenderService(t *testing.T) {
	Convey("RenderService 管理渲染任务", t, func() {
		ctx := context.Background()
		repo := newMemRenderRepo()
		queue := &memQueue{}
		pipeline := &stubPipeline{}
		svc := NewRenderService(repo, pipeline, queue, "reelcast:renders", nil, "/srv/out")

		Convey("提交后任务进入队列，处理后记录结果", func() {
			render, err := svc.Submit(ctx, &SubmitRenderRequest{Kind: short.KindQnA, Unit: []byte(qnaPayload)})
			So(err, ShouldBeNil)
			So(render.Status, ShouldEqual, short.RenderStatusPending)
			So(render.OutputPath, ShouldEqual, "/srv/out/"+render.ID+"/finalized_qna.mp4")
			So(queue.ids, ShouldResemble, []string{render.ID})

			So(svc.Process(ctx, render.ID), ShouldBeNil)
			got, err := svc.Get(ctx, render.ID)
			So(err, ShouldBeNil)
			So(got.Status, ShouldEqual, short.RenderStatusCompleted)
			So(got.Duration, ShouldAlmostEqual, 2.7, 1e-9)
			So(len(got.Skipped), ShouldEqual, 1)

			// 已完成的任务不会重复渲染
			So(svc.Process(ctx, render.ID), ShouldBeNil)
			So(len(pipeline.outputs), ShouldEqual, 1)
		})

		Convey("渲染失败时记录错误", func() {
			pipeline.err = errors.New("render failure: encoder crashed")
			render, _ := svc.Submit(ctx, &SubmitRenderRequest{Kind: short.KindQnA, Unit: []byte(qnaPayload)})
			So(svc.Process(ctx, render.ID), ShouldNotBeNil)
			got, _ := svc.Get(ctx, render.ID)
			So(got.Status, ShouldEqual, short.RenderStatusFailed)
			So(got.ErrorMessage, ShouldContainSubstring, "encoder crashed")
		})

		Convey("无效内容拒绝提交", func() {
			_, err := svc.Submit(ctx, &SubmitRenderRequest{Kind: short.KindQnA, Unit: []byte(`{"comments":[]}`)})
			So(errors.Is(err, ErrInvalidUnit), ShouldBeTrue)
			So(queue.ids, ShouldBeEmpty)
		})

		Convey("入队失败时任务标记为失败", func() {
			queue.err = errors.New("redis down")
			_, err := svc.Submit(ctx, &SubmitRenderRequest{Kind: short.KindQnA, Unit: []byte(qnaPayload)})
			So(err, ShouldNotBeNil)
			for _, r := range repo.renders {
				So(r.Status, ShouldEqual, short.RenderStatusFailed)
			}
		})

		Convey("停滞的处理中任务重新入队", func() {
			render, _ := svc.Submit(ctx, &SubmitRenderRequest{Kind: short.KindQnA, Unit: []byte(qnaPayload)})
			repo.renders[render.ID].Status = short.RenderStatusProcessing
			repo.renders[render.ID].UpdatedAt = time.Now().Add(-time.Hour)

			n, err := svc.RequeueStale(ctx, 30*time.Minute)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
			So(queue.ids, ShouldResemble, []string{render.ID, render.ID})
			So(repo.renders[render.ID].Status, ShouldEqual, short.RenderStatusPending)

			n, _ = svc.RequeueStale(ctx, 30*time.Minute)
			So(n, ShouldEqual, 0)
		})

		Convey("查询不存在的任务", func() {
			_, err := svc.Get(ctx, "missing")
			So(errors.Is(err, ErrRenderNotFound), ShouldBeTrue)
		})

		Convey("QueueDepth 返回队列长度", func() {
			_, _ = svc.Submit(ctx, &SubmitRenderRequest{Kind: short.KindQnA, Unit: []byte(qnaPayload)})
			_, _ = svc.Submit(ctx, &SubmitRenderRequest{Kind: short.KindQnA, Unit: []byte(qnaPayload)})
			n, err := svc.QueueDepth(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, int64(2))
		})
	})

	Convey("配置发布存储时上传成品并在查询时重新签发地址", t, func() {
		ctx := context.Background()
		repo := newMemRenderRepo()
		store := newMemStorage()
		out := filepath.Join(t.TempDir(), "finalized_qna.mp4")
		So(os.WriteFile(out, []byte("video-bytes"), 0o644), ShouldBeNil)
		svc := NewRenderService(repo, &fixedOutputPipeline{path: out}, &memQueue{}, "reelcast:renders", store, "/srv/out")

		render, err := svc.Submit(ctx, &SubmitRenderRequest{Kind: short.KindQnA, Unit: []byte(qnaPayload)})
		So(err, ShouldBeNil)
		key := storage.RenderKey(render.ID)

		Convey("上传后查询返回新的签名地址", func() {
			So(svc.Process(ctx, render.ID), ShouldBeNil)
			So(store.uploads, ShouldEqual, 1)
			So(string(store.objects[key]), ShouldEqual, "video-bytes")
			So(repo.renders[render.ID].StorageKey, ShouldEqual, key)

			got, err := svc.Get(ctx, render.ID)
			So(err, ShouldBeNil)
			So(got.OutputURL, ShouldEqual, "https://cdn.test/"+key+"?sig=1")
		})

		Convey("对象已存在时不重复上传", func() {
			store.objects[key] = []byte("video-bytes")
			So(svc.Process(ctx, render.ID), ShouldBeNil)
			So(store.uploads, ShouldEqual, 0)
			So(repo.renders[render.ID].OutputURL, ShouldEqual, "https://cdn.test/"+key+"?sig=1")
		})

		Convey("记录写入失败时删除已发布的对象", func() {
			repo.completeErr = errors.New("mongo down")
			So(svc.Process(ctx, render.ID), ShouldNotBeNil)
			So(store.uploads, ShouldEqual, 1)
			_, ok := store.objects[key]
			So(ok, ShouldBeFalse)
		})
	})

	Convey("未配置队列时 QueueDepth 不可用", t, func() {
		svc := NewRenderService(nil, nil, nil, "", nil, "")
		_, err := svc.QueueDepth(context.Background())
		So(errors.Is(err, ErrUnavailable), ShouldBeTrue)
	})

	Convey("RenderFile 逐个渲染并按序号命名输出目录", t, func() {
		pipeline := &stubPipeline{}
		svc := NewRenderService(nil, pipeline, nil, "", nil, "")
		input := `[` + qnaPayload + `,` + qnaPayload + `]`
		now := time.Date(2026, 10, 17, 9, 5, 0, 0, time.UTC)

		res, err := svc.RenderFile(context.Background(), &RenderFileRequest{
			Kind: short.KindQnA, Input: strings.NewReader(input), OutputDir: "/out", Now: now,
		})
		So(err, ShouldBeNil)
		So(len(res.Results), ShouldEqual, 2)
		So(res.Failures, ShouldBeEmpty)
		So(pipeline.outputs, ShouldResemble, []string{
			"/out/qna_20261017_0905_0/finalized_qna.mp4",
			"/out/qna_20261017_0905_1/finalized_qna.mp4",
		})
	})
}
