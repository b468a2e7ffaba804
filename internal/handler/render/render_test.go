package render

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/smartystreets/goconvey/convey"

	"reelcast/internal/model/short"
	httputil "reelcast/internal/pkg/http"
	"reelcast/internal/service"
)

const knownID = "0f8fad5b-d9cb-469f-a165-70867728950e"

type stubService struct {
	service.RenderService
	submitted *service.SubmitRenderRequest
	submitErr error
	pending   int64
	queueErr  error
}

func (s *stubService) QueueDepth(context.Context) (int64, error) {
	return s.pending, s.queueErr
}

func (s *stubService) Submit(_ context.Context, req *service.SubmitRenderRequest) (*short.Render, error) {
	s.submitted = req
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	return &short.Render{ID: knownID, UnitID: "unit-1", Kind: req.Kind, Status: short.RenderStatusPending}, nil
}

func (s *stubService) Get(_ context.Context, renderID string) (*short.Render, error) {
	if renderID != knownID {
		return nil, service.ErrRenderNotFound
	}
	finished := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &short.Render{
		ID:         knownID,
		Kind:       short.KindQnA,
		Status:     short.RenderStatusCompleted,
		OutputPath: "/out/finalized_qna.mp4",
		Duration:   12.5,
		FinishedAt: &finished,
	}, nil
}

func newEngine(svc service.RenderService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	h := NewHandler(svc)
	engine.POST("/api/v1/renders", h.SubmitRender)
	engine.GET("/api/v1/renders/:render_id", h.GetRender)
	engine.GET("/api/v1/queue", h.GetQueue)
	return engine
}

func do(engine *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestSubmitRender(t *testing.T) {
	Convey("POST /api/v1/renders", t, func() {
		svc := &stubService{}
		engine := newEngine(svc)

		Convey("合法请求返回 202 和任务ID", func() {
			w := do(engine, http.MethodPost, "/api/v1/renders", `{"kind":"QnA","unit":{"title":"Why?","comments":[]}}`)
			So(w.Code, ShouldEqual, http.StatusAccepted)

			var resp struct {
				Code int                      `json:"code"`
				Data SubmitRenderResponseData `json:"data"`
			}
			So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
			So(resp.Code, ShouldEqual, httputil.CodeSuccess)
			So(resp.Data.RenderID, ShouldEqual, knownID)
			So(resp.Data.Status, ShouldEqual, "pending")
			So(svc.submitted.Kind, ShouldEqual, short.KindQnA)
		})

		Convey("未知形态返回 400", func() {
			w := do(engine, http.MethodPost, "/api/v1/renders", `{"kind":"story","unit":{}}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(svc.submitted, ShouldBeNil)
		})

		Convey("缺少 unit 返回 400", func() {
			w := do(engine, http.MethodPost, "/api/v1/renders", `{"kind":"qna"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("内容单元无效映射为 40002", func() {
			svc.submitErr = fmt.Errorf("%w: title is empty", service.ErrInvalidUnit)
			w := do(engine, http.MethodPost, "/api/v1/renders", `{"kind":"qna","unit":{"title":""}}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)

			var resp httputil.ErrorResponse
			So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
			So(resp.Code, ShouldEqual, httputil.CodeInvalidUnit)
		})

		Convey("队列未配置返回 503", func() {
			svc.submitErr = service.ErrUnavailable
			w := do(engine, http.MethodPost, "/api/v1/renders", `{"kind":"advice","unit":{"title":"t"}}`)
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}

func TestGetRender(t *testing.T) {
	Convey("GET /api/v1/renders/:render_id", t, func() {
		engine := newEngine(&stubService{})

		Convey("已完成的任务返回输出信息", func() {
			w := do(engine, http.MethodGet, "/api/v1/renders/"+knownID, "")
			So(w.Code, ShouldEqual, http.StatusOK)

			var resp struct {
				Data GetRenderResponseData `json:"data"`
			}
			So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
			So(resp.Data.Render.Status, ShouldEqual, "completed")
			So(resp.Data.Render.OutputPath, ShouldEqual, "/out/finalized_qna.mp4")
			So(resp.Data.Render.Duration, ShouldEqual, 12.5)
			So(resp.Data.Render.FinishedAt, ShouldEqual, "2026-01-02T03:04:05Z")
		})

		Convey("不存在的任务返回 404", func() {
			w := do(engine, http.MethodGet, "/api/v1/renders/1b4e28ba-2fa1-11d2-883f-0016d3cca427", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("非法ID返回 400", func() {
			w := do(engine, http.MethodGet, "/api/v1/renders/not-a-uuid", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestGetQueue(t *testing.T) {
	Convey("GET /api/v1/queue", t, func() {
		svc := &stubService{pending: 3}
		engine := newEngine(svc)

		Convey("返回排队中的任务数", func() {
			w := do(engine, http.MethodGet, "/api/v1/queue", "")
			So(w.Code, ShouldEqual, http.StatusOK)

			var resp struct {
				Data GetQueueResponseData `json:"data"`
			}
			So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
			So(resp.Data.Pending, ShouldEqual, int64(3))
		})

		Convey("队列未配置返回 503", func() {
			svc.queueErr = service.ErrUnavailable
			w := do(engine, http.MethodGet, "/api/v1/queue", "")
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}
