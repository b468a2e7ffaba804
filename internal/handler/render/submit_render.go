package render

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"reelcast/internal/model/short"
	httputil "reelcast/internal/pkg/http"
	"reelcast/internal/service"
)

// SubmitRenderRequest 提交渲染任务请求
type SubmitRenderRequest struct {
	Kind string          `json:"kind" binding:"required"` // qna 或 advice
	Unit json.RawMessage `json:"unit" binding:"required"` // 内容采集输出中的单个元素
}

// SubmitRenderResponseData 提交渲染任务响应数据
type SubmitRenderResponseData struct {
	RenderID string `json:"render_id"`
	UnitID   string `json:"unit_id"`
	Status   string `json:"status"`
}

// SubmitRender 提交渲染任务
// POST /api/v1/renders
func (h *Handler) SubmitRender(c *gin.Context) {
	var req SubmitRenderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httputil.NewErrorResponse(
			httputil.CodeInvalidRequest, "Invalid request body", err.Error()))
		return
	}

	kind, err := short.ParseKind(req.Kind)
	if err != nil {
		c.JSON(http.StatusBadRequest, httputil.NewErrorResponse(
			httputil.CodeInvalidRequest, "Invalid kind", err.Error()))
		return
	}

	render, err := h.renderService.Submit(c.Request.Context(), &service.SubmitRenderRequest{
		Kind: kind,
		Unit: req.Unit,
	})
	if err != nil {
		status, code := errorStatus(err)
		_ = c.Error(err)
		c.JSON(status, httputil.NewErrorResponse(code, "Failed to submit render", err.Error()))
		return
	}

	c.JSON(http.StatusAccepted, httputil.NewSuccessResponse("success", SubmitRenderResponseData{
		RenderID: render.ID,
		UnitID:   render.UnitID,
		Status:   render.Status.String(),
	}))
}
