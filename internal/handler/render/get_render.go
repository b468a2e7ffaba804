package render

import (
	"net/http"

	"github.com/gin-gonic/gin"

	httputil "reelcast/internal/pkg/http"
	"reelcast/internal/pkg/id"
)

// GetRenderRequest 查询渲染任务请求
type GetRenderRequest struct {
	RenderID string `uri:"render_id" binding:"required"`
}

// GetRenderResponseData 查询渲染任务响应数据
type GetRenderResponseData struct {
	Render RenderInfo `json:"render"`
}

// GetRender 查询渲染任务状态
// GET /api/v1/renders/:render_id
func (h *Handler) GetRender(c *gin.Context) {
	var req GetRenderRequest
	if err := c.ShouldBindUri(&req); err != nil || !id.IsValid(req.RenderID) {
		c.JSON(http.StatusBadRequest, httputil.NewErrorResponse(
			httputil.CodeInvalidRequest, "Invalid render_id"))
		return
	}

	render, err := h.renderService.Get(c.Request.Context(), req.RenderID)
	if err != nil {
		status, code := errorStatus(err)
		c.JSON(status, httputil.NewErrorResponse(code, err.Error()))
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse("success", GetRenderResponseData{
		Render: toRenderInfo(render),
	}))
}
