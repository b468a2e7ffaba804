package render

import (
	"net/http"

	"github.com/gin-gonic/gin"

	httputil "reelcast/internal/pkg/http"
)

// GetQueueResponseData 队列状态响应数据
type GetQueueResponseData struct {
	Pending int64 `json:"pending"`
}

// GetQueue 查询等待渲染的任务数
// GET /api/v1/queue
func (h *Handler) GetQueue(c *gin.Context) {
	n, err := h.renderService.QueueDepth(c.Request.Context())
	if err != nil {
		status, code := errorStatus(err)
		c.JSON(status, httputil.NewErrorResponse(code, err.Error()))
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse("success", GetQueueResponseData{Pending: n}))
}
