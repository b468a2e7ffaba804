package render

import (
	"errors"
	"net/http"
	"time"

	"reelcast/internal/model/short"
	httputil "reelcast/internal/pkg/http"
	"reelcast/internal/service"
)

// ErrorResponse 错误响应类型别名
type ErrorResponse = httputil.ErrorResponse

// RenderInfo 渲染任务 DTO
type RenderInfo struct {
	ID           string                 `json:"render_id"`
	UnitID       string                 `json:"unit_id"`
	Kind         string                 `json:"kind"`
	Title        string                 `json:"title"`
	Status       string                 `json:"status"`
	OutputPath   string                 `json:"output_path,omitempty"`
	OutputURL    string                 `json:"output_url,omitempty"`
	Duration     float64                `json:"duration,omitempty"` // 秒
	Skipped      []short.SkippedSegment `json:"skipped,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	CreatedAt    string                 `json:"created_at"`
	UpdatedAt    string                 `json:"updated_at"`
	FinishedAt   string                 `json:"finished_at,omitempty"`
}

// toRenderInfo 将 Render 实体转换为 DTO
func toRenderInfo(r *short.Render) RenderInfo {
	info := RenderInfo{
		ID:           r.ID,
		UnitID:       r.UnitID,
		Kind:         r.Kind.String(),
		Title:        r.Title,
		Status:       r.Status.String(),
		Skipped:      r.Skipped,
		ErrorMessage: r.ErrorMessage,
		CreatedAt:    r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    r.UpdatedAt.Format(time.RFC3339),
	}
	if r.Status == short.RenderStatusCompleted {
		info.OutputPath = r.OutputPath
		info.OutputURL = r.OutputURL
		info.Duration = r.Duration
	}
	if r.FinishedAt != nil {
		info.FinishedAt = r.FinishedAt.Format(time.RFC3339)
	}
	return info
}

// errorStatus 把 service 错误映射为 HTTP 状态码和错误码
func errorStatus(err error) (int, int) {
	switch {
	case errors.Is(err, service.ErrInvalidUnit):
		return http.StatusBadRequest, httputil.CodeInvalidUnit
	case errors.Is(err, service.ErrRenderNotFound):
		return http.StatusNotFound, httputil.CodeNotFound
	case errors.Is(err, service.ErrUnavailable):
		return http.StatusServiceUnavailable, httputil.CodeUnavailable
	default:
		return http.StatusInternalServerError, httputil.CodeInternal
	}
}
