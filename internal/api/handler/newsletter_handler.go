package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/sergeiliashko/zero2prod/internal/api/middleware"
	"github.com/sergeiliashko/zero2prod/internal/idempotency"
	"github.com/sergeiliashko/zero2prod/internal/service"
	"github.com/sergeiliashko/zero2prod/pkg/logger"
	"github.com/sergeiliashko/zero2prod/pkg/response"
)

type publishRequest struct {
	Title          string `form:"title" binding:"required"`
	TextContent    string `form:"text_content" binding:"required"`
	HTMLContent    string `form:"html_content" binding:"required"`
	IdempotencyKey string `form:"idempotency_key" binding:"required"`
}

type publishData struct {
	IssueID string `json:"issue_id"`
}

// PublishNewsletter 发布期刊（幂等：同键重试返回首次响应的相同字节）
// @Summary 发布期刊
// @Tags 期刊
// @Accept x-www-form-urlencoded
// @Produce json
// @Param title formData string true "标题"
// @Param text_content formData string true "纯文本内容"
// @Param html_content formData string true "HTML 内容"
// @Param idempotency_key formData string true "幂等键"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /admin/newsletters [post]
func (h *Handler) PublishNewsletter(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	key, err := idempotency.ParseKey(req.IdempotencyKey)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	userID := c.GetString(middleware.CtxUserID)

	draft := service.IssueDraft{
		Title:       req.Title,
		TextContent: req.TextContent,
		HTMLContent: req.HTMLContent,
	}
	saved, replayed, err := h.publishSvc.Publish(c.Request.Context(), userID, key, draft, renderPublishResponse)
	if err != nil {
		if errors.Is(err, service.ErrClaimTimeout) {
			response.ServiceUnavailable(c, "a concurrent publish is still running, retry later")
			return
		}
		response.InternalError(c, err)
		return
	}
	if replayed {
		logger.Info("returning saved publish response",
			zap.String("user_id", userID),
			zap.String("idempotency_key", key.String()))
	}
	writeSavedResponse(c, saved)
}

// renderPublishResponse 构造成功响应快照；首次与重放共用同一份字节
func renderPublishResponse(issueID string) idempotency.SavedResponse {
	body, _ := json.Marshal(response.Response{Code: 0, Msg: "ok", Data: publishData{IssueID: issueID}})
	return idempotency.SavedResponse{
		StatusCode: http.StatusOK,
		Headers: []idempotency.HeaderPair{
			{Name: "Content-Type", Value: []byte("application/json; charset=utf-8")},
		},
		Body: body,
	}
}

// writeSavedResponse 快照按原样写出：状态码、头（含顺序与重复）、响应体
func writeSavedResponse(c *gin.Context, saved idempotency.SavedResponse) {
	header := c.Writer.Header()
	for _, p := range saved.Headers {
		header.Add(p.Name, string(p.Value))
	}
	c.Status(saved.StatusCode)
	_, _ = c.Writer.Write(saved.Body)
}
