package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/sergeiliashko/zero2prod/internal/service"
	"github.com/sergeiliashko/zero2prod/pkg/response"
)

type subscribeRequest struct {
	Name  string `form:"name" binding:"required"`
	Email string `form:"email" binding:"required,email"`
}

// Subscribe 订阅报名（待确认，发确认邮件）
// @Summary 订阅
// @Tags 订阅
// @Accept x-www-form-urlencoded
// @Produce json
// @Param name formData string true "姓名"
// @Param email formData string true "邮箱"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /subscriptions [post]
func (h *Handler) Subscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.subscriptionSvc.Subscribe(c.Request.Context(), req.Email, req.Name); err != nil {
		if errors.Is(err, service.ErrInvalidSubscriber) {
			response.BadRequest(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Success(c, nil)
}

// ConfirmSubscription 确认订阅
// @Summary 确认订阅
// @Tags 订阅
// @Param subscription_token query string true "确认令牌"
// @Success 200 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /subscriptions/confirm [get]
func (h *Handler) ConfirmSubscription(c *gin.Context) {
	token := c.Query("subscription_token")
	if token == "" {
		response.BadRequest(c, "subscription_token is required")
		return
	}
	ok, err := h.subscriptionSvc.Confirm(c.Request.Context(), token)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if !ok {
		response.Unauthorized(c, "unknown subscription token")
		return
	}
	response.Success(c, nil)
}
