package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/sergeiliashko/zero2prod/internal/api/middleware"
	"github.com/sergeiliashko/zero2prod/pkg/response"
)

// Dashboard 后台首页信息
// @Summary 后台首页
// @Tags 后台
// @Produce json
// @Success 200 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /admin/dashboard [get]
func (h *Handler) Dashboard(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserID)
	user, err := h.userRepo.GetByID(c.Request.Context(), userID)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if user == nil {
		response.InternalError(c, errors.New("authenticated user not found"))
		return
	}
	response.Success(c, gin.H{"username": user.Username})
}

// HealthCheck 健康检查
// @Summary 健康检查
// @Tags 系统
// @Success 200 {object} response.Response
// @Router /health_check [get]
func (h *Handler) HealthCheck(c *gin.Context) {
	response.Success(c, nil)
}
