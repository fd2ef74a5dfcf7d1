package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/sergeiliashko/zero2prod/internal/api/middleware"
	"github.com/sergeiliashko/zero2prod/internal/service"
	"github.com/sergeiliashko/zero2prod/pkg/response"
)

type loginRequest struct {
	Username string `form:"username" binding:"required"`
	Password string `form:"password" binding:"required"`
}

// Login 登录：种会话 cookie，同时返回 API 调用方可用的 Bearer token
// @Summary 登录
// @Tags 认证
// @Accept x-www-form-urlencoded
// @Produce json
// @Param username formData string true "用户名"
// @Param password formData string true "口令"
// @Success 200 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /login [post]
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	user, err := h.authSvc.ValidateCredentials(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.Unauthorized(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}

	sessionID, err := h.sessions.Create(c.Request.Context(), user.ID)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	token, err := h.authSvc.IssueToken(user.ID)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	c.SetCookie(h.cookieName, sessionID, 0, "/", "", h.secureCookie, true)
	response.Success(c, gin.H{"token": token})
}

// Logout 注销当前会话
// @Summary 注销
// @Tags 认证
// @Produce json
// @Success 200 {object} response.Response
// @Router /admin/logout [post]
func (h *Handler) Logout(c *gin.Context) {
	if sessionID, err := c.Cookie(h.cookieName); err == nil && sessionID != "" {
		if err := h.sessions.Delete(c.Request.Context(), sessionID); err != nil {
			response.InternalError(c, err)
			return
		}
	}
	c.SetCookie(h.cookieName, "", -1, "/", "", h.secureCookie, true)
	response.Success(c, nil)
}

type changePasswordRequest struct {
	CurrentPassword  string `form:"current_password" binding:"required"`
	NewPassword      string `form:"new_password" binding:"required,min=12,max=128"`
	NewPasswordCheck string `form:"new_password_check" binding:"required"`
}

// ChangePassword 修改口令
// @Summary 修改口令
// @Tags 认证
// @Accept x-www-form-urlencoded
// @Produce json
// @Param current_password formData string true "当前口令"
// @Param new_password formData string true "新口令"
// @Param new_password_check formData string true "新口令确认"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /admin/password [post]
func (h *Handler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.NewPassword != req.NewPasswordCheck {
		response.BadRequest(c, "the new passwords do not match")
		return
	}
	userID := c.GetString(middleware.CtxUserID)
	if err := h.authSvc.ChangePassword(c.Request.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.BadRequest(c, "the current password is incorrect")
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Success(c, nil)
}
