package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sergeiliashko/zero2prod/internal/service"
	"github.com/sergeiliashko/zero2prod/pkg/response"
)

// CtxUserID 认证通过后写入 gin 上下文的用户 id 键
const CtxUserID = "user_id"

// RequireUser 拒绝匿名请求：优先 Bearer token（API 调用方），
// 其次会话 cookie（浏览器）。两者都解析到同一个用户 id。
func RequireUser(sessions *service.SessionStore, auth *service.AuthService, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
			userID, err := auth.VerifyToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				response.Unauthorized(c, "invalid token")
				c.Abort()
				return
			}
			c.Set(CtxUserID, userID)
			c.Next()
			return
		}

		sessionID, err := c.Cookie(cookieName)
		if err != nil || sessionID == "" {
			response.Unauthorized(c, "authentication required")
			c.Abort()
			return
		}
		userID, err := sessions.Get(c.Request.Context(), sessionID)
		if err != nil {
			response.InternalError(c, err)
			c.Abort()
			return
		}
		if userID == "" {
			response.Unauthorized(c, "session expired")
			c.Abort()
			return
		}
		c.Set(CtxUserID, userID)
		c.Next()
	}
}
