package api

import (
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	_ "github.com/sergeiliashko/zero2prod/docs"
	"github.com/sergeiliashko/zero2prod/internal/api/handler"
	"github.com/sergeiliashko/zero2prod/internal/api/middleware"
	"github.com/sergeiliashko/zero2prod/internal/service"
)

// NewRouter 组装路由与中间件
func NewRouter(h *handler.Handler, sessions *service.SessionStore, authSvc *service.AuthService, cookieName string, sentryEnabled bool) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if sentryEnabled {
		r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	r.Use(middleware.RequestID())
	r.Use(otelgin.Middleware("newsletter"))
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	r.GET("/health_check", h.HealthCheck)
	r.POST("/subscriptions", h.Subscribe)
	r.GET("/subscriptions/confirm", h.ConfirmSubscription)
	// 登录单独限流，防撞库
	r.POST("/login", middleware.RateLimitPerIP(rate.Limit(1), 5), h.Login)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	admin := r.Group("/admin", middleware.RequireUser(sessions, authSvc, cookieName))
	{
		admin.GET("/dashboard", h.Dashboard)
		admin.POST("/newsletters", h.PublishNewsletter)
		admin.POST("/password", h.ChangePassword)
		admin.POST("/logout", h.Logout)
	}
	return r
}
