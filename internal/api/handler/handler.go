package handler

import (
	"github.com/sergeiliashko/zero2prod/internal/repository"
	"github.com/sergeiliashko/zero2prod/internal/service"
)

// Handler 聚合各业务服务的 gin 处理器
type Handler struct {
	subscriptionSvc *service.SubscriptionService
	publishSvc      *service.PublishService
	authSvc         *service.AuthService
	sessions        *service.SessionStore
	userRepo        repository.UserRepository

	cookieName   string
	secureCookie bool
}

func New(
	subscriptionSvc *service.SubscriptionService,
	publishSvc *service.PublishService,
	authSvc *service.AuthService,
	sessions *service.SessionStore,
	userRepo repository.UserRepository,
	cookieName string,
	secureCookie bool,
) *Handler {
	return &Handler{
		subscriptionSvc: subscriptionSvc,
		publishSvc:      publishSvc,
		authSvc:         authSvc,
		sessions:        sessions,
		userRepo:        userRepo,
		cookieName:      cookieName,
		secureCookie:    secureCookie,
	}
}
