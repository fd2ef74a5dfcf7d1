package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sergeiliashko/zero2prod/internal/email"
	"github.com/sergeiliashko/zero2prod/internal/repository"
	"github.com/sergeiliashko/zero2prod/pkg/logger"
)

var ErrInvalidSubscriber = errors.New("invalid subscriber details")

var validate = validator.New()

// 订阅者姓名里禁止的注入字符
const forbiddenNameChars = `/()"<>\{}`

func validateSubscriber(emailAddr, name string) error {
	if err := validate.Var(emailAddr, "required,email,max=320"); err != nil {
		return fmt.Errorf("%w: %s is not a valid email", ErrInvalidSubscriber, emailAddr)
	}
	if name == "" || len(name) > 256 || strings.ContainsAny(name, forbiddenNameChars) {
		return fmt.Errorf("%w: name is empty, too long or contains forbidden characters", ErrInvalidSubscriber)
	}
	return nil
}

// SubscriptionService 订阅报名与确认
type SubscriptionService struct {
	repo    repository.SubscriptionRepository
	sender  email.Sender
	baseURL string
}

func NewSubscriptionService(repo repository.SubscriptionRepository, sender email.Sender, baseURL string) *SubscriptionService {
	return &SubscriptionService{repo: repo, sender: sender, baseURL: baseURL}
}

// Subscribe 写入待确认订阅并发送确认邮件
func (s *SubscriptionService) Subscribe(ctx context.Context, emailAddr, name string) error {
	if err := validateSubscriber(emailAddr, name); err != nil {
		return err
	}
	token, err := generateSubscriptionToken()
	if err != nil {
		return err
	}
	if _, err := s.repo.Create(ctx, emailAddr, name, token); err != nil {
		return fmt.Errorf("store pending subscription: %w", err)
	}

	link := fmt.Sprintf("%s/subscriptions/confirm?subscription_token=%s", s.baseURL, token)
	textBody := fmt.Sprintf("Welcome to our newsletter!\nVisit %s to confirm your subscription.", link)
	htmlBody := fmt.Sprintf(`Welcome to our newsletter!<br/>Click <a href="%s">here</a> to confirm your subscription.`, link)
	if err := s.sender.Send(ctx, emailAddr, "Welcome!", htmlBody, textBody); err != nil {
		return fmt.Errorf("send confirmation email: %w", err)
	}
	logger.Info("new pending subscription", zap.String("email", emailAddr))
	return nil
}

// Confirm 用令牌确认订阅；令牌无效返回 (false, nil)
func (s *SubscriptionService) Confirm(ctx context.Context, token string) (bool, error) {
	return s.repo.ConfirmByToken(ctx, token)
}

const subscriptionTokenChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// generateSubscriptionToken 25 位大小写敏感随机令牌
func generateSubscriptionToken() (string, error) {
	buf := make([]byte, 25)
	max := big.NewInt(int64(len(subscriptionTokenChars)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate subscription token: %w", err)
		}
		buf[i] = subscriptionTokenChars[n.Int64()]
	}
	return string(buf), nil
}
